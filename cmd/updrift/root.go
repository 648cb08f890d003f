// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/updrift/updrift/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// Verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "updrift",
		Short: "A release-backed plugin update checker",
		Long: TitleStyle.Render("updrift") + SubtitleStyle.Render(" - A release-backed plugin update checker") + `

updrift resolves update metadata for plugins published through GitHub
Releases. For each configured plugin it fetches the latest release,
reads metadata from a plugin.json sidecar asset or by parsing the
release archive itself, and decides whether an update applies to the
installed version.

Plugins are declared in 'config.cue' using CUE format, one entry per
tracked repository.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Create a config.cue declaring your plugins
  2. Check a plugin with: updrift check <slug> --installed <version>
  3. Inspect resolved metadata with: updrift resolve <slug>

` + SubtitleStyle.Render("Examples:") + `
  updrift check my-plugin --installed 1.2.0   Decide if an update applies
  updrift resolve my-plugin                   Show resolved metadata
  updrift resolve my-plugin --sections        Render description/changelog
  updrift invalidate my-plugin/my-plugin.php  Drop cached state after an update`,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/updrift/config.cue)")

	// Add subcommands
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newInvalidateCommand())
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
