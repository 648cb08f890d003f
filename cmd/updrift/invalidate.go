// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// cacheInvalidator is the slice of the registry surface the invalidate
// command needs, kept narrow so tests can substitute a stub.
type cacheInvalidator interface {
	BroadcastUpdateApplied(appliedPluginFile string)
}

// invalidateParams bundles the dependencies for the invalidate command.
type invalidateParams struct {
	stdout     io.Writer
	registry   cacheInvalidator
	pluginFile string
}

// newInvalidateCommand creates the `updrift invalidate` command, which
// drops cached state for a plugin after an update was applied.
func newInvalidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate <plugin-file>",
		Short: "Drop cached release state after a plugin update was applied",
		Long: `Drop cached release state after a plugin update was applied.

The argument is the plugin's file reference as declared in config.cue
(e.g. "my-plugin/my-plugin.php"). All cached release and metadata
records for the matching plugin are removed so the next check performs
a fresh resolution. A reference matching no configured plugin is a
no-op.`,
		Example: `  updrift invalidate my-plugin/my-plugin.php`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			a, err := newApp()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
				return &ExitError{Code: 1, Err: err}
			}

			// Register a resolver for every configured plugin so the
			// broadcast reaches the one matching the file reference.
			for _, plugin := range a.cfg.Plugins {
				if _, err := a.resolverFor(plugin.EffectiveSlug()); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Warning: ")+err.Error())
				}
			}

			p := invalidateParams{
				stdout:     cmd.OutOrStdout(),
				registry:   a.registry,
				pluginFile: args[0],
			}
			return runInvalidate(p)
		},
	}

	return cmd
}

// runInvalidate is the core invalidation logic, separated from Cobra
// for testability.
func runInvalidate(p invalidateParams) error {
	p.registry.BroadcastUpdateApplied(p.pluginFile)
	fmt.Fprintf(p.stdout, "Cached state for %s invalidated.\n", p.pluginFile)
	return nil
}
