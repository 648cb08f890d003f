// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/updrift/updrift/internal/updatecheck"
)

// updateChecker is the slice of the resolver surface the check command
// needs, kept narrow so tests can substitute a stub.
type updateChecker interface {
	CheckForUpdate(ctx context.Context, installedVersion, hostVersion string) *updatecheck.UpdateDecision
}

// checkParams bundles the dependencies and flags for the check command,
// enabling the core logic in runCheck to be tested without a real Cobra
// command or live GitHub API calls.
type checkParams struct {
	stdout    io.Writer
	checker   updateChecker
	slug      string
	installed string // currently installed plugin version
	host      string // host platform version (empty = unconstrained)
	asJSON    bool   // --json flag: machine-readable output
}

// newCheckCommand creates the `updrift check` command, which decides
// whether an update applies to an installed plugin version.
func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <slug>",
		Short: "Check whether an update applies to an installed plugin version",
		Long: `Check whether an update applies to an installed plugin version.

The check command resolves the latest release metadata for the plugin
and compares versions. No update is reported when the installed version
is current, when the plugin's minimum host version exceeds --host, or
when no metadata could be resolved.`,
		Example: `  # Check a plugin against its latest release
  updrift check my-plugin --installed 1.2.0

  # Constrain by host platform version
  updrift check my-plugin --installed 1.2.0 --host 6.4

  # Machine-readable output
  updrift check my-plugin --installed 1.2.0 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			installed, _ := cmd.Flags().GetString("installed")
			host, _ := cmd.Flags().GetString("host")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := newApp()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
				return &ExitError{Code: 1, Err: err}
			}

			if host == "" {
				host = a.cfg.HostVersion
			}

			checker, err := a.resolverFor(args[0])
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render("Error: ")+err.Error())
				return &ExitError{Code: 1, Err: err}
			}

			p := checkParams{
				stdout:    cmd.OutOrStdout(),
				checker:   checker,
				slug:      args[0],
				installed: installed,
				host:      host,
				asJSON:    asJSON,
			}
			return runCheck(cmd.Context(), p)
		},
	}

	cmd.Flags().String("installed", "", "currently installed plugin version (required)")
	cmd.Flags().String("host", "", "host platform version (defaults to host_version from config)")
	cmd.Flags().Bool("json", false, "print the decision as JSON")
	_ = cmd.MarkFlagRequired("installed")

	return cmd
}

// runCheck is the core check logic, separated from Cobra for testability.
func runCheck(ctx context.Context, p checkParams) error {
	decision := p.checker.CheckForUpdate(ctx, p.installed, p.host)

	if p.asJSON {
		enc := json.NewEncoder(p.stdout)
		enc.SetIndent("", "  ")
		if decision == nil {
			return enc.Encode(map[string]bool{"available": false})
		}
		return enc.Encode(decision)
	}

	if decision == nil {
		fmt.Fprintf(p.stdout, "%s is up to date (installed %s)\n", p.slug, p.installed)
		return nil
	}

	fmt.Fprintln(p.stdout, SuccessStyle.Render(fmt.Sprintf("Update available: %s %s → %s", p.slug, p.installed, decision.NewVersion)))
	fmt.Fprintf(p.stdout, "  Package:   %s\n", decision.PackageURL)
	if decision.TestedUpTo != "" {
		fmt.Fprintf(p.stdout, "  Tested up to host %s\n", decision.TestedUpTo)
	}
	if decision.MinimumHostVersion != "" {
		fmt.Fprintf(p.stdout, "  Requires host %s or newer\n", decision.MinimumHostVersion)
	}
	fmt.Fprintf(p.stdout, "  Homepage:  %s\n", decision.HostURL)
	return nil
}
