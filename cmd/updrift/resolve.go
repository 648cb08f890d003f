// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/updrift/updrift/internal/updatecheck"
)

// metadataResolver is the slice of the resolver surface the resolve
// command needs, kept narrow so tests can substitute a stub.
type metadataResolver interface {
	ResolveMetadata(ctx context.Context) *updatecheck.Metadata
}

// resolveParams bundles the dependencies and flags for the resolve
// command, enabling the core logic in runResolve to be tested without a
// real Cobra command or live GitHub API calls.
type resolveParams struct {
	stdout   io.Writer
	resolver metadataResolver
	slug     string
	sections bool // --sections flag: render description/changelog markdown
	asJSON   bool // --json flag: machine-readable output
}

// newResolveCommand creates the `updrift resolve` command, which prints
// the metadata resolved for a plugin's latest release.
func newResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <slug>",
		Short: "Resolve and display the latest release metadata for a plugin",
		Long: `Resolve and display the latest release metadata for a plugin.

Metadata comes from a plugin.json sidecar asset on the latest release
when available, or from headers and section files parsed out of the
release archive. Results are cached; use 'updrift invalidate' to force
a fresh resolution.`,
		Example: `  # Show resolved metadata
  updrift resolve my-plugin

  # Also render description/changelog sections
  updrift resolve my-plugin --sections

  # Machine-readable output
  updrift resolve my-plugin --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			sections, _ := cmd.Flags().GetBool("sections")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := newApp()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
				return &ExitError{Code: 1, Err: err}
			}

			resolver, err := a.resolverFor(args[0])
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render("Error: ")+err.Error())
				return &ExitError{Code: 1, Err: err}
			}

			p := resolveParams{
				stdout:   cmd.OutOrStdout(),
				resolver: resolver,
				slug:     args[0],
				sections: sections,
				asJSON:   asJSON,
			}
			return runResolve(cmd.Context(), p)
		},
	}

	cmd.Flags().Bool("sections", false, "render description/changelog sections as markdown")
	cmd.Flags().Bool("json", false, "print the metadata as JSON")

	return cmd
}

// runResolve is the core resolve logic, separated from Cobra for testability.
func runResolve(ctx context.Context, p resolveParams) error {
	m := p.resolver.ResolveMetadata(ctx)
	if m == nil {
		fmt.Fprintf(p.stdout, "No update metadata could be resolved for %s.\n", p.slug)
		fmt.Fprintln(p.stdout, "Run with --verbose to see what failed.")
		return &ExitError{Code: 1, Err: fmt.Errorf("no metadata resolved for %s", p.slug)}
	}

	if p.asJSON {
		enc := json.NewEncoder(p.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	fmt.Fprintln(p.stdout, TitleStyle.Render(m.Name)+SubtitleStyle.Render(" ("+m.Slug+")"))
	fmt.Fprintf(p.stdout, "  Version:      %s\n", ValueStyle.Render(m.Version))
	if m.Author != "" {
		fmt.Fprintf(p.stdout, "  Author:       %s\n", m.Author)
	}
	if m.TestedUpTo != "" {
		fmt.Fprintf(p.stdout, "  Tested up to: %s\n", m.TestedUpTo)
	}
	if m.MinimumHostVersion != "" {
		fmt.Fprintf(p.stdout, "  Requires:     host %s or newer\n", m.MinimumHostVersion)
	}
	if m.MinimumRuntimeVersion != "" {
		fmt.Fprintf(p.stdout, "  Runtime:      %s or newer\n", m.MinimumRuntimeVersion)
	}
	if m.LastUpdated != "" {
		fmt.Fprintf(p.stdout, "  Published:    %s\n", m.LastUpdated)
	}
	fmt.Fprintf(p.stdout, "  Download:     %s\n", ValueStyle.Render(m.DownloadURL))
	if m.UpgradeNotice != "" {
		fmt.Fprintln(p.stdout, WarningStyle.Render("  Upgrade notice: ")+m.UpgradeNotice)
	}

	if !p.sections || len(m.Sections) == 0 {
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("creating markdown renderer: %w", err)
	}

	for _, name := range sectionOrder(m.Sections) {
		fmt.Fprintln(p.stdout, "\n"+TitleStyle.Render("## "+name))
		rendered, err := renderer.Render(m.Sections[name])
		if err != nil {
			// Fall back to the raw section when rendering fails.
			fmt.Fprintln(p.stdout, m.Sections[name])
			continue
		}
		fmt.Fprint(p.stdout, rendered)
	}
	return nil
}

// sectionOrder lists section names with the well-known ones first and
// anything else alphabetically after.
func sectionOrder(sections map[string]string) []string {
	known := []string{"description", "installation", "changelog"}
	var order []string
	seen := make(map[string]bool)
	for _, name := range known {
		if _, ok := sections[name]; ok {
			order = append(order, name)
			seen[name] = true
		}
	}

	var rest []string
	for name := range sections {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}
