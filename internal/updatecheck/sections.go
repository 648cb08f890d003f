// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// sectionCandidates lists, per section, the file names probed inside the
// plugin directory. Candidates are tried in order and the first one with
// non-empty content wins; matching is case-insensitive.
var sectionCandidates = map[string][]string{
	"description":    {"description.md", "description.txt", "README.md"},
	"changelog":      {"changelog.md", "changelog.txt", "CHANGELOG.md"},
	"installation":   {"installation.md", "installation.txt", "INSTALL.md"},
	"upgrade_notice": {"upgrade_notice.md", "upgrade_notice.txt"},
}

// sanitizePolicy is the bluemonday policy applied to every section before
// it is stored. UGCPolicy matches the threat model: section content comes
// from a third-party archive and ends up rendered in the host's UI.
var sanitizePolicy = bluemonday.UGCPolicy()

// collectSections scans pluginDir for the known section files and returns
// the sanitized HTML per section. Sections without any readable candidate
// are simply absent from the map; the map itself is never nil.
func collectSections(pluginDir string) map[string]string {
	sections := make(map[string]string)

	entries, err := os.ReadDir(pluginDir)
	if err != nil {
		return sections
	}

	for section, candidates := range sectionCandidates {
		for _, candidate := range candidates {
			name := matchEntryName(entries, candidate)
			if name == "" {
				continue
			}

			raw, err := os.ReadFile(filepath.Join(pluginDir, name))
			if err != nil || len(bytes.TrimSpace(raw)) == 0 {
				continue
			}

			sections[section] = renderSection(name, raw)
			break
		}
	}
	return sections
}

// matchEntryName returns the actual directory entry matching candidate
// case-insensitively, or "".
func matchEntryName(entries []os.DirEntry, candidate string) string {
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), candidate) {
			return e.Name()
		}
	}
	return ""
}

// renderSection converts raw section content to safe HTML. Markdown files
// are rendered first; everything passes through the sanitizer, so even a
// section file full of hostile markup comes out inert.
func renderSection(name string, raw []byte) string {
	if strings.EqualFold(filepath.Ext(name), ".md") {
		var buf bytes.Buffer
		if err := goldmark.Convert(raw, &buf); err == nil {
			return sanitizePolicy.Sanitize(buf.String())
		}
		// Fall back to sanitizing the raw text when rendering fails.
	}
	return sanitizePolicy.Sanitize(string(raw))
}

// sanitizeSectionMap sanitizes every value of a caller-provided section
// map (the plugin.json path delivers sections as pre-rendered HTML).
func sanitizeSectionMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = sanitizePolicy.Sanitize(v)
	}
	return out
}
