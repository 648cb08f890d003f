// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// maxHeaderBytes bounds how much of the plugin's main file is scanned for
// header fields. Headers live at the top of the file; 8 KB matches the
// conventional limit.
const maxHeaderBytes = 8 << 10

// pluginHeaders holds the fields parsed from the plugin file's header
// comment. All fields are best-effort: a missing field is an empty string,
// never an error.
type pluginHeaders struct {
	Name                  string
	Version               string
	TestedUpTo            string
	MinimumHostVersion    string
	MinimumRuntimeVersion string
	Author                string
	AuthorProfileURL      string
}

// headerFields maps the recognized header keys (lowercased) to setters.
// The key set mirrors the established plugin header convention.
var headerFields = map[string]func(*pluginHeaders, string){
	"plugin name":       func(h *pluginHeaders, v string) { h.Name = v },
	"version":           func(h *pluginHeaders, v string) { h.Version = v },
	"tested up to":      func(h *pluginHeaders, v string) { h.TestedUpTo = v },
	"requires at least": func(h *pluginHeaders, v string) { h.MinimumHostVersion = v },
	"requires runtime":  func(h *pluginHeaders, v string) { h.MinimumRuntimeVersion = v },
	"author":            func(h *pluginHeaders, v string) { h.Author = v },
	"author uri":        func(h *pluginHeaders, v string) { h.AuthorProfileURL = v },
}

// parsePluginHeaderFile opens the plugin's main file and parses its header
// block. A missing or unreadable file yields zero-valued headers.
func parsePluginHeaderFile(path string) pluginHeaders {
	f, err := os.Open(path)
	if err != nil {
		return pluginHeaders{}
	}
	defer func() {
		// Read-only file handle; close errors are exotic.
		_ = f.Close()
	}()

	return parsePluginHeaders(io.LimitReader(f, maxHeaderBytes))
}

// parsePluginHeaders scans "Key: Value" lines from the top of a plugin
// file, tolerating the comment syntax the line is wrapped in. Lines that
// do not carry a recognized key are skipped silently; the first occurrence
// of a key wins.
func parsePluginHeaders(r io.Reader) pluginHeaders {
	var h pluginHeaders

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := trimCommentDecoration(scanner.Text())

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		set, recognized := headerFields[strings.ToLower(strings.TrimSpace(key))]
		if !recognized {
			continue
		}

		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		set(&h, value)
	}
	// Scanner errors mean a truncated header block at worst; whatever was
	// parsed before the error still applies.

	return h
}

// trimCommentDecoration strips leading comment markers so headers are
// found regardless of the comment style wrapping them.
func trimCommentDecoration(line string) string {
	line = strings.TrimSpace(line)
	for _, prefix := range []string{"/*", "*/", "//", "*", "#", ";"} {
		line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
	}
	return line
}
