// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"regexp"
	"strings"
)

// versionTokenRe matches a version-like token inside a release tag: one or
// more digits followed by at least one ".digits" group (e.g. "2.1.0" in
// "v2.1.0" or "release-2.1.0").
var versionTokenRe = regexp.MustCompile(`\d+(?:\.\d+)+`)

// resolveDownloadURL searches the release assets for the plugin archive.
//
// First pass, in strict priority order (case-insensitive name match):
// "{slug}.zip", "latest.zip", "plugin.zip". If none match, a version-like
// token is extracted from the release tag and a second pass tries
// "{slug}-{version}.zip" then "{version}.zip". Returns the first match's
// download URL, or "" when nothing matches after both passes.
func resolveDownloadURL(release *RawRelease, slug string) string {
	candidates := []string{
		slug + ".zip",
		"latest.zip",
		"plugin.zip",
	}
	if url := findAssetURL(release.Assets, candidates); url != "" {
		return url
	}

	version := versionTokenRe.FindString(release.TagName)
	if version == "" {
		return ""
	}

	return findAssetURL(release.Assets, []string{
		slug + "-" + version + ".zip",
		version + ".zip",
	})
}

// findAssetURL returns the download URL of the first asset whose name
// matches any candidate, honoring candidate order over asset order.
func findAssetURL(assets []Asset, candidates []string) string {
	for _, want := range candidates {
		for i := range assets {
			if strings.EqualFold(assets[i].Name, want) {
				return assets[i].DownloadURL
			}
		}
	}
	return ""
}

// findAssetByName returns the first asset whose name equals name,
// case-insensitively, or nil.
func findAssetByName(assets []Asset, name string) *Asset {
	for i := range assets {
		if strings.EqualFold(assets[i].Name, name) {
			return &assets[i]
		}
	}
	return nil
}
