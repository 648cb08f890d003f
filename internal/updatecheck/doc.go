// SPDX-License-Identifier: MPL-2.0

// Package updatecheck implements the update-metadata resolution engine:
// given a GitHub repository that publishes plugin releases, it determines
// whether a newer release exists and produces a normalized metadata record
// describing it, caching intermediate results to avoid redundant network
// calls.
//
// The package is organized into the following concerns:
//   - github.go: HTTP client for the GitHub Releases API and the fetch failure taxonomy
//   - assets.go: download-link resolution over release assets
//   - archive.go: layered zip validation and safe extraction
//   - headers.go: plugin header-comment parsing
//   - sections.go: section file discovery, markdown rendering, HTML sanitization
//   - resolver.go: Resolver type orchestrating the JSON-first/archive-fallback flow
//   - gate.go: version-comparison gate producing UpdateDecision values
//   - invalidate.go: cache purge after a confirmed update
//   - registry.go: identity-keyed resolver registry (one resolver per plugin file)
//
// Every failure inside the engine is logged with structured context and
// converted to an absence signal; the host-facing operations never panic
// and never surface component-internal errors.
package updatecheck
