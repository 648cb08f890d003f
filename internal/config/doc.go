// SPDX-License-Identifier: MPL-2.0

// Package config loads and validates the updrift configuration.
//
// Configuration lives in a single CUE file (config.cue) resolved from,
// in order: an explicit --config path, the platform config directory,
// or the current directory. The file is validated against an embedded
// CUE schema before being merged into Viper, so defaults and UPDRIFT_*
// environment overrides still apply on top of it.
//
// Concerns are split per file:
//   - config.go: loading, CUE validation, plugin-list validation
//   - types.go: the Config/PluginConfig model and typed errors
//   - config_schema.cue: the embedded #Config schema
package config
