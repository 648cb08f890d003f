// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for updrift.
//
// Each command follows the same shape: a thin Cobra wrapper that parses
// flags and builds a params struct, and a run function holding the
// actual logic so it can be tested without a real Cobra command or live
// GitHub API calls.
package cmd
