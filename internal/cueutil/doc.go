// SPDX-License-Identifier: MPL-2.0

// Package cueutil holds shared helpers for validating user-supplied CUE
// files against embedded schemas: size limits, schema unification, and
// error formatting with JSON-path prefixes.
package cueutil
