// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors for user-facing boundaries:
// errors that carry the failed operation, the resource involved, and
// concrete suggestions for fixing the problem.
package issue
