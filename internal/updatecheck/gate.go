// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion indicates a version string that cannot be normalized
// to valid semver.
var ErrInvalidVersion = errors.New("invalid semantic version")

type (
	// UpdateDecision is the host-facing answer to "is there an update?".
	// It is only constructed when an applicable update exists.
	UpdateDecision struct {
		Available          bool
		NewVersion         string
		PackageURL         string
		TestedUpTo         string
		HostURL            string
		MinimumHostVersion string
		ID                 string // provider-qualified repository reference
	}

	// VersionComparator orders two semantic-version strings. Implementations
	// return a negative value when a < b, zero when equal, positive when
	// a > b, and an error when either string cannot be interpreted.
	VersionComparator interface {
		Compare(a, b string) (int, error)
	}

	// SemverComparator is the default VersionComparator, built on
	// golang.org/x/mod/semver with "v"-prefix normalization so bare
	// versions like "1.2.0" and short host versions like "6.5" compare
	// correctly.
	SemverComparator struct{}
)

// Compare implements VersionComparator.
func (SemverComparator) Compare(a, b string) (int, error) {
	na, err := normalizeVersion(a)
	if err != nil {
		return 0, err
	}
	nb, err := normalizeVersion(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(na, nb), nil
}

// normalizeVersion ensures the version string has a "v" prefix as required
// by the semver package and validates the result.
func normalizeVersion(v string) (string, error) {
	norm := strings.TrimSpace(v)
	if !strings.HasPrefix(norm, "v") {
		norm = "v" + norm
	}
	if !semver.IsValid(norm) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	return norm, nil
}

// CheckForUpdate resolves the latest metadata and decides whether an
// update should be offered to a host running installedVersion on
// hostVersion. It returns nil in every "no decision" case:
//
//   - no metadata could be resolved,
//   - the installed version is equal to or newer than the latest release
//     (up to date, not an error),
//   - the metadata declares a minimum host version the host does not meet
//     (a newer package exists but the host cannot run it),
//   - a version string cannot be interpreted (logged, treated as absence).
func (r *Resolver) CheckForUpdate(ctx context.Context, installedVersion, hostVersion string) *UpdateDecision {
	m := r.ResolveMetadata(ctx)
	if m == nil {
		return nil
	}

	cmp, err := r.compare.Compare(installedVersion, m.Version)
	if err != nil {
		r.logger.Warn("version comparison failed",
			"installed", installedVersion, "latest", m.Version, "err", err)
		return nil
	}
	if cmp >= 0 {
		return nil
	}

	if m.MinimumHostVersion != "" {
		hostCmp, err := r.compare.Compare(hostVersion, m.MinimumHostVersion)
		if err != nil {
			r.logger.Warn("host version comparison failed",
				"host", hostVersion, "required", m.MinimumHostVersion, "err", err)
			return nil
		}
		// Never offer an update the host cannot run.
		if hostCmp < 0 {
			r.logger.Info("update withheld: host below minimum version",
				"host", hostVersion, "required", m.MinimumHostVersion, "new_version", m.Version)
			return nil
		}
	}

	return &UpdateDecision{
		Available:          true,
		NewVersion:         m.Version,
		PackageURL:         m.DownloadURL,
		TestedUpTo:         m.TestedUpTo,
		HostURL:            r.identity.HostURL(),
		MinimumHostVersion: m.MinimumHostVersion,
		ID:                 r.identity.StableID(),
	}
}
