// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/updrift/updrift/internal/cachestore"
)

func TestSemverComparator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.9", "1.3.0", -1},
		{"1.3.0", "1.2.9", 1},
		{"1.2.0", "1.2.0", 0},
		{"v1.2.0", "1.2.0", 0}, // prefix normalization
		{"6.3", "6.5", -1},     // short host versions
		{"2.0.0", "2.0.0-rc1", 1},
	}

	c := SemverComparator{}
	for _, tt := range tests {
		got, err := c.Compare(tt.a, tt.b)
		if err != nil {
			t.Errorf("Compare(%q, %q) failed: %v", tt.a, tt.b, err)
			continue
		}
		if sign(got) != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want sign %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func TestSemverComparatorInvalidInput(t *testing.T) {
	t.Parallel()

	c := SemverComparator{}
	for _, bad := range []string{"", "not-a-version", "1.2.banana"} {
		if _, err := c.Compare(bad, "1.0.0"); !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("Compare(%q, ...) = %v, want ErrInvalidVersion", bad, err)
		}
	}
}

// newOfflineResolver builds a resolver whose metadata resolution is fully
// served from a pre-populated cache, so gate tests never touch the network.
func newOfflineResolver(t *testing.T, m Metadata) *Resolver {
	t.Helper()

	store := cachestore.NewMemStore()
	identity, err := NewIdentity("my-plugin/my-plugin.php", "acme/my-plugin", "")
	if err != nil {
		t.Fatalf("NewIdentity failed: %v", err)
	}

	release, err := json.Marshal(RawRelease{TagName: "v" + m.Version})
	if err != nil {
		t.Fatalf("marshaling release: %v", err)
	}
	if err := store.Set("release:my-plugin", release, 0); err != nil {
		t.Fatalf("seeding release: %v", err)
	}

	encoded, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshaling metadata: %v", err)
	}
	if err := store.Set("json:my-plugin", encoded, 0); err != nil {
		t.Fatalf("seeding metadata: %v", err)
	}

	return NewResolver(identity, NewOptions(), NewClient(), store,
		WithLogger(log.New(io.Discard)))
}

func TestCheckForUpdateAvailable(t *testing.T) {
	t.Parallel()

	r := newOfflineResolver(t, Metadata{
		Name:               "My Plugin",
		Slug:               "my-plugin",
		Version:            "1.3.0",
		TestedUpTo:         "6.5",
		MinimumHostVersion: "6.0",
		DownloadURL:        "https://example.com/my-plugin.zip",
	})

	d := r.CheckForUpdate(context.Background(), "1.2.9", "6.4")
	if d == nil {
		t.Fatal("expected a decision")
	}
	if !d.Available || d.NewVersion != "1.3.0" {
		t.Errorf("decision = %+v", d)
	}
	if d.PackageURL != "https://example.com/my-plugin.zip" {
		t.Errorf("PackageURL = %q", d.PackageURL)
	}
	if d.HostURL != "https://github.com/acme/my-plugin" {
		t.Errorf("HostURL = %q", d.HostURL)
	}
	if d.ID != "github.com/acme/my-plugin" {
		t.Errorf("ID = %q", d.ID)
	}
	if d.TestedUpTo != "6.5" || d.MinimumHostVersion != "6.0" {
		t.Errorf("constraints = %q/%q", d.TestedUpTo, d.MinimumHostVersion)
	}
}

func TestCheckForUpdateUpToDate(t *testing.T) {
	t.Parallel()

	r := newOfflineResolver(t, Metadata{Name: "P", Slug: "my-plugin", Version: "1.3.0"})

	if d := r.CheckForUpdate(context.Background(), "1.3.0", "6.4"); d != nil {
		t.Errorf("equal versions should yield no decision, got %+v", d)
	}
	if d := r.CheckForUpdate(context.Background(), "2.0.0", "6.4"); d != nil {
		t.Errorf("newer installed version should yield no decision, got %+v", d)
	}
}

func TestCheckForUpdateWithheldBelowMinimumHostVersion(t *testing.T) {
	t.Parallel()

	r := newOfflineResolver(t, Metadata{
		Name: "P", Slug: "my-plugin", Version: "1.3.0",
		MinimumHostVersion: "6.5",
	})

	if d := r.CheckForUpdate(context.Background(), "1.2.0", "6.3"); d != nil {
		t.Errorf("update must be withheld when the host is too old, got %+v", d)
	}

	// The same update is offered once the host meets the requirement.
	if d := r.CheckForUpdate(context.Background(), "1.2.0", "6.5"); d == nil {
		t.Error("update should be offered when the host meets the minimum")
	}
}

func TestCheckForUpdateNoMinimumHostVersionIgnoresHost(t *testing.T) {
	t.Parallel()

	r := newOfflineResolver(t, Metadata{Name: "P", Slug: "my-plugin", Version: "1.3.0"})

	// Even a nonsense host version is irrelevant without a declared minimum.
	if d := r.CheckForUpdate(context.Background(), "1.2.0", "unknown"); d == nil {
		t.Error("expected a decision when no minimum host version is declared")
	}
}

func TestCheckForUpdateInvalidInstalledVersion(t *testing.T) {
	t.Parallel()

	r := newOfflineResolver(t, Metadata{Name: "P", Slug: "my-plugin", Version: "1.3.0"})

	if d := r.CheckForUpdate(context.Background(), "not-a-version", "6.4"); d != nil {
		t.Errorf("uninterpretable versions should yield no decision, got %+v", d)
	}
}

func TestCheckForUpdateNoMetadata(t *testing.T) {
	t.Parallel()

	store := cachestore.NewMemStore()
	identity, err := NewIdentity("my-plugin/my-plugin.php", "acme/my-plugin", "")
	if err != nil {
		t.Fatalf("NewIdentity failed: %v", err)
	}
	client := NewClient(WithBaseURL("http://127.0.0.1:0")) // unroutable
	r := NewResolver(identity, NewOptions(), client, store,
		WithLogger(log.New(io.Discard)))

	if d := r.CheckForUpdate(context.Background(), "1.0.0", "6.4"); d != nil {
		t.Errorf("expected nil without metadata, got %+v", d)
	}
}
