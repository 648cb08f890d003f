// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/updrift/updrift/internal/cachestore"
)

// releaseFixture describes the fake GitHub repository a test serves.
type releaseFixture struct {
	tagName    string
	pluginJSON string            // plugin.json asset body; "" means no such asset
	zipFiles   map[string]string // archive contents; nil means no archive asset
}

// newTestResolver wires a Resolver against an httptest server serving the
// fixture, with an in-memory store and a discarded logger. The returned
// counter tracks every HTTP request the resolver makes.
func newTestResolver(t *testing.T, fixture releaseFixture, opts ...Option) (*Resolver, *cachestore.MemStore, *atomic.Int64) {
	t.Helper()

	var requests atomic.Int64

	var zipBytes []byte
	if fixture.zipFiles != nil {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		for name, content := range fixture.zipFiles {
			w, err := zw.Create(name)
			if err != nil {
				t.Fatalf("creating zip entry: %v", err)
			}
			if _, err := w.Write([]byte(content)); err != nil {
				t.Fatalf("writing zip entry: %v", err)
			}
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("closing zip writer: %v", err)
		}
		zipBytes = buf.Bytes()
	}

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/repos/acme/my-plugin/releases/latest", func(w http.ResponseWriter, _ *http.Request) {
		var assets []string
		if fixture.pluginJSON != "" {
			assets = append(assets, fmt.Sprintf(`{"name": "plugin.json", "browser_download_url": "%s/assets/plugin.json", "size": %d}`,
				srv.URL, len(fixture.pluginJSON)))
		}
		if zipBytes != nil {
			assets = append(assets, fmt.Sprintf(`{"name": "my-plugin.zip", "browser_download_url": "%s/assets/my-plugin.zip", "size": %d}`,
				srv.URL, len(zipBytes)))
		}
		fmt.Fprintf(w, `{"tag_name": %q, "published_at": "2024-03-01T12:30:00Z", "assets": [%s]}`,
			fixture.tagName, strings.Join(assets, ","))
	})
	mux.HandleFunc("/assets/plugin.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, fixture.pluginJSON)
	})
	mux.HandleFunc("/assets/my-plugin.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(zipBytes)
	})

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	store := cachestore.NewMemStore()

	identity, err := NewIdentity("my-plugin/my-plugin.php", "acme/my-plugin", "")
	if err != nil {
		t.Fatalf("NewIdentity failed: %v", err)
	}

	r := NewResolver(identity, NewOptions(opts...), client, store,
		WithLogger(log.New(io.Discard)))
	return r, store, &requests
}

const validPluginJSON = `{
	"name": "My Fancy Plugin",
	"slug": "my-plugin",
	"version": "2.1.0",
	"tested": "6.5",
	"requires": "6.0",
	"requires_runtime": "8.1",
	"author": "Jane Doe",
	"author_profile": "https://example.com/jane",
	"trunk": "https://example.com/trunk.zip",
	"sections": {"description": "Does <b>useful</b> things<script>alert(1)</script>"},
	"banners": {"high": "https://example.com/banner.png"},
	"upgrade_notice": "Back up first."
}`

const pluginPHPWithHeaders = `<?php
/*
 * Plugin Name: Archive Plugin
 * Version: 3.0.0
 * Tested up to: 6.4
 * Requires at least: 6.1
 * Author: Sam Smith
 */
`

func TestResolveMetadataFromJSON(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestResolver(t, releaseFixture{
		tagName:    "v2.1.0",
		pluginJSON: validPluginJSON,
		zipFiles:   map[string]string{"my-plugin/my-plugin.php": pluginPHPWithHeaders},
	})

	m := r.ResolveMetadata(context.Background())
	if m == nil {
		t.Fatal("expected metadata, got nil")
	}

	if m.Name != "My Fancy Plugin" || m.Slug != "my-plugin" || m.Version != "2.1.0" {
		t.Errorf("identifying fields = %q/%q/%q", m.Name, m.Slug, m.Version)
	}
	if m.TestedUpTo != "6.5" || m.MinimumHostVersion != "6.0" || m.MinimumRuntimeVersion != "8.1" {
		t.Errorf("version constraints = %q/%q/%q", m.TestedUpTo, m.MinimumHostVersion, m.MinimumRuntimeVersion)
	}
	if m.Author != "Jane Doe" || m.AuthorProfileURL != "https://example.com/jane" {
		t.Errorf("author fields = %q/%q", m.Author, m.AuthorProfileURL)
	}
	if m.LastUpdated != "2024-03-01 12:30:00" {
		t.Errorf("LastUpdated = %q", m.LastUpdated)
	}
	if !strings.HasSuffix(m.DownloadURL, "/assets/my-plugin.zip") {
		t.Errorf("DownloadURL = %q", m.DownloadURL)
	}
	if m.TrunkURL != "https://example.com/trunk.zip" {
		t.Errorf("TrunkURL = %q", m.TrunkURL)
	}
	if m.UpgradeNotice != "Back up first." {
		t.Errorf("UpgradeNotice = %q", m.UpgradeNotice)
	}
	if strings.Contains(m.Sections["description"], "<script>") {
		t.Errorf("sidecar section was not sanitized: %q", m.Sections["description"])
	}
	if m.Banners == nil || m.Icons == nil {
		t.Error("optional maps must never be nil")
	}
}

func TestResolveMetadataSecondCallServedFromCache(t *testing.T) {
	t.Parallel()

	r, _, requests := newTestResolver(t, releaseFixture{
		tagName:    "v2.1.0",
		pluginJSON: validPluginJSON,
	})

	if m := r.ResolveMetadata(context.Background()); m == nil {
		t.Fatal("first resolution failed")
	}
	after := requests.Load()

	if m := r.ResolveMetadata(context.Background()); m == nil {
		t.Fatal("second resolution failed")
	}
	if requests.Load() != after {
		t.Errorf("second resolution hit the network: %d -> %d requests", after, requests.Load())
	}
}

func TestResolveMetadataJSONMissingFieldFallsBackToArchive(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestResolver(t, releaseFixture{
		tagName:    "v3.0.0",
		pluginJSON: `{"name": "Broken Sidecar", "slug": "my-plugin"}`, // no version
		zipFiles: map[string]string{
			"my-plugin/my-plugin.php": pluginPHPWithHeaders,
			"my-plugin/changelog.txt": "3.0.0 - rewritten",
		},
	})

	m := r.ResolveMetadata(context.Background())
	if m == nil {
		t.Fatal("expected archive-path metadata, got nil")
	}

	if m.Name != "Archive Plugin" || m.Version != "3.0.0" {
		t.Errorf("archive metadata = %q/%q", m.Name, m.Version)
	}
	if m.Slug != "my-plugin" {
		t.Errorf("Slug = %q", m.Slug)
	}
	if !strings.Contains(m.Sections["changelog"], "3.0.0 - rewritten") {
		t.Errorf("changelog section = %q", m.Sections["changelog"])
	}
}

func TestResolveMetadataArchivePreferredOrdering(t *testing.T) {
	t.Parallel()

	// Both paths are viable; with PreferJSONMetadata disabled the archive
	// result (version 3.0.0) must win over the sidecar (2.1.0).
	r, _, _ := newTestResolver(t, releaseFixture{
		tagName:    "v3.0.0",
		pluginJSON: validPluginJSON,
		zipFiles:   map[string]string{"my-plugin/my-plugin.php": pluginPHPWithHeaders},
	}, WithPreferJSONMetadata(false))

	m := r.ResolveMetadata(context.Background())
	if m == nil {
		t.Fatal("expected metadata, got nil")
	}
	if m.Version != "3.0.0" {
		t.Errorf("Version = %q, want the archive-derived version", m.Version)
	}
}

func TestResolveMetadataArchiveFallsBackToJSONAsLastResort(t *testing.T) {
	t.Parallel()

	// Archive preferred but no archive asset exists; the sidecar still
	// rescues the resolution.
	r, _, _ := newTestResolver(t, releaseFixture{
		tagName:    "v2.1.0",
		pluginJSON: validPluginJSON,
	}, WithPreferJSONMetadata(false))

	m := r.ResolveMetadata(context.Background())
	if m == nil {
		t.Fatal("expected metadata, got nil")
	}
	if m.Version != "2.1.0" {
		t.Errorf("Version = %q, want the sidecar version", m.Version)
	}
}

func TestResolveMetadataArchiveNameAndVersionFallbacks(t *testing.T) {
	t.Parallel()

	// Plugin file exists but carries no headers: the name falls back to the
	// slug, the version to the tag's version token.
	r, _, _ := newTestResolver(t, releaseFixture{
		tagName:  "release-4.2.0",
		zipFiles: map[string]string{"my-plugin/my-plugin.php": "<?php // no headers here"},
	})

	m := r.ResolveMetadata(context.Background())
	if m == nil {
		t.Fatal("expected metadata, got nil")
	}
	if m.Name != "my-plugin" {
		t.Errorf("Name = %q, want the slug fallback", m.Name)
	}
	if m.Version != "4.2.0" {
		t.Errorf("Version = %q, want the tag token", m.Version)
	}
}

func TestResolveMetadataNoVersionAnywhereFails(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestResolver(t, releaseFixture{
		tagName:  "latest", // no version token
		zipFiles: map[string]string{"my-plugin/my-plugin.php": "<?php // no headers"},
	})

	if m := r.ResolveMetadata(context.Background()); m != nil {
		t.Errorf("expected nil without any version source, got %+v", m)
	}
}

func TestResolveMetadataPluginFileMissingFromArchive(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestResolver(t, releaseFixture{
		tagName:  "v1.0.0",
		zipFiles: map[string]string{"other-plugin/other.php": "<?php"},
	})

	if m := r.ResolveMetadata(context.Background()); m != nil {
		t.Errorf("expected nil when the plugin file is absent, got %+v", m)
	}
}

func TestResolveMetadataReleaseFetchFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	identity, err := NewIdentity("my-plugin/my-plugin.php", "acme/my-plugin", "")
	if err != nil {
		t.Fatalf("NewIdentity failed: %v", err)
	}
	r := NewResolver(identity, NewOptions(), client, cachestore.NewMemStore(),
		WithLogger(log.New(io.Discard)))

	if m := r.ResolveMetadata(context.Background()); m != nil {
		t.Errorf("expected nil on fetch failure, got %+v", m)
	}
}

func TestResolveMetadataCleansUpTempArtifacts(t *testing.T) {
	t.Parallel()

	countTemp := func() int {
		archives, _ := filepath.Glob(filepath.Join(os.TempDir(), "updrift-archive-*"))
		dirs, _ := filepath.Glob(filepath.Join(os.TempDir(), "updrift-extract-*"))
		return len(archives) + len(dirs)
	}

	before := countTemp()

	r, _, _ := newTestResolver(t, releaseFixture{
		tagName:  "v3.0.0",
		zipFiles: map[string]string{"my-plugin/my-plugin.php": pluginPHPWithHeaders},
	})
	if m := r.ResolveMetadata(context.Background()); m == nil {
		t.Fatal("resolution failed")
	}

	// Failure path leaves nothing behind either.
	r2, _, _ := newTestResolver(t, releaseFixture{
		tagName:  "v1.0.0",
		zipFiles: map[string]string{"wrong/place.php": "<?php"},
	})
	if m := r2.ResolveMetadata(context.Background()); m != nil {
		t.Fatal("expected failure for mismatched layout")
	}

	if after := countTemp(); after > before {
		t.Errorf("temporary artifacts leaked: %d before, %d after", before, after)
	}
}

func TestResolveMetadataOversizedArchiveRejected(t *testing.T) {
	t.Parallel()

	// Incompressible content so the zip itself exceeds the limit.
	blob := make([]byte, 64<<10)
	rnd := rand.New(rand.NewSource(42))
	_, _ = rnd.Read(blob)

	r, _, _ := newTestResolver(t, releaseFixture{
		tagName: "v1.0.0",
		zipFiles: map[string]string{
			"my-plugin/my-plugin.php": pluginPHPWithHeaders,
			"my-plugin/blob.bin":      string(blob),
		},
	}, WithMaxArchiveBytes(1024))

	if m := r.ResolveMetadata(context.Background()); m != nil {
		t.Errorf("expected nil for an oversized archive, got %+v", m)
	}
}

func TestResolveMetadataCorruptCacheEntryRecovers(t *testing.T) {
	t.Parallel()

	r, store, _ := newTestResolver(t, releaseFixture{
		tagName:    "v2.1.0",
		pluginJSON: validPluginJSON,
	})

	// A corrupt release record must be dropped and refetched, not crash.
	if err := store.Set("release:my-plugin", []byte("not json"), 0); err != nil {
		t.Fatalf("seeding corrupt entry failed: %v", err)
	}

	if m := r.ResolveMetadata(context.Background()); m == nil {
		t.Fatal("expected recovery from a corrupt cache entry")
	}
}
