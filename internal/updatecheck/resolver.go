// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/updrift/updrift/internal/cachestore"
)

type (
	// Metadata is the canonical, host-facing description of the latest
	// available release, produced by either resolution path. After a
	// successful resolution Name, Slug and Version are always non-empty;
	// optional fields default to empty strings and maps are never nil.
	Metadata struct {
		Name                  string            `json:"name"`
		Slug                  string            `json:"slug"`
		Version               string            `json:"version"`
		TestedUpTo            string            `json:"tested_up_to"`
		MinimumHostVersion    string            `json:"minimum_host_version"`
		MinimumRuntimeVersion string            `json:"minimum_runtime_version"`
		Author                string            `json:"author"`
		AuthorProfileURL      string            `json:"author_profile_url"`
		LastUpdated           string            `json:"last_updated"`
		DownloadURL           string            `json:"download_url"`
		TrunkURL              string            `json:"trunk_url"`
		Sections              map[string]string `json:"sections"`
		Banners               map[string]string `json:"banners"`
		Icons                 map[string]string `json:"icons"`
		UpgradeNotice         string            `json:"upgrade_notice"`
	}

	// jsonMetadata is the wire format of the plugin.json sidecar asset.
	jsonMetadata struct {
		Name            string            `json:"name"`
		Slug            string            `json:"slug"`
		Version         string            `json:"version"`
		TestedUpTo      string            `json:"tested"`
		RequiresHost    string            `json:"requires"`
		RequiresRuntime string            `json:"requires_runtime"`
		Author          string            `json:"author"`
		AuthorProfile   string            `json:"author_profile"`
		Trunk           string            `json:"trunk"`
		Sections        map[string]string `json:"sections"`
		Banners         map[string]string `json:"banners"`
		Icons           map[string]string `json:"icons"`
		UpgradeNotice   string            `json:"upgrade_notice"`
	}

	// Resolver resolves update metadata for a single Identity. Instances
	// are cheap but intended to be long-lived; obtain them through a
	// Registry so each plugin file has exactly one.
	Resolver struct {
		identity Identity
		opts     Options
		client   *Client
		store    cachestore.Store
		logger   *log.Logger
		compare  VersionComparator
	}

	// ResolverOption configures a Resolver during construction.
	ResolverOption func(*Resolver)
)

// WithLogger overrides the structured logger used for failure reporting.
func WithLogger(l *log.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithVersionComparator overrides the semantic-version comparator used by
// the update gate.
func WithVersionComparator(c VersionComparator) ResolverOption {
	return func(r *Resolver) {
		r.compare = c
	}
}

// NewResolver creates a Resolver for identity with the given options,
// release client, and cache store.
func NewResolver(identity Identity, opts Options, client *Client, store cachestore.Store, ropts ...ResolverOption) *Resolver {
	r := &Resolver{
		identity: identity,
		opts:     opts,
		client:   client,
		store:    store,
		compare:  SemverComparator{},
	}
	for _, opt := range ropts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.Default().With("slug", identity.Slug)
	}
	return r
}

// Identity returns the identity this resolver serves.
func (r *Resolver) Identity() Identity { return r.identity }

// ResolveMetadata determines the canonical metadata for the latest
// available release, or nil when no update information could be obtained.
// It never returns an error: every failure is logged with structured
// context and degrades to nil, so the host surfaces "no update
// information" instead of crashing.
//
// Resolution order depends on Options.PreferJSONMetadata. When JSON is
// preferred, a JSON-path success short-circuits and an archive-path
// failure is terminal. When the archive path is preferred, JSON runs as a
// last resort after an archive failure. The asymmetry is inherited from
// the system this engine replaces and is intentional.
func (r *Resolver) ResolveMetadata(ctx context.Context) *Metadata {
	release := r.latestRelease(ctx)
	if release == nil {
		return nil
	}

	if r.opts.PreferJSONMetadata {
		if m := r.resolveFromJSON(ctx, release); m != nil {
			return m
		}
		if m := r.resolveFromArchive(ctx, release); m != nil {
			return m
		}
		return nil
	}

	if m := r.resolveFromArchive(ctx, release); m != nil {
		return m
	}
	// Last resort when the archive path was preferred and failed.
	if m := r.resolveFromJSON(ctx, release); m != nil {
		return m
	}
	return nil
}

// latestRelease returns the cached release record or fetches a fresh one,
// writing it through to the cache. Returns nil on any failure.
func (r *Resolver) latestRelease(ctx context.Context) *RawRelease {
	key := r.identity.releaseCacheKey()

	if cached, err := r.store.Get(key); err == nil {
		var release RawRelease
		if err := json.Unmarshal(cached, &release); err == nil {
			return &release
		}
		// Corrupt entry: drop it and fall through to a fresh fetch.
		_ = r.store.Delete(key)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	defer cancel()

	release, err := r.client.LatestRelease(ctx, r.identity.RepoSlug, r.opts.Token)
	if err != nil {
		r.logFetchFailure("fetch latest release", err)
		return nil
	}

	if encoded, err := json.Marshal(release); err == nil {
		if err := r.store.Set(key, encoded, r.opts.CacheTTL); err != nil {
			r.logger.Warn("caching release record failed", "key", key, "err", err)
		}
	}
	return release
}

// resolveFromJSON attempts the plugin.json path: a release asset literally
// named plugin.json supplies the metadata directly. Returns nil when the
// asset is absent, unreachable, malformed, or missing a required field.
func (r *Resolver) resolveFromJSON(ctx context.Context, release *RawRelease) *Metadata {
	key := r.identity.jsonCacheKey()

	if m := r.cachedMetadata(key); m != nil {
		return m
	}

	asset := findAssetByName(release.Assets, "plugin.json")
	if asset == nil {
		r.logger.Debug("no plugin.json asset in release", "tag", release.TagName)
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	defer cancel()

	body, err := r.client.FetchAssetJSON(reqCtx, asset.DownloadURL, r.opts.Token)
	if err != nil {
		r.logFetchFailure("fetch plugin.json", err)
		return nil
	}

	var jm jsonMetadata
	if err := json.Unmarshal(body, &jm); err != nil {
		r.logger.Warn("plugin.json is not valid JSON", "err", err)
		return nil
	}

	// The JSON path is strict: a sidecar missing any of the identifying
	// fields is rejected outright rather than partially accepted.
	if strings.TrimSpace(jm.Name) == "" || strings.TrimSpace(jm.Version) == "" || strings.TrimSpace(jm.Slug) == "" {
		r.logger.Warn("plugin.json missing required fields",
			"has_name", jm.Name != "", "has_version", jm.Version != "", "has_slug", jm.Slug != "")
		return nil
	}

	m := &Metadata{
		Name:                  jm.Name,
		Slug:                  jm.Slug,
		Version:               jm.Version,
		TestedUpTo:            jm.TestedUpTo,
		MinimumHostVersion:    jm.RequiresHost,
		MinimumRuntimeVersion: jm.RequiresRuntime,
		Author:                jm.Author,
		AuthorProfileURL:      jm.AuthorProfile,
		LastUpdated:           formatPublishedAt(release.PublishedAt),
		DownloadURL:           resolveDownloadURL(release, r.identity.Slug),
		TrunkURL:              jm.Trunk,
		Sections:              sanitizeSectionMap(jm.Sections),
		Banners:               nonNilMap(jm.Banners),
		Icons:                 nonNilMap(jm.Icons),
		UpgradeNotice:         jm.UpgradeNotice,
	}

	r.cacheMetadata(key, m)
	return m
}

// resolveFromArchive attempts the archive-derived path: download the
// release archive, validate it, extract it, and parse metadata out of the
// plugin's files. All temporary filesystem state is removed on every exit
// path; that is the one strict resource invariant in the engine.
func (r *Resolver) resolveFromArchive(ctx context.Context, release *RawRelease) *Metadata {
	key := r.identity.archiveCacheKey()

	if m := r.cachedMetadata(key); m != nil {
		return m
	}

	downloadURL := resolveDownloadURL(release, r.identity.Slug)
	if downloadURL == "" {
		r.logger.Warn("no matching archive asset in release",
			"tag", release.TagName, "assets", assetNames(release.Assets))
		return nil
	}

	archivePath, err := r.downloadArchive(ctx, downloadURL)
	if err != nil {
		r.logFetchFailure("download release archive", err)
		return nil
	}
	defer r.removeTemp("archive", archivePath)

	if err := ValidateArchive(archivePath, r.opts.MaxArchiveBytes); err != nil {
		r.logger.Warn("archive failed validation", "url", downloadURL, "err", err)
		return nil
	}

	extractDir, err := os.MkdirTemp("", "updrift-extract-*")
	if err != nil {
		r.logger.Warn("creating extraction directory failed", "err", err)
		return nil
	}
	defer r.removeTemp("extraction directory", extractDir)

	if err := extractZip(archivePath, extractDir, r.opts.MaxArchiveBytes); err != nil {
		r.logger.Warn("archive extraction failed", "url", downloadURL, "err", err)
		return nil
	}

	pluginPath := filepath.Join(extractDir, filepath.FromSlash(r.identity.PluginFile))
	if _, err := os.Stat(pluginPath); err != nil {
		r.logger.Warn("plugin file not found in archive",
			"expected", r.identity.PluginFile, "top_level", topLevelEntries(extractDir))
		return nil
	}

	headers := parsePluginHeaderFile(pluginPath)

	m := &Metadata{
		Name:                  headers.Name,
		Slug:                  r.identity.Slug,
		Version:               headers.Version,
		TestedUpTo:            headers.TestedUpTo,
		MinimumHostVersion:    headers.MinimumHostVersion,
		MinimumRuntimeVersion: headers.MinimumRuntimeVersion,
		Author:                headers.Author,
		AuthorProfileURL:      headers.AuthorProfileURL,
		LastUpdated:           formatPublishedAt(release.PublishedAt),
		DownloadURL:           downloadURL,
		Sections:              collectSections(filepath.Dir(pluginPath)),
		Banners:               map[string]string{},
		Icons:                 map[string]string{},
	}
	if notice, ok := m.Sections["upgrade_notice"]; ok {
		m.UpgradeNotice = notice
		delete(m.Sections, "upgrade_notice")
	}

	// Archive metadata is best-effort; name and version fall back to the
	// slug and the release tag so the canonical invariant (all three
	// identifying fields non-empty) holds on success.
	if m.Name == "" {
		m.Name = r.identity.Slug
	}
	if m.Version == "" {
		m.Version = versionTokenRe.FindString(release.TagName)
	}
	if m.Version == "" {
		r.logger.Warn("archive carries no version and the tag has no version token", "tag", release.TagName)
		return nil
	}

	r.cacheMetadata(key, m)
	return m
}

// downloadArchive streams the archive into a temp file, capped one byte
// past the size limit so the validator can flag oversized downloads. The
// partially written file is removed when the transfer fails.
func (r *Resolver) downloadArchive(ctx context.Context, downloadURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	defer cancel()

	body, err := r.client.DownloadAsset(ctx, downloadURL, r.opts.Token)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }() // read-only HTTP response body

	tmp, err := os.CreateTemp("", "updrift-archive-*.zip")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, io.LimitReader(body, r.opts.MaxArchiveBytes+1))
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmpName)
		return "", copyErr
	}
	return tmpName, nil
}

// cachedMetadata returns the metadata cached under key, or nil.
func (r *Resolver) cachedMetadata(key string) *Metadata {
	cached, err := r.store.Get(key)
	if err != nil {
		if !errors.Is(err, cachestore.ErrNotFound) {
			r.logger.Warn("cache read failed", "key", key, "err", err)
		}
		return nil
	}

	var m Metadata
	if err := json.Unmarshal(cached, &m); err != nil {
		_ = r.store.Delete(key)
		return nil
	}
	normalizeMetadata(&m)
	return &m
}

// cacheMetadata writes m under key with the configured TTL. Cache write
// failures are logged but do not fail the resolution.
func (r *Resolver) cacheMetadata(key string, m *Metadata) {
	encoded, err := json.Marshal(m)
	if err != nil {
		r.logger.Warn("encoding metadata for cache failed", "key", key, "err", err)
		return
	}
	if err := r.store.Set(key, encoded, r.opts.CacheTTL); err != nil {
		r.logger.Warn("caching metadata failed", "key", key, "err", err)
	}
}

// removeTemp deletes a temporary artifact, logging (but otherwise
// ignoring) cleanup failures so they never mask the operation's result.
func (r *Resolver) removeTemp(what, path string) {
	if err := os.RemoveAll(path); err != nil {
		r.logger.Warn("removing temporary "+what+" failed", "path", path, "err", err)
	}
}

// logFetchFailure emits a structured log line for a network-layer failure.
func (r *Resolver) logFetchFailure(operation string, err error) {
	var fe *FetchError
	if errors.As(err, &fe) {
		r.logger.Warn(operation+" failed",
			"kind", string(fe.Kind), "status", fe.StatusCode, "detail", fe.Detail, "err", fe.Cause)
		return
	}
	r.logger.Warn(operation+" failed", "err", err)
}

// normalizeMetadata enforces the canonical-record invariant on values read
// back from the cache: optional maps are never nil.
func normalizeMetadata(m *Metadata) {
	if m.Sections == nil {
		m.Sections = map[string]string{}
	}
	if m.Banners == nil {
		m.Banners = map[string]string{}
	}
	if m.Icons == nil {
		m.Icons = map[string]string{}
	}
}

// nonNilMap returns in, or an empty map when in is nil.
func nonNilMap(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	return in
}

// formatPublishedAt renders the release publish time for the LastUpdated
// field; the zero time renders as "".
func formatPublishedAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// assetNames lists the asset names for diagnostics.
func assetNames(assets []Asset) []string {
	names := make([]string, 0, len(assets))
	for _, a := range assets {
		names = append(names, a.Name)
	}
	return names
}
