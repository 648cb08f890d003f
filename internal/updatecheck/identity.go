// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	// DefaultCacheTTL is how long cached release and metadata records stay
	// fresh before a new resolution hits the network (6 hours).
	DefaultCacheTTL = 21600 * time.Second

	// DefaultRequestTimeout bounds each individual network call.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxArchiveBytes is the upper bound on downloaded release
	// archives (50 MB). Prevents unbounded disk consumption from a
	// misconfigured or hostile release.
	DefaultMaxArchiveBytes = 50 << 20
)

var (
	// ErrInvalidRepoRef is returned when a repository reference is not of
	// the form "owner/repo".
	ErrInvalidRepoRef = errors.New("invalid repository reference")

	// ErrEmptyPluginFile is returned when the plugin file reference is empty.
	ErrEmptyPluginFile = errors.New("plugin file reference required")
)

type (
	// Identity names one update target: the plugin's main file as it
	// appears inside a release archive (slash-separated relative path),
	// the GitHub repository that publishes releases for it, and the slug
	// used as the cache-key namespace and host-side update key.
	Identity struct {
		PluginFile string // e.g. "my-plugin/my-plugin.php"
		RepoSlug   string // e.g. "acme/my-plugin"
		Slug       string // defaults to the plugin file's directory name
	}

	// Options is the immutable per-identity configuration.
	Options struct {
		// Token is an optional GitHub access token. Authenticated requests
		// have a much higher rate limit (5000/hour vs 60/hour).
		Token string

		// PreferJSONMetadata selects the plugin.json sidecar as the primary
		// metadata source, with archive parsing as the fallback.
		PreferJSONMetadata bool

		// CacheTTL is the lifetime of cached release and metadata records.
		CacheTTL time.Duration

		// RequestTimeout bounds each network call.
		RequestTimeout time.Duration

		// MaxArchiveBytes is the size limit enforced on release archives.
		MaxArchiveBytes int64
	}

	// Option mutates Options during construction.
	Option func(*Options)
)

// WithToken sets the GitHub access token used for API and asset requests.
func WithToken(token string) Option {
	return func(o *Options) {
		o.Token = token
	}
}

// WithPreferJSONMetadata toggles whether the plugin.json path is attempted
// before the archive path.
func WithPreferJSONMetadata(prefer bool) Option {
	return func(o *Options) {
		o.PreferJSONMetadata = prefer
	}
}

// WithCacheTTL overrides the cache entry lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.CacheTTL = ttl
	}
}

// WithRequestTimeout overrides the per-request network timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.RequestTimeout = d
	}
}

// WithMaxArchiveBytes overrides the release archive size limit.
func WithMaxArchiveBytes(n int64) Option {
	return func(o *Options) {
		o.MaxArchiveBytes = n
	}
}

// NewOptions builds an Options record with spec defaults applied, then the
// given overrides. There is no loose key/value surface: unrecognized
// settings are a compile error, not a silently accepted map entry.
func NewOptions(opts ...Option) Options {
	o := Options{
		PreferJSONMetadata: true,
		CacheTTL:           DefaultCacheTTL,
		RequestTimeout:     DefaultRequestTimeout,
		MaxArchiveBytes:    DefaultMaxArchiveBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewIdentity constructs an Identity for the plugin's main file and its
// repository. The slug defaults to the plugin file's top directory name;
// when the file has no directory (a single-file plugin) the file name
// without extension is used. Pass slug to override.
func NewIdentity(pluginFile, repoSlug, slug string) (Identity, error) {
	pluginFile = strings.TrimSpace(pluginFile)
	if pluginFile == "" {
		return Identity{}, ErrEmptyPluginFile
	}

	owner, repo, ok := strings.Cut(strings.TrimSpace(repoSlug), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return Identity{}, fmt.Errorf("%w: %q (want owner/repo)", ErrInvalidRepoRef, repoSlug)
	}

	cleaned := path.Clean(strings.ReplaceAll(pluginFile, "\\", "/"))
	if slug == "" {
		slug = defaultSlug(cleaned)
	}

	return Identity{
		PluginFile: cleaned,
		RepoSlug:   owner + "/" + repo,
		Slug:       slug,
	}, nil
}

// defaultSlug derives the slug from a cleaned plugin file path.
func defaultSlug(pluginFile string) string {
	dir := path.Dir(pluginFile)
	if dir != "." && dir != "/" {
		return path.Base(dir)
	}

	base := path.Base(pluginFile)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// releaseCacheKey, jsonCacheKey and archiveCacheKey derive the three cache
// keys for this identity's namespace.
func (id Identity) releaseCacheKey() string { return "release:" + id.Slug }
func (id Identity) jsonCacheKey() string    { return "json:" + id.Slug }
func (id Identity) archiveCacheKey() string { return "archive:" + id.Slug }

// HostURL returns the browser URL of the repository publishing releases
// for this identity.
func (id Identity) HostURL() string {
	return "https://github.com/" + id.RepoSlug
}

// StableID returns the provider-qualified identifier used in update
// decisions, e.g. "github.com/acme/my-plugin".
func (id Identity) StableID() string {
	return "github.com/" + id.RepoSlug
}
