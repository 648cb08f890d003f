// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	// LogLevelDebug enables debug-level logging.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo enables info-level logging.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn enables warn-level logging.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError enables error-level logging.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidRepoSlug is the sentinel error wrapped by InvalidRepoSlugError.
	ErrInvalidRepoSlug = errors.New("invalid repository slug")
	// ErrInvalidPluginEntry is the sentinel error wrapped by InvalidPluginEntryError.
	ErrInvalidPluginEntry = errors.New("invalid plugin entry")
	// ErrDuplicatePluginSlug is the sentinel error wrapped by DuplicatePluginSlugError.
	ErrDuplicatePluginSlug = errors.New("duplicate plugin slug")
)

type (
	// LogLevel specifies the minimum severity of emitted log records.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidRepoSlugError is returned when a plugin's repo value is not of
	// the form "owner/repo". It wraps ErrInvalidRepoSlug for errors.Is().
	InvalidRepoSlugError struct {
		Index int
		Value string
	}

	// InvalidPluginEntryError is returned when a plugin entry is missing a
	// required field. It wraps ErrInvalidPluginEntry for errors.Is().
	InvalidPluginEntryError struct {
		Index  int
		Reason string
	}

	// DuplicatePluginSlugError is returned when two plugin entries resolve
	// to the same slug, which would make their cache namespaces collide.
	// It wraps ErrDuplicatePluginSlug for errors.Is().
	DuplicatePluginSlugError struct {
		Slug       string
		FirstIndex int
		Index      int
	}

	// PluginConfig describes one plugin whose updates updrift tracks.
	PluginConfig struct {
		// Repo is the GitHub "owner/name" slug publishing the releases.
		Repo string `mapstructure:"repo"`

		// PluginFile is the plugin's identifying file reference as it
		// appears inside release archives, e.g. "my-plugin/my-plugin.php".
		PluginFile string `mapstructure:"plugin_file"`

		// Slug overrides the slug derived from PluginFile.
		Slug string `mapstructure:"slug"`

		// TokenEnv names an environment variable holding an access token
		// for private repositories. The token itself never appears in the
		// config file.
		TokenEnv string `mapstructure:"token_env"`

		// PreferJSONMetadata selects the JSON-sidecar-first resolution
		// strategy (the default).
		PreferJSONMetadata bool `mapstructure:"prefer_json_metadata"`
	}

	// Config is the top-level updrift configuration.
	Config struct {
		LogLevel              LogLevel       `mapstructure:"log_level"`
		CacheDir              string         `mapstructure:"cache_dir"`
		CacheTTLSeconds       int            `mapstructure:"cache_ttl_seconds"`
		RequestTimeoutSeconds int            `mapstructure:"request_timeout_seconds"`
		MaxArchiveBytes       int64          `mapstructure:"max_archive_bytes"`
		HostVersion           string         `mapstructure:"host_version"`
		Plugins               []PluginConfig `mapstructure:"plugins"`
	}
)

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:              LogLevelInfo,
		CacheTTLSeconds:       21600,
		RequestTimeoutSeconds: 30,
		MaxArchiveBytes:       50 << 20,
	}
}

// Validate checks that the log level is one of the recognized values.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

// EffectiveSlug returns the plugin's slug, deriving it from PluginFile
// when no explicit override is set: the top directory name, or for a
// single-file plugin the file name without extension.
func (p PluginConfig) EffectiveSlug() string {
	if p.Slug != "" {
		return p.Slug
	}

	cleaned := path.Clean(strings.ReplaceAll(p.PluginFile, "\\", "/"))
	dir := path.Dir(cleaned)
	if dir != "." && dir != "/" {
		return path.Base(dir)
	}

	base := path.Base(cleaned)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// FindPlugin returns the plugin entry whose effective slug matches slug.
func (c *Config) FindPlugin(slug string) (PluginConfig, bool) {
	for _, p := range c.Plugins {
		if p.EffectiveSlug() == slug {
			return p, true
		}
	}
	return PluginConfig{}, false
}

func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", string(e.Value))
}

func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

func (e *InvalidRepoSlugError) Error() string {
	return fmt.Sprintf("plugins[%d]: invalid repository slug %q (want owner/repo)", e.Index, e.Value)
}

func (e *InvalidRepoSlugError) Unwrap() error { return ErrInvalidRepoSlug }

func (e *InvalidPluginEntryError) Error() string {
	return fmt.Sprintf("plugins[%d]: %s", e.Index, e.Reason)
}

func (e *InvalidPluginEntryError) Unwrap() error { return ErrInvalidPluginEntry }

func (e *DuplicatePluginSlugError) Error() string {
	return fmt.Sprintf("plugins[%d]: slug %q already used by plugins[%d]", e.Index, e.Slug, e.FirstIndex)
}

func (e *DuplicatePluginSlugError) Unwrap() error { return ErrDuplicatePluginSlug }
