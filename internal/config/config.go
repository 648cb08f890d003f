// SPDX-License-Identifier: MPL-2.0

package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/updrift/updrift/internal/cueutil"
	"github.com/updrift/updrift/internal/issue"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "updrift"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the updrift configuration directory using
// platform-specific conventions: Windows uses %APPDATA%, macOS uses
// ~/Library/Application Support, and Linux/others use $XDG_CONFIG_HOME
// (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// DefaultCacheDir returns the platform cache directory for updrift,
// used when cache_dir is not configured.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get cache directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// Load reads the configuration. When configFilePath is non-empty it is
// used exclusively and must exist; otherwise the platform config
// directory and then the current directory are probed for config.cue,
// and absence of both means defaults. The resolved file path (empty when
// defaults were used) is returned alongside the config.
func Load(configFilePath string) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("log_level", string(defaults.LogLevel))
	v.SetDefault("cache_ttl_seconds", defaults.CacheTTLSeconds)
	v.SetDefault("request_timeout_seconds", defaults.RequestTimeoutSeconds)
	v.SetDefault("max_archive_bytes", defaults.MaxArchiveBytes)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""

	if configFilePath != "" {
		if !fileExists(configFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(configFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				Wrap(fmt.Errorf("config file not found: %s", configFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, configFilePath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(configFilePath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				Wrap(err).
				BuildError()
		}
		resolvedPath = configFilePath
	} else {
		cfgDir, err := ConfigDir()
		if err != nil {
			return nil, "", err
		}

		for _, cuePath := range []string{
			filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
			ConfigFileName + "." + ConfigFileExt,
		} {
			if !fileExists(cuePath) {
				continue
			}
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", issue.NewErrorContext().
					WithOperation("load configuration").
					WithResource(cuePath).
					WithSuggestion("Check that the file contains valid CUE syntax").
					WithSuggestion("Verify the configuration values match the expected schema").
					Wrap(err).
					BuildError()
			}
			resolvedPath = cuePath
			break
		}
		// No config file found: defaults apply, not an error.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.LogLevel.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Set log_level to one of: debug, info, warn, error").
			Wrap(err).
			BuildError()
	}

	// Slug uniqueness cannot be expressed in CUE because slugs may be
	// derived from plugin_file rather than written out.
	if err := validatePlugins(cfg.Plugins); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Ensure each plugin entry has a unique slug").
			WithSuggestion("Set an explicit slug when two plugin files share a directory name").
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config
// schema, and merges its contents into Viper so defaults and env
// overrides still apply.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	unified, err := cueutil.UnifyWithSchema(configSchema, data, "#Config", path)
	if err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// validatePlugins checks plugin entries for constraints the CUE schema
// cannot express: required fields after merging, repo shape, and slug
// uniqueness across explicit and derived slugs.
func validatePlugins(plugins []PluginConfig) error {
	seenSlugs := make(map[string]int) // slug -> index of first occurrence

	for i, p := range plugins {
		if strings.TrimSpace(p.PluginFile) == "" {
			return &InvalidPluginEntryError{Index: i, Reason: "plugin_file is required"}
		}

		owner, repo, ok := strings.Cut(p.Repo, "/")
		if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
			return &InvalidRepoSlugError{Index: i, Value: p.Repo}
		}

		slug := p.EffectiveSlug()
		if firstIdx, exists := seenSlugs[slug]; exists {
			return &DuplicatePluginSlugError{Slug: slug, FirstIndex: firstIdx, Index: i}
		}
		seenSlugs[slug] = i
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// EnsureCacheDir resolves the effective cache directory for cfg and
// creates it if needed.
func EnsureCacheDir(cfg *Config) (string, error) {
	dir := cfg.CacheDir
	if dir == "" {
		var err error
		dir, err = DefaultCacheDir()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return dir, nil
}
