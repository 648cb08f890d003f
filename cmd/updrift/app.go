// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/updrift/updrift/internal/cachestore"
	"github.com/updrift/updrift/internal/config"
	"github.com/updrift/updrift/internal/updatecheck"
)

// app bundles the long-lived dependencies every command needs: the
// loaded configuration, the structured logger, the file-backed cache,
// and the resolver registry. Commands build one app per invocation.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	store    cachestore.Store
	registry *updatecheck.Registry
}

// newApp loads the configuration and wires the shared dependencies.
func newApp() (*app, error) {
	cfg, _, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := log.InfoLevel
	if parsed, err := log.ParseLevel(string(cfg.LogLevel)); err == nil {
		level = parsed
	}
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})

	cacheDir, err := config.EnsureCacheDir(cfg)
	if err != nil {
		return nil, err
	}
	store, err := cachestore.NewFileStore(cacheDir)
	if err != nil {
		return nil, err
	}

	client := updatecheck.NewClient(updatecheck.WithUserAgent(config.AppName + "/" + Version))

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: updatecheck.NewRegistry(client, store),
	}, nil
}

// resolverFor builds (or reuses) the resolver for the configured plugin
// with the given slug.
func (a *app) resolverFor(slug string) (*updatecheck.Resolver, error) {
	plugin, ok := a.cfg.FindPlugin(slug)
	if !ok {
		return nil, fmt.Errorf("plugin %q is not configured (add it to config.cue)", slug)
	}

	identity, err := updatecheck.NewIdentity(plugin.PluginFile, plugin.Repo, plugin.Slug)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", slug, err)
	}

	opts := updatecheck.NewOptions(
		updatecheck.WithToken(a.tokenFor(plugin)),
		updatecheck.WithPreferJSONMetadata(plugin.PreferJSONMetadata),
		updatecheck.WithCacheTTL(time.Duration(a.cfg.CacheTTLSeconds)*time.Second),
		updatecheck.WithRequestTimeout(time.Duration(a.cfg.RequestTimeoutSeconds)*time.Second),
		updatecheck.WithMaxArchiveBytes(a.cfg.MaxArchiveBytes),
	)

	return a.registry.ForIdentity(identity, opts,
		updatecheck.WithLogger(a.logger.With("slug", identity.Slug)),
	), nil
}

// tokenFor resolves the access token for a plugin: its token_env
// variable when configured, falling back to GITHUB_TOKEN. Authenticated
// requests have a much higher rate limit (5000/hour vs 60/hour).
func (a *app) tokenFor(plugin config.PluginConfig) string {
	if plugin.TokenEnv != "" {
		if token := os.Getenv(plugin.TokenEnv); token != "" {
			return token
		}
	}
	return os.Getenv("GITHUB_TOKEN")
}
