// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"sync"

	"github.com/updrift/updrift/internal/cachestore"
)

// Registry holds at most one Resolver per distinct plugin file reference,
// constructed lazily and retained for the process lifetime. It replaces
// the original system's per-file singleton with explicit ownership: the
// host builds one Registry and asks it for resolvers.
type Registry struct {
	client *Client
	store  cachestore.Store

	mu        sync.Mutex
	resolvers map[string]*Resolver // keyed by Identity.PluginFile
}

// NewRegistry creates a Registry whose resolvers share the given release
// client and cache store.
func NewRegistry(client *Client, store cachestore.Store) *Registry {
	return &Registry{
		client:    client,
		store:     store,
		resolvers: make(map[string]*Resolver),
	}
}

// ForIdentity returns the resolver for identity, creating it on first use.
// Later calls with the same plugin file return the original resolver and
// ignore the supplied options; the per-identity configuration is fixed at
// first construction.
func (g *Registry) ForIdentity(identity Identity, opts Options, ropts ...ResolverOption) *Resolver {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.resolvers[identity.PluginFile]; ok {
		return r
	}

	r := NewResolver(identity, opts, g.client, g.store, ropts...)
	g.resolvers[identity.PluginFile] = r
	return r
}

// BroadcastUpdateApplied notifies every registered resolver that the given
// plugin file was updated. Resolvers whose identity does not match treat
// it as a no-op.
func (g *Registry) BroadcastUpdateApplied(appliedPluginFile string) {
	g.mu.Lock()
	resolvers := make([]*Resolver, 0, len(g.resolvers))
	for _, r := range g.resolvers {
		resolvers = append(resolvers, r)
	}
	g.mu.Unlock()

	for _, r := range resolvers {
		r.OnUpdateApplied(appliedPluginFile)
	}
}
