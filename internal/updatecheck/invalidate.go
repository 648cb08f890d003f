// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"path"
	"strings"
)

// OnUpdateApplied clears every cached entry in this identity's namespace
// after the host confirms an update was applied, so the next check
// performs a fresh resolution instead of serving the pre-update state.
//
// The applied plugin file reference must match this identity's; a
// non-matching reference is a no-op, not an error — the host broadcasts
// the event to all registered resolvers.
func (r *Resolver) OnUpdateApplied(appliedPluginFile string) {
	applied := path.Clean(strings.ReplaceAll(appliedPluginFile, "\\", "/"))
	if applied != r.identity.PluginFile {
		return
	}

	for _, key := range []string{
		r.identity.releaseCacheKey(),
		r.identity.jsonCacheKey(),
		r.identity.archiveCacheKey(),
	} {
		if err := r.store.Delete(key); err != nil {
			r.logger.Warn("cache invalidation failed", "key", key, "err", err)
		}
	}
}
