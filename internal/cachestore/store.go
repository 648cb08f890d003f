// SPDX-License-Identifier: MPL-2.0

package cachestore

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when a key is absent or its entry
// has expired. Callers treat it as a cache miss, never as a failure.
var ErrNotFound = errors.New("cache entry not found")

// Store is the key/value cache consumed by the resolution engine. Values
// are opaque byte slices (the engine stores JSON documents). A ttl of zero
// means the entry never expires.
//
// Implementations must make Get/Set/Delete atomic per key; no cross-key
// transactional guarantees are required. Concurrent writers for the same
// key may race — last writer wins, which is harmless because entries are
// idempotent derivations of the same remote state within a TTL window.
type Store interface {
	// Get returns the value for key, or ErrNotFound on a miss or an
	// expired entry.
	Get(key string) ([]byte, error)

	// Set stores value under key with the given time-to-live.
	Set(key string, value []byte, ttl time.Duration) error

	// Delete removes the entry for key. Deleting an absent key is not
	// an error.
	Delete(key string) error
}
