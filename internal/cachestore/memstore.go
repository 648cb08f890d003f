// SPDX-License-Identifier: MPL-2.0

package cachestore

import (
	"sync"
	"time"
)

type (
	// MemStore is an in-memory Store. It is the default for in-process
	// hosts and the workhorse of the test suite.
	MemStore struct {
		mu      sync.Mutex
		entries map[string]memEntry
		now     func() time.Time // test seam for expiry checks
	}

	memEntry struct {
		value     []byte
		expiresAt time.Time // zero means no expiry
	}
)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// Get returns the value for key, or ErrNotFound on a miss. Expired entries
// are removed on access.
func (s *MemStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate the cached value in place.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores value under key with the given ttl.
func (s *MemStore) Set(key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Delete removes the entry for key, if present.
func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
