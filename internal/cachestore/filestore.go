// SPDX-License-Identifier: MPL-2.0

package cachestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type (
	// FileStore persists cache entries under a base directory, one file
	// per entry. Each file is a small JSON envelope holding the value and
	// its expiry time. Writes go through a temp file followed by a rename
	// so readers never observe a partially written entry.
	FileStore struct {
		basePath string

		mu    sync.Mutex
		locks map[string]*sync.Mutex

		now func() time.Time // test seam for expiry checks
	}

	// fileEnvelope is the on-disk format of a single entry.
	fileEnvelope struct {
		Value     []byte    `json:"value"`
		ExpiresAt time.Time `json:"expires_at,omitzero"`
	}
)

// NewFileStore creates a file-backed store rooted at basePath, creating
// the directory if needed.
func NewFileStore(basePath string) (*FileStore, error) {
	if basePath == "" {
		return nil, errors.New("cache directory required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolving cache directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	return &FileStore{
		basePath: abs,
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}, nil
}

// Get returns the value for key, or ErrNotFound on a miss. Expired entries
// are removed best-effort on access.
func (s *FileStore) Get(key string) ([]byte, error) {
	path, err := s.entryPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		// A corrupt entry reads as a miss; remove it so the next write
		// starts clean.
		_ = os.Remove(path)
		return nil, ErrNotFound
	}

	if !env.ExpiresAt.IsZero() && s.now().After(env.ExpiresAt) {
		_ = os.Remove(path)
		return nil, ErrNotFound
	}

	return env.Value, nil
}

// Set stores value under key with the given ttl.
func (s *FileStore) Set(key string, value []byte, ttl time.Duration) error {
	unlock := s.lockKey(key)
	defer unlock()

	path, err := s.entryPath(key)
	if err != nil {
		return err
	}

	env := fileEnvelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = s.now().Add(ttl)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.basePath, ".entry-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(tmpName)
		return writeErr
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Delete removes the entry for key, if present.
func (s *FileStore) Delete(key string) error {
	unlock := s.lockKey(key)
	defer unlock()

	path, err := s.entryPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// lockKey serializes writers for a single key. Readers go lock-free; the
// rename-based write makes their view consistent.
func (s *FileStore) lockKey(key string) func() {
	s.mu.Lock()
	l := s.locks[key]
	if l == nil {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// entryPath maps a cache key to a file path inside basePath. Keys contain
// characters like ':' and '/', so they are path-escaped into a single flat
// filename, which also confines every entry to the base directory.
func (s *FileStore) entryPath(key string) (string, error) {
	if key == "" {
		return "", errors.New("cache key required")
	}

	name := url.PathEscape(key)
	path := filepath.Join(s.basePath, name)
	if !strings.HasPrefix(path, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return path, nil
}
