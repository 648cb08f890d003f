// SPDX-License-Identifier: MPL-2.0

package cachestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := s.Set("json:my-plugin", []byte(`{"name":"My Plugin"}`), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get("json:my-plugin")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"name":"My Plugin"}` {
		t.Errorf("got %q, want the stored value", got)
	}
}

func TestFileStoreMissReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if _, err := s.Get("absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreTTLExpiry(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Set("key", []byte("value"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.Get("key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestFileStoreExpiredEntryIsRemovedFromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Set("key", []byte("value"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := s.Get("key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expired entry left %d file(s) on disk", len(entries))
	}
}

func TestFileStoreCorruptEntryReadsAsMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := s.Set("key", []byte("value"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Corrupt the entry on disk behind the store's back.
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected exactly one entry file, got %d (err %v)", len(entries), err)
	}
	if err := os.WriteFile(filepath.Join(dir, entries[0].Name()), []byte("not json"), 0o644); err != nil {
		t.Fatalf("corrupting entry failed: %v", err)
	}

	if _, err := s.Get("key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for corrupt entry, got %v", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := s.Set("key", []byte("value"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Delete("key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get("key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete("key"); err != nil {
		t.Errorf("Delete of absent key failed: %v", err)
	}
}

func TestFileStoreKeysWithSeparatorsStayInsideBaseDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	// Cache keys contain ':' and slugs may contain '/'; both must map to a
	// flat file inside the base directory.
	for _, key := range []string{"release:acme/widget", "json:../escape", "archive:a b"} {
		if err := s.Set(key, []byte("v"), 0); err != nil {
			t.Fatalf("Set(%q) failed: %v", key, err)
		}
		got, err := s.Get(key)
		if err != nil || string(got) != "v" {
			t.Fatalf("Get(%q) = %q, %v", key, got, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 flat entry files in base dir, found %d", len(entries))
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("key escaped into a subdirectory: %s", e.Name())
		}
	}
}

func TestFileStoreOverwriteReplacesValue(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := s.Set("key", []byte("old"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set("key", []byte("new"), 0); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	got, err := s.Get("key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("got %q, want %q", got, "new")
	}
}

func TestFileStoreRejectsEmptyConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty base path")
	}

	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := s.Set("", []byte("v"), 0); err == nil {
		t.Error("expected error for empty key")
	}
}
