// SPDX-License-Identifier: MPL-2.0

// Package cachestore provides a small TTL key/value store used by the
// update-metadata resolution engine to avoid redundant network calls.
// Two implementations are provided: FileStore persists entries on disk
// with atomic writes, MemStore keeps them in memory. Both treat expired
// entries as misses and remove them lazily.
package cachestore
