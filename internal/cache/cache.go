// Package cache provides the persistent key/value store behind threat intel enrichment.
//
// Entries are never evicted. Keys are stable identifiers (cve:<id>, host:<addr> and
// composite host/CVE-set keys) and values are opaque JSON payloads.
package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ethanolivertroy/riskflow/internal/jsonfile"
)

// Store is a key/value store of JSON payloads
type Store interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, key string, value json.RawMessage) error
	// Flush persists pending writes
	Flush(ctx context.Context) error
	Close() error
}

// FileStore keeps the whole cache in memory and persists it as one JSON object
type FileStore struct {
	Path string

	mu      sync.RWMutex
	entries map[string]json.RawMessage
	dirty   bool
}

// NewFileStore loads the cache file at path. A missing or corrupt file starts an empty cache.
func NewFileStore(path string) *FileStore {
	entries := make(map[string]json.RawMessage)
	if !jsonfile.Load(path, &entries) || entries == nil {
		entries = make(map[string]json.RawMessage)
	}
	return &FileStore{Path: path, entries: entries}
}

// Get retrieves a payload from memory
func (c *FileStore) Get(_ context.Context, key string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores a payload in memory; Flush writes it to disk
func (c *FileStore) Set(_ context.Context, key string, value json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.dirty = true
	return nil
}

// Len returns the number of cached entries
func (c *FileStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Flush rewrites the cache file when entries changed since the last flush
func (c *FileStore) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty || c.Path == "" {
		return nil
	}
	if err := jsonfile.Write(c.Path, c.entries); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Close implements Store
func (c *FileStore) Close() error {
	return nil
}
