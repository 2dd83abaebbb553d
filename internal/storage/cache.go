/**
 * Page Cache - Resumable per-page results
 *
 * The primary output file: a single JSON object mapping page filename to that
 * page's finalized result. A page present in the cache is never reprocessed,
 * which is what makes an interrupted run resumable: rerun the same command
 * and only the missing pages are billed again.
 *
 * Saves go through a temp file and rename so a crash mid-write never
 * truncates previously cached pages. Merges are non-destructive: loading an
 * existing cache and saving new pages preserves everything already there.
 */

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CacheEntry is one page's finalized result. The page filename is the map
// key in the cache file, not repeated inside the entry.
type CacheEntry struct {
	Bubbles          json.RawMessage `json:"bubbles"`
	ClassifyFailures int             `json:"classifyFailures,omitempty"`
	ProcessedAt      time.Time       `json:"processedAt"`
}

// PageCache is the in-memory view of the cache file
type PageCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]CacheEntry
}

// LoadPageCache reads the cache file at path, or starts empty when the file
// does not exist yet. A corrupt cache file is an error, not silently
// discarded: overwriting it would destroy paid-for results.
func LoadPageCache(path string) (*PageCache, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}

	cache := &PageCache{
		path:    path,
		entries: make(map[string]CacheEntry),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if err := json.Unmarshal(data, &cache.entries); err != nil {
		return nil, fmt.Errorf("cache file %s is corrupt: %w", path, err)
	}

	return cache, nil
}

// Has reports whether page already has a cached result.
func (c *PageCache) Has(page string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[page]
	return ok
}

// Get returns the cached entry for page, if any.
func (c *PageCache) Get(page string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[page]
	return entry, ok
}

// Put records a page result. bubbles is marshaled immediately so a later
// mutation of the caller's slice cannot change what gets persisted.
func (c *PageCache) Put(page string, bubbles interface{}, classifyFailures int) error {
	raw, err := json.Marshal(bubbles)
	if err != nil {
		return fmt.Errorf("failed to marshal bubbles for page %s: %w", page, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[page] = CacheEntry{
		Bubbles:          raw,
		ClassifyFailures: classifyFailures,
		ProcessedAt:      time.Now().UTC(),
	}
	return nil
}

// Len returns the number of cached pages.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Save writes the cache atomically: marshal to a temp file in the same
// directory, then rename over the destination. encoding/json emits map keys
// in sorted order, so the file content is deterministic regardless of
// processing order.
func (c *PageCache) Save() error {
	c.mu.Lock()
	snapshot := make(map[string]CacheEntry, len(c.entries))
	for page, entry := range c.entries {
		snapshot[page] = entry
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".bubbles-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	return nil
}
