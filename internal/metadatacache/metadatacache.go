// Package metadatacache provides the volatile, in-memory half of the
// proxy's cache: a concurrent map from crate name to its current
// IndexKey (validators plus last-refresh instant).
package metadatacache

import (
	"sync"

	"github.com/ravenexp/crates-io-proxy/internal/cargo"
)

// Cache is a concurrent name -> IndexKey map. It has no capacity bound and
// is never consulted across an upstream I/O call while holding its lock —
// callers take a snapshot copy via Fetch and release it before doing I/O.
//
// Lost on process restart; FileCache.RecoverIndexEntry reconstitutes enough
// state to revalidate cheaply.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cargo.IndexKey
}

// New creates an empty metadata cache.
func New() *Cache {
	return &Cache{entries: make(map[string]cargo.IndexKey)}
}

// Store records entry under its name, overwriting any previous entry for
// that name.
func (c *Cache) Store(entry cargo.IndexKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Name()] = entry
}

// Fetch returns a snapshot copy of the entry for name, if any.
func (c *Cache) Fetch(name string) (cargo.IndexKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[name]
	return entry, ok
}

// Invalidate removes any entry recorded for name.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

// Len reports the number of names currently tracked. Exposed for stats/
// diagnostics only — never consulted by the dispatcher.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
