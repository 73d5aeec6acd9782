package schema

import (
	"sync"
	"time"

	"github.com/hugr-lab/firebridge/pushdown"
)

// DefaultTTL is the schema cache lifetime when not configured.
const DefaultTTL = time.Hour

// Key identifies one cached collection.
type Key struct {
	Project    string
	Database   string
	Collection string
}

// Entry is one cached schema together with the index catalog fetched
// alongside it; the catalog shares the entry's lifetime.
type Entry struct {
	Schema  *Schema
	Catalog *pushdown.Catalog
}

// Cache is a process-wide TTL cache of inferred schemas. Entries are
// immutable once inserted; a zero TTL disables caching entirely.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Key]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	entry   *Entry
	expires time.Time
}

// NewCache creates a cache with the given TTL. ttl == 0 disables
// caching; every lookup misses.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[Key]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached entry if present and unexpired.
func (c *Cache) Get(key Key) (*Entry, bool) {
	if c.ttl == 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ce, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(ce.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return ce.entry, true
}

// Put stores an entry. No-op when caching is disabled.
func (c *Cache) Put(key Key, entry *Entry) {
	if c.ttl == 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{entry: entry, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Purge drops entries for the named collection across all projects, or
// every entry when collection is empty.
func (c *Cache) Purge(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if collection == "" {
		c.entries = make(map[Key]cacheEntry)
		return
	}
	for key := range c.entries {
		if key.Collection == collection {
			delete(c.entries, key)
		}
	}
}

// Len reports the live entry count (expired entries included until
// their next lookup).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
