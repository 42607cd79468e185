package vault

import (
	"encoding/json"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheCapacity bounds the in-memory body cache when the user config
// does not say otherwise.
const DefaultCacheCapacity = 64

// bodyCache is the bounded LRU in front of the record files. Get promotes an
// entry to most-recently-used; Add evicts the least-recently-used entry once
// the cache is full. All operations are O(1) and safe for concurrent use.
type bodyCache struct {
	entries *lru.Cache[string, json.RawMessage]

	hits   atomic.Int64
	misses atomic.Int64
}

func newBodyCache(capacity int) (*bodyCache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	entries, err := lru.New[string, json.RawMessage](capacity)
	if err != nil {
		return nil, err
	}
	return &bodyCache{entries: entries}, nil
}

// Get returns the cached body for id and promotes it.
func (c *bodyCache) Get(id string) (json.RawMessage, bool) {
	body, ok := c.entries.Get(id)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return body, ok
}

// Add inserts or refreshes the body for id, evicting under pressure.
func (c *bodyCache) Add(id string, body json.RawMessage) {
	c.entries.Add(id, body)
}

// Remove drops id from the cache if present.
func (c *bodyCache) Remove(id string) {
	c.entries.Remove(id)
}

// Contains reports whether id is cached without promoting it.
func (c *bodyCache) Contains(id string) bool {
	return c.entries.Contains(id)
}

// Purge drops every entry.
func (c *bodyCache) Purge() {
	c.entries.Purge()
}

// Len returns the current entry count.
func (c *bodyCache) Len() int {
	return c.entries.Len()
}

// Stats returns cumulative hit/miss counts since the store was created.
func (c *bodyCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
