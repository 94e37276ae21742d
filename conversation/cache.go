package conversation

import (
	"sync"

	"github.com/substratelabs/recall/core"
)

// cacheEntry holds one conversation's in-process state. Its mutex
// serializes every operation on that key, including the one-time load
// and each persist, so racing messages from one sender never interleave
// while distinct keys proceed fully in parallel.
//
// State machine: Unloaded -> Loaded, terminal for the process lifetime.
// The durable entry is fetched at most once per key; later changes to
// durable content are never re-read.
type cacheEntry struct {
	mu     sync.Mutex
	loaded bool
	turns  []core.Turn
}

// Cache is the process-wide map from isolation key to conversation
// state. The map lock guards only the map structure and is never held
// across a storage call; all I/O happens under the per-entry mutex.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// entry returns the state for key, creating it lazily on first contact.
// Only the map access is under the cache lock.
func (c *Cache) entry(key string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	return e
}

// Len returns the number of tracked conversations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// snapshot copies the turn slice so callers can read it without holding
// the entry lock. Caller must hold e.mu.
func (e *cacheEntry) snapshot() []core.Turn {
	out := make([]core.Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// trim bounds the turns to the most recent max, preserving order.
// Caller must hold e.mu.
func (e *cacheEntry) trim(max int) {
	if max > 0 && len(e.turns) > max {
		e.turns = append(e.turns[:0:0], e.turns[len(e.turns)-max:]...)
	}
}
