package cart

import (
	"github.com/kiwari-pos/terminal/internal/enum"
)

// Entry is the cache slot of one (mode, order) pair.
type Entry struct {
	Mode     enum.ServiceMode
	OrderID  string
	Snapshot *Snapshot
	Err      string
	seq      uint64
}

// State is the presentation state of the entry. An entry with an error keeps
// its last good snapshot but reports ERROR until the next successful fetch.
func (e *Entry) State() string {
	if e.Err != "" {
		return enum.CartStateError
	}
	if e.Snapshot == nil || e.Snapshot.IsEmpty() {
		return enum.CartStateEmpty
	}
	return enum.CartStateLoaded
}

type cacheKey struct {
	mode    enum.ServiceMode
	orderID string
}

// Cache holds the last fetched snapshot per (mode, order). Writes are only
// accepted for the registry's active context; anything else is a late result
// for a context the cashier already left.
//
// Cache is not safe for concurrent use. The owning session serialises access.
type Cache struct {
	reg     *Registry
	entries map[cacheKey]*Entry
}

// NewCache creates a cache gated on reg.
func NewCache(reg *Registry) *Cache {
	return &Cache{reg: reg, entries: make(map[cacheKey]*Entry)}
}

// Get returns the entry of (mode, orderID). An entry whose snapshot does not
// belong to that key is dropped and reported missing.
func (c *Cache) Get(mode enum.ServiceMode, orderID string) (*Entry, bool) {
	k := cacheKey{mode, orderID}
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if e.Snapshot != nil && (e.Snapshot.Mode != mode || e.Snapshot.OrderID != orderID) {
		delete(c.entries, k)
		return nil, false
	}
	return e, true
}

// Put stores snap if it belongs to the active context and seq is not older
// than what the entry already holds. It reports whether the write was kept.
func (c *Cache) Put(snap *Snapshot, seq uint64) bool {
	if snap == nil || !c.isActive(snap.Mode, snap.OrderID) {
		return false
	}
	k := cacheKey{snap.Mode, snap.OrderID}
	if cur, ok := c.entries[k]; ok && seq < cur.seq {
		return false
	}
	c.entries[k] = &Entry{Mode: snap.Mode, OrderID: snap.OrderID, Snapshot: snap, seq: seq}
	return true
}

// SetError records a failure on the active entry, keeping any snapshot it
// has. A failure older than what the entry already holds is dropped, so a
// late failed fetch cannot mark a newer successful one as errored.
func (c *Cache) SetError(mode enum.ServiceMode, orderID, msg string, seq uint64) bool {
	if !c.isActive(mode, orderID) {
		return false
	}
	k := cacheKey{mode, orderID}
	e, ok := c.entries[k]
	if !ok {
		e = &Entry{Mode: mode, OrderID: orderID}
		c.entries[k] = e
	} else if seq < e.seq {
		return false
	}
	e.Err = msg
	e.seq = seq
	return true
}

// Invalidate drops every entry of a mode and advances the registry
// generation so in-flight fetches for it are discarded.
func (c *Cache) Invalidate(mode enum.ServiceMode) {
	for k := range c.entries {
		if k.mode == mode {
			delete(c.entries, k)
		}
	}
	c.reg.Touch()
}

// Drop removes a single entry.
func (c *Cache) Drop(mode enum.ServiceMode, orderID string) {
	delete(c.entries, cacheKey{mode, orderID})
	c.reg.Touch()
}

// Len is the number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

func (c *Cache) isActive(mode enum.ServiceMode, orderID string) bool {
	a := c.reg.Active()
	return a.Mode == mode && a.OrderID == orderID
}
