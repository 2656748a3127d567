package assets

import (
	"sync"
)

// Kind distinguishes the two uploads a session is waiting on.
type Kind string

const (
	KindPhoto   Kind = "photo"
	KindDrawing Kind = "drawing"
)

// Entry tracks the pending upload paths for one session.
type Entry struct {
	Room        string `json:"room"`
	PhotoPath   string `json:"photoPath,omitempty"`
	DrawingPath string `json:"drawingPath,omitempty"`
}

// Ready reports whether both assets have arrived.
func (e Entry) Ready() bool {
	return e.PhotoPath != "" && e.DrawingPath != ""
}

// Cache maps sessions to their pending uploads. Entries survive a successful
// persona build on purpose: re-uploads for a built session short-circuit on
// the store's existence check instead of regenerating.
type Cache struct {
	mu      sync.Mutex
	pending map[string]Entry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{pending: make(map[string]Entry)}
}

// Remember upserts one asset path, preserving whatever the other kind
// already recorded, and returns the updated entry.
func (c *Cache) Remember(sessionID, room string, kind Kind, path string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.pending[sessionID]
	entry.Room = room
	switch kind {
	case KindPhoto:
		entry.PhotoPath = path
	case KindDrawing:
		entry.DrawingPath = path
	}
	c.pending[sessionID] = entry
	return entry
}

// Lookup returns the pending entry for a session.
func (c *Cache) Lookup(sessionID string) (Entry, bool) {
	c.mu.Lock()
	entry, ok := c.pending[sessionID]
	c.mu.Unlock()
	return entry, ok
}

// Forget drops the entry, used on duplicate-face rejection and session end.
func (c *Cache) Forget(sessionID string) {
	c.mu.Lock()
	delete(c.pending, sessionID)
	c.mu.Unlock()
}
