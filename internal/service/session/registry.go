package session

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mirrorwell/exhibit/backend/internal/model/persona"
)

// Entry binds a room to its current session.
type Entry struct {
	SessionID string    `json:"sessionId"`
	StartedAt time.Time `json:"startedAt"`
}

// Registry owns the room -> session bindings. State is process-lifetime
// only; a restart drops all bindings and the next join re-establishes them.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]Entry)}
}

// Start binds a session to the room, overwriting any existing binding. A
// proposed id is kept only when it matches the 8-character alphanumeric
// token shape (case-insensitive, folded to lowercase); otherwise a fresh id
// is minted.
func (r *Registry) Start(room, proposed string) Entry {
	id := persona.NormalizeSessionID(proposed)
	if !persona.ValidSessionToken(id) {
		id = MintSessionID()
	}

	entry := Entry{SessionID: id, StartedAt: time.Now().UTC()}

	r.mu.Lock()
	r.rooms[room] = entry
	r.mu.Unlock()

	return entry
}

// End removes the binding unconditionally; absent rooms are a no-op.
func (r *Registry) End(room string) {
	r.mu.Lock()
	delete(r.rooms, room)
	r.mu.Unlock()
}

// Lookup returns the current binding for a room.
func (r *Registry) Lookup(room string) (Entry, bool) {
	r.mu.Lock()
	entry, ok := r.rooms[room]
	r.mu.Unlock()
	return entry, ok
}

// Coerce is the single source of truth for "which session does this room
// have". An existing binding always wins over whatever the caller proposed;
// a missing binding starts one. The read-modify-write runs under one lock so
// two racing uploads for the same room cannot mint two sessions.
func (r *Registry) Coerce(room, proposed string) string {
	normalized := persona.NormalizeSessionID(proposed)

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.rooms[room]; ok {
		if normalized != "" && normalized != entry.SessionID {
			log.Printf("[session] room=%s proposed session %q overridden by bound %q", room, normalized, entry.SessionID)
		}
		return entry.SessionID
	}

	id := normalized
	if !persona.ValidSessionToken(id) {
		id = MintSessionID()
	}
	r.rooms[room] = Entry{SessionID: id, StartedAt: time.Now().UTC()}
	return id
}

// Snapshot copies the current bindings for debug inspection.
func (r *Registry) Snapshot() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Entry, len(r.rooms))
	for room, entry := range r.rooms {
		out[room] = entry
	}
	return out
}

// MintSessionID derives a fresh 8-character lowercase alphanumeric token.
func MintSessionID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToLower(raw[:8])
}
