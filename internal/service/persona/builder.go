package persona

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mirrorwell/exhibit/backend/internal/model/persona"
	"github.com/mirrorwell/exhibit/backend/internal/service/assets"
)

// Generator turns the two uploaded assets into an initial persona. It is the
// image-conditioned LLM collaborator behind a narrow contract.
type Generator interface {
	GeneratePersona(ctx context.Context, photoPath, drawingPath string) (persona.Persona, error)
}

// Builder guards persona generation: at most one concurrent build per
// session, idempotent once a record exists on disk.
type Builder struct {
	cache   *assets.Cache
	store   persona.Store
	gen     Generator
	timeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewBuilder wires the builder. gen may be nil; builds then persist the
// deterministic fallback persona immediately.
func NewBuilder(cache *assets.Cache, store persona.Store, gen Generator, timeout time.Duration) *Builder {
	return &Builder{
		cache:    cache,
		store:    store,
		gen:      gen,
		timeout:  timeout,
		inflight: make(map[string]struct{}),
	}
}

// claim inserts the session into the in-flight set. Check and insert happen
// under one lock so racing uploads cannot both start a build.
func (b *Builder) claim(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inflight[sessionID]; ok {
		return false
	}
	b.inflight[sessionID] = struct{}{}
	return true
}

func (b *Builder) release(sessionID string) {
	b.mu.Lock()
	delete(b.inflight, sessionID)
	b.mu.Unlock()
}

// InFlight reports whether a build is currently running for the session.
func (b *Builder) InFlight(sessionID string) bool {
	b.mu.Lock()
	_, ok := b.inflight[persona.NormalizeSessionID(sessionID)]
	b.mu.Unlock()
	return ok
}

// TryBuild generates and persists the persona once both assets are present.
// It is safe to call from every upload: whichever call observes both paths
// first wins, the loser no-ops on the in-flight set or the existing record.
// Returns true when this call performed (or attempted) the build.
func (b *Builder) TryBuild(ctx context.Context, sessionID string) bool {
	sessionID = persona.NormalizeSessionID(sessionID)
	if sessionID == "" {
		return false
	}

	entry, ok := b.cache.Lookup(sessionID)
	if !ok || !entry.Ready() {
		return false
	}
	if b.store.Exists(sessionID) {
		return false
	}
	if !b.claim(sessionID) {
		return false
	}
	defer b.release(sessionID)

	// Re-check after the claim: a concurrent build may have persisted while
	// this call was between the existence check and the claim.
	if b.store.Exists(sessionID) {
		return false
	}

	p, err := b.generate(ctx, entry)
	if err != nil {
		log.Printf("[persona] generation failed for session=%s, persisting fallback: %v", sessionID, err)
		p = persona.Fallback(sessionID)
	}

	rec := persona.Record{SessionID: sessionID, SavedAt: time.Now().UTC(), Persona: p}
	if err := b.store.Save(rec); err != nil {
		log.Printf("[persona] save failed for session=%s: %v", sessionID, err)
	}
	log.Printf("[persona] built persona for session=%s name=%q", sessionID, p.Name)
	return true
}

func (b *Builder) generate(ctx context.Context, entry assets.Entry) (persona.Persona, error) {
	if b.gen == nil {
		return persona.Persona{}, errGeneratorUnavailable
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.gen.GeneratePersona(ctx, entry.PhotoPath, entry.DrawingPath)
}

// EnsurePersona loads the session's record, creating and persisting the
// fallback when none exists so callers never block on a missing file.
func (b *Builder) EnsurePersona(sessionID string) persona.Record {
	sessionID = persona.NormalizeSessionID(sessionID)

	rec, ok, err := b.store.Load(sessionID)
	if err != nil {
		log.Printf("[persona] load failed for session=%s: %v", sessionID, err)
	}
	if ok {
		return rec
	}

	rec = persona.Record{SessionID: sessionID, SavedAt: time.Now().UTC(), Persona: persona.Fallback(sessionID)}
	if err := b.store.Save(rec); err != nil {
		log.Printf("[persona] fallback save failed for session=%s: %v", sessionID, err)
	}
	return rec
}

type generatorError string

func (e generatorError) Error() string { return string(e) }

const errGeneratorUnavailable = generatorError("persona generator unavailable")
