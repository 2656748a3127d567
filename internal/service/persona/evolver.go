package persona

import (
	"context"
	"log"
	"time"

	"github.com/mirrorwell/exhibit/backend/internal/model/motion"
	"github.com/mirrorwell/exhibit/backend/internal/model/persona"
)

// Patcher asks the LLM collaborator for a merge patch against the current
// persona. Implementations must return an error for unparseable output, not
// a zero patch.
type Patcher interface {
	EvolvePersona(ctx context.Context, current persona.Persona, motionSummary string, reaction motion.Reaction) (persona.Patch, error)
}

// Evolver merges motion-derived reactions into an existing persona. A bad
// model reply never corrupts a good persona: the input comes back unchanged
// and nothing is persisted.
type Evolver struct {
	store   persona.Store
	patcher Patcher
	timeout time.Duration
}

// NewEvolver wires the evolver. patcher may be nil; evolution is then a
// logged no-op.
func NewEvolver(store persona.Store, patcher Patcher, timeout time.Duration) *Evolver {
	return &Evolver{store: store, patcher: patcher, timeout: timeout}
}

// Evolve loads the session persona, applies the model's patch and persists
// the result. Fields the patch omits are carried forward; seed memories
// accumulate.
func (e *Evolver) Evolve(ctx context.Context, sessionID, motionSummary string, reaction motion.Reaction) (persona.Persona, error) {
	sessionID = persona.NormalizeSessionID(sessionID)

	rec, ok, err := e.store.Load(sessionID)
	if err != nil {
		return persona.Persona{}, err
	}
	if !ok {
		rec = persona.Record{SessionID: sessionID, Persona: persona.Fallback(sessionID)}
	}

	if e.patcher == nil {
		log.Printf("[persona] evolver disabled, keeping persona for session=%s", sessionID)
		return rec.Persona, nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	patch, err := e.patcher.EvolvePersona(ctx, rec.Persona, motionSummary, reaction)
	if err != nil {
		log.Printf("[persona] evolve failed for session=%s, keeping persona: %v", sessionID, err)
		return rec.Persona, nil
	}

	merged := rec.Persona.Apply(patch)
	rec.Persona = merged
	rec.SavedAt = time.Now().UTC()
	if err := e.store.Save(rec); err != nil {
		// Durability is best-effort: the caller still gets the merged value.
		log.Printf("[persona] evolve save failed for session=%s: %v", sessionID, err)
	}
	return merged, nil
}
