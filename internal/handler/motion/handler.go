package motion

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mirrorwell/exhibit/backend/internal/analysis/emotion"
	motionmodel "github.com/mirrorwell/exhibit/backend/internal/model/motion"
	personamodel "github.com/mirrorwell/exhibit/backend/internal/model/persona"
	motionsvc "github.com/mirrorwell/exhibit/backend/internal/service/motion"
	personasvc "github.com/mirrorwell/exhibit/backend/internal/service/persona"
	"github.com/mirrorwell/exhibit/backend/pkg/utils"
)

// Reactor voices the character's response to a motion summary. *ai.Service
// implements it.
type Reactor interface {
	React(ctx context.Context, rec personamodel.Record, motionSummary, motionMatch string) (motionmodel.Reaction, error)
}

// Handler serves the motion-context endpoint: match the motion against the
// corpus, voice a reaction, then evolve the persona off the request path.
type Handler struct {
	corpus  *motionsvc.Corpus
	builder *personasvc.Builder
	evolver *personasvc.Evolver
	reactor Reactor
}

// New wires the motion handler. reactor may be nil for model-less operation.
func New(corpus *motionsvc.Corpus, builder *personasvc.Builder, evolver *personasvc.Evolver, reactor Reactor) *Handler {
	return &Handler{corpus: corpus, builder: builder, evolver: evolver, reactor: reactor}
}

// RegisterRoutes mounts the endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/motion-context", h.handleMotionContext)
}

func (h *Handler) handleMotionContext(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID     string `json:"sessionId"`
		MotionSummary string `json:"motionSummary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := personamodel.NormalizeSessionID(payload.SessionID)
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	summary := strings.TrimSpace(payload.MotionSummary)
	if summary == "" {
		utils.RespondError(w, http.StatusBadRequest, "motionSummary is required")
		return
	}

	rec := h.builder.EnsurePersona(sessionID)

	interpretation := ""
	if match, err := h.corpus.FindClosest(r.Context(), summary); err != nil {
		log.Printf("[motion] corpus match failed for session=%s: %v", sessionID, err)
	} else if match != nil {
		interpretation = match.Entry.Description
		log.Printf("[motion] session=%s matched corpus index=%d score=%.3f", sessionID, match.Entry.Index, match.Score)
	}

	reaction := h.react(r.Context(), rec, summary, interpretation)

	full := reaction.Raw
	if len(full) == 0 {
		if data, err := json.Marshal(reaction); err == nil {
			full = data
		}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":            sessionID,
		"personaReply":         reaction.Reply,
		"motionInterpretation": reaction.Interpretation,
		"state":                reaction.State,
		"reaction_full":        json.RawMessage(full),
	})

	// Persona durability deliberately lags the response by one model
	// round-trip; the caller never waits on it.
	utils.SpawnBackground("persona-evolve", 0, func(ctx context.Context) error {
		_, err := h.evolver.Evolve(ctx, sessionID, summary, reaction)
		return err
	})
}

func (h *Handler) react(ctx context.Context, rec personamodel.Record, summary, interpretation string) motionmodel.Reaction {
	if h.reactor != nil {
		reaction, err := h.reactor.React(ctx, rec, summary, interpretation)
		if err == nil {
			return reaction
		}
		log.Printf("[motion] reaction call failed for session=%s: %v", rec.SessionID, err)
	}

	if interpretation == "" {
		interpretation = summary
	}
	return motionmodel.Reaction{
		Reply:          rec.Persona.Name + " watches the movement closely.",
		Interpretation: interpretation,
		State:          string(emotion.Default()),
	}
}
