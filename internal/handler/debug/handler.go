package debug

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	personamodel "github.com/mirrorwell/exhibit/backend/internal/model/persona"
	"github.com/mirrorwell/exhibit/backend/internal/service/assets"
	personasvc "github.com/mirrorwell/exhibit/backend/internal/service/persona"
	"github.com/mirrorwell/exhibit/backend/internal/service/session"
	"github.com/mirrorwell/exhibit/backend/pkg/utils"
)

// Handler exposes read-only inspection of registry, cache and persona state.
// No side effects; operators use it to debug a stuck station.
type Handler struct {
	registry *session.Registry
	cache    *assets.Cache
	store    personamodel.Store
	builder  *personasvc.Builder
}

// New wires the debug handler.
func New(registry *session.Registry, cache *assets.Cache, store personamodel.Store, builder *personasvc.Builder) *Handler {
	return &Handler{registry: registry, cache: cache, store: store, builder: builder}
}

// RegisterRoutes mounts the inspection endpoints under /debug.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/debug/sessions", h.handleSessions)
	r.Get("/debug/assets/{sessionID}", h.handleAssets)
	r.Get("/debug/persona/{sessionID}", h.handlePersona)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"rooms": h.registry.Snapshot(),
	})
}

func (h *Handler) handleAssets(w http.ResponseWriter, r *http.Request) {
	sessionID := personamodel.NormalizeSessionID(chi.URLParam(r, "sessionID"))
	entry, found := h.cache.Lookup(sessionID)

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"sessionId": sessionID,
		"found":     found,
		"entry":     entry,
		"building":  h.builder.InFlight(sessionID),
	})
}

func (h *Handler) handlePersona(w http.ResponseWriter, r *http.Request) {
	sessionID := personamodel.NormalizeSessionID(chi.URLParam(r, "sessionID"))
	rec, found, err := h.store.Load(sessionID)

	payload := map[string]interface{}{
		"ok":        true,
		"sessionId": sessionID,
		"found":     found,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	if found {
		payload["record"] = rec
	}
	utils.RespondJSON(w, http.StatusOK, payload)
}
