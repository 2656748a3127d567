package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	personamodel "github.com/mirrorwell/exhibit/backend/internal/model/persona"
	"github.com/mirrorwell/exhibit/backend/internal/service/assets"
	personasvc "github.com/mirrorwell/exhibit/backend/internal/service/persona"
	"github.com/mirrorwell/exhibit/backend/pkg/utils"
)

// Chatter produces a single in-character reply. *ai.Service implements it;
// nil means the exhibit runs without a model and serves canned lines.
type Chatter interface {
	Chat(ctx context.Context, rec personamodel.Record, text string) (string, error)
}

// Handler serves persona lookups and free-form chat.
type Handler struct {
	store     personamodel.Store
	cache     *assets.Cache
	builder   *personasvc.Builder
	chatter   Chatter
	uploadDir string
}

// New wires the persona handler.
func New(store personamodel.Store, cache *assets.Cache, builder *personasvc.Builder, chatter Chatter, uploadDir string) *Handler {
	return &Handler{store: store, cache: cache, builder: builder, chatter: chatter, uploadDir: uploadDir}
}

// RegisterRoutes mounts the persona endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/persona-info/{sessionID}", h.handlePersonaInfo)
	r.Post("/chat", h.handleChat)
}

func (h *Handler) handlePersonaInfo(w http.ResponseWriter, r *http.Request) {
	sessionID := personamodel.NormalizeSessionID(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	rec, found, err := h.store.Load(sessionID)
	if err != nil {
		log.Printf("[persona] info load failed for session=%s: %v", sessionID, err)
	}

	entry, _ := h.cache.Lookup(sessionID)
	drawing := entry.DrawingPath
	if drawing == "" {
		drawing = h.findDrawing(sessionID)
	}
	if !found && drawing == "" {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	}

	p := rec.Persona
	if !found {
		p = personamodel.Fallback(sessionID)
	}

	avatarURL := ""
	if drawing != "" {
		avatarURL = "/uploads/" + filepath.Base(drawing)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"sessionId": sessionID,
		"name":      p.Name,
		"traits":    p.Core.Traits,
		"avatarUrl": avatarURL,
	})
}

// findDrawing recovers the persisted drawing once the pending-asset entry is
// gone. Uploads are stored as <session>_drawing<ext> and outlive the room
// binding.
func (h *Handler) findDrawing(sessionID string) string {
	if h.uploadDir == "" {
		return ""
	}
	matches, err := filepath.Glob(filepath.Join(h.uploadDir, sessionID+"_drawing.*"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Text      string `json:"text"`
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
	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	rec := h.builder.EnsurePersona(sessionID)

	reply := ""
	if h.chatter != nil {
		generated, err := h.chatter.Chat(r.Context(), rec, payload.Text)
		if err != nil {
			log.Printf("[persona] chat call failed for session=%s: %v", sessionID, err)
		} else {
			reply = generated
		}
	}
	if reply == "" {
		reply = cannedReply(rec.Persona)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"reply": reply,
	})
}

// cannedReply keeps the exhibit talking when the model is unavailable.
func cannedReply(p personamodel.Persona) string {
	return fmt.Sprintf("%s tilts their head and smiles. \"Tell me more!\"", p.Name)
}
