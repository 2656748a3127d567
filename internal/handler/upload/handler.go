package upload

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mirrorwell/exhibit/backend/internal/service/assets"
	"github.com/mirrorwell/exhibit/backend/internal/service/face"
	personasvc "github.com/mirrorwell/exhibit/backend/internal/service/persona"
	"github.com/mirrorwell/exhibit/backend/internal/service/session"
	"github.com/mirrorwell/exhibit/backend/pkg/utils"
)

const maxUploadBytes = 32 << 20

// Identifier is the face-recognition collaborator contract.
type Identifier interface {
	Identify(ctx context.Context, imagePath, sessionID string) (face.Result, error)
}

// Broadcaster pushes server events to the room's websocket peers.
type Broadcaster interface {
	BroadcastEvent(room, eventType string, extra map[string]interface{})
}

// Handler receives the photo and drawing uploads that feed persona building.
type Handler struct {
	registry  *session.Registry
	cache     *assets.Cache
	builder   *personasvc.Builder
	faces     Identifier
	hub       Broadcaster
	uploadDir string
}

// New wires the upload handler. faces may be nil when no face server is
// configured; every photo then gets a synthetic face id.
func New(registry *session.Registry, cache *assets.Cache, builder *personasvc.Builder, faces Identifier, hub Broadcaster, uploadDir string) *Handler {
	return &Handler{
		registry:  registry,
		cache:     cache,
		builder:   builder,
		faces:     faces,
		hub:       hub,
		uploadDir: uploadDir,
	}
}

// RegisterRoutes mounts the upload endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload/photo", h.handlePhoto)
	r.Post("/upload/drawing", h.handleDrawing)
}

func (h *Handler) handlePhoto(w http.ResponseWriter, r *http.Request) {
	room, sessionID, path, ok := h.receive(w, r, assets.KindPhoto)
	if !ok {
		return
	}

	faceID := h.identifyFace(r.Context(), w, room, sessionID, path)
	if faceID == "" {
		// Duplicate rejection already responded.
		return
	}

	h.cache.Remember(sessionID, room, assets.KindPhoto, path)
	h.hub.BroadcastEvent(room, "photo_captured", map[string]interface{}{"session": sessionID})
	h.spawnBuild(sessionID)

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"room":    room,
		"session": sessionID,
		"faceId":  faceID,
	})
}

func (h *Handler) handleDrawing(w http.ResponseWriter, r *http.Request) {
	room, sessionID, path, ok := h.receive(w, r, assets.KindDrawing)
	if !ok {
		return
	}

	h.cache.Remember(sessionID, room, assets.KindDrawing, path)
	h.spawnBuild(sessionID)

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"room":    room,
		"session": sessionID,
	})
}

// receive validates the multipart request, coerces the session from the room
// binding and persists the file under a session-derived name so artifacts
// outlive the binding.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request, kind assets.Kind) (room, sessionID, path string, ok bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return "", "", "", false
	}

	room = strings.TrimSpace(r.FormValue("room"))
	if room == "" {
		utils.RespondError(w, http.StatusBadRequest, "room is required")
		return "", "", "", false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "image file is required")
		return "", "", "", false
	}
	defer file.Close()

	// The bound session always wins over whatever the client proposed.
	sessionID = h.registry.Coerce(room, r.FormValue("session"))

	path, err = h.saveFile(file, header, sessionID, kind)
	if err != nil {
		log.Printf("[upload] save %s failed for session=%s: %v", kind, sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store upload")
		return "", "", "", false
	}

	return room, sessionID, path, true
}

func (h *Handler) saveFile(file multipart.File, header *multipart.FileHeader, sessionID string, kind assets.Kind) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".jpg"
	}

	path := filepath.Join(h.uploadDir, fmt.Sprintf("%s_%s%s", sessionID, kind, ext))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", err
	}
	return path, nil
}

// identifyFace returns the face id, or "" after responding to a duplicate.
// Collaborator failures degrade to a synthetic id so the flow continues.
func (h *Handler) identifyFace(ctx context.Context, w http.ResponseWriter, room, sessionID, path string) string {
	synthetic := "visitor_" + sessionID
	if h.faces == nil {
		return synthetic
	}

	result, err := h.faces.Identify(ctx, path, sessionID)
	if err != nil {
		log.Printf("[upload] face identify failed for session=%s: %v", sessionID, err)
		return synthetic
	}

	if result.Duplicate {
		log.Printf("[upload] duplicate face for session=%s faceId=%s sim=%.2f", sessionID, result.FaceID, result.Similarity)
		h.cache.Forget(sessionID)
		h.hub.BroadcastEvent(room, "face_duplicate", map[string]interface{}{
			"session": sessionID,
			"faceId":  result.FaceID,
		})
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"ok":        false,
			"duplicate": true,
			"room":      room,
			"session":   sessionID,
			"faceId":    result.FaceID,
			"error":     "duplicate_face",
		})
		return ""
	}

	if result.FaceID == "" {
		return synthetic
	}
	return result.FaceID
}

func (h *Handler) spawnBuild(sessionID string) {
	utils.SpawnBackground("persona-build", 0, func(ctx context.Context) error {
		h.builder.TryBuild(ctx, sessionID)
		return nil
	})
}
