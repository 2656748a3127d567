package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	personamodel "github.com/mirrorwell/exhibit/backend/internal/model/persona"
	"github.com/mirrorwell/exhibit/backend/internal/service/assets"
	"github.com/mirrorwell/exhibit/backend/internal/service/face"
	personasvc "github.com/mirrorwell/exhibit/backend/internal/service/persona"
	"github.com/mirrorwell/exhibit/backend/internal/service/session"
)

type stubFaces struct {
	result face.Result
	err    error
}

func (s *stubFaces) Identify(ctx context.Context, imagePath, sessionID string) (face.Result, error) {
	return s.result, s.err
}

type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) BroadcastEvent(room, eventType string, extra map[string]interface{}) {
	h.mu.Lock()
	h.events = append(h.events, eventType)
	h.mu.Unlock()
}

func (h *recordingHub) has(eventType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e == eventType {
			return true
		}
	}
	return false
}

type fixture struct {
	router   *chi.Mux
	registry *session.Registry
	cache    *assets.Cache
	store    *personamodel.FileStore
	hub      *recordingHub
}

func setup(t *testing.T, faces Identifier) *fixture {
	t.Helper()

	store, err := personamodel.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}

	registry := session.NewRegistry()
	cache := assets.NewCache()
	builder := personasvc.NewBuilder(cache, store, nil, 0)
	hub := &recordingHub{}

	handler := New(registry, cache, builder, faces, hub, t.TempDir())
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	return &fixture{router: r, registry: registry, cache: cache, store: store, hub: hub}
}

func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "capture.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	part.Write([]byte("fake-jpeg-bytes"))

	for key, value := range fields {
		writer.WriteField(key, value)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func post(t *testing.T, f *fixture, path string, fields map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	body, contentType := multipartBody(t, fields)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()

	f.router.ServeHTTP(resp, req)

	var payload map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v (%s)", err, resp.Body.String())
	}
	return resp, payload
}

func TestPhotoUploadMintsSession(t *testing.T) {
	f := setup(t, nil)

	resp, payload := post(t, f, "/upload/photo", map[string]string{"room": "R1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if payload["ok"] != true {
		t.Fatalf("expected ok, got %v", payload)
	}

	id, _ := payload["session"].(string)
	if !personamodel.ValidSessionToken(id) {
		t.Fatalf("expected fresh 8-char lowercase session id, got %q", id)
	}
	if payload["faceId"] != "visitor_"+id {
		t.Fatalf("expected synthetic face id, got %v", payload["faceId"])
	}

	entry, ok := f.cache.Lookup(id)
	if !ok || entry.PhotoPath == "" {
		t.Fatal("photo path not cached")
	}
	if !f.hub.has("photo_captured") {
		t.Fatal("photo_captured not broadcast")
	}
}

func TestDrawingUploadDefersToBoundSession(t *testing.T) {
	f := setup(t, nil)

	_, first := post(t, f, "/upload/photo", map[string]string{"room": "R1"})
	boundID := first["session"].(string)

	// A different proposed id must be fenced off in favor of the binding.
	_, second := post(t, f, "/upload/drawing", map[string]string{"room": "R1", "session": "zzz99988"})
	if second["session"] != boundID {
		t.Fatalf("expected bound session %s, got %v", boundID, second["session"])
	}

	entry, ok := f.cache.Lookup(boundID)
	if !ok || entry.PhotoPath == "" || entry.DrawingPath == "" {
		t.Fatalf("expected both assets cached, got %+v", entry)
	}

	// Both assets present: the background build persists a record.
	deadline := time.Now().Add(2 * time.Second)
	for !f.store.Exists(boundID) {
		if time.Now().After(deadline) {
			t.Fatal("persona not built after both uploads")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPhotoUploadDuplicateFace(t *testing.T) {
	faces := &stubFaces{result: face.Result{FaceID: "visitor_old1", Duplicate: true, Similarity: 0.91}}
	f := setup(t, faces)

	resp, payload := post(t, f, "/upload/photo", map[string]string{"room": "R1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if payload["ok"] != false || payload["duplicate"] != true {
		t.Fatalf("expected duplicate rejection, got %v", payload)
	}
	if payload["faceId"] != "visitor_old1" {
		t.Fatalf("expected matched face id, got %v", payload["faceId"])
	}

	id := payload["session"].(string)
	if _, ok := f.cache.Lookup(id); ok {
		t.Fatal("pending assets must be cleared on duplicate rejection")
	}
	if !f.hub.has("face_duplicate") {
		t.Fatal("face_duplicate not broadcast")
	}
}

func TestPhotoUploadFaceServiceFailureDegrades(t *testing.T) {
	faces := &stubFaces{err: errors.New("face server unreachable")}
	f := setup(t, faces)

	_, payload := post(t, f, "/upload/photo", map[string]string{"room": "R1"})
	if payload["ok"] != true {
		t.Fatalf("face failure must not reject the upload: %v", payload)
	}
	id := payload["session"].(string)
	if payload["faceId"] != "visitor_"+id {
		t.Fatalf("expected synthetic face id fallback, got %v", payload["faceId"])
	}
}

func TestUploadRequiresRoom(t *testing.T) {
	f := setup(t, nil)

	resp, payload := post(t, f, "/upload/photo", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if payload["error"] != "room is required" {
		t.Fatalf("unexpected error code: %v", payload["error"])
	}
}

func TestUploadRequiresImage(t *testing.T) {
	f := setup(t, nil)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.WriteField("room", "R1")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload/photo", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
