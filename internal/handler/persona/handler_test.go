package persona

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	personamodel "github.com/mirrorwell/exhibit/backend/internal/model/persona"
	"github.com/mirrorwell/exhibit/backend/internal/service/assets"
	personasvc "github.com/mirrorwell/exhibit/backend/internal/service/persona"
)

type stubChatter struct {
	reply string
	err   error
}

func (s *stubChatter) Chat(ctx context.Context, rec personamodel.Record, text string) (string, error) {
	return s.reply, s.err
}

type fixture struct {
	router    *chi.Mux
	store     *personamodel.FileStore
	cache     *assets.Cache
	uploadDir string
}

func setup(t *testing.T, chatter Chatter) *fixture {
	t.Helper()

	store, err := personamodel.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}
	cache := assets.NewCache()
	builder := personasvc.NewBuilder(cache, store, nil, 0)
	uploadDir := t.TempDir()

	r := chi.NewRouter()
	New(store, cache, builder, chatter, uploadDir).RegisterRoutes(r)
	return &fixture{router: r, store: store, cache: cache, uploadDir: uploadDir}
}

func get(t *testing.T, f *fixture, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	var payload map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, payload
}

func postJSON(t *testing.T, f *fixture, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	var payload map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, payload
}

func TestPersonaInfoNotFound(t *testing.T) {
	f := setup(t, nil)

	resp, _ := get(t, f, "/persona-info/abc123de")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestPersonaInfoFromRecord(t *testing.T) {
	f := setup(t, nil)

	p := personamodel.Fallback("abc123de")
	p.Name = "Sprout"
	p.Core.Traits = []string{"green", "bouncy"}
	if err := f.store.Save(personamodel.Record{SessionID: "abc123de", Persona: p}); err != nil {
		t.Fatalf("Save err: %v", err)
	}
	f.cache.Remember("abc123de", "R1", assets.KindDrawing, "/up/abc123de_drawing.png")

	resp, payload := get(t, f, "/persona-info/abc123de")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if payload["name"] != "Sprout" {
		t.Fatalf("unexpected name: %v", payload["name"])
	}
	if !strings.HasSuffix(payload["avatarUrl"].(string), "abc123de_drawing.png") {
		t.Fatalf("unexpected avatarUrl: %v", payload["avatarUrl"])
	}
}

func TestPersonaInfoStripsAvatarPrefix(t *testing.T) {
	f := setup(t, nil)

	if err := f.store.Save(personamodel.Record{SessionID: "abc123de", Persona: personamodel.Fallback("abc123de")}); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	resp, payload := get(t, f, "/persona-info/ava_abc123de")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if payload["sessionId"] != "abc123de" {
		t.Fatalf("prefix not stripped: %v", payload["sessionId"])
	}
}

func TestPersonaInfoDrawingOnly(t *testing.T) {
	f := setup(t, nil)
	f.cache.Remember("abc123de", "R1", assets.KindDrawing, "/up/abc123de_drawing.png")

	resp, payload := get(t, f, "/persona-info/abc123de")
	if resp.Code != http.StatusOK {
		t.Fatalf("a drawing asset alone should serve a fallback, got %d", resp.Code)
	}
	if payload["name"] == "" {
		t.Fatal("fallback name missing")
	}
}

func TestPersonaInfoRecoversAvatarAfterSessionEnd(t *testing.T) {
	f := setup(t, nil)

	if err := f.store.Save(personamodel.Record{SessionID: "abc123de", Persona: personamodel.Fallback("abc123de")}); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	// The pending-asset entry is forgotten on session_end, but the renamed
	// upload stays on disk.
	drawing := filepath.Join(f.uploadDir, "abc123de_drawing.png")
	if err := os.WriteFile(drawing, []byte("fake-png-bytes"), 0o644); err != nil {
		t.Fatalf("write drawing: %v", err)
	}

	resp, payload := get(t, f, "/persona-info/abc123de")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if payload["avatarUrl"] != "/uploads/abc123de_drawing.png" {
		t.Fatalf("avatar not recovered from upload dir: %v", payload["avatarUrl"])
	}
}

func TestChatGeneratesReply(t *testing.T) {
	f := setup(t, &stubChatter{reply: "hello there!"})

	_, payload := postJSON(t, f, "/chat", map[string]string{"sessionId": "abc123de", "text": "hi"})
	if payload["ok"] != true || payload["reply"] != "hello there!" {
		t.Fatalf("unexpected chat payload: %v", payload)
	}

	// Chat auto-creates the fallback persona when none exists.
	if !f.store.Exists("abc123de") {
		t.Fatal("chat did not ensure a persona record")
	}
}

func TestChatFallsBackOnModelFailure(t *testing.T) {
	f := setup(t, &stubChatter{err: errors.New("model down")})

	resp, payload := postJSON(t, f, "/chat", map[string]string{"sessionId": "abc123de", "text": "hi"})
	if resp.Code != http.StatusOK {
		t.Fatalf("model failure must degrade, got %d", resp.Code)
	}
	reply, _ := payload["reply"].(string)
	if reply == "" {
		t.Fatal("expected canned reply")
	}
}

func TestChatValidation(t *testing.T) {
	f := setup(t, nil)

	resp, _ := postJSON(t, f, "/chat", map[string]string{"text": "hi"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing sessionId, got %d", resp.Code)
	}

	resp, _ = postJSON(t, f, "/chat", map[string]string{"sessionId": "abc123de"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing text, got %d", resp.Code)
	}
}
