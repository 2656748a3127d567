package persona

import (
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}

	rec := Record{SessionID: "abc123de", Persona: Fallback("abc123de")}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	loaded, ok, err := store.Load("abc123de")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if !ok {
		t.Fatal("expected record to exist")
	}
	if loaded.Persona.Name != rec.Persona.Name {
		t.Fatalf("unexpected persona name: %s", loaded.Persona.Name)
	}
	if loaded.SavedAt.IsZero() {
		t.Fatal("SavedAt not stamped")
	}
}

func TestFileStoreIdentityIsSanitized(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}

	if err := store.Save(Record{SessionID: "abc123de", Persona: Fallback("abc123de")}); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	// The avatar-rig prefix resolves to the same record.
	if !store.Exists("ava_abc123de") {
		t.Fatal("prefixed id should resolve to the same record")
	}

	_, ok, err := store.Load("AVA_ABC123DE")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if !ok {
		t.Fatal("case-folded id should resolve to the same record")
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}

	_, ok, err := store.Load("missing1")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if ok {
		t.Fatal("expected no record")
	}
	if store.Exists("missing1") {
		t.Fatal("Exists must be false for missing record")
	}
}

func TestFileStoreRejectsEmptyID(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}
	if err := store.Save(Record{SessionID: "///"}); err == nil {
		t.Fatal("expected error for unusable session id")
	}
}
