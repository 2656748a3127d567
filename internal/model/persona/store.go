package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store exposes persona persistence for services and handlers.
type Store interface {
	Save(rec Record) error
	Load(sessionID string) (Record, bool, error)
	Exists(sessionID string) bool
}

// FileStore keeps one JSON record per sanitized session id.
type FileStore struct {
	dir string
}

// NewFileStore creates the backing directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create persona dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("persona_%s.json", SanitizeID(sessionID)))
}

// Save writes the record, stamping SavedAt when unset.
func (s *FileStore) Save(rec Record) error {
	if SanitizeID(rec.SessionID) == "" {
		return errors.New("session id is required")
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal persona record: %w", err)
	}

	if err := os.WriteFile(s.path(rec.SessionID), data, 0o644); err != nil {
		return fmt.Errorf("write persona record: %w", err)
	}
	return nil
}

// Load reads the record for a session; the second return value reports
// whether a record exists.
func (s *FileStore) Load(sessionID string) (Record, bool, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read persona record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode persona record: %w", err)
	}
	return rec, true, nil
}

// Exists reports whether a record has been persisted for the session.
func (s *FileStore) Exists(sessionID string) bool {
	_, err := os.Stat(s.path(sessionID))
	return err == nil
}
