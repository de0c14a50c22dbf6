// Package roster persists the supervised bot instances in a single JSON file.
package roster

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Command is a static trigger/response pair registered for a bot.
type Command struct {
	Trigger  string `json:"command"`
	Response string `json:"response"`
}

// Record is one bot instance. The file is a flat JSON array of records.
type Record struct {
	ID        string    `json:"id,omitempty"`
	Token     string    `json:"token"`
	OwnerID   int64     `json:"owner_id"`
	Commands  []Command `json:"commands"`
	CreatedAt string    `json:"created_at,omitempty"`
}

// NewRecord creates a record with a fresh ID.
func NewRecord(token string, owner int64, now time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Token:     token,
		OwnerID:   owner,
		Commands:  []Command{},
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
}

// Store reads and atomically rewrites the roster file. It does not lock;
// callers serialize read-modify-write cycles.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the records in file order. A missing or empty file is an
// empty roster. Records written without an ID get one, and the file is
// rewritten so the ID stays the same on the next Load.
func (s *Store) Load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("read roster: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Record{}, nil
	}

	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	missing := slices.ContainsFunc(recs, func(r Record) bool { return r.ID == "" })
	recs = normalize(recs)
	if missing {
		if err := s.Save(recs); err != nil {
			return nil, fmt.Errorf("persist roster ids: %w", err)
		}
	}
	return recs, nil
}

// Save replaces the file with recs via a synced temp file and rename.
func (s *Store) Save(recs []Record) (retErr error) {
	recs = normalize(recs)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create roster dir: %w", err)
	}

	tmp := s.path + ".tmp"
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmp)
		}
	}()

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open temp roster: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(recs); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp roster: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("fsync temp roster: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp roster: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename temp roster: %w", err)
	}
	return nil
}

// Find returns the index of the record holding token, or -1.
func Find(recs []Record, token string) int {
	for i, r := range recs {
		if r.Token == token {
			return i
		}
	}
	return -1
}

func normalize(recs []Record) []Record {
	if recs == nil {
		return []Record{}
	}
	for i := range recs {
		if recs[i].ID == "" {
			recs[i].ID = uuid.NewString()
		}
		if recs[i].Commands == nil {
			recs[i].Commands = []Command{}
		}
	}
	return recs
}
