// Package session persists chat transcripts per deck so a chat can be
// resumed and the legacy endpoint can be seeded with prior turns.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"deckpilot/internal/transcript"

	"github.com/google/uuid"
)

// ErrNoSessions is returned by Last when nothing was saved yet.
var ErrNoSessions = errors.New("no sessions found")

type Record struct {
	ID      string           `json:"id"`
	DeckID  string           `json:"deck_id"`
	SlideID string           `json:"slide_id,omitempty"`
	Rows    []transcript.Row `json:"rows"`
	Updated time.Time        `json:"updated"`
}

// Store keeps one JSON file per record under Dir.
type Store struct {
	Dir string
}

// DefaultDir is ~/.deckpilot/sessions.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".deckpilot", "sessions"), nil
}

// Open returns a store rooted at dir, or at DefaultDir when dir is empty.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

// Save writes rec, assigning an id when it has none, and returns the id.
// Rows still streaming are saved as they are; Restore finalizes them.
func (s *Store) Save(rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DeckID == "" {
		return "", errors.New("session record needs a deck id")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	rec.Updated = time.Now()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	tmp := s.path(rec.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, s.path(rec.ID)); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *Store) Load(id string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, nil
}

// List returns the records of deckID, newest first. An empty deckID lists
// every deck.
func (s *Store) List(deckID string) ([]Record, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec, err := s.Load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		if deckID == "" || rec.DeckID == deckID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Updated.After(records[j].Updated)
	})
	return records, nil
}

// Last returns the most recent record of deckID.
func (s *Store) Last(deckID string) (Record, error) {
	records, err := s.List(deckID)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNoSessions
	}
	return records[0], nil
}

// Delete removes a record; a missing record is not an error.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
