package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"deckpilot/internal/transcript"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := &Store{Dir: t.TempDir()}
	rows := []transcript.Row{
		{ID: "r1", Role: transcript.RoleUser, Text: "make it blue"},
		{ID: "r2", Role: transcript.RoleMessage, Text: "Done", MessageID: "m1"},
	}
	id, err := s.Save(Record{DeckID: "deck-1", SlideID: "s2", Rows: rows})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}
	rec, err := s.Load(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.DeckID != "deck-1" || rec.SlideID != "s2" || len(rec.Rows) != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Rows[1].Role != transcript.RoleMessage || rec.Rows[1].MessageID != "m1" {
		t.Fatalf("row lost fields: %+v", rec.Rows[1])
	}
	raw, err := os.ReadFile(filepath.Join(s.Dir, id+".json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), `"role": "message"`) {
		t.Fatalf("roles should be stored by name:\n%s", raw)
	}
	if _, err := os.Stat(filepath.Join(s.Dir, id+".json.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestListAndLastFilterByDeck(t *testing.T) {
	s := &Store{Dir: t.TempDir()}
	if _, err := s.Last("deck-1"); !errors.Is(err, ErrNoSessions) {
		t.Fatalf("expected ErrNoSessions, got %v", err)
	}
	first, _ := s.Save(Record{DeckID: "deck-1"})
	time.Sleep(10 * time.Millisecond)
	_, _ = s.Save(Record{DeckID: "deck-2"})
	time.Sleep(10 * time.Millisecond)
	latest, _ := s.Save(Record{DeckID: "deck-1"})

	recs, err := s.List("deck-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != latest || recs[1].ID != first {
		t.Fatalf("unexpected order %+v", recs)
	}
	all, _ := s.List("")
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	last, err := s.Last("deck-1")
	if err != nil || last.ID != latest {
		t.Fatalf("expected latest record, got %+v err=%v", last, err)
	}

	if err := s.Delete(latest); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(latest); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	last, _ = s.Last("deck-1")
	if last.ID != first {
		t.Fatalf("expected first record after delete, got %s", last.ID)
	}
}

func TestSaveRequiresDeck(t *testing.T) {
	s := &Store{Dir: t.TempDir()}
	if _, err := s.Save(Record{}); err == nil {
		t.Fatalf("expected error without deck id")
	}
	missing := &Store{Dir: filepath.Join(t.TempDir(), "nope")}
	if recs, err := missing.List(""); err != nil || recs != nil {
		t.Fatalf("missing dir lists nothing, got %v %v", recs, err)
	}
}
