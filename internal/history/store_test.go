package history

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestStoreAppendAndLoadTexts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "history.jsonl")
	s := &Store{Path: path}

	if got, err := s.LoadTexts(""); err != nil || len(got) != 0 {
		t.Fatalf("LoadTexts on missing file: got=%v err=%v", got, err)
	}
	if err := s.Append("deck-1", "   "); err != nil {
		t.Fatalf("Append whitespace: %v", err)
	}
	for _, e := range []struct{ deck, text string }{
		{"deck-1", "make it blue"},
		{"deck-2", "add a chart"},
		{"deck-1", " shorter title "},
	} {
		if err := s.Append(e.deck, e.text); err != nil {
			t.Fatalf("Append %q: %v", e.text, err)
		}
	}

	got, err := s.LoadTexts("deck-1")
	if err != nil {
		t.Fatalf("LoadTexts: %v", err)
	}
	if want := []string{"make it blue", "shorter title"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("LoadTexts(deck-1) = %q, want %q", got, want)
	}
	all, err := s.LoadTexts("")
	if err != nil || len(all) != 3 {
		t.Fatalf("LoadTexts(all) = %q err=%v", all, err)
	}
}

func TestLoadTextsSkipsGarbageAndCaps(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.jsonl")
	lines := []string{`{not json}`, `{"text":"","deck_id":"d"}`}
	for i := 0; i < MaxLoaded+5; i++ {
		lines = append(lines, fmt.Sprintf(`{"text":"p%d","deck_id":"d","ts":"2025-01-01T00:00:00Z"}`, i))
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := (&Store{Path: path}).LoadTexts("d")
	if err != nil {
		t.Fatalf("LoadTexts: %v", err)
	}
	if len(got) != MaxLoaded || got[0] != "p5" || got[len(got)-1] != fmt.Sprintf("p%d", MaxLoaded+4) {
		t.Fatalf("expected the newest %d prompts, got %d starting at %q", MaxLoaded, len(got), got[0])
	}
}

func TestNilStore(t *testing.T) {
	var s *Store
	if err := s.Append("d", "x"); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := s.LoadTexts("d"); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
