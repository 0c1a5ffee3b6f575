package tui

import (
	"strings"
	"testing"
	"time"

	"deckpilot/internal/tui/render"

	"github.com/mattn/go-runewidth"
)

func TestFmtElapsedCompact(t *testing.T) {
	cases := []struct {
		seconds  uint64
		expected string
	}{
		{seconds: 0, expected: "0s"},
		{seconds: 59, expected: "59s"},
		{seconds: 60, expected: "1m 00s"},
		{seconds: 3*60 + 5, expected: "3m 05s"},
		{seconds: 3600 + 60 + 1, expected: "1h 01m 01s"},
		{seconds: 25*3600 + 2*60 + 3, expected: "25h 02m 03s"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if got := fmtElapsedCompact(tc.seconds); got != tc.expected {
				t.Fatalf("fmtElapsedCompact(%d) = %q, want %q", tc.seconds, got, tc.expected)
			}
		})
	}
}

func TestStatusIndicatorTimer(t *testing.T) {
	now := time.Unix(0, 0)
	w := NewStatusIndicator(func() time.Time { return now })

	w.SetState(StatusSending)
	now = now.Add(3 * time.Second)
	w.SetState(StatusGenerating)
	now = now.Add(2 * time.Second)
	if got := w.Elapsed(); got != 5*time.Second {
		t.Fatalf("sending and generating should share one timer, got %v", got)
	}

	w.SetState(StatusIdle)
	now = now.Add(10 * time.Second)
	if got := w.Elapsed(); got != 5*time.Second {
		t.Fatalf("idle should stop the timer, got %v", got)
	}

	w.SetState(StatusSending)
	now = now.Add(time.Second)
	if got := w.Elapsed(); got != time.Second {
		t.Fatalf("a new request should restart the timer, got %v", got)
	}
}

func TestStatusIndicatorView(t *testing.T) {
	now := time.Unix(0, 0)
	w := NewStatusIndicator(func() time.Time { return now })
	if line := w.View("*", 80); len(line.Spans) != 0 {
		t.Fatalf("idle indicator should render nothing")
	}

	w.SetState(StatusGenerating)
	now = now.Add(65 * time.Second)
	got := render.LinesToPlainStrings([]render.Line{w.View("*", 80)})[0]
	if got != "* Generating deck (1m 05s • esc to stop)" {
		t.Fatalf("unexpected status line %q", got)
	}

	w.SetState(StatusError)
	w.SetHeader("Request failed: boom")
	got = render.LinesToPlainStrings([]render.Line{w.View("*", 80)})[0]
	if got != "! Request failed: boom" {
		t.Fatalf("unexpected error line %q", got)
	}

	narrow := render.LinesToPlainStrings([]render.Line{w.View("*", 10)})[0]
	if runewidth.StringWidth(narrow) > 10 || !strings.HasPrefix(narrow, "! Request") {
		t.Fatalf("status line should be clamped, got %q", narrow)
	}
}
