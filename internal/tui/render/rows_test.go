package render

import (
	"strings"
	"testing"

	"deckpilot/internal/deck"
	"deckpilot/internal/protocol"
	"deckpilot/internal/selection"
	"deckpilot/internal/transcript"
)

func plain(rows []transcript.Row, width int) string {
	return strings.Join(LinesToPlainStrings(RenderRows(rows, width, nil)), "\n")
}

func TestRenderRowsPrefixesByRole(t *testing.T) {
	rows := []transcript.Row{
		{Role: transcript.RoleUser, Text: "make the title bigger", Targets: []selection.Descriptor{{ElementID: "t1"}}},
		{Role: transcript.RoleMessage, Text: "Working on it", Streaming: true},
		{Role: transcript.RoleTool, Text: "layout: running"},
		{Role: transcript.RoleSelection, Text: "Using selection: Slide 1 · text “Q3”"},
		{Role: transcript.RoleSystem, Text: "File upload failed. Please try again."},
		{Role: transcript.RoleCompletion, Text: "Generation complete"},
	}
	out := plain(rows, 60)
	for _, want := range []string{
		"› make the title bigger",
		"  ↳ 1 element selected",
		"• Working on it ▍",
		"⚙ layout: running",
		"◎ Using selection: Slide 1 · text “Q3”",
		"! File upload failed. Please try again.",
		"✓ Generation complete",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Count(out, "\n\n") != len(rows)-1 {
		t.Fatalf("rows should be separated by one blank line:\n%s", out)
	}
}

func TestRenderRowsWrapsUnderPrefix(t *testing.T) {
	rows := []transcript.Row{{Role: transcript.RoleUser, Text: "one two three four"}}
	got := LinesToPlainStrings(RenderRows(rows, 10, nil))
	want := []string{"› one two", "  three", "  four"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRenderPlanSteps(t *testing.T) {
	rows := []transcript.Row{{Role: transcript.RolePlan, Steps: []protocol.PlanStep{
		{Title: "Outline", Status: "completed"},
		{Title: "Draft slides", Status: "in_progress"},
		{Title: "Polish"},
	}}}
	got := LinesToPlainStrings(RenderRows(rows, 40, nil))
	want := []string{"• Plan", "  └ ✔ Outline", "    □ Draft slides", "    □ Polish"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRenderProposalSegments(t *testing.T) {
	rows := []transcript.Row{{
		Role:    transcript.RoleProposal,
		Text:    "Retitle slide",
		Applied: true,
		Changes: []deck.TextChange{{
			SlideID:     "s1",
			ComponentID: "title",
			Segments: []deck.Segment{
				{Op: deck.SegmentEqual, Text: "Q3 "},
				{Op: deck.SegmentDelete, Text: "results"},
				{Op: deck.SegmentInsert, Text: "wins"},
			},
		}},
	}}
	got := LinesToPlainStrings(RenderRows(rows, 40, nil))
	want := []string{"✎ Retitle slide (applied)", "  └ s1 / title", "    Q3 resultswins"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestClampSpansAddsEllipsis(t *testing.T) {
	spans := []Span{{Text: "    "}, {Text: "abcdefghij"}}
	got := LinesToPlainStrings([]Line{{Spans: clampSpans(spans, 8)}})
	if got[0] != "    abc…" {
		t.Fatalf("unexpected clamp %q", got[0])
	}
	if len(clampSpans(spans, 20)) != 2 {
		t.Fatalf("short spans should be left alone")
	}
}

func TestProgressRowShowsBar(t *testing.T) {
	rows := []transcript.Row{{Role: transcript.RoleProgress, Text: "Drafting (40%)", Percent: 40, HasPercent: true}}
	got := LinesToPlainStrings(RenderRows(rows, 40, nil))
	if len(got) != 2 || got[0] != "⋯ Drafting (40%)" {
		t.Fatalf("unexpected progress lines %q", got)
	}
	if strings.TrimSpace(got[1]) == "" {
		t.Fatalf("expected a progress bar line")
	}
}

func TestMarkdownRendersAndFallsBack(t *testing.T) {
	md := NewMarkdown("dark")
	lines := md.Render("**Done.** Slide two now has a chart.", 40)
	joined := ansiStrip(strings.Join(lines, "\n"))
	if !strings.Contains(joined, "Done.") || strings.Contains(joined, "**") {
		t.Fatalf("markdown not rendered: %q", joined)
	}
	if again := md.Render("**Done.** Slide two now has a chart.", 40); len(again) != len(lines) {
		t.Fatalf("cached render should match")
	}

	var nilMD *Markdown
	if got := nilMD.Render("plain text", 40); len(got) != 1 || got[0] != "plain text" {
		t.Fatalf("nil renderer should wrap plain text, got %q", got)
	}
}
