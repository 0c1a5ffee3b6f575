package deck

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// SegmentOp classifies a piece of a text change.
type SegmentOp string

const (
	SegmentEqual  SegmentOp = "equal"
	SegmentInsert SegmentOp = "insert"
	SegmentDelete SegmentOp = "delete"
)

type Segment struct {
	Op   SegmentOp `json:"op"`
	Text string    `json:"text"`
}

// TextChange describes how the text of one component changes.
type TextChange struct {
	SlideID     string    `json:"slide_id"`
	ComponentID string    `json:"component_id"`
	Before      string    `json:"before"`
	After       string    `json:"after"`
	Segments    []Segment `json:"segments"`
}

// TextChanges previews the text edits diff would make to d. Components whose
// text stays the same are omitted.
func TextChanges(d Deck, diff Diff) []TextChange {
	next, err := ApplyDiff(d, diff)
	if err != nil {
		return nil
	}
	var out []TextChange
	for _, id := range diff.TouchedSlides() {
		after, ok := next.FindSlide(id)
		if !ok {
			continue
		}
		before, _ := d.FindSlide(id)
		out = append(out, slideTextChanges(before, after)...)
	}
	return out
}

func slideTextChanges(before, after Slide) []TextChange {
	var out []TextChange
	for _, c := range after.Components {
		prev, _ := before.Component(c.ID)
		oldText, newText := prev.Props.Text(), c.Props.Text()
		if oldText == newText {
			continue
		}
		out = append(out, TextChange{
			SlideID:     after.ID,
			ComponentID: c.ID,
			Before:      oldText,
			After:       newText,
			Segments:    diffSegments(oldText, newText),
		})
	}
	return out
}

func diffSegments(before, after string) []Segment {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	out := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			out = append(out, Segment{Op: SegmentEqual, Text: d.Text})
		case diffmatchpatch.DiffInsert:
			out = append(out, Segment{Op: SegmentInsert, Text: d.Text})
		case diffmatchpatch.DiffDelete:
			out = append(out, Segment{Op: SegmentDelete, Text: d.Text})
		}
	}
	return out
}
