package deck

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDeck() Deck {
	return Deck{
		ID:    "d1",
		Title: "Quarterly review",
		Slides: []Slide{
			{ID: "s1", Title: "Intro", Status: StatusGenerating, Components: []Component{
				{ID: "c1", Type: ComponentText, Props: Props{"text": "Hello", "size": 24.0}},
				{ID: "c2", Type: ComponentImage, Props: Props{"src": "a.png"}},
			}},
			{ID: "s2", Title: "Numbers", Status: StatusPending, Components: []Component{
				{ID: "c3", Type: ComponentChart, Props: Props{"kind": "bar"}},
			}},
		},
	}
}

func TestApplyDiff_UpdatesOnlyTargetComponent(t *testing.T) {
	d := sampleDeck()
	diff := Diff{SlidesToUpdate: []SlideDiff{{
		SlideID:            "s1",
		ComponentsToUpdate: []ComponentPatch{{ID: "c1", Props: Props{"text": "X"}}},
	}}}

	got, err := ApplyDiff(d, diff)
	require.NoError(t, err)

	c1, ok := got.Slides[0].Component("c1")
	require.True(t, ok)
	assert.Equal(t, "X", c1.Props["text"])
	assert.Equal(t, 24.0, c1.Props["size"], "patch keeps untouched props")
	assert.True(t, SlidesEqual(d.Slides[1], got.Slides[1]))

	orig, _ := d.Slides[0].Component("c1")
	assert.Equal(t, "Hello", orig.Props["text"], "input deck must not be mutated")
}

func TestApplyDiff_AddRemoveSlidesAndComponents(t *testing.T) {
	d := sampleDeck()
	diff := Diff{
		SlidesToUpdate: []SlideDiff{{
			SlideID:            "s1",
			ComponentsToAdd:    []Component{{ID: "c9", Type: ComponentShape}},
			ComponentsToRemove: []string{"c2", "missing"},
		}},
		SlidesToAdd:    []Slide{{ID: "s3", Title: "Outro", Components: []Component{}}},
		SlidesToRemove: []string{"s2", "nope"},
		DeckProperties: Props{"theme": "dark", "title": "Q3 review"},
	}

	got, err := ApplyDiff(d, diff)
	require.NoError(t, err)

	require.Len(t, got.Slides, 2)
	assert.Equal(t, "s1", got.Slides[0].ID)
	assert.Equal(t, "s3", got.Slides[1].ID)

	ids := []string{}
	for _, c := range got.Slides[0].Components {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"c1", "c9"}, ids)
	assert.Equal(t, "dark", got.Properties["theme"])
	assert.Equal(t, "Q3 review", got.Title)
}

func TestApplyDiff_AddExistingComponentReplaces(t *testing.T) {
	d := sampleDeck()
	diff := Diff{SlidesToUpdate: []SlideDiff{{
		SlideID:         "s1",
		ComponentsToAdd: []Component{{ID: "c1", Type: ComponentText, Props: Props{"text": "fresh"}}},
	}}}

	got, err := ApplyDiff(d, diff)
	require.NoError(t, err)
	require.Len(t, got.Slides[0].Components, 2)
	c1, _ := got.Slides[0].Component("c1")
	assert.Equal(t, Props{"text": "fresh"}, c1.Props)
}

func TestApplyDiff_UnknownSlideSkipped(t *testing.T) {
	d := sampleDeck()
	diff := Diff{SlidesToUpdate: []SlideDiff{{
		SlideID:            "ghost",
		ComponentsToUpdate: []ComponentPatch{{ID: "c1", Props: Props{"text": "X"}}},
	}}}

	got, err := ApplyDiff(d, diff)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestApplyDiff_InvalidDiffLeavesDeck(t *testing.T) {
	d := sampleDeck()
	cases := map[string]Diff{
		"empty slide id":   {SlidesToUpdate: []SlideDiff{{SlideID: ""}}},
		"empty comp id":    {SlidesToUpdate: []SlideDiff{{SlideID: "s1", ComponentsToAdd: []Component{{Type: ComponentText}}}}},
		"unknown type":     {SlidesToAdd: []Slide{{ID: "s9", Components: []Component{{ID: "x", Type: "hologram"}}}}},
		"patch without id": {SlidesToUpdate: []SlideDiff{{SlideID: "s1", ComponentsToUpdate: []ComponentPatch{{Props: Props{"a": 1}}}}}},
	}
	for name, diff := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ApplyDiff(d, diff)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDiff))
			assert.Equal(t, d, got)
		})
	}
}

func TestSlideProperties_UpdateStatus(t *testing.T) {
	d := sampleDeck()
	got, err := ApplyDiff(d, Diff{SlidesToUpdate: []SlideDiff{{
		SlideID:         "s2",
		SlideProperties: Props{"status": "completed", "title": "Final numbers"},
	}}})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Slides[1].Status)
	assert.Equal(t, "Final numbers", got.Slides[1].Title)
}

func TestMergeSlides_ReplaceAndAppend(t *testing.T) {
	d := sampleDeck()
	got := MergeSlides(d, []Slide{
		{ID: "s2", Title: "Numbers v2", Status: StatusCompleted},
		{ID: "s4", Title: "Appendix"},
	})
	require.Len(t, got.Slides, 3)
	assert.Equal(t, "Numbers v2", got.Slides[1].Title)
	assert.Equal(t, "s4", got.Slides[2].ID)
	assert.Equal(t, "Numbers", d.Slides[1].Title)
}

func TestAllCompleted(t *testing.T) {
	assert.False(t, AllCompleted(Deck{}))
	d := sampleDeck()
	assert.False(t, AllCompleted(d))
	for i := range d.Slides {
		d.Slides[i].Status = StatusCompleted
	}
	assert.True(t, AllCompleted(d))
}

func TestComponentsEqual(t *testing.T) {
	a := Component{ID: "c", Type: ComponentText, Props: Props{"text": "x", "b": 1.0}}
	b := Component{ID: "c", Type: ComponentText, Props: Props{"b": 1.0, "text": "x"}}
	assert.True(t, ComponentsEqual(a, b))
	b.Type = ComponentShape
	assert.False(t, ComponentsEqual(a, b))
}

func TestDiffFromSlides(t *testing.T) {
	d := sampleDeck()
	diff := DiffFromSlides(d, []Slide{
		{ID: "s1", Components: []Component{{ID: "c1", Type: ComponentText, Props: Props{"text": "new"}}}},
		{ID: "s5", Title: "Brand new"},
	})
	require.Len(t, diff.SlidesToUpdate, 1)
	assert.Equal(t, []string{"c2"}, diff.SlidesToUpdate[0].ComponentsToRemove)
	require.Len(t, diff.SlidesToAdd, 1)
	assert.Equal(t, "s5", diff.SlidesToAdd[0].ID)
	assert.Equal(t, []string{"s1", "s5"}, diff.TouchedSlides())
}

func TestDecodeDiff(t *testing.T) {
	raw := json.RawMessage(`{"slides_to_update":[{"slide_id":"s1","components_to_update":[{"id":"c1","props":{"text":"X"}}]}]}`)
	diff, err := DecodeDiff(raw)
	require.NoError(t, err)
	require.Len(t, diff.SlidesToUpdate, 1)
	assert.Equal(t, "X", diff.SlidesToUpdate[0].ComponentsToUpdate[0].Props["text"])

	empty, err := DecodeDiff(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = DecodeDiff(json.RawMessage(`{"slides_to_update":[{"components_to_add":[]}]}`))
	assert.ErrorIs(t, err, ErrInvalidDiff)

	_, err = DecodeDiff(json.RawMessage(`{"slides_to_add":[{"id":"s9","components":[{"id":"x","type":"hologram"}]}]}`))
	assert.ErrorIs(t, err, ErrInvalidDiff)
}

func TestTextChanges(t *testing.T) {
	d := sampleDeck()
	changes := TextChanges(d, Diff{SlidesToUpdate: []SlideDiff{{
		SlideID:            "s1",
		ComponentsToUpdate: []ComponentPatch{{ID: "c1", Props: Props{"text": "Hello world"}}},
	}}})
	require.Len(t, changes, 1)
	assert.Equal(t, "Hello", changes[0].Before)
	assert.Equal(t, "Hello world", changes[0].After)

	var inserted string
	for _, seg := range changes[0].Segments {
		if seg.Op == SegmentInsert {
			inserted += seg.Text
		}
	}
	assert.Equal(t, " world", inserted)
}
