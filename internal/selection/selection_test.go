package selection

import (
	"testing"

	"deckpilot/internal/deck"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() deck.Deck {
	return deck.Deck{ID: "d", Slides: []deck.Slide{
		{ID: "s1", Components: []deck.Component{
			{ID: "title", Type: deck.ComponentText, Props: deck.Props{"text": "Quarterly results", "x": 0.0, "y": 0.0, "width": 100.0, "height": 20.0}},
			{ID: "logo", Type: deck.ComponentImage, Props: deck.Props{"x": 90.0, "y": 10.0, "width": 20.0, "height": 20.0}},
			{ID: "bg", Type: deck.ComponentBackground},
		}},
		{ID: "s2", Components: []deck.Component{
			{ID: "chart", Type: deck.ComponentChart, Props: deck.Props{"x": 0.0, "y": 0.0, "width": 50.0, "height": 50.0}},
		}},
	}}
}

func TestLabelResolvedAtReadTime(t *testing.T) {
	d := fixture()
	sel := Descriptor{ElementID: "title", ElementType: "text", SlideID: "s1"}
	assert.Equal(t, "Slide 1 · text “Quarterly results”", Label(d, sel))

	// reorder slides: the same descriptor now resolves to a new position
	d.Slides[0], d.Slides[1] = d.Slides[1], d.Slides[0]
	assert.Equal(t, "Slide 2 · text “Quarterly results”", Label(d, sel))

	d.Slides[1].Components[0].Props["text"] = "Q3 in review"
	assert.Equal(t, "Slide 2 · text “Q3 in review”", Label(d, sel))
}

func TestLabelFallbacks(t *testing.T) {
	d := fixture()
	assert.Equal(t, "Slide 1 · image", Label(d, Descriptor{ElementID: "logo", ElementType: "image", SlideID: "s1"}))
	assert.Equal(t, "Slide 1 · chart", Label(d, Descriptor{ElementID: "gone", ElementType: "chart", SlideID: "s1"}))
	assert.Equal(t, "element x1", Label(d, Descriptor{ElementID: "x1", SlideID: "missing"}))
}

func TestFromComponentOverlaps(t *testing.T) {
	d := fixture()
	slide := d.Slides[0]
	title, _ := slide.Component("title")
	desc := FromComponent(slide, title)
	assert.Equal(t, []string{"logo"}, desc.Overlapping)
	assert.Equal(t, Rect{Width: 100, Height: 20}, desc.Bounds)
}

func TestNormalize(t *testing.T) {
	got := Normalize([]Descriptor{
		{ElementID: " a ", SlideID: "s1", Overlapping: []string{"c", "a", "b", ""}},
		{ElementID: "a", SlideID: "s1"},
		{ElementID: ""},
		{ElementID: "a", SlideID: "s2"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ElementID)
	assert.Equal(t, []string{"b", "c"}, got[0].Overlapping)
	assert.Equal(t, "s2", got[1].SlideID)
}

func TestFind(t *testing.T) {
	d := fixture()
	got := Find(d, "quarterly", 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "title", got[0].Descriptor.ElementID)

	all := Find(d, "", 0)
	assert.Len(t, all, 4)

	limited := Find(d, "", 2)
	assert.Len(t, limited, 2)
}
