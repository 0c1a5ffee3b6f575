// Package selection describes the on-slide elements a user points the agent
// at. Descriptors are ephemeral and their labels are resolved against the
// current deck whenever they are displayed.
package selection

import (
	"fmt"
	"sort"
	"strings"

	"deckpilot/internal/deck"

	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
)

const labelSnippetWidth = 32

// Rect is a bounding box in slide coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersects reports whether r and o overlap with positive area.
func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Descriptor identifies one selected element.
type Descriptor struct {
	ElementID   string   `json:"elementId"`
	ElementType string   `json:"elementType"`
	SlideID     string   `json:"slideId"`
	Bounds      Rect     `json:"bounds"`
	Overlapping []string `json:"overlappingIds,omitempty"`
}

// Normalize trims ids, drops empty or duplicate descriptors and sorts the
// overlap lists so equal selections compare equal.
func Normalize(in []Descriptor) []Descriptor {
	seen := map[string]bool{}
	out := make([]Descriptor, 0, len(in))
	for _, d := range in {
		d.ElementID = strings.TrimSpace(d.ElementID)
		d.SlideID = strings.TrimSpace(d.SlideID)
		if d.ElementID == "" {
			continue
		}
		key := d.SlideID + "/" + d.ElementID
		if seen[key] {
			continue
		}
		seen[key] = true
		if len(d.Overlapping) > 0 {
			ids := make([]string, 0, len(d.Overlapping))
			for _, id := range d.Overlapping {
				if id != "" && id != d.ElementID {
					ids = append(ids, id)
				}
			}
			sort.Strings(ids)
			d.Overlapping = ids
		}
		out = append(out, d)
	}
	return out
}

// BoundsOf reads x/y/width/height from a component's props.
func BoundsOf(c deck.Component) Rect {
	return Rect{
		X:      number(c.Props["x"]),
		Y:      number(c.Props["y"]),
		Width:  number(c.Props["width"]),
		Height: number(c.Props["height"]),
	}
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// FromComponent builds a descriptor for a component of slide, with overlaps
// computed against the slide's other components.
func FromComponent(slide deck.Slide, c deck.Component) Descriptor {
	d := Descriptor{
		ElementID:   c.ID,
		ElementType: string(c.Type),
		SlideID:     slide.ID,
		Bounds:      BoundsOf(c),
	}
	d.Overlapping = ComputeOverlaps(slide, d.Bounds, c.ID)
	return d
}

// ComputeOverlaps lists the components of slide whose bounds intersect r,
// skipping self.
func ComputeOverlaps(slide deck.Slide, r Rect, self string) []string {
	var ids []string
	for _, c := range slide.Components {
		if c.ID == self {
			continue
		}
		if r.Intersects(BoundsOf(c)) {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Label renders a human-friendly name for d against the deck as it is now,
// e.g. "Slide 2 · text “Quarterly results”".
func Label(d deck.Deck, sel Descriptor) string {
	idx := d.SlideIndex(sel.SlideID)
	if idx < 0 {
		return fmt.Sprintf("%s %s", describeType(sel.ElementType), sel.ElementID)
	}
	slide := d.Slides[idx]
	prefix := fmt.Sprintf("Slide %d", idx+1)
	c, ok := slide.Component(sel.ElementID)
	if !ok {
		return fmt.Sprintf("%s · %s", prefix, describeType(sel.ElementType))
	}
	text := strings.Join(strings.Fields(c.Props.Text()), " ")
	if text == "" {
		return fmt.Sprintf("%s · %s", prefix, describeType(string(c.Type)))
	}
	return fmt.Sprintf("%s · %s “%s”", prefix, describeType(string(c.Type)), runewidth.Truncate(text, labelSnippetWidth, "…"))
}

// Labels resolves a label per descriptor.
func Labels(d deck.Deck, sels []Descriptor) []string {
	out := make([]string, 0, len(sels))
	for _, s := range sels {
		out = append(out, Label(d, s))
	}
	return out
}

func describeType(t string) string {
	switch deck.ComponentType(t) {
	case deck.ComponentText:
		return "text"
	case deck.ComponentBackground:
		return "background"
	case "":
		return "element"
	}
	return t
}

// Candidate is a fuzzy-match result over the deck's components.
type Candidate struct {
	Descriptor Descriptor
	Label      string
	Score      int
}

// Find fuzzy-matches query against every component label in the deck and
// returns up to limit candidates, best first.
func Find(d deck.Deck, query string, limit int) []Candidate {
	var descs []Descriptor
	var keys []string
	for _, slide := range d.Slides {
		for _, c := range slide.Components {
			desc := FromComponent(slide, c)
			descs = append(descs, desc)
			keys = append(keys, strings.ToLower(Label(d, desc)+" "+c.ID))
		}
	}
	query = strings.ToLower(strings.TrimSpace(query))
	var out []Candidate
	if query == "" {
		for i, desc := range descs {
			out = append(out, Candidate{Descriptor: desc, Label: Label(d, descs[i])})
		}
	} else {
		for _, res := range fuzzy.Find(query, keys) {
			desc := descs[res.Index]
			out = append(out, Candidate{Descriptor: desc, Label: Label(d, desc), Score: res.Score})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
