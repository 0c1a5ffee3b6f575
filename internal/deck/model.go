// Package deck holds the slide deck data model and the pure functions that
// merge diffs and slide sets into it.
package deck

import (
	"encoding/json"
	"reflect"
)

// SlideStatus is the generation status of a slide.
type SlideStatus string

const (
	StatusPending    SlideStatus = "pending"
	StatusGenerating SlideStatus = "generating"
	StatusCompleted  SlideStatus = "completed"
)

// ComponentType tags the shape of a component's property bag.
type ComponentType string

const (
	ComponentText       ComponentType = "text"
	ComponentShape      ComponentType = "shape"
	ComponentImage      ComponentType = "image"
	ComponentChart      ComponentType = "chart"
	ComponentTable      ComponentType = "table"
	ComponentIcon       ComponentType = "icon"
	ComponentVideo      ComponentType = "video"
	ComponentBackground ComponentType = "background"
	ComponentCustom     ComponentType = "custom"
)

// ComponentTypes lists the closed component vocabulary.
var ComponentTypes = []ComponentType{
	ComponentText,
	ComponentShape,
	ComponentImage,
	ComponentChart,
	ComponentTable,
	ComponentIcon,
	ComponentVideo,
	ComponentBackground,
	ComponentCustom,
}

// Valid reports whether t belongs to the component vocabulary.
func (t ComponentType) Valid() bool {
	for _, known := range ComponentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Props is a component, slide or deck property bag.
type Props map[string]any

// Clone returns a shallow copy of p.
func (p Props) Clone() Props {
	if p == nil {
		return nil
	}
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns p overlaid with patch. Keys in patch win.
func (p Props) Merge(patch Props) Props {
	if len(patch) == 0 {
		return p.Clone()
	}
	out := make(Props, len(p)+len(patch))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Text returns the "text" property when it is a string.
func (p Props) Text() string {
	if p == nil {
		return ""
	}
	if s, ok := p["text"].(string); ok {
		return s
	}
	return ""
}

type Component struct {
	ID    string        `json:"id"`
	Type  ComponentType `json:"type"`
	Props Props         `json:"props,omitempty"`
}

// Clone copies the component and its property bag.
func (c Component) Clone() Component {
	c.Props = c.Props.Clone()
	return c
}

type Slide struct {
	ID         string      `json:"id"`
	Title      string      `json:"title,omitempty"`
	Status     SlideStatus `json:"status,omitempty"`
	Components []Component `json:"components"`
	Properties Props       `json:"properties,omitempty"`
}

// Clone copies the slide, its components and properties.
func (s Slide) Clone() Slide {
	comps := make([]Component, len(s.Components))
	for i, c := range s.Components {
		comps[i] = c.Clone()
	}
	s.Components = comps
	s.Properties = s.Properties.Clone()
	return s
}

// Component returns the component with the given id.
func (s Slide) Component(id string) (Component, bool) {
	for _, c := range s.Components {
		if c.ID == id {
			return c, true
		}
	}
	return Component{}, false
}

// Deck is an ordered slide sequence. Version grows by one on every accepted
// mutation and is only an ordering aid.
type Deck struct {
	ID         string  `json:"id"`
	Title      string  `json:"title,omitempty"`
	Slides     []Slide `json:"slides"`
	Properties Props   `json:"properties,omitempty"`
	Version    int64   `json:"version"`
}

// Clone returns a deep enough copy for callers to mutate freely.
func (d Deck) Clone() Deck {
	slides := make([]Slide, len(d.Slides))
	for i, s := range d.Slides {
		slides[i] = s.Clone()
	}
	d.Slides = slides
	d.Properties = d.Properties.Clone()
	return d
}

// FindSlide returns the slide with the given id.
func (d Deck) FindSlide(id string) (Slide, bool) {
	if i := d.SlideIndex(id); i >= 0 {
		return d.Slides[i], true
	}
	return Slide{}, false
}

// SlideIndex returns the position of the slide, or -1.
func (d Deck) SlideIndex(id string) int {
	for i, s := range d.Slides {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// AllCompleted reports whether the deck has slides and every one of them is
// completed.
func AllCompleted(d Deck) bool {
	if len(d.Slides) == 0 {
		return false
	}
	for _, s := range d.Slides {
		if s.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// ComponentsEqual compares the type tag and the serialized property bag.
func ComponentsEqual(a, b Component) bool {
	if a.ID != b.ID || a.Type != b.Type {
		return false
	}
	ab, errA := json.Marshal(a.Props)
	bb, errB := json.Marshal(b.Props)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a.Props, b.Props)
	}
	return string(ab) == string(bb)
}

// SlidesEqual compares slides component by component.
func SlidesEqual(a, b Slide) bool {
	if a.ID != b.ID || a.Title != b.Title || a.Status != b.Status || len(a.Components) != len(b.Components) {
		return false
	}
	for i := range a.Components {
		if !ComponentsEqual(a.Components[i], b.Components[i]) {
			return false
		}
	}
	return reflect.DeepEqual(a.Properties, b.Properties)
}
