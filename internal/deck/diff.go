package deck

import (
	"errors"
	"fmt"
)

// ErrInvalidDiff is returned when a diff is structurally unusable.
var ErrInvalidDiff = errors.New("invalid deck diff")

// Diff describes an intended mutation to a deck.
type Diff struct {
	SlidesToUpdate []SlideDiff `json:"slides_to_update,omitempty"`
	SlidesToAdd    []Slide     `json:"slides_to_add,omitempty"`
	SlidesToRemove []string    `json:"slides_to_remove,omitempty"`
	DeckProperties Props       `json:"deck_properties,omitempty"`
}

// SlideDiff carries component level instructions for one slide.
type SlideDiff struct {
	SlideID            string           `json:"slide_id"`
	ComponentsToAdd    []Component      `json:"components_to_add,omitempty"`
	ComponentsToUpdate []ComponentPatch `json:"components_to_update,omitempty"`
	ComponentsToRemove []string         `json:"components_to_remove,omitempty"`
	SlideProperties    Props            `json:"slide_properties,omitempty"`
}

// ComponentPatch updates an existing component. Props are merged shallowly;
// an empty Type keeps the current one.
type ComponentPatch struct {
	ID    string        `json:"id"`
	Type  ComponentType `json:"type,omitempty"`
	Props Props         `json:"props,omitempty"`
}

// IsEmpty reports whether the diff carries no instruction at all.
func (d Diff) IsEmpty() bool {
	return len(d.SlidesToUpdate) == 0 && len(d.SlidesToAdd) == 0 &&
		len(d.SlidesToRemove) == 0 && len(d.DeckProperties) == 0
}

// HasStructural reports whether the diff adds or removes whole slides.
func (d Diff) HasStructural() bool {
	return len(d.SlidesToAdd) > 0 || len(d.SlidesToRemove) > 0
}

// TouchedSlides returns the ids of every slide the diff refers to, in order,
// without duplicates.
func (d Diff) TouchedSlides() []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, u := range d.SlidesToUpdate {
		add(u.SlideID)
	}
	for _, s := range d.SlidesToAdd {
		add(s.ID)
	}
	for _, id := range d.SlidesToRemove {
		add(id)
	}
	return out
}

// Validate checks the identifiers and component types a merge depends on.
func (d Diff) Validate() error {
	for i, u := range d.SlidesToUpdate {
		if u.SlideID == "" {
			return fmt.Errorf("%w: slides_to_update[%d] has no slide_id", ErrInvalidDiff, i)
		}
		for j, c := range u.ComponentsToAdd {
			if err := validateComponent(c); err != nil {
				return fmt.Errorf("%w: slides_to_update[%d].components_to_add[%d]: %v", ErrInvalidDiff, i, j, err)
			}
		}
		for j, p := range u.ComponentsToUpdate {
			if p.ID == "" {
				return fmt.Errorf("%w: slides_to_update[%d].components_to_update[%d] has no id", ErrInvalidDiff, i, j)
			}
			if p.Type != "" && !p.Type.Valid() {
				return fmt.Errorf("%w: unknown component type %q", ErrInvalidDiff, p.Type)
			}
		}
	}
	for i, s := range d.SlidesToAdd {
		if s.ID == "" {
			return fmt.Errorf("%w: slides_to_add[%d] has no id", ErrInvalidDiff, i)
		}
		for j, c := range s.Components {
			if err := validateComponent(c); err != nil {
				return fmt.Errorf("%w: slides_to_add[%d].components[%d]: %v", ErrInvalidDiff, i, j, err)
			}
		}
	}
	return nil
}

func validateComponent(c Component) error {
	if c.ID == "" {
		return errors.New("component has no id")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("unknown component type %q", c.Type)
	}
	return nil
}

// ApplyDiff merges diff into d and returns the new deck. The input deck is
// never modified. Updates to unknown slides are skipped and removals of
// unknown ids are no-ops. Version is left to the caller.
func ApplyDiff(d Deck, diff Diff) (Deck, error) {
	if err := diff.Validate(); err != nil {
		return d, err
	}
	out := d.Clone()

	if len(diff.SlidesToRemove) > 0 {
		drop := make(map[string]bool, len(diff.SlidesToRemove))
		for _, id := range diff.SlidesToRemove {
			drop[id] = true
		}
		kept := out.Slides[:0]
		for _, s := range out.Slides {
			if !drop[s.ID] {
				kept = append(kept, s)
			}
		}
		out.Slides = kept
	}

	for _, u := range diff.SlidesToUpdate {
		idx := out.SlideIndex(u.SlideID)
		if idx < 0 {
			continue
		}
		out.Slides[idx] = ApplySlideDiff(out.Slides[idx], u)
	}

	if len(diff.SlidesToAdd) > 0 {
		out = MergeSlides(out, diff.SlidesToAdd)
	}

	if len(diff.DeckProperties) > 0 {
		out.Properties = out.Properties.Merge(diff.DeckProperties)
		if title, ok := diff.DeckProperties["title"].(string); ok {
			out.Title = title
		}
	}
	return out, nil
}

// ApplySlideDiff applies component instructions to a single slide. Removals
// run first, then updates, then adds; an add whose id already exists replaces
// the component in place.
func ApplySlideDiff(s Slide, u SlideDiff) Slide {
	out := s.Clone()
	if len(u.ComponentsToRemove) > 0 {
		drop := make(map[string]bool, len(u.ComponentsToRemove))
		for _, id := range u.ComponentsToRemove {
			drop[id] = true
		}
		kept := out.Components[:0]
		for _, c := range out.Components {
			if !drop[c.ID] {
				kept = append(kept, c)
			}
		}
		out.Components = kept
	}
	for _, p := range u.ComponentsToUpdate {
		for i := range out.Components {
			if out.Components[i].ID != p.ID {
				continue
			}
			out.Components[i] = PatchComponent(out.Components[i], p)
			break
		}
	}
	for _, c := range u.ComponentsToAdd {
		out.Components = upsertComponent(out.Components, c.Clone())
	}
	if len(u.SlideProperties) > 0 {
		// title and status are slide fields, not free-form properties
		props := u.SlideProperties.Clone()
		if title, ok := props["title"].(string); ok {
			out.Title = title
			delete(props, "title")
		}
		if status, ok := props["status"].(string); ok {
			out.Status = SlideStatus(status)
			delete(props, "status")
		}
		if len(props) > 0 {
			out.Properties = out.Properties.Merge(props)
		}
	}
	return out
}

// PatchComponent applies p to c.
func PatchComponent(c Component, p ComponentPatch) Component {
	out := c.Clone()
	if p.Type != "" {
		out.Type = p.Type
	}
	out.Props = out.Props.Merge(p.Props)
	return out
}

func upsertComponent(list []Component, c Component) []Component {
	for i := range list {
		if list[i].ID == c.ID {
			list[i] = c
			return list
		}
	}
	return append(list, c)
}

// MergeSlides replaces slides by id and appends unknown ones, keeping deck
// order for existing slides.
func MergeSlides(d Deck, slides []Slide) Deck {
	out := d.Clone()
	for _, s := range slides {
		if s.ID == "" {
			continue
		}
		if idx := out.SlideIndex(s.ID); idx >= 0 {
			out.Slides[idx] = s.Clone()
			continue
		}
		out.Slides = append(out.Slides, s.Clone())
	}
	return out
}

// DiffFromSlides expresses a slide payload as component level instructions
// against the current deck: known slides become per-component upserts and
// removals, unknown slides become additions.
func DiffFromSlides(current Deck, slides []Slide) Diff {
	var diff Diff
	for _, s := range slides {
		existing, ok := current.FindSlide(s.ID)
		if !ok {
			diff.SlidesToAdd = append(diff.SlidesToAdd, s)
			continue
		}
		sd := SlideDiff{SlideID: s.ID}
		incoming := map[string]bool{}
		for _, c := range s.Components {
			incoming[c.ID] = true
			sd.ComponentsToAdd = append(sd.ComponentsToAdd, c)
		}
		for _, c := range existing.Components {
			if !incoming[c.ID] {
				sd.ComponentsToRemove = append(sd.ComponentsToRemove, c.ID)
			}
		}
		if s.Title != "" && s.Title != existing.Title {
			sd.SlideProperties = sd.SlideProperties.Merge(Props{"title": s.Title})
		}
		if s.Status != "" && s.Status != existing.Status {
			sd.SlideProperties = sd.SlideProperties.Merge(Props{"status": string(s.Status)})
		}
		diff.SlidesToUpdate = append(diff.SlidesToUpdate, sd)
	}
	return diff
}
