// Package draft is the Editor Draft Store: per-slide shadow copies of
// components that are edited locally before an explicit save.
package draft

import (
	"errors"
	"fmt"
	"sync"

	"deckpilot/internal/deck"
)

// ErrNoDraft is returned when a slide has no shadow copy.
var ErrNoDraft = errors.New("slide has no draft")

type slideDraft struct {
	base       deck.Slide
	components []deck.Component
	// changed is set by local user edits only; agent writes never set it.
	changed bool
}

type Store struct {
	mu     sync.RWMutex
	slides map[string]*slideDraft
	order  []string
}

func New() *Store {
	return &Store{slides: map[string]*slideDraft{}}
}

// Begin starts (or restarts) a draft for slide from its canonical state.
func (s *Store) Begin(slide deck.Slide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begin(slide)
}

// Ensure starts a draft for slide unless one already exists.
func (s *Store) Ensure(slide deck.Slide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slides[slide.ID]; ok {
		return
	}
	s.begin(slide)
}

func (s *Store) begin(slide deck.Slide) {
	clone := slide.Clone()
	if _, ok := s.slides[slide.ID]; !ok {
		s.order = append(s.order, slide.ID)
	}
	s.slides[slide.ID] = &slideDraft{base: clone, components: clone.Clone().Components}
}

// Has reports whether slideID has a draft.
func (s *Store) Has(slideID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slides[slideID]
	return ok
}

// GetDraftComponents returns a copy of the shadow components of a slide.
func (s *Store) GetDraftComponents(slideID string) ([]deck.Component, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.slides[slideID]
	if !ok {
		return nil, false
	}
	out := make([]deck.Component, len(d.components))
	for i, c := range d.components {
		out[i] = c.Clone()
	}
	return out, true
}

// HasSlideChanged reports whether the user edited the slide's draft since
// it began.
func (s *Store) HasSlideChanged(slideID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.slides[slideID]
	return ok && d.changed
}

// UpdateDraftComponent applies patch to a shadow component. It reports
// whether anything was written; an identical result is skipped.
func (s *Store) UpdateDraftComponent(slideID string, patch deck.ComponentPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.slides[slideID]
	if !ok {
		return false, ErrNoDraft
	}
	for i, c := range d.components {
		if c.ID != patch.ID {
			continue
		}
		next := deck.PatchComponent(c, patch)
		if deck.ComponentsEqual(c, next) {
			return false, nil
		}
		d.components[i] = next
		return true, nil
	}
	return false, nil
}

// AddDraftComponent inserts c, replacing a shadow component with the same id.
func (s *Store) AddDraftComponent(slideID string, c deck.Component) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.slides[slideID]
	if !ok {
		return false, ErrNoDraft
	}
	for i, existing := range d.components {
		if existing.ID != c.ID {
			continue
		}
		if deck.ComponentsEqual(existing, c) {
			return false, nil
		}
		d.components[i] = c.Clone()
		return true, nil
	}
	d.components = append(d.components, c.Clone())
	return true, nil
}

// RemoveDraftComponent drops a shadow component.
func (s *Store) RemoveDraftComponent(slideID, componentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.slides[slideID]
	if !ok {
		return false, ErrNoDraft
	}
	for i, c := range d.components {
		if c.ID == componentID {
			d.components = append(d.components[:i], d.components[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// EditComponent records a local user edit and marks the slide changed.
func (s *Store) EditComponent(slideID string, patch deck.ComponentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.slides[slideID]
	if !ok {
		return ErrNoDraft
	}
	for i, c := range d.components {
		if c.ID == patch.ID {
			d.components[i] = deck.PatchComponent(c, patch)
			d.changed = true
			return nil
		}
	}
	return fmt.Errorf("component %s not in draft of slide %s", patch.ID, slideID)
}

// Commit returns the drafted slide and forgets the draft. The caller writes
// it to the canonical store.
func (s *Store) Commit(slideID string) (deck.Slide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.slides[slideID]
	if !ok {
		return deck.Slide{}, ErrNoDraft
	}
	out := d.base.Clone()
	out.Components = d.components
	s.drop(slideID)
	return out, nil
}

// Discard forgets the draft of slideID without saving.
func (s *Store) Discard(slideID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(slideID)
}

// Reset forgets every draft.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slides = map[string]*slideDraft{}
	s.order = nil
}

// Slides lists the ids of slides with drafts in the order they began.
func (s *Store) Slides() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *Store) drop(slideID string) {
	delete(s.slides, slideID)
	for i, id := range s.order {
		if id == slideID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
