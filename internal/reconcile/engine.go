// Package reconcile decides, for every incoming diff or slide set, whether
// it lands in the canonical deck store, in the editor drafts, or nowhere.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"deckpilot/internal/deck"
	"deckpilot/internal/deckstore"
	"deckpilot/internal/logger"
	"deckpilot/internal/mode"
)

// Outcome is what happened to one incoming update.
type Outcome string

const (
	OutcomeNoop               Outcome = "noop"
	OutcomeApplied            Outcome = "applied"
	OutcomeDrafted            Outcome = "drafted"
	OutcomeReloaded           Outcome = "reloaded"
	OutcomeDroppedUnmounting  Outcome = "dropped_unmounting"
	OutcomeDroppedCompleted   Outcome = "dropped_completed"
	OutcomeDroppedInteraction Outcome = "dropped_interaction"
	OutcomeFailed             Outcome = "failed"
)

// Dropped reports whether a guard discarded the update.
func (o Outcome) Dropped() bool {
	switch o {
	case OutcomeDroppedUnmounting, OutcomeDroppedCompleted, OutcomeDroppedInteraction:
		return true
	}
	return false
}

// Landed reports whether the update was written somewhere.
func (o Outcome) Landed() bool {
	return o == OutcomeApplied || o == OutcomeDrafted || o == OutcomeReloaded
}

// Source names the payload an update was built from.
type Source string

const (
	SourceDiff          Source = "diff"
	SourceSlides        Source = "slides"
	SourceCachedEdit    Source = "cached_edit"
	SourceCachedMessage Source = "cached_message"
	SourceReload        Source = "reload"
)

type Result struct {
	Outcome Outcome
	Source  Source
	// SkippedSlides lists slides left alone because they carry unsaved
	// local draft changes.
	SkippedSlides []string
	Err           error
}

// DeckStore is the canonical store as seen by the engine.
type DeckStore interface {
	Snapshot() deck.Deck
	UpdateDeckData(ctx context.Context, fn func(deck.Deck) (deck.Deck, error), opts deckstore.UpdateOptions) (deck.Deck, error)
	LoadDeck(ctx context.Context) (deck.Deck, error)
}

// DraftStore is the editor draft store as seen by the engine.
type DraftStore interface {
	Ensure(slide deck.Slide)
	HasSlideChanged(slideID string) bool
	UpdateDraftComponent(slideID string, patch deck.ComponentPatch) (bool, error)
	AddDraftComponent(slideID string, c deck.Component) (bool, error)
	RemoveDraftComponent(slideID, componentID string) (bool, error)
}

type Options struct {
	Store  DeckStore
	Drafts DraftStore
	Mode   *mode.Mode
	Log    *logger.LogEntry
}

// Engine serializes every entry point; callers may use it from any
// goroutine but updates are processed one at a time in call order.
type Engine struct {
	store  DeckStore
	drafts DraftStore
	mode   *mode.Mode
	log    *logger.LogEntry

	mu    sync.Mutex
	edits *editCache
}

func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = logger.Named("reconcile")
	}
	m := opts.Mode
	if m == nil {
		m = mode.New()
	}
	return &Engine{
		store:  opts.Store,
		drafts: opts.Drafts,
		mode:   m,
		log:    log,
		edits:  newEditCache(),
	}
}

// ApplyDiff merges an incoming diff.
func (e *Engine) ApplyDiff(ctx context.Context, diff deck.Diff) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.report(e.applyDiff(ctx, diff, SourceDiff), "")
}

// ApplySlides merges an incoming normalized slide set.
func (e *Engine) ApplySlides(ctx context.Context, slides []deck.Slide) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.report(e.applySlides(ctx, slides, SourceSlides), "")
}

func (e *Engine) applyDiff(ctx context.Context, diff deck.Diff, src Source) Result {
	if r, dropped := e.guard(src); dropped {
		return r
	}
	if err := diff.Validate(); err != nil {
		return Result{Outcome: OutcomeFailed, Source: src, Err: err}
	}
	if diff.IsEmpty() {
		return Result{Outcome: OutcomeNoop, Source: src}
	}
	if e.mode.Editing() && e.drafts != nil {
		return e.applyDrafts(ctx, diff, src)
	}
	return e.applyDirect(ctx, src, func(d deck.Deck) (deck.Deck, error) {
		return deck.ApplyDiff(d, diff)
	})
}

func (e *Engine) applySlides(ctx context.Context, slides []deck.Slide, src Source) Result {
	if r, dropped := e.guard(src); dropped {
		return r
	}
	if len(slides) == 0 {
		return Result{Outcome: OutcomeNoop, Source: src}
	}
	if e.mode.Editing() && e.drafts != nil {
		diff := deck.DiffFromSlides(e.store.Snapshot(), slides)
		return e.applyDrafts(ctx, diff, src)
	}
	return e.applyDirect(ctx, src, func(d deck.Deck) (deck.Deck, error) {
		return deck.MergeSlides(d, slides), nil
	})
}

// guard runs the checks every update passes, in order: unmounting,
// completed deck, active interaction.
func (e *Engine) guard(src Source) (Result, bool) {
	if e.mode.Unmounting() {
		return Result{Outcome: OutcomeDroppedUnmounting, Source: src}, true
	}
	if deck.AllCompleted(e.store.Snapshot()) {
		e.mode.SetGenerating(false)
		return Result{Outcome: OutcomeDroppedCompleted, Source: src}, true
	}
	if e.mode.Interacting() {
		return Result{Outcome: OutcomeDroppedInteraction, Source: src}, true
	}
	return Result{}, false
}

func (e *Engine) applyDirect(ctx context.Context, src Source, merge func(deck.Deck) (deck.Deck, error)) Result {
	next, err := e.store.UpdateDeckData(ctx, func(d deck.Deck) (out deck.Deck, err error) {
		err = safely(func() error {
			out, err = merge(d)
			return err
		})
		return out, err
	}, deckstore.UpdateOptions{SkipBackendEcho: true})
	if err != nil {
		return Result{Outcome: OutcomeFailed, Source: src, Err: err}
	}
	if deck.AllCompleted(next) {
		e.mode.SetGenerating(false)
	}
	return Result{Outcome: OutcomeApplied, Source: src}
}

// applyDrafts routes component instructions to the drafts of slides without
// local changes. Slide additions, removals, slide fields and deck
// properties do not conflict with drafts and go to the canonical store as a
// separate write.
func (e *Engine) applyDrafts(ctx context.Context, diff deck.Diff, src Source) Result {
	current := e.store.Snapshot()
	res := Result{Outcome: OutcomeNoop, Source: src}
	canonical := deck.Diff{
		SlidesToAdd:    diff.SlidesToAdd,
		SlidesToRemove: diff.SlidesToRemove,
		DeckProperties: diff.DeckProperties,
	}

	for _, u := range diff.SlidesToUpdate {
		if e.drafts.HasSlideChanged(u.SlideID) {
			res.SkippedSlides = append(res.SkippedSlides, u.SlideID)
			continue
		}
		slide, ok := current.FindSlide(u.SlideID)
		if !ok {
			continue
		}
		if len(u.SlideProperties) > 0 {
			canonical.SlidesToUpdate = append(canonical.SlidesToUpdate, deck.SlideDiff{
				SlideID:         u.SlideID,
				SlideProperties: u.SlideProperties,
			})
		}
		e.drafts.Ensure(slide)
		wrote, err := e.writeDraft(u)
		if err != nil {
			res.Outcome, res.Err = OutcomeFailed, err
			return res
		}
		if wrote {
			res.Outcome = OutcomeDrafted
		}
	}

	if !canonical.IsEmpty() {
		direct := e.applyDirect(ctx, src, func(d deck.Deck) (deck.Deck, error) {
			return deck.ApplyDiff(d, canonical)
		})
		if direct.Outcome == OutcomeFailed {
			res.Outcome, res.Err = OutcomeFailed, direct.Err
			return res
		}
		res.Outcome = OutcomeDrafted
	}
	return res
}

func (e *Engine) writeDraft(u deck.SlideDiff) (wrote bool, err error) {
	mark := func(changed bool, werr error) {
		if werr != nil && err == nil {
			err = werr
		}
		wrote = wrote || changed
	}
	err = safely(func() error {
		for _, id := range u.ComponentsToRemove {
			mark(e.drafts.RemoveDraftComponent(u.SlideID, id))
		}
		for _, p := range u.ComponentsToUpdate {
			mark(e.drafts.UpdateDraftComponent(u.SlideID, p))
		}
		for _, c := range u.ComponentsToAdd {
			mark(e.drafts.AddDraftComponent(u.SlideID, c))
		}
		return err
	})
	return wrote, err
}

func (e *Engine) report(r Result, editID string) Result {
	entry := e.log.WithField("outcome", string(r.Outcome)).WithField("source", string(r.Source))
	if editID != "" {
		entry = entry.WithField("edit_id", editID)
	}
	if len(r.SkippedSlides) > 0 {
		entry = entry.WithField("skipped_slides", r.SkippedSlides)
	}
	switch {
	case r.Err != nil:
		entry.WithError(r.Err).Warn("deck update failed")
	case r.Outcome.Dropped():
		entry.Debug("deck update dropped")
	default:
		entry.Debug("deck update processed")
	}
	return r
}

// safely runs fn and turns a panic into an error so one bad merge does not
// take down the update loop.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("merge panicked: %v", r)
		}
	}()
	return fn()
}
