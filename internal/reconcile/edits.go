package reconcile

import (
	"context"

	"deckpilot/internal/deck"
	"deckpilot/internal/protocol"
)

// EditState is the lifecycle position of a server-issued edit.
type EditState string

const (
	EditProposed  EditState = "proposed"
	EditPreviewed EditState = "previewed"
	EditSkipped   EditState = "skipped"
	EditApplied   EditState = "applied"
)

// EditRecord is the cached view of one edit.
type EditRecord struct {
	ID        string
	MessageID string
	Summary   string
	Diff      deck.Diff
	State     EditState
	// Last is the result of the most recent attempt to apply the diff.
	Last Result
}

// editCache keys cached diffs by edit id and, redundantly, by the chat
// message that carried the proposal.
type editCache struct {
	byID      map[string]*EditRecord
	byMessage map[string]*EditRecord
}

func newEditCache() *editCache {
	return &editCache{byID: map[string]*EditRecord{}, byMessage: map[string]*EditRecord{}}
}

func (c *editCache) put(rec *EditRecord) {
	if rec.ID != "" {
		c.byID[rec.ID] = rec
	}
	if rec.MessageID != "" {
		c.byMessage[rec.MessageID] = rec
	}
}

func (c *editCache) lookup(editID, messageID string) (*EditRecord, Source) {
	if rec, ok := c.byID[editID]; ok && editID != "" {
		return rec, SourceCachedEdit
	}
	if rec, ok := c.byMessage[messageID]; ok && messageID != "" {
		return rec, SourceCachedMessage
	}
	return nil, ""
}

// consume drops the cached diff; the record stays readable by id.
func (c *editCache) consume(rec *EditRecord) {
	if rec.MessageID != "" && c.byMessage[rec.MessageID] == rec {
		delete(c.byMessage, rec.MessageID)
	}
	rec.Diff = deck.Diff{}
}

// Propose caches the edit and applies its diff optimistically.
func (e *Engine) Propose(ctx context.Context, edit protocol.Edit, messageID string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := &EditRecord{
		ID:        edit.ID,
		MessageID: messageID,
		Summary:   edit.Summary,
		Diff:      edit.Diff,
		State:     EditProposed,
	}
	e.edits.put(rec)

	r := e.applyDiff(ctx, edit.Diff, SourceDiff)
	e.transition(rec, r)
	return e.report(r, edit.ID)
}

// Preview merges a preview payload. A diff wins over slides; a bare preview
// for a known edit replays the cached diff.
func (e *Engine) Preview(ctx context.Context, ev protocol.PreviewDiff) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, cachedSrc := e.edits.lookup(ev.EditID, ev.MessageID)
	var r Result
	switch {
	case ev.Diff != nil:
		r = e.applyDiff(ctx, *ev.Diff, SourceDiff)
	case len(ev.Slides) > 0:
		r = e.applySlides(ctx, ev.Slides, SourceSlides)
	case rec != nil && !rec.Diff.IsEmpty():
		r = e.applyDiff(ctx, rec.Diff, cachedSrc)
	default:
		r = Result{Outcome: OutcomeNoop, Source: SourceDiff}
	}
	if rec != nil && rec.State != EditApplied {
		e.transition(rec, r)
	}
	return e.report(r, ev.EditID)
}

// Applied handles the server's confirmation of an edit. The cached diff is
// replayed even if the optimistic apply succeeded. Payloads are tried in
// one priority order: diff cached by edit id, diff cached by message id,
// slides carried by the event, then a full reload. A failed cached diff
// falls through to the slides; a reload only happens when nothing else
// was available.
func (e *Engine) Applied(ctx context.Context, ev protocol.EditApplied) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, src := e.edits.lookup(ev.EditID, ev.MessageID)
	if rec != nil && rec.State == EditApplied {
		// duplicate confirmation
		return e.report(Result{Outcome: OutcomeNoop, Source: src}, ev.EditID)
	}
	var r Result
	tried := false
	if rec != nil && !rec.Diff.IsEmpty() {
		r = e.applyDiff(ctx, rec.Diff, src)
		tried = true
	}
	if (!tried || r.Outcome == OutcomeFailed) && len(ev.Slides) > 0 {
		if tried {
			e.report(r, ev.EditID)
		}
		r = e.applySlides(ctx, ev.Slides, SourceSlides)
		tried = true
	}
	if !tried {
		r = e.reload(ctx)
	}

	if rec != nil {
		rec.State = EditApplied
		rec.Last = r
		e.edits.consume(rec)
	}
	return e.report(r, ev.EditID)
}

// Reload refetches the deck from its source, subject to the same guards as
// every other update.
func (e *Engine) Reload(ctx context.Context) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.report(e.reload(ctx), "")
}

func (e *Engine) reload(ctx context.Context) Result {
	if r, dropped := e.guard(SourceReload); dropped {
		return r
	}
	if _, err := e.store.LoadDeck(ctx); err != nil {
		return Result{Outcome: OutcomeFailed, Source: SourceReload, Err: err}
	}
	return Result{Outcome: OutcomeReloaded, Source: SourceReload}
}

func (e *Engine) transition(rec *EditRecord, r Result) {
	rec.Last = r
	if r.Outcome.Landed() || (r.Outcome == OutcomeNoop && len(r.SkippedSlides) == 0) {
		rec.State = EditPreviewed
		return
	}
	rec.State = EditSkipped
}

// Edit returns the record of an edit by id.
func (e *Engine) Edit(editID string) (EditRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.edits.byID[editID]
	if !ok {
		return EditRecord{}, false
	}
	return *rec, true
}

// Reset forgets every cached edit, e.g. when switching decks.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edits = newEditCache()
}
