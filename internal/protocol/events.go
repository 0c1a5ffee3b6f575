// Package protocol defines the wire vocabulary spoken with the agent
// service: the closed set of inbound events and the outbound requests.
package protocol

import (
	"context"
	"strings"

	"deckpilot/internal/deck"
	"deckpilot/internal/selection"
)

// EventType is the wire discriminator of an inbound event.
type EventType string

const (
	TypeMessageDelta    EventType = "assistant.message.delta"
	TypeMessageComplete EventType = "assistant.message.complete"
	TypePlanUpdate      EventType = "agent.plan.update"
	TypeSelectionUsing  EventType = "agent.selection.using"
	TypeSelection       EventType = "agent.selection"
	TypeEditProposed    EventType = "deck.edit.proposed"
	TypePreviewDiff     EventType = "deck.preview.diff"
	TypeEditApplied     EventType = "deck.edit.applied"
	TypeProgressUpdate  EventType = "progress.update"

	// ToolTypePrefix prefixes every tool lifecycle event, e.g.
	// "agent.tool.started".
	ToolTypePrefix = "agent.tool."
)

// IsTool reports whether t is a tool lifecycle event.
func (t EventType) IsTool() bool {
	return strings.HasPrefix(string(t), ToolTypePrefix)
}

// Header is common to every event.
type Header struct {
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

func (h Header) Meta() Header { return h }

// Event is one inbound agent event. The set of implementations is closed;
// consumers handle it through Handler.
type Event interface {
	Meta() Header
	accept(ctx context.Context, h Handler)
}

// Handler has one method per event. Adding an event type adds a method
// here, so every consumer fails to compile until it handles it.
type Handler interface {
	OnMessageDelta(ctx context.Context, ev MessageDelta)
	OnMessageComplete(ctx context.Context, ev MessageComplete)
	OnPlanUpdate(ctx context.Context, ev PlanUpdate)
	OnTool(ctx context.Context, ev ToolEvent)
	OnSelectionUsing(ctx context.Context, ev SelectionUsing)
	OnEditProposed(ctx context.Context, ev EditProposed)
	OnPreviewDiff(ctx context.Context, ev PreviewDiff)
	OnEditApplied(ctx context.Context, ev EditApplied)
	OnProgress(ctx context.Context, ev ProgressUpdate)
}

// Dispatch routes ev to the matching Handler method.
func Dispatch(ctx context.Context, ev Event, h Handler) {
	if ev == nil || h == nil {
		return
	}
	ev.accept(ctx, h)
}

type MessageDelta struct {
	Header
	Delta string `json:"delta"`
}

type MessageComplete struct {
	Header
	// Text is the full message when the service sends it; it is optional.
	Text string `json:"text,omitempty"`
}

// PlanStep is one step of an agent plan.
type PlanStep struct {
	Title  string `json:"title"`
	Status string `json:"status,omitempty"`
}

type PlanUpdate struct {
	Header
	Plan []PlanStep `json:"plan"`
}

// ToolEvent covers every agent.tool.* event. Phase is the type suffix.
type ToolEvent struct {
	Header
	Phase   string `json:"-"`
	Tool    string `json:"tool"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SelectionUsing announces that the agent works on a selected element.
// Either Label or Selection (or just an element id) is set.
type SelectionUsing struct {
	Header
	Label     string                `json:"label,omitempty"`
	Selection *selection.Descriptor `json:"selection,omitempty"`
	ElementID string                `json:"elementId,omitempty"`
}

// Edit is a server-issued proposal.
type Edit struct {
	ID      string    `json:"id"`
	Diff    deck.Diff `json:"diff"`
	Summary string    `json:"summary,omitempty"`
}

type EditProposed struct {
	Header
	Edit Edit `json:"edit"`
}

type PreviewDiff struct {
	Header
	EditID string       `json:"editId,omitempty"`
	Diff   *deck.Diff   `json:"diff,omitempty"`
	Slides []deck.Slide `json:"slides,omitempty"`
}

type EditApplied struct {
	Header
	EditID       string       `json:"editId,omitempty"`
	Slides       []deck.Slide `json:"slides,omitempty"`
	DeckRevision string       `json:"deckRevision,omitempty"`
	Summary      string       `json:"summary,omitempty"`
}

type ProgressUpdate struct {
	Header
	Phase   string  `json:"phase"`
	Percent float64 `json:"percent"`
	// HasPercent distinguishes a missing percent from 0.
	HasPercent bool   `json:"-"`
	Message    string `json:"message,omitempty"`
}

func (e MessageDelta) accept(ctx context.Context, h Handler)    { h.OnMessageDelta(ctx, e) }
func (e MessageComplete) accept(ctx context.Context, h Handler) { h.OnMessageComplete(ctx, e) }
func (e PlanUpdate) accept(ctx context.Context, h Handler)      { h.OnPlanUpdate(ctx, e) }
func (e ToolEvent) accept(ctx context.Context, h Handler)       { h.OnTool(ctx, e) }
func (e SelectionUsing) accept(ctx context.Context, h Handler)  { h.OnSelectionUsing(ctx, e) }
func (e EditProposed) accept(ctx context.Context, h Handler)    { h.OnEditProposed(ctx, e) }
func (e PreviewDiff) accept(ctx context.Context, h Handler)     { h.OnPreviewDiff(ctx, e) }
func (e EditApplied) accept(ctx context.Context, h Handler)     { h.OnEditApplied(ctx, e) }
func (e ProgressUpdate) accept(ctx context.Context, h Handler)  { h.OnProgress(ctx, e) }
