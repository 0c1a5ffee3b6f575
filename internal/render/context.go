// Package render turns EQ events into one-line progress notes for the
// non-interactive commands.
package render

import "deckpilot/internal/events"

// Context holds shared state for all EQ event renderers.
type Context struct {
	// DeckID, if set, filters events by deck.
	DeckID string
	// ActiveSub is the submission currently being worked on.
	ActiveSub string
	// EmitLines receives the rendered lines. It can be nil.
	EmitLines func([]string)
}

// Emit forwards lines to EmitLines if provided.
func (c *Context) Emit(lines ...string) {
	if c == nil || len(lines) == 0 {
		return
	}
	if c.EmitLines != nil {
		c.EmitLines(lines)
	}
}

// EventRenderer renders a single EQ EventType.
type EventRenderer interface {
	Type() events.EventType
	Handle(ctx *Context, evt events.Event)
}

// Renderers dispatches events to the renderer registered for their type.
type Renderers map[events.EventType]EventRenderer

// Default returns the renderers for every event the queues publish.
func Default() Renderers {
	r := Renderers{}
	for _, h := range []EventRenderer{
		submissionAcceptedRenderer{},
		taskStartedRenderer{},
		taskTerminalRenderer{},
		agentEventRenderer{},
		reconciledRenderer{},
	} {
		r[h.Type()] = h
	}
	return r
}

// Handle renders evt. Events of other decks and types without a renderer
// are ignored.
func (r Renderers) Handle(ctx *Context, evt events.Event) {
	if ctx == nil {
		return
	}
	if ctx.DeckID != "" && evt.DeckID != "" && evt.DeckID != ctx.DeckID {
		return
	}
	if h, ok := r[evt.Type]; ok {
		h.Handle(ctx, evt)
	}
}
