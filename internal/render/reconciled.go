package render

import (
	"fmt"
	"strings"

	"deckpilot/internal/events"
	"deckpilot/internal/reconcile"
)

type reconciledRenderer struct{}

func (reconciledRenderer) Type() events.EventType { return events.EventReconciled }

func (reconciledRenderer) Handle(ctx *Context, evt events.Event) {
	r, ok := evt.Payload.(reconcile.Result)
	if !ok || r.Outcome == reconcile.OutcomeNoop {
		return
	}
	line := fmt.Sprintf("deck: %s from %s", strings.ReplaceAll(string(r.Outcome), "_", " "), r.Source)
	if r.Err != nil {
		line += ": " + r.Err.Error()
	}
	if n := len(r.SkippedSlides); n > 0 {
		line += fmt.Sprintf(" (kept local edits on %s)", plural(n, "slide"))
	}
	ctx.Emit(line)
}
