package render

import (
	"fmt"
	"strings"

	"deckpilot/internal/events"
	"deckpilot/internal/protocol"
)

// agentEventRenderer summarizes agent activity. Message text is left to
// the transcript.
type agentEventRenderer struct{}

func (agentEventRenderer) Type() events.EventType { return events.EventAgent }

func (agentEventRenderer) Handle(ctx *Context, evt events.Event) {
	switch ev := evt.Payload.(type) {
	case protocol.ToolEvent:
		line := fmt.Sprintf("⚙ %s %s", ev.Tool, ev.Status)
		if msg := strings.TrimSpace(ev.Message); msg != "" {
			line += ": " + snippet(msg)
		}
		ctx.Emit(line)
	case protocol.ProgressUpdate:
		parts := []string{"⋯"}
		if ev.Phase != "" {
			parts = append(parts, ev.Phase)
		}
		if ev.HasPercent {
			parts = append(parts, fmt.Sprintf("%.0f%%", ev.Percent))
		}
		if msg := strings.TrimSpace(ev.Message); msg != "" {
			parts = append(parts, snippet(msg))
		}
		ctx.Emit(strings.Join(parts, " "))
	case protocol.PlanUpdate:
		ctx.Emit("• plan: " + plural(len(ev.Plan), "step"))
	case protocol.EditProposed:
		ctx.Emit(strings.TrimSpace("✎ proposed " + ev.Edit.ID + " " + snippet(ev.Edit.Summary)))
	case protocol.EditApplied:
		ctx.Emit("✓ applied " + ev.EditID)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
