package render

import (
	"fmt"

	"deckpilot/internal/events"
)

type taskStartedRenderer struct{}

func (taskStartedRenderer) Type() events.EventType { return events.EventTaskStarted }

func (taskStartedRenderer) Handle(ctx *Context, evt events.Event) {
	ctx.ActiveSub = evt.SubmissionID
}

// taskTerminalRenderer reports failed and interrupted tasks and clears
// ActiveSub when a task ends.
type taskTerminalRenderer struct{}

func (taskTerminalRenderer) Type() events.EventType { return events.EventTaskCompleted }

func (taskTerminalRenderer) Handle(ctx *Context, evt events.Event) {
	if ctx.ActiveSub != "" && evt.SubmissionID == ctx.ActiveSub {
		ctx.ActiveSub = ""
	}
	res, ok := evt.Payload.(events.TaskResult)
	if !ok {
		return
	}
	switch res.Status {
	case "failed":
		ctx.Emit(fmt.Sprintf("✗ failed: %s", res.Error))
	case "interrupted":
		ctx.Emit("✗ interrupted")
	}
}
