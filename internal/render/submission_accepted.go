package render

import (
	"strings"

	"deckpilot/internal/events"

	"github.com/mattn/go-runewidth"
)

const snippetWidth = 60

type submissionAcceptedRenderer struct{}

func (submissionAcceptedRenderer) Type() events.EventType { return events.EventSubmissionAccepted }

func (submissionAcceptedRenderer) Handle(ctx *Context, evt events.Event) {
	op, ok := evt.Payload.(events.Operation)
	if !ok {
		return
	}
	switch op.Kind {
	case events.OperationSendMessage:
		if op.Send == nil {
			return
		}
		line := "→ send: " + snippet(op.Send.Text)
		if n := len(op.Send.Selections); n > 0 {
			line += " (" + plural(n, "element") + ")"
		}
		ctx.Emit(line)
	case events.OperationUpload:
		if op.Upload != nil {
			ctx.Emit("→ upload: " + op.Upload.Path)
		}
	case events.OperationSetSlide:
		if op.SetSlide != nil {
			ctx.Emit("→ slide: " + op.SetSlide.SlideID)
		}
	case events.OperationReload:
		ctx.Emit("→ reload")
	}
}

func snippet(text string) string {
	return runewidth.Truncate(strings.Join(strings.Fields(text), " "), snippetWidth, "…")
}
