package render

import (
	"errors"
	"reflect"
	"testing"

	"deckpilot/internal/events"
	"deckpilot/internal/protocol"
	"deckpilot/internal/reconcile"
	"deckpilot/internal/selection"
)

func collect(deckID string) (*Context, *[]string) {
	var lines []string
	return &Context{DeckID: deckID, EmitLines: func(l []string) { lines = append(lines, l...) }}, &lines
}

func TestDefaultRenderersDescribeTaskLifecycle(t *testing.T) {
	ctx, lines := collect("deck-1")
	r := Default()

	r.Handle(ctx, events.Event{Type: events.EventSubmissionAccepted, SubmissionID: "a", DeckID: "deck-1", Payload: events.Operation{
		Kind: events.OperationSendMessage,
		Send: &events.SendMessageOperation{Text: "make the   title\nbigger", Selections: []selection.Descriptor{{ElementID: "t1"}}},
	}})
	r.Handle(ctx, events.Event{Type: events.EventTaskStarted, SubmissionID: "a", DeckID: "deck-1"})
	if ctx.ActiveSub != "a" {
		t.Fatalf("ActiveSub = %q, want a", ctx.ActiveSub)
	}
	r.Handle(ctx, events.Event{Type: events.EventTaskCompleted, SubmissionID: "a", DeckID: "deck-1", Payload: events.TaskResult{Status: "failed", Error: "boom"}})
	if ctx.ActiveSub != "" {
		t.Fatalf("ActiveSub should clear on completion")
	}

	want := []string{"→ send: make the title bigger (1 element)", "✗ failed: boom"}
	if !reflect.DeepEqual(*lines, want) {
		t.Fatalf("lines = %q, want %q", *lines, want)
	}
}

func TestAgentAndReconcileEvents(t *testing.T) {
	ctx, lines := collect("")
	r := Default()
	for _, payload := range []any{
		protocol.ToolEvent{Tool: "apply_theme", Status: "completed"},
		protocol.ProgressUpdate{Phase: "slides", Percent: 40, HasPercent: true},
		protocol.PlanUpdate{Plan: []protocol.PlanStep{{Title: "Outline"}, {Title: "Draft"}}},
		protocol.MessageDelta{Delta: "ignored"},
	} {
		r.Handle(ctx, events.Event{Type: events.EventAgent, Payload: payload})
	}
	r.Handle(ctx, events.Event{Type: events.EventReconciled, Payload: reconcile.Result{Outcome: reconcile.OutcomeNoop}})
	r.Handle(ctx, events.Event{Type: events.EventReconciled, Payload: reconcile.Result{
		Outcome: reconcile.OutcomeDrafted, Source: reconcile.SourceDiff, SkippedSlides: []string{"s2"},
	}})
	r.Handle(ctx, events.Event{Type: events.EventReconciled, Payload: reconcile.Result{
		Outcome: reconcile.OutcomeFailed, Source: reconcile.SourceSlides, Err: errors.New("bad diff"),
	}})

	want := []string{
		"⚙ apply_theme completed",
		"⋯ slides 40%",
		"• plan: 2 steps",
		"deck: drafted from diff (kept local edits on 1 slide)",
		"deck: failed from slides: bad diff",
	}
	if !reflect.DeepEqual(*lines, want) {
		t.Fatalf("lines = %q, want %q", *lines, want)
	}
}

func TestHandleFiltersOtherDecks(t *testing.T) {
	ctx, lines := collect("deck-1")
	Default().Handle(ctx, events.Event{Type: events.EventSubmissionAccepted, DeckID: "deck-2", Payload: events.Operation{Kind: events.OperationReload}})
	Default().Handle(ctx, events.Event{Type: events.EventSubmissionAccepted, DeckID: "deck-1", Payload: events.Operation{Kind: events.OperationReload}})
	if len(*lines) != 1 || (*lines)[0] != "→ reload" {
		t.Fatalf("lines = %q", *lines)
	}
}
