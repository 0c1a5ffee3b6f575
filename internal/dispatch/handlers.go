package dispatch

import (
	"context"
	"strings"

	"deckpilot/internal/deck"
	"deckpilot/internal/events"
	"deckpilot/internal/logger"
	"deckpilot/internal/protocol"
	"deckpilot/internal/reconcile"
	"deckpilot/internal/transcript"
)

func (d *Dispatcher) OnMessageDelta(_ context.Context, ev protocol.MessageDelta) {
	d.chat.AppendDelta(ev.MessageID, ev.Delta)
}

func (d *Dispatcher) OnMessageComplete(_ context.Context, ev protocol.MessageComplete) {
	d.chat.CompleteMessage(ev.MessageID, ev.Text)
}

func (d *Dispatcher) OnPlanUpdate(_ context.Context, ev protocol.PlanUpdate) {
	d.chat.StartPlan(ev.Plan)
}

func (d *Dispatcher) OnTool(_ context.Context, ev protocol.ToolEvent) {
	status := ev.Status
	if status == "" {
		status = ev.Phase
	}
	d.chat.AddTool(ev.Tool, status, ev.Message)
}

func (d *Dispatcher) OnSelectionUsing(_ context.Context, ev protocol.SelectionUsing) {
	d.chat.AddSelection(ev.Label, ev.Selection, ev.ElementID)
}

// OnEditProposed describes the proposal against the deck as it was before
// the optimistic apply.
func (d *Dispatcher) OnEditProposed(ctx context.Context, ev protocol.EditProposed) {
	var changes []deck.TextChange
	if d.deck != nil {
		changes = deck.TextChanges(d.deck.Snapshot(), ev.Edit.Diff)
	}
	r := d.engine.Propose(ctx, ev.Edit, ev.MessageID)
	d.chat.AddProposal(ev.Edit.ID, ev.MessageID, ev.Edit.Summary, changes)
	d.reconciled(ctx, r)
}

func (d *Dispatcher) OnPreviewDiff(ctx context.Context, ev protocol.PreviewDiff) {
	d.reconciled(ctx, d.engine.Preview(ctx, ev))
}

func (d *Dispatcher) OnEditApplied(ctx context.Context, ev protocol.EditApplied) {
	r := d.engine.Applied(ctx, ev)
	d.chat.MarkApplied(ev.EditID, ev.MessageID, ev.Summary)
	d.reconciled(ctx, r)
}

// OnProgress keeps the generating flag in step with the progress stream.
func (d *Dispatcher) OnProgress(_ context.Context, ev protocol.ProgressUpdate) {
	done := transcript.IsCompletionSignal(ev.Percent, ev.HasPercent, ev.Phase, ev.Message)
	d.mode.SetGenerating(!done)
	d.chat.UpsertProgress(ev.Phase, ev.Percent, ev.HasPercent, ev.Message)
}

func (d *Dispatcher) reconciled(ctx context.Context, r reconcile.Result) {
	if r.Outcome == reconcile.OutcomeFailed {
		d.log.WithFields(logger.Fields{
			"deck_id": d.deckID,
			"outcome": r.Outcome,
			"source":  r.Source,
		}).WithError(r.Err).Warn("update not merged")
	}
	if len(r.SkippedSlides) > 0 {
		d.log.WithField("skipped_slides", strings.Join(r.SkippedSlides, ",")).Info("kept local draft edits")
	}
	d.publish(ctx, events.EventReconciled, r)
}
