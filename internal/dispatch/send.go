package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deckpilot/internal/agent"
	"deckpilot/internal/logger"
	"deckpilot/internal/protocol"
	"deckpilot/internal/selection"
	"deckpilot/internal/upload"
)

// Send records the user turn and delivers it: through the agent session
// when one can be established, otherwise through the legacy endpoint.
// Attachments uploaded since the last send go along with it. Failures are
// shown as a system row and returned tagged with their stage.
func (d *Dispatcher) Send(ctx context.Context, text string, sels []selection.Descriptor, atts []protocol.Attachment) error {
	text = strings.TrimSpace(text)
	atts = append(d.takePending(), atts...)
	if text == "" && len(atts) == 0 {
		return nil
	}
	history := d.chat.History(d.limit)
	d.chat.AppendUser(text, sels)
	d.chat.ResetGeneration()

	slideID := d.ActiveSlide()
	err := d.sendSession(ctx, slideID, text, sels, atts)
	switch {
	case errors.Is(err, agent.ErrNotConfigured):
		err = d.sendLegacy(ctx, slideID, text, sels, atts, history)
	case err != nil && StageOf(err) == StageSession && d.legacy != nil:
		d.log.WithFields(logger.Fields{"deck_id": d.deckID, "slide_id": slideID}).WithError(err).Warn("session unavailable, using legacy endpoint")
		err = d.sendLegacy(ctx, slideID, text, sels, atts, history)
	}
	if err == nil {
		return nil
	}

	fields := logger.Fields{"deck_id": d.deckID, "slide_id": slideID, "stage": StageOf(err)}
	if errors.Is(err, agent.ErrNotConfigured) {
		d.log.WithFields(fields).Warn("no agent backend configured")
		d.chat.AddSystem(MsgNotConfigured)
		return err
	}
	d.log.WithFields(fields).WithError(err).Error("send failed")
	d.chat.AddSystem(MsgSendFailed)
	return err
}

func (d *Dispatcher) sendSession(ctx context.Context, slideID, text string, sels []selection.Descriptor, atts []protocol.Attachment) error {
	if d.agent == nil || !d.agent.Configured() {
		return agent.ErrNotConfigured
	}
	if _, err := d.agent.EnsureSession(ctx, d.deckID, slideID); err != nil {
		if errors.Is(err, agent.ErrNotConfigured) {
			return err
		}
		return stageError{Stage: StageSession, Err: err}
	}
	var msgCtx protocol.MessageContext
	if slideID != "" {
		msgCtx.SlideID = slideID
		msgCtx.PreferredInsertAfterSlideID = slideID
		if d.deck != nil {
			idx := d.currentSlideIndex(d.deck.Snapshot(), slideID)
			msgCtx.CurrentSlideIndex = &idx
		}
	}
	req := protocol.NewMessageRequest(text, sels, atts, msgCtx)
	if _, err := d.agent.SendMessage(ctx, req); err != nil {
		return stageError{Stage: StageSend, Err: err}
	}
	return nil
}

// sendLegacy posts the turn to the request/response endpoint. The reply
// becomes an assistant row and a deck_diff, if any, goes through the engine
// like any other diff.
func (d *Dispatcher) sendLegacy(ctx context.Context, slideID, text string, sels []selection.Descriptor, atts []protocol.Attachment, history []protocol.HistoryMessage) error {
	if d.legacy == nil {
		return agent.ErrNotConfigured
	}
	req := protocol.LegacyRequest{
		Message:     text,
		SlideID:     slideID,
		ChatHistory: history,
		Selections:  selection.Normalize(sels),
		Attachments: atts,
	}
	if d.deck != nil {
		snapshot := d.deck.Snapshot()
		req.DeckData = snapshot
		req.CurrentSlideIndex = d.currentSlideIndex(snapshot, slideID)
	}
	resp, err := d.legacy.Chat(ctx, req)
	if err != nil {
		if errors.Is(err, agent.ErrNotConfigured) {
			return err
		}
		return stageError{Stage: StageLegacy, Err: err}
	}
	d.chat.CompleteMessage("", resp.Message)

	diff, ok, err := resp.Diff()
	if err != nil {
		// the reply itself was fine; a bad diff is only logged
		d.log.WithFields(logger.Fields{"deck_id": d.deckID, "stage": StageMerge}).WithError(err).Warn("legacy deck_diff rejected")
		return nil
	}
	if ok {
		d.reconciled(ctx, d.engine.ApplyDiff(ctx, diff))
	}
	return nil
}

// Upload stores a local file and queues it for the next message.
func (d *Dispatcher) Upload(ctx context.Context, path string) (protocol.Attachment, error) {
	if d.upload == nil {
		d.chat.AddSystem(MsgUploadFailed)
		return protocol.Attachment{}, stageError{Stage: StageUpload, Err: upload.ErrNotConfigured}
	}
	att, err := d.upload.Upload(ctx, path)
	if err != nil {
		d.log.WithFields(logger.Fields{"deck_id": d.deckID, "path": path}).WithError(err).Warn("upload failed")
		d.chat.AddSystem(MsgUploadFailed)
		return protocol.Attachment{}, stageError{Stage: StageUpload, Err: err}
	}
	d.mu.Lock()
	d.pending = append(d.pending, att)
	d.mu.Unlock()
	d.chat.AddSystem(fmt.Sprintf("Attached %s", upload.Describe(att)))
	return att, nil
}
