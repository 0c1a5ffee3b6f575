package dispatch

import (
	"context"
	"errors"

	"deckpilot/internal/events"
)

// Register installs the dispatcher as the handler of every user operation
// of m.
func (d *Dispatcher) Register(m *events.Manager) {
	m.RegisterHandler(events.OperationSendMessage, events.HandlerFunc(func(ctx context.Context, sub events.Submission, _ events.EventPublisher) error {
		op := sub.Operation.Send
		if op == nil {
			return errors.New("send_message without payload")
		}
		return d.Send(ctx, op.Text, op.Selections, op.Attachments)
	}))
	m.RegisterHandler(events.OperationUpload, events.HandlerFunc(func(ctx context.Context, sub events.Submission, _ events.EventPublisher) error {
		op := sub.Operation.Upload
		if op == nil {
			return errors.New("upload without payload")
		}
		_, err := d.Upload(ctx, op.Path)
		return err
	}))
	m.RegisterHandler(events.OperationSetSlide, events.HandlerFunc(func(_ context.Context, sub events.Submission, _ events.EventPublisher) error {
		op := sub.Operation.SetSlide
		if op == nil {
			return errors.New("set_slide without payload")
		}
		d.SetActiveSlide(op.SlideID)
		return nil
	}))
	m.RegisterHandler(events.OperationReload, events.HandlerFunc(func(ctx context.Context, _ events.Submission, _ events.EventPublisher) error {
		r := d.Reload(ctx)
		return r.Err
	}))
}
