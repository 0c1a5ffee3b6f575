// Package dispatch is the single event loop of a chat: it turns agent events
// into reconciliation and transcript updates, and user actions into agent
// requests.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"deckpilot/internal/agent"
	"deckpilot/internal/deck"
	"deckpilot/internal/events"
	"deckpilot/internal/logger"
	"deckpilot/internal/mode"
	"deckpilot/internal/protocol"
	"deckpilot/internal/reconcile"
	"deckpilot/internal/transcript"
)

// User-facing notices.
const (
	MsgUploadFailed  = "File upload failed. Please try again."
	MsgSendFailed    = "Sorry, I couldn't reach the assistant. Please try again."
	MsgNotConfigured = "No assistant backend is configured. Set agent_url or legacy_url."
)

// DefaultHistoryLimit bounds chat_history sent to the legacy endpoint.
const DefaultHistoryLimit = 20

// SessionClient is the agent session backend.
type SessionClient interface {
	Configured() bool
	EnsureSession(ctx context.Context, deckID, slideID string) (string, error)
	SendMessage(ctx context.Context, req protocol.MessageRequest) (string, error)
}

// LegacyChat is the request/response fallback endpoint.
type LegacyChat interface {
	Chat(ctx context.Context, req protocol.LegacyRequest) (protocol.LegacyResponse, error)
}

// Uploader stores a local file and returns its attachment reference.
type Uploader interface {
	Upload(ctx context.Context, path string) (protocol.Attachment, error)
}

// DeckView reads the canonical deck.
type DeckView interface {
	Snapshot() deck.Deck
}

type Options struct {
	DeckID  string
	SlideID string

	Agent      SessionClient
	Legacy     LegacyChat
	Uploader   Uploader
	Deck       DeckView
	Engine     *reconcile.Engine
	Transcript *transcript.Controller
	Mode       *mode.Mode
	// Events, when set, receives agent events and reconcile results.
	Events events.EventPublisher

	HistoryLimit int
	Log          *logger.LogEntry
}

type Dispatcher struct {
	deckID string
	agent  SessionClient
	legacy LegacyChat
	upload Uploader
	deck   DeckView
	engine *reconcile.Engine
	chat   *transcript.Controller
	mode   *mode.Mode
	events events.EventPublisher
	limit  int
	log    *logger.LogEntry

	mu      sync.Mutex
	slideID string
	pending []protocol.Attachment
}

func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		deckID:  opts.DeckID,
		slideID: opts.SlideID,
		agent:   opts.Agent,
		legacy:  opts.Legacy,
		upload:  opts.Uploader,
		deck:    opts.Deck,
		engine:  opts.Engine,
		chat:    opts.Transcript,
		mode:    opts.Mode,
		events:  opts.Events,
		limit:   opts.HistoryLimit,
		log:     opts.Log,
	}
	if d.mode == nil {
		d.mode = mode.New()
	}
	if d.limit <= 0 {
		d.limit = DefaultHistoryLimit
	}
	if d.log == nil {
		d.log = logger.Named("dispatch")
	}
	return d
}

// SetActiveSlide changes the slide the next message is about. The agent
// session is re-bound lazily on the next send.
func (d *Dispatcher) SetActiveSlide(slideID string) {
	d.mu.Lock()
	d.slideID = slideID
	d.mu.Unlock()
}

func (d *Dispatcher) ActiveSlide() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slideID
}

// PendingAttachments lists uploads waiting for the next message.
func (d *Dispatcher) PendingAttachments() []protocol.Attachment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.Attachment(nil), d.pending...)
}

func (d *Dispatcher) takePending() []protocol.Attachment {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.pending
	d.pending = nil
	return out
}

// HandleEvent is the agent.EventHandler of the session client.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev protocol.Event) {
	protocol.Dispatch(ctx, ev, d)
	d.publish(ctx, events.EventAgent, ev)
}

// Reload refetches the deck through the engine's guards.
func (d *Dispatcher) Reload(ctx context.Context) reconcile.Result {
	r := d.engine.Reload(ctx)
	d.publish(ctx, events.EventReconciled, r)
	return r
}

func (d *Dispatcher) publish(ctx context.Context, typ events.EventType, payload any) {
	if d.events == nil {
		return
	}
	err := d.events.Publish(ctx, events.Event{
		Type:      typ,
		DeckID:    d.deckID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil && !errors.Is(err, events.ErrEventDropped) && !errors.Is(err, events.ErrEventQueueClosed) {
		d.log.WithError(err).Debug("publish event failed")
	}
}

func (d *Dispatcher) currentSlideIndex(snapshot deck.Deck, slideID string) int {
	if i := snapshot.SlideIndex(slideID); i >= 0 {
		return i
	}
	return 0
}

var _ protocol.Handler = (*Dispatcher)(nil)
var _ SessionClient = (*agent.Client)(nil)
var _ LegacyChat = (*agent.LegacyClient)(nil)
