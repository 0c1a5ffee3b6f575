package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"deckpilot/internal/agent"
	"deckpilot/internal/deck"
	"deckpilot/internal/deckstore"
	"deckpilot/internal/draft"
	"deckpilot/internal/events"
	"deckpilot/internal/logger"
	"deckpilot/internal/mode"
	"deckpilot/internal/protocol"
	"deckpilot/internal/reconcile"
	"deckpilot/internal/selection"
	"deckpilot/internal/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	mu         sync.Mutex
	configured bool
	ensureErr  error
	sendErr    error
	bound      []string
	requests   []protocol.MessageRequest
}

func (a *fakeAgent) Configured() bool { return a.configured }

func (a *fakeAgent) EnsureSession(_ context.Context, deckID, slideID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bound = append(a.bound, deckID+"/"+slideID)
	return "sess-1", a.ensureErr
}

func (a *fakeAgent) SendMessage(_ context.Context, req protocol.MessageRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	return "client-1", a.sendErr
}

type fakeLegacy struct {
	resp     protocol.LegacyResponse
	err      error
	requests []protocol.LegacyRequest
}

func (l *fakeLegacy) Chat(_ context.Context, req protocol.LegacyRequest) (protocol.LegacyResponse, error) {
	l.requests = append(l.requests, req)
	return l.resp, l.err
}

type fakeUploader struct {
	err error
}

func (u fakeUploader) Upload(_ context.Context, path string) (protocol.Attachment, error) {
	if u.err != nil {
		return protocol.Attachment{}, u.err
	}
	return protocol.Attachment{Name: path, MimeType: "image/png", Size: 2048, URL: "https://files/" + path}, nil
}

type harness struct {
	store  *deckstore.Store
	mode   *mode.Mode
	engine *reconcile.Engine
	chat   *transcript.Controller
	agent  *fakeAgent
	legacy *fakeLegacy
	d      *Dispatcher
}

func sampleDeck() deck.Deck {
	return deck.Deck{ID: "deck-1", Slides: []deck.Slide{
		{ID: "s1", Status: deck.StatusGenerating, Components: []deck.Component{
			{ID: "title", Type: deck.ComponentText, Props: deck.Props{"text": "Q3 results"}},
		}},
		{ID: "s2", Status: deck.StatusPending},
	}}
}

func newHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()
	h := &harness{
		mode:   mode.New(),
		agent:  &fakeAgent{configured: true},
		legacy: &fakeLegacy{},
	}
	h.store = deckstore.New(deckstore.Options{DeckID: "deck-1", Log: logger.Discard()})
	h.store.Replace(context.Background(), sampleDeck(), deckstore.UpdateOptions{SkipBackendEcho: true})
	h.engine = reconcile.New(reconcile.Options{Store: h.store, Drafts: draft.New(), Mode: h.mode, Log: logger.Discard()})
	h.chat = transcript.New(transcript.Options{Deck: h.store.Snapshot, Log: logger.Discard()})
	opts := Options{
		DeckID:     "deck-1",
		SlideID:    "s1",
		Agent:      h.agent,
		Legacy:     h.legacy,
		Uploader:   fakeUploader{},
		Deck:       h.store,
		Engine:     h.engine,
		Transcript: h.chat,
		Mode:       h.mode,
		Log:        logger.Discard(),
	}
	if configure != nil {
		configure(&opts)
	}
	h.d = New(opts)
	return h
}

func rolesOf(rows []transcript.Row) []transcript.Role {
	out := make([]transcript.Role, len(rows))
	for i, r := range rows {
		out[i] = r.Role
	}
	return out
}

func TestStreamedReplyAndProgress(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.d.HandleEvent(ctx, protocol.MessageDelta{Header: protocol.Header{MessageID: "m1"}, Delta: "2"})
	h.d.HandleEvent(ctx, protocol.MessageDelta{Header: protocol.Header{MessageID: "m1"}, Delta: "Working on it"})
	h.d.HandleEvent(ctx, protocol.MessageComplete{Header: protocol.Header{MessageID: "m1"}})
	h.d.HandleEvent(ctx, protocol.ProgressUpdate{Phase: "layout", Percent: 30, HasPercent: true})
	assert.True(t, h.mode.Generating())
	h.d.HandleEvent(ctx, protocol.ToolEvent{Phase: "started", Tool: "image_search"})
	h.d.HandleEvent(ctx, protocol.ProgressUpdate{Phase: "done"})
	assert.False(t, h.mode.Generating())

	rows := h.chat.Rows()
	assert.Equal(t, []transcript.Role{
		transcript.RoleMessage, transcript.RoleCompletion, transcript.RoleFollowUp, transcript.RoleTool,
	}, rolesOf(rows))
	assert.Equal(t, "Working on it", rows[0].Text)
	assert.Equal(t, "image_search: started", rows[3].Text)
}

func TestProposalThenApplied(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	diff := deck.Diff{SlidesToUpdate: []deck.SlideDiff{{
		SlideID:            "s1",
		ComponentsToUpdate: []deck.ComponentPatch{{ID: "title", Props: deck.Props{"text": "Q3 results, up 12%"}}},
	}}}

	h.d.HandleEvent(ctx, protocol.EditProposed{Header: protocol.Header{MessageID: "m1"}, Edit: protocol.Edit{ID: "e1", Diff: diff, Summary: "Sharper title"}})
	s1, _ := h.store.Snapshot().FindSlide("s1")
	c, _ := s1.Component("title")
	assert.Equal(t, "Q3 results, up 12%", c.Props.Text())

	rows := h.chat.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, transcript.RoleProposal, rows[0].Role)
	require.Len(t, rows[0].Changes, 1)
	assert.Equal(t, "Q3 results", rows[0].Changes[0].Before)

	h.d.HandleEvent(ctx, protocol.EditApplied{Header: protocol.Header{MessageID: "m1"}, EditID: "e1"})
	rec, ok := h.engine.Edit("e1")
	require.True(t, ok)
	assert.Equal(t, reconcile.EditApplied, rec.State)
	rows = h.chat.Rows()
	assert.True(t, rows[0].Applied)
	assert.Equal(t, transcript.RoleApplied, rows[1].Role)
	assert.True(t, h.chat.LockedOut())
}

func TestSendThroughSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.d.Upload(ctx, "chart.png")
	require.NoError(t, err)
	h.d.SetActiveSlide("s2")
	sel := selection.Descriptor{ElementID: "title", ElementType: "text", SlideID: "s1"}
	require.NoError(t, h.d.Send(ctx, "  tighten this  ", []selection.Descriptor{sel}, nil))

	assert.Equal(t, []string{"deck-1/s2"}, h.agent.bound)
	require.Len(t, h.agent.requests, 1)
	req := h.agent.requests[0]
	assert.Equal(t, "tighten this", req.Text)
	assert.Equal(t, []selection.Descriptor{sel}, req.Selections)
	require.Len(t, req.Attachments, 1)
	assert.Equal(t, "https://files/chart.png", req.Attachments[0].URL)
	require.NotNil(t, req.Context.CurrentSlideIndex)
	assert.Equal(t, 1, *req.Context.CurrentSlideIndex)
	assert.Equal(t, "s2", req.Context.SlideID)
	assert.Empty(t, h.d.PendingAttachments(), "attachments go out once")

	rows := h.chat.Rows()
	assert.Equal(t, []transcript.Role{transcript.RoleSystem, transcript.RoleUser}, rolesOf(rows))
	assert.Equal(t, "Attached chart.png (2.0 kB)", rows[0].Text)
}

func TestSendFallsBackToLegacy(t *testing.T) {
	h := newHarness(t, nil)
	h.agent.configured = false
	h.legacy.resp = protocol.LegacyResponse{
		Message:  "Updated the title.",
		DeckDiff: json.RawMessage(`{"slides_to_update":[{"slide_id":"s1","components_to_update":[{"id":"title","props":{"text":"New title"}}]}]}`),
	}
	ctx := context.Background()
	h.chat.AppendUser("earlier question", nil)
	h.chat.CompleteMessage("m0", "earlier answer")

	require.NoError(t, h.d.Send(ctx, "rename the title", nil, nil))

	require.Len(t, h.legacy.requests, 1)
	req := h.legacy.requests[0]
	assert.Equal(t, "rename the title", req.Message)
	assert.Equal(t, "s1", req.SlideID)
	assert.Equal(t, "deck-1", req.DeckData.ID)
	assert.Equal(t, []protocol.HistoryMessage{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}, req.ChatHistory)

	last, _ := h.chat.LastAssistant()
	assert.Equal(t, "Updated the title.", last)
	s1, _ := h.store.Snapshot().FindSlide("s1")
	c, _ := s1.Component("title")
	assert.Equal(t, "New title", c.Props.Text())
}

func TestSessionFailureFallsBackToLegacy(t *testing.T) {
	h := newHarness(t, nil)
	h.agent.ensureErr = errors.New("connection refused")
	h.legacy.resp = protocol.LegacyResponse{Message: "Hi from the fallback."}
	require.NoError(t, h.d.Send(context.Background(), "hello", nil, nil))
	require.Len(t, h.legacy.requests, 1)
	assert.Equal(t, "hello", h.legacy.requests[0].Message)
	last, ok := h.chat.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "Hi from the fallback.", last)
	for _, r := range h.chat.Rows() {
		assert.NotEqual(t, MsgSendFailed, r.Text)
	}

	h2 := newHarness(t, nil)
	h2.agent.ensureErr = errors.New("connection refused")
	h2.legacy.err = errors.New("bad gateway")
	err := h2.d.Send(context.Background(), "hello", nil, nil)
	assert.Equal(t, StageLegacy, StageOf(err))
	rows := h2.chat.Rows()
	assert.Equal(t, MsgSendFailed, rows[len(rows)-1].Text)

	h3 := newHarness(t, func(o *Options) { o.Legacy = nil })
	h3.agent.ensureErr = errors.New("connection refused")
	err = h3.d.Send(context.Background(), "hello", nil, nil)
	assert.Equal(t, StageSession, StageOf(err))
	rows = h3.chat.Rows()
	assert.Equal(t, MsgSendFailed, rows[len(rows)-1].Text)
}

func TestSendFailuresBecomeSystemRows(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Legacy = nil })
	h.agent.configured = false
	err := h.d.Send(context.Background(), "hello", nil, nil)
	assert.ErrorIs(t, err, agent.ErrNotConfigured)
	rows := h.chat.Rows()
	assert.Equal(t, MsgNotConfigured, rows[len(rows)-1].Text)

	h2 := newHarness(t, nil)
	h2.agent.sendErr = &agent.APIError{Status: 500, Message: "boom"}
	err = h2.d.Send(context.Background(), "hello", nil, nil)
	assert.Equal(t, StageSend, StageOf(err))
	var apiErr *agent.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestUploadFailure(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Uploader = fakeUploader{err: errors.New("413")} })
	_, err := h.d.Upload(context.Background(), "huge.mov")
	require.Error(t, err)
	assert.Equal(t, StageUpload, StageOf(err))
	rows := h.chat.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, MsgUploadFailed, rows[0].Text)
	assert.Empty(t, h.d.PendingAttachments())
}

func TestRegisteredWithManager(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	mgr := events.NewManager(events.ManagerConfig{})
	defer mgr.Close()
	h := newHarness(t, func(o *Options) { o.Events = mgr.Events() })
	h.d.Register(mgr)
	mgr.Start(ctx)
	sub := mgr.Subscribe()

	_, err := mgr.SubmitSetSlide(ctx, "deck-1", "s2")
	require.NoError(t, err)
	id, err := mgr.SubmitMessage(ctx, "deck-1", events.SendMessageOperation{Text: "add a closing slide"})
	require.NoError(t, err)

	for {
		select {
		case <-ctx.Done():
			t.Fatal("timeout waiting for send to complete")
		case ev := <-sub:
			if ev.SubmissionID != id || ev.Type != events.EventTaskCompleted {
				continue
			}
			assert.Equal(t, "completed", ev.Payload.(events.TaskResult).Status)
			assert.Equal(t, []string{"deck-1/s2"}, h.agent.bound)
			h.d.HandleEvent(ctx, protocol.MessageDelta{Header: protocol.Header{MessageID: "m9"}, Delta: "On it"})
			for ev := range sub {
				if ev.Type == events.EventAgent {
					_, ok := ev.Payload.(protocol.MessageDelta)
					assert.True(t, ok)
					return
				}
			}
			return
		}
	}
}
