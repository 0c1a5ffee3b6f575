// Package agent talks to the remote agent service: it owns the one live
// session per (deck, slide), sends user turns and pushes the session's event
// stream to a handler in arrival order.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"deckpilot/internal/logger"
	"deckpilot/internal/protocol"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConfigured means no agent backend is set; callers fall back to
	// the legacy chat endpoint.
	ErrNotConfigured = errors.New("agent backend not configured")
	ErrNoSession     = errors.New("no active agent session")
	ErrClosed        = errors.New("agent client closed")
)

// EventHandler receives every decoded event of the active session, one at a
// time and in arrival order. It must return once ctx is done.
type EventHandler func(ctx context.Context, ev protocol.Event)

type Options struct {
	BaseURL        string
	Token          TokenFunc
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	// SessionRate caps session creations per second; zero disables it.
	SessionRate float64
	OnEvent     EventHandler
	Log         *logger.LogEntry
}

type SessionOptions struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

type session struct {
	id      string
	deckID  string
	slideID string
	cancel  context.CancelFunc
	done    chan struct{}
	closed  atomic.Bool
}

type Client struct {
	baseURL string
	rt      transport
	stream  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
	log     *logger.LogEntry

	mu      sync.Mutex
	onEvent EventHandler
	current *session
	closed  bool
}

func New(opts Options) *Client {
	log := opts.Log
	if log == nil {
		log = logger.Named("agent")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	// the event stream lives as long as the session, so it gets no timeout
	stream := &http.Client{Transport: httpClient.Transport}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		rt:      transport{client: httpClient, token: opts.Token, timeout: opts.RequestTimeout},
		stream:  stream,
		log:     log,
		onEvent: opts.OnEvent,
	}
	if opts.SessionRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.SessionRate), 1)
	}
	return c
}

// Configured reports whether an agent backend URL is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// SetHandler replaces the event handler for subsequent events.
func (c *Client) SetHandler(h EventHandler) {
	c.mu.Lock()
	c.onEvent = h
	c.mu.Unlock()
}

func (c *Client) handler() EventHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onEvent
}

// CreateSession opens a new session on the service without binding it.
func (c *Client) CreateSession(ctx context.Context, deckID, slideID string, opts SessionOptions) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	body := struct {
		DeckID   string            `json:"deckId"`
		SlideID  string            `json:"slideId,omitempty"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}{DeckID: deckID, SlideID: slideID, Metadata: opts.Metadata}
	var resp struct {
		SessionID string `json:"sessionId"`
		ID        string `json:"id"`
	}
	if err := c.rt.doJSON(ctx, "", http.MethodPost, c.baseURL+"/sessions", body, &resp); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	id := resp.SessionID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", errors.New("create session: empty session id")
	}
	return id, nil
}

// EnsureSession returns the live session for (deckID, slideID), creating it
// if needed. Concurrent callers share one creation. A session bound to a
// different slide is torn down first.
func (c *Client) EnsureSession(ctx context.Context, deckID, slideID string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if id, ok := c.boundTo(deckID, slideID); ok {
		return id, nil
	}
	v, err, _ := c.group.Do(deckID+"\x00"+slideID, func() (any, error) {
		return c.establish(ctx, deckID, slideID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) boundTo(deckID, slideID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.current; s != nil && s.deckID == deckID && s.slideID == slideID {
		return s.id, true
	}
	return "", false
}

func (c *Client) establish(ctx context.Context, deckID, slideID string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	stale := c.current
	if stale != nil && stale.deckID == deckID && stale.slideID == slideID {
		c.mu.Unlock()
		return stale.id, nil
	}
	c.current = nil
	c.mu.Unlock()

	if stale != nil {
		c.log.WithField("session_id", stale.id).WithField("slide_id", slideID).Info("active slide changed, closing session")
		c.teardown(stale)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
	}
	id, err := c.CreateSession(ctx, deckID, slideID, SessionOptions{})
	if err != nil {
		c.log.WithError(err).WithField("deck_id", deckID).WithField("slide_id", slideID).Warn("create session failed")
		return "", err
	}
	s := &session{id: id, deckID: deckID, slideID: slideID, done: make(chan struct{})}
	if err := c.openStream(s); err != nil {
		c.log.WithError(err).WithField("session_id", id).Warn("open event stream failed")
		c.deleteSession(id)
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.teardown(s)
		return "", ErrClosed
	}
	replaced := c.current
	c.current = s
	c.mu.Unlock()
	if replaced != nil {
		c.teardown(replaced)
	}
	c.log.WithField("session_id", id).WithField("deck_id", deckID).WithField("slide_id", slideID).Info("session established")
	return id, nil
}

func (c *Client) openStream(s *session) error {
	ctx, cancel := context.WithCancel(context.Background())
	endpoint := c.baseURL + "/sessions/" + url.PathEscape(s.id) + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if err := c.rt.authorize(req); err != nil {
		cancel()
		return err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := parseAPIError(resp)
		resp.Body.Close()
		cancel()
		return fmt.Errorf("open event stream: %w", apiErr)
	}
	s.cancel = cancel
	go c.readLoop(ctx, s, resp.Body)
	return nil
}

func (c *Client) readLoop(ctx context.Context, s *session, body io.ReadCloser) {
	defer close(s.done)
	defer body.Close()
	logger.Wire.StreamOpened(s.id)

	reader := NewSSEReader(body)
	for {
		name, data, err := reader.ReadEvent()
		if err != nil {
			if s.closed.Load() || ctx.Err() != nil || errors.Is(err, io.EOF) {
				logger.Wire.StreamClosed(s.id, nil)
			} else {
				logger.Wire.StreamClosed(s.id, err)
				c.log.WithError(err).WithField("session_id", s.id).Warn("event stream failed")
			}
			// no reconnection: the next send creates a fresh session
			c.forget(s)
			return
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		logger.Wire.Inbound(s.id, name, data)
		ev, err := decodeEvent(name, data)
		if err != nil {
			c.log.WithError(err).WithField("session_id", s.id).Warn("skip agent event")
			continue
		}
		if s.closed.Load() {
			continue
		}
		if h := c.handler(); h != nil {
			h(ctx, ev)
		}
	}
}

// decodeEvent accepts both self-describing envelopes and bare payloads whose
// type travels in the SSE event name.
func decodeEvent(name string, data []byte) (protocol.Event, error) {
	ev, err := protocol.Decode(data)
	if err == nil || name == "" || !errors.Is(err, protocol.ErrMalformedEvent) {
		return ev, err
	}
	wrapped, merr := json.Marshal(protocol.Envelope{Type: protocol.EventType(name), Data: data})
	if merr != nil {
		return nil, err
	}
	return protocol.Decode(wrapped)
}

// SendMessage posts a user turn to the active session and returns its client
// message id. A transport failure discards the session.
func (c *Client) SendMessage(ctx context.Context, req protocol.MessageRequest) (string, error) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		if !c.Configured() {
			return "", ErrNotConfigured
		}
		return "", ErrNoSession
	}
	if req.ClientMessageID == "" {
		req.ClientMessageID = uuid.NewString()
	}
	if req.Role == "" {
		req.Role = "user"
	}
	endpoint := c.baseURL + "/sessions/" + url.PathEscape(s.id) + "/messages"
	if err := c.rt.doJSON(ctx, s.id, http.MethodPost, endpoint, req, nil); err != nil {
		c.log.WithError(err).WithField("session_id", s.id).Warn("send message failed, dropping session")
		if c.forget(s) {
			c.teardown(s)
		}
		return "", fmt.Errorf("send message: %w", err)
	}
	return req.ClientMessageID, nil
}

// Active returns the bound session, if any.
func (c *Client) Active() (id, deckID, slideID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return "", "", "", false
	}
	return c.current.id, c.current.deckID, c.current.slideID, true
}

// Teardown closes the active session; a later EnsureSession opens a new one.
func (c *Client) Teardown() {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()
	if s != nil {
		c.teardown(s)
	}
}

// Close tears down the active session. No event is delivered once Close
// returns.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Teardown()
	return nil
}

func (c *Client) forget(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == s {
		c.current = nil
		return true
	}
	return false
}

func (c *Client) teardown(s *session) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	c.deleteSession(s.id)
}

// deleteSession is best effort.
func (c *Client) deleteSession(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	endpoint := c.baseURL + "/sessions/" + url.PathEscape(id)
	if err := c.rt.doJSON(ctx, id, http.MethodDelete, endpoint, nil, nil); err != nil {
		c.log.WithError(err).WithField("session_id", id).Debug("delete session failed")
	}
}
