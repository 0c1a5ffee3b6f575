package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"deckpilot/internal/agent"
	"deckpilot/internal/auth"
	"deckpilot/internal/config"
	"deckpilot/internal/deck"
	"deckpilot/internal/deckstore"
	"deckpilot/internal/dispatch"
	"deckpilot/internal/draft"
	"deckpilot/internal/events"
	"deckpilot/internal/logger"
	"deckpilot/internal/mode"
	"deckpilot/internal/reconcile"
	"deckpilot/internal/session"
	"deckpilot/internal/transcript"
	"deckpilot/internal/upload"
)

// tokenSkew treats a login about to expire as already expired.
const tokenSkew = 30 * time.Second

var errNoDeck = errors.New("missing deck id: pass --deck or set deck_id in the config")

// app is one chat against one deck with every collaborator wired.
type app struct {
	cfg    config.Config
	deckID string

	mode     *mode.Mode
	store    *deckstore.Store
	cache    *deckstore.Cache
	file     *deckstore.FileSource
	drafts   *draft.Store
	engine   *reconcile.Engine
	chat     *transcript.Controller
	agent    *agent.Client
	dispatch *dispatch.Dispatcher
	events   *events.Manager
	sessions *session.Store

	sessionID string
	log       *logger.LogEntry
}

type appOptions struct {
	slideID string
	logs    queueLogs
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	deckID := strings.TrimSpace(cfg.DeckID)
	if deckID == "" {
		return nil, errNoDeck
	}
	a := &app{
		cfg:    cfg,
		deckID: deckID,
		mode:   mode.New(),
		drafts: draft.New(),
		log:    log.WithField("deck_id", deckID),
	}

	token := auth.TokenSource{Static: cfg.Token, Skew: tokenSkew}.Token
	httpClient := &http.Client{}

	if cfg.CachePath != "" {
		cache, err := deckstore.OpenCache(cfg.CachePath)
		if err != nil {
			a.log.WithError(err).Warn("deck cache unavailable")
		} else {
			a.cache = cache
		}
	}

	storeOpts := deckstore.Options{DeckID: deckID, Cache: a.cache, Log: logger.Named("deckstore")}
	switch {
	case cfg.DeckFile != "":
		a.file = &deckstore.FileSource{Path: cfg.DeckFile}
		storeOpts.Source, storeOpts.Saver = a.file, a.file
	case cfg.DeckURL != "":
		src := &deckstore.HTTPSource{
			BaseURL: cfg.DeckURL,
			Token:   token,
			Client:  &http.Client{Timeout: cfg.RequestTimeout()},
		}
		storeOpts.Source, storeOpts.Saver = src, src
	}
	a.store = deckstore.New(storeOpts)
	a.engine = reconcile.New(reconcile.Options{
		Store:  a.store,
		Drafts: a.drafts,
		Mode:   a.mode,
		Log:    logger.Named("reconcile"),
	})

	a.events = events.NewManager(events.ManagerConfig{SQLogPath: opts.logs.sq, EQLogPath: opts.logs.eq})
	a.chat = transcript.New(transcript.Options{
		Deck:        a.store.Snapshot,
		OnChange:    a.transcriptChanged,
		ToolDedup:   cfg.ToolDedupWindow(),
		Lockout:     cfg.LockoutWindow(),
		PlanStep:    cfg.PlanStepDelay(),
		PlanIdle:    cfg.PlanIdleWindow(),
		StyleWindow: cfg.StyleWindow(),
		Log:         logger.Named("transcript"),
	})
	a.store.Subscribe(a.deckChanged)

	a.agent = agent.New(agent.Options{
		BaseURL:        cfg.AgentURL,
		Token:          token,
		HTTPClient:     httpClient,
		RequestTimeout: cfg.RequestTimeout(),
		SessionRate:    cfg.SessionRate,
		Log:            logger.Named("agent"),
	})
	var legacy dispatch.LegacyChat
	if strings.TrimSpace(cfg.LegacyURL) != "" {
		legacy = agent.NewLegacy(cfg.LegacyURL, token, httpClient, cfg.RequestTimeout())
	}
	var uploader dispatch.Uploader
	if up := upload.New(upload.Options{
		Endpoint:   cfg.UploadURL,
		Token:      token,
		HTTPClient: httpClient,
		Timeout:    cfg.RequestTimeout(),
	}); up.Configured() {
		uploader = up
	}

	a.dispatch = dispatch.New(dispatch.Options{
		DeckID:     deckID,
		SlideID:    opts.slideID,
		Agent:      a.agent,
		Legacy:     legacy,
		Uploader:   uploader,
		Deck:       a.store,
		Engine:     a.engine,
		Transcript: a.chat,
		Mode:       a.mode,
		Events:     a.events.Events(),
		Log:        logger.Named("dispatch"),
	})
	a.agent.SetHandler(a.dispatch.HandleEvent)
	a.dispatch.Register(a.events)
	a.events.Start(ctx)

	sessions, err := session.Open("")
	if err != nil {
		a.log.WithError(err).Warn("session store unavailable")
	} else {
		a.sessions = sessions
	}
	return a, nil
}

func (a *app) transcriptChanged() {
	_ = a.events.PublishEvent(context.Background(), events.Event{Type: events.EventTranscriptChanged, DeckID: a.deckID})
}

func (a *app) deckChanged(d deck.Deck) {
	_ = a.events.PublishEvent(context.Background(), events.Event{Type: events.EventDeckChanged, DeckID: a.deckID, Payload: d.Version})
}

// load reads the deck and picks the active slide: the requested one when it
// exists, otherwise the first.
func (a *app) load(ctx context.Context, slideID string) (string, error) {
	d, err := a.store.LoadDeck(ctx)
	if err != nil && !errors.Is(err, deckstore.ErrNoSource) {
		a.log.WithError(err).Warn("deck load failed")
	}
	if _, ok := d.FindSlide(slideID); !ok {
		slideID = ""
		if len(d.Slides) > 0 {
			slideID = d.Slides[0].ID
		}
	}
	a.dispatch.SetActiveSlide(slideID)
	return slideID, err
}

// watch reloads the deck through the engine when its file changes on disk.
func (a *app) watch(ctx context.Context) {
	if a.file == nil {
		return
	}
	go func() {
		err := a.file.Watch(ctx, func() {
			if r := a.dispatch.Reload(ctx); r.Err != nil {
				a.log.WithError(r.Err).Warn("deck reload failed")
			}
		})
		if err != nil {
			a.log.WithError(err).Warn("deck watch stopped")
		}
	}()
}

// resume restores the newest saved chat of the deck.
func (a *app) resume() bool {
	if a.sessions == nil {
		return false
	}
	rec, err := a.sessions.Last(a.deckID)
	if err != nil {
		if !errors.Is(err, session.ErrNoSessions) {
			a.log.WithError(err).Warn("resume failed")
		}
		return false
	}
	a.chat.Restore(rec.Rows)
	a.sessionID = rec.ID
	return true
}

func (a *app) saveSession(slideID string) {
	if a.sessions == nil || a.chat.Len() == 0 {
		return
	}
	id, err := a.sessions.Save(session.Record{
		ID:      a.sessionID,
		DeckID:  a.deckID,
		SlideID: slideID,
		Rows:    a.chat.Rows(),
	})
	if err != nil {
		a.log.WithError(err).Warn("failed to save chat")
		return
	}
	a.sessionID = id
}

func (a *app) Close() {
	a.mode.Unmount()
	a.events.Close()
	_ = a.agent.Close()
	if a.cache != nil {
		_ = a.cache.Close()
	}
}
