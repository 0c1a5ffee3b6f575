// Package deckstore is the canonical Deck State Store: the single in-memory
// copy of the deck, plus its backend of record and an offline cache.
package deckstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"deckpilot/internal/deck"
	"deckpilot/internal/logger"
)

// Source fetches the deck from its backend of record.
type Source interface {
	FetchDeck(ctx context.Context, deckID string) (deck.Deck, error)
}

// Saver receives mutations that originated locally.
type Saver interface {
	SaveDeck(ctx context.Context, d deck.Deck) error
}

// UpdateOptions tunes a single mutation.
type UpdateOptions struct {
	// SkipBackendEcho suppresses the Saver call for mutations that already
	// came from the backend.
	SkipBackendEcho bool
}

// ErrNoSource is returned by LoadDeck when neither a source nor a cached
// copy is available.
var ErrNoSource = errors.New("deck source not configured")

type Options struct {
	DeckID string
	Source Source
	Saver  Saver
	Cache  *Cache
	Log    *logger.LogEntry
}

type Store struct {
	mu     sync.RWMutex
	deckID string
	deck   deck.Deck
	source Source
	saver  Saver
	cache  *Cache
	subs   []func(deck.Deck)
	log    *logger.LogEntry

	// notifyMu orders fan-out; notified is the newest version delivered.
	notifyMu sync.Mutex
	notified int64
}

func New(opts Options) *Store {
	log := opts.Log
	if log == nil {
		log = logger.Named("deckstore")
	}
	return &Store{
		deckID: opts.DeckID,
		deck:   deck.Deck{ID: opts.DeckID},
		source: opts.Source,
		saver:  opts.Saver,
		cache:  opts.Cache,
		log:    log,
	}
}

// Snapshot returns a copy of the current deck.
func (s *Store) Snapshot() deck.Deck {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deck.Clone()
}

// Version returns the current mutation counter.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deck.Version
}

// Subscribe registers fn to receive the deck after every accepted mutation.
func (s *Store) Subscribe(fn func(deck.Deck)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// UpdateDeckData runs fn against a copy of the deck and commits its result.
// An error from fn leaves the deck untouched.
func (s *Store) UpdateDeckData(ctx context.Context, fn func(deck.Deck) (deck.Deck, error), opts UpdateOptions) (deck.Deck, error) {
	next, err := s.commit(fn)
	if err != nil {
		return s.Snapshot(), err
	}
	s.afterCommit(ctx, next, opts)
	return next, nil
}

// Replace swaps in a whole deck, keeping the version monotonic.
func (s *Store) Replace(ctx context.Context, d deck.Deck, opts UpdateOptions) deck.Deck {
	next, _ := s.commit(func(deck.Deck) (deck.Deck, error) { return d.Clone(), nil })
	s.afterCommit(ctx, next, opts)
	return next
}

// BatchUpdateSlideComponents replaces the component list of one slide.
func (s *Store) BatchUpdateSlideComponents(ctx context.Context, slideID string, components []deck.Component, opts UpdateOptions) error {
	_, err := s.UpdateDeckData(ctx, func(d deck.Deck) (deck.Deck, error) {
		idx := d.SlideIndex(slideID)
		if idx < 0 {
			return d, fmt.Errorf("slide %s not found", slideID)
		}
		comps := make([]deck.Component, len(components))
		for i, c := range components {
			comps[i] = c.Clone()
		}
		d.Slides[idx].Components = comps
		return d, nil
	}, opts)
	return err
}

func (s *Store) commit(fn func(deck.Deck) (deck.Deck, error)) (deck.Deck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.deck.Clone())
	if err != nil {
		return deck.Deck{}, err
	}
	if next.ID == "" {
		next.ID = s.deck.ID
	}
	next.Version = s.deck.Version + 1
	s.deck = next
	return next.Clone(), nil
}

func (s *Store) afterCommit(ctx context.Context, next deck.Deck, opts UpdateOptions) {
	s.notify(next)
	if s.cache != nil {
		if err := s.cache.Put(ctx, next); err != nil {
			s.log.WithError(err).Warn("failed to write deck cache")
		}
	}
	if opts.SkipBackendEcho || s.saver == nil {
		return
	}
	if err := s.saver.SaveDeck(ctx, next); err != nil {
		s.log.WithError(err).WithField("deck_id", next.ID).Warn("failed to echo deck to backend")
	}
}

// notify delivers next to every subscriber. A commit that lost the race to
// a newer one is not delivered, so subscribers never see the version go
// backwards. Subscribers must not mutate the store.
func (s *Store) notify(next deck.Deck) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if next.Version <= s.notified {
		return
	}
	s.notified = next.Version
	s.mu.RLock()
	subs := append([]func(deck.Deck){}, s.subs...)
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(next.Clone())
	}
}

// LoadDeck fetches the deck from the source and replaces local state. When
// the source fails the cached copy is used instead.
func (s *Store) LoadDeck(ctx context.Context) (deck.Deck, error) {
	var fetched deck.Deck
	var err error
	if s.source != nil {
		fetched, err = s.source.FetchDeck(ctx, s.deckID)
	} else {
		err = ErrNoSource
	}
	if err != nil {
		if s.cache == nil {
			return s.Snapshot(), err
		}
		cached, cacheErr := s.cache.Get(ctx, s.deckID)
		if cacheErr != nil {
			return s.Snapshot(), fmt.Errorf("load deck: %w (cache: %v)", err, cacheErr)
		}
		s.log.WithError(err).WithField("deck_id", s.deckID).Warn("deck source unavailable; using cached copy")
		fetched = cached
	}
	return s.Replace(ctx, fetched, UpdateOptions{SkipBackendEcho: true}), nil
}

// ClearSlideCache drops cached slides so the next load reads them from the
// source. With no ids the whole deck entry is dropped.
func (s *Store) ClearSlideCache(ctx context.Context, slideIDs ...string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx, s.deckID, slideIDs...)
}
