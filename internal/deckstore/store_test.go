package deckstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"deckpilot/internal/deck"
	"deckpilot/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSaver struct {
	mu    sync.Mutex
	saved []deck.Deck
}

func (r *recordingSaver) SaveDeck(_ context.Context, d deck.Deck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, d)
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

type failingSource struct{}

func (failingSource) FetchDeck(context.Context, string) (deck.Deck, error) {
	return deck.Deck{}, errors.New("backend down")
}

func testDeck() deck.Deck {
	return deck.Deck{ID: "d1", Title: "Pitch", Slides: []deck.Slide{
		{ID: "s1", Status: deck.StatusGenerating, Components: []deck.Component{
			{ID: "c1", Type: deck.ComponentText, Props: deck.Props{"text": "Hi"}},
		}},
		{ID: "s2", Status: deck.StatusPending, Components: []deck.Component{}},
	}}
}

func TestUpdateDeckData_VersionAndEcho(t *testing.T) {
	saver := &recordingSaver{}
	s := New(Options{DeckID: "d1", Saver: saver, Log: logger.Discard()})
	ctx := context.Background()

	s.Replace(ctx, testDeck(), UpdateOptions{SkipBackendEcho: true})
	require.EqualValues(t, 1, s.Version())
	assert.Zero(t, saver.count())

	_, err := s.UpdateDeckData(ctx, func(d deck.Deck) (deck.Deck, error) {
		d.Title = "Pitch v2"
		return d, nil
	}, UpdateOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, s.Version())
	assert.Equal(t, 1, saver.count(), "local mutations are echoed")

	_, err = s.UpdateDeckData(ctx, func(d deck.Deck) (deck.Deck, error) {
		d.Title = "from backend"
		return d, nil
	}, UpdateOptions{SkipBackendEcho: true})
	require.NoError(t, err)
	assert.EqualValues(t, 3, s.Version())
	assert.Equal(t, 1, saver.count(), "backend mutations are not echoed")
}

func TestUpdateDeckData_ErrorLeavesState(t *testing.T) {
	s := New(Options{DeckID: "d1", Log: logger.Discard()})
	ctx := context.Background()
	s.Replace(ctx, testDeck(), UpdateOptions{SkipBackendEcho: true})

	_, err := s.UpdateDeckData(ctx, func(d deck.Deck) (deck.Deck, error) {
		d.Title = "half done"
		return d, errors.New("boom")
	}, UpdateOptions{})
	require.Error(t, err)
	assert.Equal(t, "Pitch", s.Snapshot().Title)
	assert.EqualValues(t, 1, s.Version())
}

func TestBatchUpdateSlideComponents(t *testing.T) {
	s := New(Options{DeckID: "d1", Log: logger.Discard()})
	ctx := context.Background()
	s.Replace(ctx, testDeck(), UpdateOptions{SkipBackendEcho: true})

	err := s.BatchUpdateSlideComponents(ctx, "s2", []deck.Component{
		{ID: "c7", Type: deck.ComponentShape},
	}, UpdateOptions{SkipBackendEcho: true})
	require.NoError(t, err)
	slide, _ := s.Snapshot().FindSlide("s2")
	require.Len(t, slide.Components, 1)
	assert.Equal(t, "c7", slide.Components[0].ID)

	err = s.BatchUpdateSlideComponents(ctx, "missing", nil, UpdateOptions{})
	assert.Error(t, err)
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := New(Options{DeckID: "d1", Log: logger.Discard()})
	s.Replace(context.Background(), testDeck(), UpdateOptions{SkipBackendEcho: true})

	snap := s.Snapshot()
	snap.Slides[0].Components[0].Props["text"] = "mutated"
	again := s.Snapshot()
	assert.Equal(t, "Hi", again.Slides[0].Components[0].Props["text"])
}

func TestSubscribeReceivesCommits(t *testing.T) {
	s := New(Options{DeckID: "d1", Log: logger.Discard()})
	var versions []int64
	s.Subscribe(func(d deck.Deck) { versions = append(versions, d.Version) })
	s.Replace(context.Background(), testDeck(), UpdateOptions{SkipBackendEcho: true})
	s.Replace(context.Background(), testDeck(), UpdateOptions{SkipBackendEcho: true})
	assert.Equal(t, []int64{1, 2}, versions)
}

func TestSubscribersNeverSeeOlderVersion(t *testing.T) {
	s := New(Options{DeckID: "d1", Log: logger.Discard()})
	var mu sync.Mutex
	var versions []int64
	s.Subscribe(func(d deck.Deck) {
		mu.Lock()
		versions = append(versions, d.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Replace(context.Background(), testDeck(), UpdateOptions{SkipBackendEcho: true})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, versions)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
	assert.Equal(t, s.Version(), versions[len(versions)-1])
}

func TestHTTPSourceFetchAndSave(t *testing.T) {
	var put deck.Deck
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/decks/d1" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(testDeck())
		case http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(&put)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(srv.Close)

	src := &HTTPSource{BaseURL: srv.URL, Token: func() (string, error) { return "tok", nil }}
	s := New(Options{DeckID: "d1", Source: src, Saver: src, Log: logger.Discard()})

	d, err := s.LoadDeck(context.Background())
	require.NoError(t, err)
	assert.Len(t, d.Slides, 2)

	_, err = s.UpdateDeckData(context.Background(), func(d deck.Deck) (deck.Deck, error) {
		d.Title = "saved"
		return d, nil
	}, UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "saved", put.Title)

	bad := &HTTPSource{BaseURL: srv.URL}
	_, err = bad.FetchDeck(context.Background(), "d1")
	assert.Error(t, err)
}

func TestLoadDeck_FallsBackToCache(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, testDeck()))

	s := New(Options{DeckID: "d1", Source: failingSource{}, Cache: cache, Log: logger.Discard()})
	d, err := s.LoadDeck(ctx)
	require.NoError(t, err)
	require.Len(t, d.Slides, 2)
	assert.Equal(t, "s1", d.Slides[0].ID)
	assert.Equal(t, "Hi", d.Slides[0].Components[0].Props["text"])

	require.NoError(t, s.ClearSlideCache(ctx, "s1"))
	cached, err := cache.Get(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, cached.Slides, 1)
	assert.Equal(t, "s2", cached.Slides[0].ID)

	require.NoError(t, s.ClearSlideCache(ctx))
	_, err = cache.Get(ctx, "d1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLoadDeck_NoSourceNoCache(t *testing.T) {
	s := New(Options{DeckID: "d1", Log: logger.Discard()})
	_, err := s.LoadDeck(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestFileSourceWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.json")
	src := &FileSource{Path: path}
	require.NoError(t, src.SaveDeck(context.Background(), testDeck()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- src.Watch(ctx, func() { changed <- struct{}{} })
	}()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	updated := testDeck()
	updated.Title = "edited on disk"
	data, err := json.Marshal(updated)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	select {
	case <-changed:
	case <-ctx.Done():
		t.Fatal("timeout waiting for change notification")
	}
	got, err := src.FetchDeck(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "edited on disk", got.Title)

	cancel()
	require.NoError(t, <-done)
}
