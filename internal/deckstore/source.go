package deckstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deckpilot/internal/deck"
	"deckpilot/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// TokenFunc returns the bearer token for outgoing requests.
type TokenFunc func() (string, error)

// HTTPSource reads and writes decks at {BaseURL}/decks/{id}.
type HTTPSource struct {
	BaseURL string
	Token   TokenFunc
	Client  *http.Client
}

func (s *HTTPSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (s *HTTPSource) endpoint(deckID string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/decks/" + url.PathEscape(deckID)
}

func (s *HTTPSource) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if s.Token != nil {
		token, err := s.Token()
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

func (s *HTTPSource) FetchDeck(ctx context.Context, deckID string) (deck.Deck, error) {
	var d deck.Deck
	if strings.TrimSpace(s.BaseURL) == "" {
		return d, ErrNoSource
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(deckID), nil)
	if err != nil {
		return d, err
	}
	resp, err := s.do(req)
	if err != nil {
		return d, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return d, fmt.Errorf("decode deck: %w", err)
	}
	return d, nil
}

func (s *HTTPSource) SaveDeck(ctx context.Context, d deck.Deck) error {
	if strings.TrimSpace(s.BaseURL) == "" {
		return ErrNoSource
	}
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.endpoint(d.ID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// FileSource keeps a deck in a JSON file.
type FileSource struct {
	Path string
}

func (s *FileSource) FetchDeck(_ context.Context, deckID string) (deck.Deck, error) {
	var d deck.Deck
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	if d.ID == "" {
		d.ID = deckID
	}
	return d, nil
}

func (s *FileSource) SaveDeck(_ context.Context, d deck.Deck) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// Watch calls onChange whenever the deck file is written, created or renamed
// into place. It blocks until ctx is done.
func (s *FileSource) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create deck watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.Path)); err != nil {
		return fmt.Errorf("watch deck directory: %w", err)
	}
	log := logger.Named("deckstore").WithField("path", s.Path)
	target := filepath.Clean(s.Path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.WithField("op", event.Op.String()).Debug("deck file changed")
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("deck watcher error")
		}
	}
}
