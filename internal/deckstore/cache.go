package deckstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"deckpilot/internal/deck"

	_ "modernc.org/sqlite"
)

// ErrCacheMiss is returned when the cache holds nothing for a deck.
var ErrCacheMiss = errors.New("deck not cached")

const cacheSchema = `
CREATE TABLE IF NOT EXISTS deck_meta (
	deck_id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	properties TEXT NOT NULL DEFAULT '{}',
	version INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS slide_cache (
	deck_id TEXT NOT NULL,
	slide_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (deck_id, slide_id)
);

CREATE INDEX IF NOT EXISTS idx_slide_cache_order ON slide_cache(deck_id, position);
`

// Cache keeps the last known deck per id in a local SQLite file.
type Cache struct {
	db *sql.DB
}

func cacheDSN(file string) string {
	params := make(url.Values)
	params.Add("_journal_mode", "WAL")
	params.Add("_busy_timeout", "5000")
	params.Add("_synchronous", "NORMAL")
	params.Add("_txlock", "immediate")
	params.Add("mode", "rwc")
	return "file:" + file + "?" + params.Encode()
}

// OpenCache opens or creates the cache at path. ":memory:" gives a private
// in-memory cache.
func OpenCache(path string) (*Cache, error) {
	dsn := ":memory:"
	if strings.TrimSpace(path) != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		dsn = cacheDSN(path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// single writer; also keeps a :memory: database alive on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Put replaces the cached copy of d.
func (c *Cache) Put(ctx context.Context, d deck.Deck) error {
	props, err := json.Marshal(d.Properties)
	if err != nil {
		return err
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO deck_meta (deck_id, title, properties, version, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(deck_id) DO UPDATE SET
			title = excluded.title,
			properties = excluded.properties,
			version = excluded.version,
			updated_at = CURRENT_TIMESTAMP
	`, d.ID, d.Title, string(props), d.Version); err != nil {
		return fmt.Errorf("write deck meta: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM slide_cache WHERE deck_id = ?`, d.ID); err != nil {
		return fmt.Errorf("clear slides: %w", err)
	}
	for i, s := range d.Slides {
		payload, err := json.Marshal(s)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO slide_cache (deck_id, slide_id, position, payload)
			VALUES (?, ?, ?, ?)
		`, d.ID, s.ID, i, string(payload)); err != nil {
			return fmt.Errorf("write slide %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns the cached deck, or ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, deckID string) (deck.Deck, error) {
	var d deck.Deck
	var props string
	err := c.db.QueryRowContext(ctx, `
		SELECT deck_id, title, properties, version FROM deck_meta WHERE deck_id = ?
	`, deckID).Scan(&d.ID, &d.Title, &props, &d.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrCacheMiss
	}
	if err != nil {
		return d, err
	}
	if props != "" && props != "null" {
		if err := json.Unmarshal([]byte(props), &d.Properties); err != nil {
			return d, fmt.Errorf("decode deck properties: %w", err)
		}
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT payload FROM slide_cache WHERE deck_id = ? ORDER BY position ASC
	`, deckID)
	if err != nil {
		return d, err
	}
	defer rows.Close()
	d.Slides = []deck.Slide{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return d, err
		}
		var s deck.Slide
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return d, fmt.Errorf("decode cached slide: %w", err)
		}
		d.Slides = append(d.Slides, s)
	}
	return d, rows.Err()
}

// Clear removes the given slides from the cache, or the whole deck entry when
// no slide ids are given.
func (c *Cache) Clear(ctx context.Context, deckID string, slideIDs ...string) error {
	if len(slideIDs) == 0 {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM slide_cache WHERE deck_id = ?`, deckID); err != nil {
			return err
		}
		_, err := c.db.ExecContext(ctx, `DELETE FROM deck_meta WHERE deck_id = ?`, deckID)
		return err
	}
	for _, id := range slideIDs {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM slide_cache WHERE deck_id = ? AND slide_id = ?`, deckID, id); err != nil {
			return err
		}
	}
	return nil
}
