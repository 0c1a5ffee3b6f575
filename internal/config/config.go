package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the only persisted config file schema.
type Config struct {
	AgentURL  string `toml:"agent_url"`
	LegacyURL string `toml:"legacy_url"`
	DeckURL   string `toml:"deck_url"`
	UploadURL string `toml:"upload_url"`
	Token     string `toml:"token"`
	DeckID    string `toml:"deck_id"`
	DeckFile  string `toml:"deck_file,omitempty"`
	CachePath string `toml:"cache_path"`
	LogLevel  string `toml:"log_level,omitempty"`

	// SessionRate caps session creations per second.
	SessionRate float64 `toml:"session_rate"`

	ToolDedupMs        int `toml:"tool_dedup_ms"`
	LockoutMs          int `toml:"lockout_ms"`
	PlanStepMs         int `toml:"plan_step_ms"`
	PlanIdleMs         int `toml:"plan_idle_ms"`
	StyleWindowMs      int `toml:"style_window_ms"`
	RequestTimeoutSecs int `toml:"request_timeout_seconds"`

	Source string `toml:"-"`
}

func Default() Config {
	return Config{
		CachePath:          defaultCachePath(),
		SessionRate:        1,
		ToolDedupMs:        2500,
		LockoutMs:          3000,
		PlanStepMs:         600,
		PlanIdleMs:         10000,
		StyleWindowMs:      8000,
		RequestTimeoutSecs: 60,
	}
}

// AgentConfigured reports whether a session-based agent backend is set.
func (c Config) AgentConfigured() bool {
	return strings.TrimSpace(c.AgentURL) != ""
}

func (c Config) ToolDedupWindow() time.Duration { return millis(c.ToolDedupMs) }
func (c Config) LockoutWindow() time.Duration   { return millis(c.LockoutMs) }
func (c Config) PlanStepDelay() time.Duration   { return millis(c.PlanStepMs) }
func (c Config) PlanIdleWindow() time.Duration  { return millis(c.PlanIdleMs) }
func (c Config) StyleWindow() time.Duration     { return millis(c.StyleWindowMs) }

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".deckpilot")
}

func DefaultPath() string {
	dir := homeDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

func defaultCachePath() string {
	dir := homeDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "cache.db")
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return applyEnv(cfg), nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return cfg, err
	}
	return applyEnv(cfg), nil
}

var envKeys = map[string]func(*Config, string){
	"DECKPILOT_AGENT_URL":  func(c *Config, v string) { c.AgentURL = v },
	"DECKPILOT_LEGACY_URL": func(c *Config, v string) { c.LegacyURL = v },
	"DECKPILOT_DECK_URL":   func(c *Config, v string) { c.DeckURL = v },
	"DECKPILOT_UPLOAD_URL": func(c *Config, v string) { c.UploadURL = v },
	"DECKPILOT_TOKEN":      func(c *Config, v string) { c.Token = v },
}

func applyEnv(cfg Config) Config {
	for key, set := range envKeys {
		if env := strings.TrimSpace(os.Getenv(key)); env != "" {
			set(&cfg, env)
		}
	}
	return cfg
}
