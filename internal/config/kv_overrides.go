package config

import (
	"strconv"
	"strings"
)

// ApplyKVOverrides applies free-form -c key=value overrides. Unknown keys and
// malformed numbers are ignored.
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	if len(overrides) == 0 {
		return cfg
	}
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "agent_url", "agent-url":
			cfg.AgentURL = val
		case "legacy_url", "legacy-url":
			cfg.LegacyURL = val
		case "deck_url", "deck-url":
			cfg.DeckURL = val
		case "upload_url", "upload-url":
			cfg.UploadURL = val
		case "token":
			cfg.Token = val
		case "deck_id", "deck":
			cfg.DeckID = val
		case "deck_file":
			cfg.DeckFile = val
		case "cache_path":
			cfg.CachePath = val
		case "log_level":
			cfg.LogLevel = val
		case "session_rate":
			if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
				cfg.SessionRate = f
			}
		case "tool_dedup_ms":
			setPositive(&cfg.ToolDedupMs, val)
		case "lockout_ms":
			setPositive(&cfg.LockoutMs, val)
		case "plan_step_ms":
			setPositive(&cfg.PlanStepMs, val)
		case "plan_idle_ms":
			setPositive(&cfg.PlanIdleMs, val)
		case "style_window_ms":
			setPositive(&cfg.StyleWindowMs, val)
		case "request_timeout_seconds", "timeout":
			setPositive(&cfg.RequestTimeoutSecs, val)
		}
	}
	return cfg
}

func setPositive(dst *int, val string) {
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		*dst = n
	}
}
