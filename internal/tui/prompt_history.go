package tui

import (
	"strings"

	"deckpilot/internal/transcript"
)

const maxPromptHistory = 100

// promptHistory 负责输入框历史浏览状态（上下箭头）。
// cursor == len(entries) 表示当前在“最新输入”（非浏览历史）位置。
type promptHistory struct {
	entries []string
	cursor  int
	draft   string
}

// SetFromRows 用转录中的用户消息重建历史，恢复会话时使用。
func (h *promptHistory) SetFromRows(rows []transcript.Row) {
	h.entries = h.entries[:0]
	for _, r := range rows {
		if r.Role == transcript.RoleUser {
			h.push(r.Text)
		}
	}
	h.ResetBrowsing()
}

// Seed 在已有历史之前插入持久化的提示。
func (h *promptHistory) Seed(texts []string) {
	current := h.entries
	h.entries = nil
	for _, t := range texts {
		h.push(t)
	}
	for _, t := range current {
		h.push(t)
	}
	h.ResetBrowsing()
}

func (h *promptHistory) Add(text string) {
	h.push(text)
	h.ResetBrowsing()
}

// push 跳过空输入和与上一条相同的输入。
func (h *promptHistory) push(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == text {
		return
	}
	h.entries = append(h.entries, text)
	if len(h.entries) > maxPromptHistory {
		h.entries = h.entries[len(h.entries)-maxPromptHistory:]
	}
}

func (h *promptHistory) Browsing() bool {
	return h.cursor < len(h.entries)
}

func (h *promptHistory) ResetBrowsing() {
	h.cursor = len(h.entries)
	h.draft = ""
}

func (h *promptHistory) Prev(current string) (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.cursor == len(h.entries) {
		h.draft = current
	}
	if h.cursor > 0 {
		h.cursor--
	}
	return h.entries[h.cursor], true
}

func (h *promptHistory) Next() (string, bool) {
	if h.cursor >= len(h.entries) {
		return "", false
	}
	if h.cursor < len(h.entries)-1 {
		h.cursor++
		return h.entries[h.cursor], true
	}
	h.cursor = len(h.entries)
	return h.draft, true
}
