package tui

import (
	"fmt"
	"time"

	"deckpilot/internal/tui/render"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// StatusState 枚举状态行可显示的状态。
type StatusState int

const (
	// StatusIdle 表示空闲，不显示状态行。
	StatusIdle StatusState = iota
	// StatusSending 表示请求已提交、等待 agent 响应，计时器累加。
	StatusSending
	// StatusGenerating 表示 agent 正在生成幻灯片，计时器累加。
	StatusGenerating
	// StatusError 表示最近一次请求失败。
	StatusError
)

func (s StatusState) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSending:
		return "sending"
	case StatusGenerating:
		return "generating"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

func (s StatusState) defaultHeader() string {
	switch s {
	case StatusSending:
		return "Waiting for the agent"
	case StatusGenerating:
		return "Generating deck"
	case StatusError:
		return "Request failed"
	default:
		return ""
	}
}

func (s StatusState) tracksElapsed() bool {
	return s == StatusSending || s == StatusGenerating
}

// StatusIndicator 管理状态行：spinner + 标题 + 计时/中断提示。
type StatusIndicator struct {
	state  StatusState
	header string

	elapsed      time.Duration
	lastResumeAt time.Time
	running      bool

	clock func() time.Time
}

func NewStatusIndicator(clock func() time.Time) *StatusIndicator {
	if clock == nil {
		clock = time.Now
	}
	return &StatusIndicator{clock: clock}
}

// SetState 切换状态；从空闲进入计时状态时计时清零。
func (w *StatusIndicator) SetState(state StatusState) {
	if w == nil || state == w.state {
		return
	}
	now := w.clock()
	switch {
	case state.tracksElapsed() && !w.running:
		if w.state == StatusIdle || w.state == StatusError {
			w.elapsed = 0
		}
		w.lastResumeAt = now
		w.running = true
	case !state.tracksElapsed() && w.running:
		w.elapsed += now.Sub(w.lastResumeAt)
		w.running = false
	}
	w.state = state
	w.header = state.defaultHeader()
}

// SetHeader 覆盖当前状态的标题，例如显示错误原因。
func (w *StatusIndicator) SetHeader(header string) {
	if w == nil {
		return
	}
	w.header = header
}

func (w *StatusIndicator) State() StatusState {
	if w == nil {
		return StatusIdle
	}
	return w.state
}

// Elapsed 返回累计计时。
func (w *StatusIndicator) Elapsed() time.Duration {
	if w == nil {
		return 0
	}
	if w.running {
		return w.elapsed + w.clock().Sub(w.lastResumeAt)
	}
	return w.elapsed
}

// View 渲染状态行；spinner 由调用方传入，空闲时返回空行。
func (w *StatusIndicator) View(spin string, width int) render.Line {
	if w == nil || w.state == StatusIdle || width <= 0 {
		return render.Line{}
	}
	lead := spin
	if w.state == StatusError {
		lead = "!"
	}
	spans := []render.Span{{Text: lead}}
	if w.header != "" {
		spans = append(spans, render.Span{Text: " "}, render.Span{Text: w.header})
	}
	hint := formatHint(fmtElapsedCompact(uint64(w.Elapsed().Seconds())), w.state.tracksElapsed())
	if w.state == StatusError {
		hint = ""
	}
	if hint != "" {
		spans = append(spans, render.Span{Text: " "}, render.Span{Text: hint, Style: lipgloss.NewStyle().Faint(true)})
	}
	return render.Line{Spans: clampSpans(spans, width)}
}

func formatHint(elapsed string, interruptible bool) string {
	if interruptible {
		return fmt.Sprintf("(%s • esc to stop)", elapsed)
	}
	return fmt.Sprintf("(%s)", elapsed)
}

// fmtElapsedCompact 将秒数格式化为紧凑形式，例如 "1m 05s"。
func fmtElapsedCompact(elapsedSecs uint64) string {
	switch {
	case elapsedSecs < 60:
		return fmt.Sprintf("%ds", elapsedSecs)
	case elapsedSecs < 3600:
		return fmt.Sprintf("%dm %02ds", elapsedSecs/60, elapsedSecs%60)
	default:
		return fmt.Sprintf("%dh %02dm %02ds", elapsedSecs/3600, (elapsedSecs%3600)/60, elapsedSecs%60)
	}
}

func clampSpans(spans []render.Span, width int) []render.Span {
	remaining := width
	out := make([]render.Span, 0, len(spans))
	for _, sp := range spans {
		if remaining <= 0 {
			break
		}
		tw := runewidth.StringWidth(sp.Text)
		if tw > remaining {
			sp.Text = runewidth.Truncate(sp.Text, remaining, "")
			tw = remaining
		}
		if sp.Text != "" {
			out = append(out, sp)
		}
		remaining -= tw
	}
	return out
}
