package render

import (
	"fmt"
	"strings"

	"deckpilot/internal/deck"
	"deckpilot/internal/transcript"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	accentColor = lipgloss.Color("#7D56F4")

	welcomeStyle    = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	userPrefixStyle = lipgloss.NewStyle().Faint(true).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(accentColor)
	faintStyle      = lipgloss.NewStyle().Faint(true)
	followUpStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
	okStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	errStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB454"))
	selectionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#2DD4BF"))
	insertStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	deleteStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626")).Strikethrough(true)
)

const streamCursor = " ▍"

// RenderRows 将转录行渲染为终端行，行与行之间空一行。md 为 nil 时助手消息
// 按纯文本换行。
func RenderRows(rows []transcript.Row, width int, md *Markdown) []Line {
	if width <= 0 {
		width = 80
	}
	col := NewColumn(1)
	for _, r := range rows {
		col.Push(rowBlock{row: r, md: md})
	}
	return col.Lines(width)
}

type rowBlock struct {
	row transcript.Row
	md  *Markdown
}

func (b rowBlock) Lines(width int) []Line {
	r := b.row
	text := strings.TrimRight(r.Text, "\n")
	switch r.Role {
	case transcript.RoleWelcome:
		return wrapLines(text, width, welcomeStyle)
	case transcript.RoleUser:
		lines := prefixed(text, width, Span{Text: "› ", Style: userPrefixStyle}, lipgloss.Style{})
		if n := len(r.Targets); n > 0 {
			lines = append(lines, Line{Spans: []Span{{Text: "  ↳ " + targetsText(n), Style: faintStyle}}})
		}
		return lines
	case transcript.RoleMessage:
		return b.message(width)
	case transcript.RoleProgress:
		return progressLines(r, width)
	case transcript.RoleCompletion, transcript.RoleApplied:
		return prefixed(text, width, Span{Text: "✓ ", Style: okStyle}, lipgloss.Style{})
	case transcript.RoleFollowUp:
		return wrapLines(text, width, followUpStyle)
	case transcript.RolePlan:
		return RenderPlan(r.Steps, width)
	case transcript.RoleTool:
		style := faintStyle
		if isFailure(r.Status) {
			style = errStyle
		}
		return prefixed(text, width, Span{Text: "⚙ ", Style: style}, style)
	case transcript.RoleSelection:
		return prefixed(text, width, Span{Text: "◎ ", Style: selectionStyle}, selectionStyle)
	case transcript.RoleProposal:
		return proposalLines(r, width)
	case transcript.RoleSystem:
		return prefixed(text, width, Span{Text: "! ", Style: warnStyle}, lipgloss.Style{})
	}
	return wrapLines(text, width, lipgloss.Style{})
}

func (b rowBlock) message(width int) []Line {
	inner := maxInt(1, width-2)
	var body []Line
	if b.md != nil {
		for _, l := range b.md.Render(b.row.Text, inner) {
			body = append(body, Plain(l))
		}
	} else {
		body = wrapLines(b.row.Text, inner, lipgloss.Style{})
	}
	if len(body) == 0 {
		body = []Line{{}}
	}
	if b.row.Streaming {
		last := &body[len(body)-1]
		last.Spans = append(last.Spans, Span{Text: streamCursor, Style: assistantStyle})
	}
	return PrefixLines(body, Span{Text: "• ", Style: assistantStyle}, Span{Text: "  "})
}

func prefixed(text string, width int, first Span, style lipgloss.Style) []Line {
	indent := Span{Text: strings.Repeat(" ", runewidth.StringWidth(first.Text))}
	inner := maxInt(1, width-runewidth.StringWidth(first.Text))
	return PrefixLines(wrapLines(text, inner, style), first, indent)
}

func targetsText(n int) string {
	if n == 1 {
		return "1 element selected"
	}
	return fmt.Sprintf("%d elements selected", n)
}

func isFailure(status string) bool {
	switch strings.ToLower(status) {
	case "failed", "error":
		return true
	}
	return false
}

func progressLines(r transcript.Row, width int) []Line {
	lines := prefixed(r.Text, width, Span{Text: "⋯ ", Style: assistantStyle}, faintStyle)
	if !r.HasPercent {
		return lines
	}
	barWidth := minInt(40, maxInt(10, width-2))
	bar := progress.New(
		progress.WithSolidFill(string(accentColor)),
		progress.WithoutPercentage(),
		progress.WithWidth(barWidth),
	)
	pct := r.Percent / 100
	if pct > 1 {
		pct = 1
	}
	if pct < 0 {
		pct = 0
	}
	return append(lines, Line{Spans: []Span{{Text: "  "}, {Text: bar.ViewAs(pct)}}})
}

func proposalLines(r transcript.Row, width int) []Line {
	title := r.Text
	if r.Applied {
		title += " (applied)"
	}
	lines := prefixed(title, width, Span{Text: "✎ ", Style: assistantStyle}, lipgloss.Style{})
	for _, c := range r.Changes {
		lines = append(lines, Line{Spans: []Span{
			{Text: "  └ ", Style: faintStyle},
			{Text: changeTarget(c), Style: faintStyle},
		}})
		spans := []Span{{Text: "    "}}
		for _, seg := range c.Segments {
			text := strings.ReplaceAll(seg.Text, "\n", " ")
			switch seg.Op {
			case deck.SegmentInsert:
				spans = append(spans, Span{Text: text, Style: insertStyle})
			case deck.SegmentDelete:
				spans = append(spans, Span{Text: text, Style: deleteStyle})
			default:
				spans = append(spans, Span{Text: text})
			}
		}
		lines = append(lines, Line{Spans: clampSpans(spans, width)})
	}
	return lines
}

func changeTarget(c deck.TextChange) string {
	if c.SlideID == "" {
		return c.ComponentID
	}
	return c.SlideID + " / " + c.ComponentID
}

// clampSpans 截断超出 width 的 Span，被截断时以 … 结尾。
func clampSpans(spans []Span, width int) []Span {
	total := 0
	for _, sp := range spans {
		total += runewidth.StringWidth(sp.Text)
	}
	if total <= width || width <= 1 {
		return spans
	}
	remaining := width - 1
	out := make([]Span, 0, len(spans)+1)
	var last lipgloss.Style
	for _, sp := range spans {
		if remaining <= 0 {
			break
		}
		tw := runewidth.StringWidth(sp.Text)
		if tw > remaining {
			sp.Text = runewidth.Truncate(sp.Text, remaining, "")
			tw = runewidth.StringWidth(sp.Text)
		}
		out = append(out, sp)
		last = sp.Style
		remaining -= tw
	}
	return append(out, Span{Text: "…", Style: last})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
