package render

import (
	"strings"

	"deckpilot/internal/protocol"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	planHeaderStyle     = lipgloss.NewStyle().Bold(true)
	planBranchStyle     = lipgloss.NewStyle().Faint(true)
	planCompletedStyle  = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	planInProgressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2DD4BF")).Bold(true)
	planPendingStyle    = lipgloss.NewStyle().Faint(true)
)

// RenderPlan 渲染已揭示的计划步骤；步骤还未揭示时只显示标题。
func RenderPlan(steps []protocol.PlanStep, width int) []Line {
	lines := []Line{{Spans: []Span{
		{Text: "• ", Style: planBranchStyle},
		{Text: "Plan", Style: planHeaderStyle},
	}}}
	var indented []Line
	for _, step := range steps {
		indented = append(indented, renderPlanStep(step, width)...)
	}
	indented = PrefixLines(
		indented,
		Span{Text: "  └ ", Style: planBranchStyle},
		Span{Text: "    "},
	)
	return append(lines, indented...)
}

func renderPlanStep(step protocol.PlanStep, width int) []Line {
	box := "□ "
	style := planPendingStyle
	switch strings.ToLower(strings.TrimSpace(step.Status)) {
	case "completed", "complete", "done":
		box = "✔ "
		style = planCompletedStyle
	case "in_progress", "running", "active":
		style = planInProgressStyle
	case "failed", "error":
		box = "✘ "
		style = errStyle
	}

	// 外层缩进占 4 列，再减去复选框宽度。
	wrapWidth := maxInt(1, width-4-runewidth.StringWidth(box))
	return PrefixLines(
		wrapLines(strings.TrimSpace(step.Title), wrapWidth, style),
		Span{Text: box},
		Span{Text: "  "},
	)
}
