package slash

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	nameStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C4A1FF"))
	descStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	highlightStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EBCB8B"))
	selectedStyle  = lipgloss.NewStyle().Background(lipgloss.Color("#2F2A3D"))
)

// View 渲染弹窗内容（不含外围边框），每个条目一行。
func (s *State) View(width int) string {
	if !s.Open() {
		return ""
	}
	if width < 20 {
		width = 20
	}
	if len(s.entries) == 0 {
		return descStyle.Render("no matches")
	}

	nameWidth := 0
	for _, e := range s.entries {
		nameWidth = max(nameWidth, runewidth.StringWidth(e.label))
	}
	nameWidth = min(nameWidth, width/2)
	detailWidth := max(0, width-nameWidth-2)

	start, end := window(len(s.entries), s.selected, s.maxLines)
	lines := make([]string, 0, end-start+1)
	for i := start; i < end; i++ {
		e := s.entries[i]
		label := runewidth.Truncate(e.label, nameWidth, "…")
		pad := strings.Repeat(" ", nameWidth-runewidth.StringWidth(label))
		row := highlight(label, e.highlights) + pad + "  " + descStyle.Render(runewidth.Truncate(e.detail, detailWidth, "…"))
		if i == s.selected {
			row = selectedStyle.Render(row)
		}
		lines = append(lines, row)
	}
	if end-start < len(s.entries) {
		lines = append(lines, descStyle.Render(fmt.Sprintf("%d/%d", s.selected+1, len(s.entries))))
	}
	return strings.Join(lines, "\n")
}

// window 返回可见条目区间，保证选中项可见。
func window(n, selected, limit int) (int, int) {
	if limit <= 0 || n <= limit {
		return 0, n
	}
	start := max(0, selected-limit+1)
	return start, start + limit
}

func highlight(label string, marks []int) string {
	marked := make(map[int]bool, len(marks))
	for _, i := range marks {
		marked[i] = true
	}
	var b, run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			b.WriteString(nameStyle.Render(run.String()))
			run.Reset()
		}
	}
	for i, r := range []rune(label) {
		if !marked[i] {
			run.WriteRune(r)
			continue
		}
		flush()
		b.WriteString(highlightStyle.Render(string(r)))
	}
	flush()
	return b.String()
}
