package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// 流式消息每个增量都是新文本，缓存满后整体清空。
const maxCachedMessages = 256

// Markdown 渲染助手消息。渲染器按宽度缓存；创建或渲染失败时退回纯文本换行。
type Markdown struct {
	style string

	mu       sync.Mutex
	width    int
	renderer *glamour.TermRenderer
	cache    map[string][]string
}

// NewMarkdown 创建渲染器。style 为 glamour 的样式名（dark、light、notty…），
// 为空时按终端背景自动选择。
func NewMarkdown(style string) *Markdown {
	return &Markdown{style: style, cache: map[string][]string{}}
}

// Render 返回按 width 换行后的终端文本行，首尾空行已去除。
func (m *Markdown) Render(text string, width int) []string {
	if m == nil || strings.TrimSpace(text) == "" {
		return wrapText(text, width)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if width != m.width || m.renderer == nil {
		m.width = width
		m.cache = map[string][]string{}
		m.renderer = m.newRenderer(width)
	}
	if lines, ok := m.cache[text]; ok {
		return lines
	}
	if m.renderer == nil {
		return wrapText(text, width)
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return wrapText(text, width)
	}
	lines := trimBlankEdges(strings.Split(out, "\n"))
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	if len(m.cache) >= maxCachedMessages {
		m.cache = map[string][]string{}
	}
	m.cache[text] = lines
	return lines
}

func (m *Markdown) newRenderer(width int) *glamour.TermRenderer {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if m.style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(m.style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil
	}
	return r
}
