package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deckpilot/internal/deck"
	"deckpilot/internal/events"
	"deckpilot/internal/mode"
	"deckpilot/internal/selection"
	"deckpilot/internal/session"
	"deckpilot/internal/transcript"
	"deckpilot/internal/tui/render"
	"deckpilot/internal/tui/slash"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Gateway 抽象事件管理器：把用户操作放入 SQ 并订阅 EQ。
type Gateway interface {
	SubmitMessage(ctx context.Context, deckID string, op events.SendMessageOperation) (string, error)
	SubmitUpload(ctx context.Context, deckID, path string) (string, error)
	SubmitSetSlide(ctx context.Context, deckID, slideID string) (string, error)
	Submit(ctx context.Context, submission events.Submission) (string, error)
	Interrupt() int
	Subscribe() <-chan events.Event
}

// TranscriptView 是 TUI 读写聊天记录所需的接口。
type TranscriptView interface {
	Rows() []transcript.Row
	AddSystem(text string) string
	LastAssistant() (string, bool)
	Restore(rows []transcript.Row)
	Clear()
}

// PromptLog 跨会话保存输入过的提示。
type PromptLog interface {
	Append(deckID, text string) error
	LoadTexts(deckID string) ([]string, error)
}

// SessionLoader 读取已保存的聊天记录。
type SessionLoader interface {
	Last(deckID string) (session.Record, error)
}

type Options struct {
	Gateway    Gateway
	Transcript TranscriptView
	Deck       func() deck.Deck
	Mode       *mode.Mode
	Sessions   SessionLoader
	Prompts    PromptLog

	DeckID  string
	SlideID string
	Title   string

	// MarkdownStyle 为 glamour 样式名，空值表示按终端自动选择。
	MarkdownStyle string
	InitialPrompt string

	Clipboard func(string) error
	Clock     func() time.Time
}

type eventMsg struct {
	Event events.Event
}

type queueClosedMsg struct{}

type Model struct {
	opts Options

	textarea textarea.Model
	viewport render.Viewport
	spin     spinner.Model
	slash    *slash.State
	picker   list.Model
	picking  bool
	status   *StatusIndicator
	history  promptHistory
	md       *render.Markdown

	sub      <-chan events.Event
	inflight map[string]bool

	selections  []selection.Descriptor
	activeSlide string
	notice      string
	dirty       bool

	width  int
	height int
}

func New(opts Options) *Model {
	ti := textarea.New()
	ti.Placeholder = "Describe a change, or type / for commands…"
	ti.Prompt = "› "
	ti.CharLimit = 0
	ti.ShowLineNumbers = false
	ti.SetWidth(90)
	ti.SetHeight(1)
	ti.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ti.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	picker := list.New(nil, list.NewDefaultDelegate(), 60, 12)
	picker.Title = "Select an element"
	picker.SetShowStatusBar(false)
	picker.DisableQuitKeybindings()

	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	if opts.Deck == nil {
		opts.Deck = func() deck.Deck { return deck.Deck{} }
	}
	if opts.Mode == nil {
		opts.Mode = mode.New()
	}
	if opts.Title == "" {
		opts.Title = "DeckPilot"
	}

	m := &Model{
		opts:        opts,
		textarea:    ti,
		viewport:    render.NewViewport(90, 12),
		spin:        spin,
		picker:      picker,
		status:      NewStatusIndicator(opts.Clock),
		md:          render.NewMarkdown(opts.MarkdownStyle),
		inflight:    map[string]bool{},
		activeSlide: opts.SlideID,
		dirty:       true,
		width:       90,
		height:      24,
	}
	m.slash = slash.NewState(slash.Options{Args: m.slashArgs})
	if opts.Gateway != nil {
		m.sub = opts.Gateway.Subscribe()
	}
	if opts.Transcript != nil {
		m.history.SetFromRows(opts.Transcript.Rows())
	}
	if opts.Prompts != nil {
		if texts, err := opts.Prompts.LoadTexts(opts.DeckID); err == nil {
			m.history.Seed(texts)
		}
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spin.Tick, textarea.Blink}
	if cmd := m.listen(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if prompt := strings.TrimSpace(m.opts.InitialPrompt); prompt != "" {
		cmds = append(cmds, func() tea.Msg {
			return tea.KeyMsg{Type: tea.KeyEnter}
		})
		m.textarea.SetValue(prompt)
	}
	return tea.Batch(cmds...)
}

// ActiveSlide 返回当前幻灯片 id。
func (m *Model) ActiveSlide() string {
	return m.activeSlide
}

// Selections 返回当前选中的元素。
func (m *Model) Selections() []selection.Descriptor {
	return append([]selection.Descriptor(nil), m.selections...)
}

func (m *Model) listen() tea.Cmd {
	if m.sub == nil {
		return nil
	}
	sub := m.sub
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return queueClosedMsg{}
		}
		return eventMsg{Event: ev}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.dirty = true
		return m.finish(cmds...)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m.finish(cmd)
	case eventMsg:
		m.handleEvent(msg.Event)
		return m.finish(m.listen())
	case queueClosedMsg:
		m.sub = nil
		return m.finish()
	case tea.MouseMsg:
		return m.finish(m.viewport.HandleUpdate(msg))
	case tea.KeyMsg:
		if m.picking {
			return m.finish(m.updatePicker(msg))
		}
		if act, handled := m.slash.HandleKey(msg.String()); handled {
			return m.finish(m.applySlash(act))
		}
		if cmd, handled := m.handleKey(msg); handled {
			return m.finish(cmd)
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	m.syncComposer()
	return m.finish(cmd)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit, true
	case "esc":
		if len(m.inflight) > 0 || m.opts.Mode.Generating() {
			m.interrupt()
		}
		m.notice = ""
		return nil, true
	case "pgup":
		m.viewport.PageUp()
		return nil, true
	case "pgdown":
		m.viewport.PageDown()
		return nil, true
	case "up":
		if m.textarea.Line() == 0 && (m.textarea.Value() == "" || m.history.Browsing()) {
			if text, ok := m.history.Prev(m.textarea.Value()); ok {
				m.textarea.SetValue(text)
			}
			return nil, true
		}
	case "down":
		if m.history.Browsing() {
			if text, ok := m.history.Next(); ok {
				m.textarea.SetValue(text)
			}
			return nil, true
		}
	case "enter":
		input := strings.TrimSpace(m.textarea.Value())
		if input == "" {
			return nil, true
		}
		m.textarea.Reset()
		m.syncComposer()
		m.history.Add(input)
		if m.opts.Prompts != nil {
			_ = m.opts.Prompts.Append(m.opts.DeckID, input)
		}
		if act := m.slash.ResolveSubmit(input); act.Kind != slash.ActionNone {
			return m.applySlash(act), true
		}
		m.send(input)
		return nil, true
	}
	return nil, false
}

// syncComposer 按输入行数调整输入框高度，并同步斜杠弹窗。
func (m *Model) syncComposer() {
	lines := strings.Count(m.textarea.Value(), "\n") + 1
	if lines > 6 {
		lines = 6
	}
	if m.textarea.Height() != lines {
		m.textarea.SetHeight(lines)
	}
	info := m.textarea.LineInfo()
	m.slash.SyncInput(slash.Input{
		Value:        m.textarea.Value(),
		CursorLine:   m.textarea.Line(),
		CursorColumn: info.StartColumn + info.ColumnOffset,
		Blocked:      m.picking,
	})
}

func (m *Model) applySlash(act slash.Action) tea.Cmd {
	switch act.Kind {
	case slash.ActionInsert:
		m.textarea.SetValue(act.NewValue)
		m.textarea.SetCursor(act.CursorColumn)
		m.syncComposer()
	case slash.ActionSubmitCommand:
		m.textarea.Reset()
		m.syncComposer()
		return m.runCommand(act.Command, strings.TrimSpace(act.Args))
	case slash.ActionError:
		m.notice = act.Message
	}
	return nil
}

func (m *Model) send(text string) {
	if m.opts.Gateway == nil {
		m.notice = "not connected"
		return
	}
	id, err := m.opts.Gateway.SubmitMessage(context.Background(), m.opts.DeckID, events.SendMessageOperation{
		Text:       text,
		Selections: m.Selections(),
	})
	if err != nil {
		m.notice = err.Error()
		return
	}
	m.track(id)
}

func (m *Model) track(id string) {
	m.inflight[id] = true
	m.notice = ""
	if m.status.State() != StatusGenerating {
		m.status.SetState(StatusSending)
	}
}

func (m *Model) interrupt() {
	if m.opts.Gateway == nil {
		return
	}
	if n := m.opts.Gateway.Interrupt(); n > 0 {
		m.notice = "Stopped."
	}
}

func (m *Model) handleEvent(ev events.Event) {
	m.dirty = true
	switch ev.Type {
	case events.EventTaskCompleted:
		if !m.inflight[ev.SubmissionID] {
			break
		}
		delete(m.inflight, ev.SubmissionID)
		if res, ok := ev.Payload.(events.TaskResult); ok && res.Status == "failed" {
			m.status.SetState(StatusError)
			m.status.SetHeader("Request failed: " + res.Error)
			return
		}
	case events.EventSubmissionAccepted, events.EventTaskStarted, events.EventError:
		return
	}
	m.syncStatus()
}

func (m *Model) syncStatus() {
	switch {
	case m.opts.Mode.Generating():
		m.status.SetState(StatusGenerating)
	case len(m.inflight) > 0:
		m.status.SetState(StatusSending)
	case m.status.State() != StatusError:
		m.status.SetState(StatusIdle)
	}
}

func (m *Model) finish(cmds ...tea.Cmd) (tea.Model, tea.Cmd) {
	m.layout()
	if m.dirty {
		m.flushTranscript()
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) flushTranscript() {
	m.dirty = false
	if m.opts.Transcript == nil {
		return
	}
	width := m.viewport.Width
	lines := render.LinesToStrings(render.RenderRows(m.opts.Transcript.Rows(), width, m.md))
	m.viewport.SetLines(lines)
}

// layout 根据窗口大小分配各区域高度。
func (m *Model) layout() {
	width := maxInt(20, m.width)
	m.textarea.SetWidth(width - 4)
	used := lipgloss.Height(m.renderHeader()) +
		m.textarea.Height() + 2 + // composer 边框
		1 + // 状态行
		1 // 提示行
	if line := m.renderSelections(); line != "" {
		used += lipgloss.Height(line)
	}
	if popup := m.renderPopup(); popup != "" {
		used += lipgloss.Height(popup)
	}
	height := maxInt(3, m.height-used)
	if m.viewport.Width != width-2 {
		m.dirty = true
	}
	m.viewport.Resize(width-2, height)
}

func (m *Model) View() string {
	width := maxInt(20, m.width)
	parts := []string{
		m.renderHeader(),
		lipgloss.NewStyle().PaddingLeft(1).Render(m.viewport.View()),
	}
	if line := m.renderSelections(); line != "" {
		parts = append(parts, line)
	}
	if popup := m.renderPopup(); popup != "" {
		parts = append(parts, popup)
	}
	parts = append(parts,
		composerStyle.Width(width-2).Render(m.textarea.View()),
		m.renderStatus(width),
		hintStyle.Width(width).Render("Enter send • Alt+Enter newline • / commands • Esc stop • PgUp/PgDn scroll • Ctrl+C quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

var (
	headerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), false, false, true, false).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7A85"))
	composerStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#5E6472"))
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7A85")).Padding(0, 1)
	selectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2DD4BF")).Padding(0, 1)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB454")).Padding(0, 1)
	modalStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FFB454")).
			Padding(0, 1)
)

func (m *Model) renderHeader() string {
	info := []string{}
	if m.opts.DeckID != "" {
		info = append(info, "deck "+m.opts.DeckID)
	}
	if label := m.slideLabel(); label != "" {
		info = append(info, label)
	}
	if m.opts.Mode.Editing() {
		info = append(info, "edit mode")
	}
	line := titleStyle.Render(m.opts.Title)
	if len(info) > 0 {
		line += "  " + infoStyle.Render(strings.Join(info, " • "))
	}
	return headerStyle.Width(maxInt(20, m.width)).Render(line)
}

func (m *Model) slideLabel() string {
	d := m.opts.Deck()
	if len(d.Slides) == 0 {
		return ""
	}
	idx := d.SlideIndex(m.activeSlide)
	if idx < 0 {
		return fmt.Sprintf("%d slides", len(d.Slides))
	}
	return fmt.Sprintf("slide %d/%d", idx+1, len(d.Slides))
}

func (m *Model) renderSelections() string {
	if len(m.selections) == 0 {
		return ""
	}
	labels := selection.Labels(m.opts.Deck(), m.selections)
	return selectionStyle.Width(maxInt(20, m.width)).Render("Selected: " + strings.Join(labels, ", "))
}

func (m *Model) renderPopup() string {
	switch {
	case m.picking:
		return modalStyle.Render(m.picker.View())
	case m.slash.Open():
		return modalStyle.Render(m.slash.View(maxInt(20, m.width-4)))
	}
	return ""
}

func (m *Model) renderStatus(width int) string {
	if m.notice != "" {
		return noticeStyle.Width(width).Render(m.notice)
	}
	line := m.status.View(m.spin.View(), width-2)
	return lipgloss.NewStyle().Padding(0, 1).Render(render.LinesToStrings([]render.Line{line})[0])
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
