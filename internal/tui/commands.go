package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"deckpilot/internal/events"
	"deckpilot/internal/selection"
	"deckpilot/internal/session"
	"deckpilot/internal/tui/slash"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
)

const (
	pickerLimit = 50
	pathLimit   = 20
)

func (m *Model) runCommand(cmd slash.Command, args string) tea.Cmd {
	switch cmd {
	case slash.CommandQuit, slash.CommandExit:
		return tea.Quit
	case slash.CommandSelect:
		m.selectElements(args)
	case slash.CommandClearSelection:
		m.selections = nil
	case slash.CommandSlide:
		m.setSlide(args)
	case slash.CommandAttach:
		m.attach(args)
	case slash.CommandEdit:
		m.toggleEdit(args)
	case slash.CommandCopy:
		m.copyLastReply()
	case slash.CommandReload:
		m.submit(events.Operation{Kind: events.OperationReload})
	case slash.CommandInterrupt:
		m.interrupt()
	case slash.CommandResume:
		m.resume()
	case slash.CommandClear:
		if m.opts.Transcript != nil {
			m.opts.Transcript.Clear()
		}
		m.selections = nil
		m.dirty = true
	case slash.CommandStatus:
		m.system(m.statusText())
	}
	return nil
}

// system 在聊天记录中追加一条本地提示。
func (m *Model) system(text string) {
	if m.opts.Transcript == nil {
		m.notice = text
		return
	}
	m.opts.Transcript.AddSystem(text)
	m.dirty = true
}

func (m *Model) submit(op events.Operation) {
	if m.opts.Gateway == nil {
		m.notice = "not connected"
		return
	}
	id, err := m.opts.Gateway.Submit(context.Background(), events.Submission{Operation: op, DeckID: m.opts.DeckID})
	if err != nil {
		m.notice = err.Error()
		return
	}
	m.track(id)
}

// selectElements 按文本模糊匹配元素：唯一匹配直接选中，否则打开选择列表。
func (m *Model) selectElements(query string) {
	candidates := selection.Find(m.opts.Deck(), query, pickerLimit)
	switch len(candidates) {
	case 0:
		m.notice = fmt.Sprintf("no element matches %q", query)
		return
	case 1:
		if query != "" {
			m.addSelection(candidates[0].Descriptor)
			return
		}
	}
	items := make([]list.Item, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, candidateItem{c})
	}
	m.picker.SetItems(items)
	m.picker.ResetSelected()
	m.picking = true
}

func (m *Model) addSelection(desc selection.Descriptor) {
	m.selections = selection.Normalize(append(m.selections, desc))
}

func (m *Model) updatePicker(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		if item, ok := m.picker.SelectedItem().(candidateItem); ok {
			m.addSelection(item.Descriptor)
		}
		m.picking = false
		return nil
	case "esc", "ctrl+c":
		m.picking = false
		return nil
	}
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	return cmd
}

type candidateItem struct {
	selection.Candidate
}

func (i candidateItem) FilterValue() string { return i.Label }
func (i candidateItem) Title() string       { return i.Label }
func (i candidateItem) Description() string { return i.Descriptor.ElementID }

// setSlide 接受从 1 开始的幻灯片序号或幻灯片 id。
func (m *Model) setSlide(arg string) {
	d := m.opts.Deck()
	if arg == "" {
		m.notice = "usage: /slide <n|id>"
		return
	}
	slideID := ""
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(d.Slides) {
			m.notice = fmt.Sprintf("slide %d is out of range (1-%d)", n, len(d.Slides))
			return
		}
		slideID = d.Slides[n-1].ID
	} else if _, ok := d.FindSlide(arg); ok {
		slideID = arg
	} else {
		m.notice = fmt.Sprintf("unknown slide %q", arg)
		return
	}
	if m.opts.Gateway != nil {
		if _, err := m.opts.Gateway.SubmitSetSlide(context.Background(), m.opts.DeckID, slideID); err != nil {
			m.notice = err.Error()
			return
		}
	}
	m.activeSlide = slideID
	m.notice = ""
}

func (m *Model) attach(path string) {
	if path == "" {
		m.notice = "usage: /attach <path>"
		return
	}
	if m.opts.Gateway == nil {
		m.notice = "not connected"
		return
	}
	id, err := m.opts.Gateway.SubmitUpload(context.Background(), m.opts.DeckID, path)
	if err != nil {
		m.notice = err.Error()
		return
	}
	m.track(id)
}

func (m *Model) toggleEdit(arg string) {
	switch strings.ToLower(arg) {
	case "on":
		m.opts.Mode.SetEditing(true)
	case "off":
		m.opts.Mode.SetEditing(false)
	case "":
		m.opts.Mode.SetEditing(!m.opts.Mode.Editing())
	default:
		m.notice = "usage: /edit on|off"
		return
	}
	if m.opts.Mode.Editing() {
		m.system("Edit mode on. Agent edits go to slide drafts until you leave edit mode.")
	} else {
		m.system("Edit mode off.")
	}
}

func (m *Model) copyLastReply() {
	if m.opts.Transcript == nil {
		return
	}
	text, ok := m.opts.Transcript.LastAssistant()
	if !ok || strings.TrimSpace(text) == "" {
		m.notice = "nothing to copy yet"
		return
	}
	if err := m.opts.Clipboard(text); err != nil {
		m.notice = "copy failed: " + err.Error()
		return
	}
	m.notice = "Copied the last reply."
}

func (m *Model) resume() {
	if m.opts.Sessions == nil || m.opts.Transcript == nil {
		m.notice = "sessions are not available"
		return
	}
	rec, err := m.opts.Sessions.Last(m.opts.DeckID)
	if err != nil {
		if errors.Is(err, session.ErrNoSessions) {
			m.notice = "no saved chat for this deck"
		} else {
			m.notice = "resume failed: " + err.Error()
		}
		return
	}
	m.opts.Transcript.Restore(rec.Rows)
	m.history.SetFromRows(rec.Rows)
	if rec.SlideID != "" && rec.SlideID != m.activeSlide {
		if _, ok := m.opts.Deck().FindSlide(rec.SlideID); ok {
			m.setSlide(rec.SlideID)
		}
	}
	m.dirty = true
}

func (m *Model) statusText() string {
	d := m.opts.Deck()
	parts := []string{fmt.Sprintf("Deck %s: %d slides", m.opts.DeckID, len(d.Slides))}
	if label := m.slideLabel(); label != "" {
		parts = append(parts, "active "+label)
	}
	if m.opts.Mode.Editing() {
		parts = append(parts, "edit mode on")
	}
	if m.opts.Mode.Generating() {
		parts = append(parts, "generating")
	}
	if n := len(m.selections); n > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", n))
	}
	return strings.Join(parts, ", ")
}

// slashArgs 为斜杠弹窗提供参数候选：幻灯片序号、编辑模式开关和本地文件。
func (m *Model) slashArgs(cmd slash.Command, prefix string) []slash.Suggestion {
	switch cmd {
	case slash.CommandSlide:
		d := m.opts.Deck()
		out := make([]slash.Suggestion, 0, len(d.Slides))
		for i, s := range d.Slides {
			detail := s.Title
			if detail == "" {
				detail = s.ID
			}
			if s.ID == m.activeSlide {
				detail += " (active)"
			}
			out = append(out, slash.Suggestion{Value: strconv.Itoa(i + 1), Detail: detail})
		}
		return out
	case slash.CommandEdit:
		return []slash.Suggestion{
			{Value: "on", Detail: "agent edits go to slide drafts"},
			{Value: "off", Detail: "agent edits apply to the deck"},
		}
	case slash.CommandAttach:
		return pathSuggestions(prefix)
	}
	return nil
}

func pathSuggestions(prefix string) []slash.Suggestion {
	matches, err := filepath.Glob(prefix + "*")
	if err != nil {
		return nil
	}
	out := make([]slash.Suggestion, 0, min(len(matches), pathLimit))
	for _, path := range matches {
		if len(out) == pathLimit {
			break
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.IsDir() {
			out = append(out, slash.Suggestion{Value: path + string(filepath.Separator), Detail: "dir"})
			continue
		}
		out = append(out, slash.Suggestion{Value: path, Detail: humanize.Bytes(uint64(info.Size()))})
	}
	return out
}
