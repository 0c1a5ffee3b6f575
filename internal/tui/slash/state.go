package slash

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
)

const errUnknown = "unknown command, type / to see the list"

// Suggestion 是一条参数候选。
type Suggestion struct {
	Value  string
	Detail string
}

// ArgSource 为命令给出参数候选，prefix 是已经输入的参数。
type ArgSource func(cmd Command, prefix string) []Suggestion

type Options struct {
	MaxLines int
	Args     ArgSource
}

// Input 是输入框的当前文本与光标。
type Input struct {
	Value        string
	CursorLine   int
	CursorColumn int
	Blocked      bool // 元素选择列表打开时为 true
}

type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionClose
	ActionInsert
	ActionSubmitCommand
	ActionError
)

// Action 是按键或提交的处理结果，由 tui.Model 执行。
type Action struct {
	Kind         ActionKind
	Command      Command
	Args         string
	NewValue     string
	CursorColumn int
	Message      string
}

// entry 是弹窗中的一行：命令模式下是一条命令，参数模式下是一条候选。
type entry struct {
	spec       Spec
	label      string
	detail     string
	value      string
	highlights []int
}

// line 是输入框第一行解析出的命令。
type line struct {
	ok      bool
	name    string
	args    string
	nameEnd int
	rest    string
}

func parseLine(value string) line {
	first, rest := value, ""
	if i := strings.IndexByte(value, '\n'); i >= 0 {
		first, rest = value[:i], value[i:]
	}
	if !strings.HasPrefix(first, "/") {
		return line{}
	}
	name, args := first[1:], ""
	if i := strings.IndexFunc(name, unicode.IsSpace); i >= 0 {
		name, args = name[:i], strings.TrimLeftFunc(name[i:], unicode.IsSpace)
	}
	// "/tmp/deck.json" 之类的路径不是命令
	if strings.Contains(name, "/") {
		return line{}
	}
	return line{ok: true, name: name, args: args, nameEnd: 1 + utf8.RuneCountInString(name), rest: rest}
}

// State 是斜杠弹窗：光标在命令名上时补全命令，进入参数后向 ArgSource
// 要候选。
type State struct {
	maxLines int
	args     ArgSource

	open     bool
	argMode  bool
	entries  []entry
	selected int
	cur      line
}

func NewState(opts Options) *State {
	if opts.MaxLines <= 0 {
		opts.MaxLines = 8
	}
	return &State{maxLines: opts.MaxLines, args: opts.Args}
}

func (s *State) Open() bool {
	return s != nil && s.open
}

// SyncInput 在每次输入变化后重新计算弹窗内容。
func (s *State) SyncInput(in Input) {
	if s == nil {
		return
	}
	s.cur = parseLine(in.Value)
	s.open, s.argMode, s.entries = false, false, nil
	switch {
	case !s.cur.ok || in.Blocked || in.CursorLine != 0:
	case in.CursorColumn <= s.cur.nameEnd:
		s.entries = matchCommands(s.cur.name)
		s.open = true
	default:
		spec, ok := Lookup(s.cur.name)
		if !ok || spec.Args == ArgNone || s.args == nil {
			break
		}
		s.entries = matchArgs(spec, s.cur.args, s.args(spec.Command, s.cur.args))
		s.argMode = true
		s.open = len(s.entries) > 0
	}
	if s.selected >= len(s.entries) {
		s.selected = 0
	}
}

// ResolveSubmit 解析按 Enter 时的整行输入。不是命令的文本返回 ActionNone，
// 由调用方当作普通消息发送。
func (s *State) ResolveSubmit(value string) Action {
	l := parseLine(strings.TrimSpace(value))
	if !l.ok {
		return Action{Kind: ActionNone}
	}
	spec, ok := Lookup(l.name)
	if !ok {
		return Action{Kind: ActionError, Message: errUnknown}
	}
	if spec.Args == ArgRequired && l.args == "" {
		return Action{Kind: ActionError, Message: "usage: " + spec.Usage()}
	}
	return Action{Kind: ActionSubmitCommand, Command: spec.Command, Args: l.args}
}

// HandleKey 处理弹窗打开时的导航与确认键，未处理时返回 false。
func (s *State) HandleKey(key string) (Action, bool) {
	if !s.Open() {
		return Action{}, false
	}
	switch key {
	case "up", "ctrl+p":
		s.move(-1)
	case "down", "ctrl+n":
		s.move(1)
	case "esc":
		s.open = false
		return Action{Kind: ActionClose}, true
	case "tab", "enter":
		if len(s.entries) == 0 {
			return Action{Kind: ActionError, Message: errUnknown}, true
		}
		e := s.entries[s.selected]
		if s.argMode {
			return s.pickArg(e, key == "enter"), true
		}
		return s.pickCommand(e.spec, key == "enter"), true
	default:
		return Action{}, false
	}
	return Action{Kind: ActionNone}, true
}

func (s *State) move(delta int) {
	n := len(s.entries)
	if n == 0 {
		return
	}
	s.selected = (s.selected + delta + n) % n
}

// pickCommand 在 Tab 或缺少必需参数时补全命令名，否则直接提交。
func (s *State) pickCommand(spec Spec, submit bool) Action {
	if submit && !(spec.Args == ArgRequired && s.cur.args == "") {
		s.open = false
		return Action{Kind: ActionSubmitCommand, Command: spec.Command, Args: s.cur.args}
	}
	head := "/" + string(spec.Command) + " "
	return Action{
		Kind:         ActionInsert,
		NewValue:     head + s.cur.args + s.cur.rest,
		CursorColumn: utf8.RuneCountInString(head),
	}
}

func (s *State) pickArg(e entry, submit bool) Action {
	if submit {
		s.open = false
		return Action{Kind: ActionSubmitCommand, Command: e.spec.Command, Args: e.value}
	}
	value := "/" + string(e.spec.Command) + " " + e.value
	return Action{
		Kind:         ActionInsert,
		NewValue:     value + s.cur.rest,
		CursorColumn: utf8.RuneCountInString(value),
	}
}

func matchCommands(query string) []entry {
	all := Commands()
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		out := make([]entry, len(all))
		for i, spec := range all {
			out[i] = commandEntry(spec, nil)
		}
		return out
	}
	keys := make([]string, len(all))
	for i, spec := range all {
		keys[i] = string(spec.Command)
	}
	results := fuzzy.Find(query, keys)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return keys[results[i].Index] < keys[results[j].Index]
		}
		return results[i].Score > results[j].Score
	})
	out := make([]entry, 0, len(results))
	for _, r := range results {
		// 展示名带前导 "/"
		marks := make([]int, len(r.MatchedIndexes))
		for i, idx := range r.MatchedIndexes {
			marks[i] = idx + 1
		}
		out = append(out, commandEntry(all[r.Index], marks))
	}
	return out
}

func commandEntry(spec Spec, marks []int) entry {
	return entry{spec: spec, label: spec.Usage(), detail: spec.Summary, highlights: marks}
}

// matchArgs 过滤候选；与已输入参数完全相同的候选排在最前。
func matchArgs(spec Spec, prefix string, suggestions []Suggestion) []entry {
	prefix = strings.TrimSpace(prefix)
	out := make([]entry, 0, len(suggestions))
	if prefix == "" {
		for _, sg := range suggestions {
			out = append(out, entry{spec: spec, label: sg.Value, detail: sg.Detail, value: sg.Value})
		}
		return out
	}
	keys := make([]string, len(suggestions))
	for i, sg := range suggestions {
		keys[i] = strings.ToLower(sg.Value)
	}
	for _, r := range fuzzy.Find(strings.ToLower(prefix), keys) {
		sg := suggestions[r.Index]
		out = append(out, entry{spec: spec, label: sg.Value, detail: sg.Detail, value: sg.Value, highlights: r.MatchedIndexes})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.EqualFold(out[i].value, prefix) && !strings.EqualFold(out[j].value, prefix)
	})
	return out
}
