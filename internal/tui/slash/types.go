package slash

import "strings"

// Command 表示内置斜杠命令的标识符。
type Command string

const (
	CommandSelect         Command = "select"
	CommandClearSelection Command = "clear-selection"
	CommandSlide          Command = "slide"
	CommandAttach         Command = "attach"
	CommandEdit           Command = "edit"
	CommandCopy           Command = "copy"
	CommandReload         Command = "reload"
	CommandInterrupt      Command = "stop"
	CommandResume         Command = "resume"
	CommandClear          Command = "clear"
	CommandStatus         Command = "status"
	CommandQuit           Command = "quit"
	CommandExit           Command = "exit"
)

// ArgKind 决定命令是否带参数，以及 Enter 时缺参数该怎么办。
type ArgKind int

const (
	ArgNone ArgKind = iota
	ArgOptional
	ArgRequired
)

// Spec 描述一条命令：参数形态、参数提示与一句说明。
type Spec struct {
	Command Command
	Args    ArgKind
	Hint    string
	Summary string
}

// Usage 返回 "/slide <n|id>" 形式的用法。
func (s Spec) Usage() string {
	if s.Hint == "" {
		return "/" + string(s.Command)
	}
	return "/" + string(s.Command) + " " + s.Hint
}

var specs = []Spec{
	{Command: CommandSelect, Args: ArgOptional, Hint: "<text>", Summary: "point the agent at elements matching text"},
	{Command: CommandClearSelection, Summary: "drop the current selection"},
	{Command: CommandSlide, Args: ArgRequired, Hint: "<n|id>", Summary: "make a slide the active slide"},
	{Command: CommandAttach, Args: ArgRequired, Hint: "<path>", Summary: "upload a file for the next message"},
	{Command: CommandEdit, Args: ArgOptional, Hint: "on|off", Summary: "keep agent edits in drafts while you edit"},
	{Command: CommandCopy, Summary: "copy the last reply"},
	{Command: CommandReload, Summary: "reload the deck from its source"},
	{Command: CommandInterrupt, Summary: "cancel the running request"},
	{Command: CommandResume, Summary: "restore the last saved chat of this deck"},
	{Command: CommandClear, Summary: "clear the chat"},
	{Command: CommandStatus, Summary: "show deck and mode status"},
	{Command: CommandQuit, Summary: "leave deckpilot"},
	{Command: CommandExit, Summary: "leave deckpilot"},
}

// Commands 返回命令表的副本，顺序即弹窗默认顺序。
func Commands() []Spec {
	return append([]Spec(nil), specs...)
}

// Lookup 按名称查找命令，不区分大小写。
func Lookup(name string) (Spec, bool) {
	for _, s := range specs {
		if strings.EqualFold(string(s.Command), name) {
			return s, true
		}
	}
	return Spec{}, false
}
