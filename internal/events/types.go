package events

import (
	"time"

	"deckpilot/internal/protocol"
	"deckpilot/internal/selection"
)

// Priority 描述提交的优先级。默认使用 PriorityNormal。
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
)

// OperationKind 表示提交的操作类型。
type OperationKind string

const (
	OperationSendMessage OperationKind = "send_message"
	OperationUpload      OperationKind = "upload"
	OperationSetSlide    OperationKind = "set_slide"
	OperationReload      OperationKind = "reload"
)

// SendMessageOperation 是一次用户发往 agent 的消息。
type SendMessageOperation struct {
	Text        string
	Selections  []selection.Descriptor
	Attachments []protocol.Attachment
}

// UploadOperation 上传本地文件，成功后作为附件挂到下一条消息。
type UploadOperation struct {
	Path string
}

// SetSlideOperation 切换当前幻灯片；下一次发送前会重新绑定 session。
type SetSlideOperation struct {
	SlideID string
}

// Operation 描述一次提交的操作载荷。
type Operation struct {
	Kind     OperationKind
	Send     *SendMessageOperation `json:",omitempty"`
	Upload   *UploadOperation      `json:",omitempty"`
	SetSlide *SetSlideOperation    `json:",omitempty"`
}

// Submission 代表进入 SQ 的提交。
type Submission struct {
	ID        string
	Operation Operation
	Timestamp time.Time
	Priority  Priority
	DeckID    string
	Metadata  map[string]string
}

// EventType 描述 EQ 中分发的事件类型。
type EventType string

const (
	EventSubmissionAccepted EventType = "submission.accepted"
	EventTaskStarted        EventType = "task.started"
	EventTaskCompleted      EventType = "task.completed"
	EventError              EventType = "task.error"
	// EventAgent 携带一条已解码的 agent 事件（protocol.Event）。
	EventAgent EventType = "agent.event"
	// EventReconciled 在一次 diff/slides 合并后发出，Payload 为合并结果。
	EventReconciled EventType = "deck.reconciled"
	// EventTranscriptChanged 表示聊天记录有变化，订阅者应重新读取行。
	EventTranscriptChanged EventType = "transcript.changed"
	// EventDeckChanged 在画布数据版本变化后发出，Payload 为新版本号。
	EventDeckChanged EventType = "deck.changed"
)

// TaskResult 描述任务完成状态。
type TaskResult struct {
	Status string // completed|failed|interrupted
	Error  string
}

// Event 是 EQ 中传递的唯一消息格式。Payload 的具体结构由 Type 决定。
type Event struct {
	Type         EventType
	SubmissionID string
	DeckID       string
	Timestamp    time.Time
	Payload      any
	Metadata     map[string]string
}
