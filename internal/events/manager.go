package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler 处理 Submission 并通过 EventPublisher 发出事件。
type Handler interface {
	Handle(ctx context.Context, submission Submission, emit EventPublisher) error
}

// HandlerFunc 让函数实现 Handler。
type HandlerFunc func(ctx context.Context, submission Submission, emit EventPublisher) error

func (f HandlerFunc) Handle(ctx context.Context, submission Submission, emit EventPublisher) error {
	return f(ctx, submission, emit)
}

// EventPublisher 抽象 EQ，便于解耦。
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// ManagerConfig 定义事件管理器参数。
type ManagerConfig struct {
	SubmissionBuffer int
	EventBuffer      int
	Workers          int
	SQLogPath        string
	EQLogPath        string
}

func (cfg ManagerConfig) withDefaults() ManagerConfig {
	if cfg.SubmissionBuffer == 0 {
		cfg.SubmissionBuffer = 64
	}
	if cfg.EventBuffer == 0 {
		cfg.EventBuffer = 256
	}
	if cfg.Workers == 0 {
		// 发送顺序即用户输入顺序，默认单 worker。
		cfg.Workers = 1
	}
	return cfg
}

// Manager 协调 SQ/EQ：用户操作进入 SQ 由 worker 交给已注册的 Handler，
// agent 事件与状态变化通过 EQ 广播给界面。
type Manager struct {
	queue    *SubmissionQueue
	events   *EventQueue
	handlers map[OperationKind]Handler
	hmu      sync.RWMutex
	workers  int

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	runMu       sync.Mutex
	running     map[string]context.CancelFunc
	interrupted map[string]bool

	sqLogCloser io.Closer
	eqLogCloser io.Closer
}

// NewManager 创建新的事件管理器。日志路径为空时写入全局 logger。
func NewManager(cfg ManagerConfig) *Manager {
	cfg = cfg.withDefaults()

	sqLog, sqCloser := newQueueLogger("sq", cfg.SQLogPath)
	eqLog, eqCloser := newQueueLogger("eq", cfg.EQLogPath)

	queue := NewSubmissionQueue(cfg.SubmissionBuffer)
	queue.SetLogger(sqLog)
	events := NewEventQueue(cfg.EventBuffer)
	events.SetLogger(eqLog)

	return &Manager{
		queue:       queue,
		events:      events,
		handlers:    map[OperationKind]Handler{},
		workers:     cfg.Workers,
		running:     map[string]context.CancelFunc{},
		interrupted: map[string]bool{},
		sqLogCloser: sqCloser,
		eqLogCloser: eqCloser,
	}
}

// RegisterHandler 为指定 OperationKind 注册处理器。
func (m *Manager) RegisterHandler(kind OperationKind, handler Handler) {
	if handler == nil {
		return
	}
	m.hmu.Lock()
	m.handlers[kind] = handler
	m.hmu.Unlock()
}

// Start 启动后台 worker。
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		for i := 0; i < m.workers; i++ {
			m.wg.Add(1)
			go m.worker(runCtx)
		}
	})
}

// Close 停止队列和 worker，并关闭 EQ。
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		m.queue.Close()
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
		m.events.Close()
		if m.sqLogCloser != nil {
			_ = m.sqLogCloser.Close()
		}
		if m.eqLogCloser != nil {
			_ = m.eqLogCloser.Close()
		}
	})
}

// Subscribe 订阅事件。
func (m *Manager) Subscribe() <-chan Event {
	return m.events.Subscribe()
}

// Events 返回 EQ，供需要 EventPublisher 的组件使用。
func (m *Manager) Events() EventPublisher {
	return m.events
}

// SubmitMessage 将一条用户消息放入 SQ。
func (m *Manager) SubmitMessage(ctx context.Context, deckID string, op SendMessageOperation) (string, error) {
	if strings.TrimSpace(op.Text) == "" && len(op.Attachments) == 0 {
		return "", errors.New("empty message")
	}
	return m.Submit(ctx, Submission{
		Operation: Operation{Kind: OperationSendMessage, Send: &op},
		DeckID:    deckID,
	})
}

// SubmitUpload 将文件上传放入 SQ。
func (m *Manager) SubmitUpload(ctx context.Context, deckID, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("empty upload path")
	}
	return m.Submit(ctx, Submission{
		Operation: Operation{Kind: OperationUpload, Upload: &UploadOperation{Path: path}},
		DeckID:    deckID,
	})
}

// SubmitSetSlide 以高优先级切换当前幻灯片，排在尚未处理的消息之前。
func (m *Manager) SubmitSetSlide(ctx context.Context, deckID, slideID string) (string, error) {
	return m.Submit(ctx, Submission{
		Operation: Operation{Kind: OperationSetSlide, SetSlide: &SetSlideOperation{SlideID: slideID}},
		DeckID:    deckID,
		Priority:  PriorityHigh,
	})
}

// Submit 将 Submission 放入 SQ。
func (m *Manager) Submit(ctx context.Context, submission Submission) (string, error) {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.Timestamp.IsZero() {
		submission.Timestamp = time.Now()
	}
	if submission.Priority == 0 {
		submission.Priority = PriorityNormal
	}
	if submission.Operation.Kind == "" {
		return "", errors.New("submission operation kind required")
	}
	if err := m.queue.Submit(ctx, submission); err != nil {
		return "", err
	}
	m.emit(ctx, submission, EventSubmissionAccepted, submission.Operation)
	return submission.ID, nil
}

// Interrupt 取消所有正在执行的提交，返回被取消的数量。
func (m *Manager) Interrupt() int {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	for id, cancel := range m.running {
		m.interrupted[id] = true
		cancel()
	}
	return len(m.running)
}

// PublishEvent 允许外部模块向 EQ 直接发布事件。
func (m *Manager) PublishEvent(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return m.events.Publish(ctx, event)
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		sub, err := m.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrSubmissionQueueClosed) {
				return
			}
			continue
		}
		m.run(ctx, sub)
	}
}

func (m *Manager) run(ctx context.Context, sub Submission) {
	m.emit(ctx, sub, EventTaskStarted, sub.Operation.Kind)

	m.hmu.RLock()
	handler := m.handlers[sub.Operation.Kind]
	m.hmu.RUnlock()
	if handler == nil {
		m.fail(ctx, sub, fmt.Sprintf("no handler registered for %s", sub.Operation.Kind))
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	m.runMu.Lock()
	m.running[sub.ID] = cancel
	m.runMu.Unlock()

	err := handler.Handle(taskCtx, sub, m.events)

	m.runMu.Lock()
	interrupted := m.interrupted[sub.ID]
	delete(m.running, sub.ID)
	delete(m.interrupted, sub.ID)
	m.runMu.Unlock()
	cancel()

	switch {
	case interrupted:
		m.emit(ctx, sub, EventTaskCompleted, TaskResult{Status: "interrupted"})
	case err != nil:
		m.fail(ctx, sub, err.Error())
	default:
		m.emit(ctx, sub, EventTaskCompleted, TaskResult{Status: "completed"})
	}
}

func (m *Manager) fail(ctx context.Context, sub Submission, msg string) {
	m.emit(ctx, sub, EventError, msg)
	m.emit(ctx, sub, EventTaskCompleted, TaskResult{Status: "failed", Error: msg})
}

func (m *Manager) emit(ctx context.Context, sub Submission, typ EventType, payload any) {
	_ = m.events.Publish(ctx, Event{
		Type:         typ,
		SubmissionID: sub.ID,
		DeckID:       sub.DeckID,
		Timestamp:    time.Now(),
		Payload:      payload,
		Metadata:     cloneMetadata(sub.Metadata),
	})
}

func cloneMetadata(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
