package events

import (
	"context"
	"errors"
	"sync"

	"deckpilot/internal/logger"
)

var (
	// ErrSubmissionQueueClosed 表示队列已关闭，无法再提交或接收。
	ErrSubmissionQueueClosed = errors.New("submission queue closed")
)

// SubmissionQueue 是一个有界的提交队列（SQ）。高优先级提交走单独的通道，
// Receive 总是先取高优先级的。
type SubmissionQueue struct {
	ch     chan Submission
	urgent chan Submission

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	log    *logger.LogEntry
}

// NewSubmissionQueue 创建一个新的 SubmissionQueue。
func NewSubmissionQueue(capacity int) *SubmissionQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &SubmissionQueue{
		ch:     make(chan Submission, capacity),
		urgent: make(chan Submission, capacity),
		done:   make(chan struct{}),
		log:    logger.Named("sq"),
	}
}

// SetLogger 覆盖队列使用的 logger。
func (q *SubmissionQueue) SetLogger(entry *logger.LogEntry) {
	if entry == nil {
		return
	}
	q.log = entry
}

// Submit 将提交放入队列；队列满时阻塞，支持 ctx 取消。
func (q *SubmissionQueue) Submit(ctx context.Context, submission Submission) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrSubmissionQueueClosed
	}
	target := q.ch
	if submission.Priority == PriorityHigh {
		target = q.urgent
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrSubmissionQueueClosed
	case target <- submission:
		q.logSubmission(submission)
		return nil
	}
}

// Receive 读取一条提交；若队列已关闭且已取空则返回 ErrSubmissionQueueClosed。
func (q *SubmissionQueue) Receive(ctx context.Context) (Submission, error) {
	select {
	case sub := <-q.urgent:
		return sub, nil
	default:
	}
	select {
	case <-ctx.Done():
		return Submission{}, ctx.Err()
	case sub := <-q.urgent:
		return sub, nil
	case sub := <-q.ch:
		return sub, nil
	case <-q.done:
		select {
		case sub := <-q.urgent:
			return sub, nil
		case sub := <-q.ch:
			return sub, nil
		default:
			return Submission{}, ErrSubmissionQueueClosed
		}
	}
}

// Len 返回当前队列长度。
func (q *SubmissionQueue) Len() int {
	return len(q.ch) + len(q.urgent)
}

// Close 关闭队列，停止进一步提交。已入队的提交仍可被取出。
func (q *SubmissionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *SubmissionQueue) logSubmission(submission Submission) {
	if q.log == nil {
		return
	}
	fields := logger.Fields{
		"submission_id": submission.ID,
		"operation":     submission.Operation.Kind,
		"priority":      submission.Priority,
	}
	if payload := encodePayload(submission.Operation); payload != "" {
		fields["payload"] = payload
	}
	if submission.DeckID != "" {
		fields["deck_id"] = submission.DeckID
	}
	if len(submission.Metadata) > 0 {
		fields["metadata"] = submission.Metadata
	}
	q.log.WithFields(fields).Info("enqueued submission into SQ")
}
