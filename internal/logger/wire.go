package logger

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultWireLogPath 记录与 agent 服务之间原始报文的日志文件。
const DefaultWireLogPath = "logs/wire.log"

// WireLogger 负责输出与 agent 服务交互的出站请求、入站事件与错误。
type WireLogger interface {
	Outbound(sessionID, route string, body []byte)
	Inbound(sessionID, eventType string, body []byte)
	StreamOpened(sessionID string)
	StreamClosed(sessionID string, err error)
	Error(sessionID, route string, err error)
}

// Wire 是全局唯一的报文日志器实例。
var Wire WireLogger = NewWireLogger(nil)

// SetWireLogger 覆盖全局报文日志实例，传入 nil 将重置为默认实现。
func SetWireLogger(l WireLogger) {
	if l == nil {
		l = NewWireLogger(nil)
	}
	Wire = l
}

// StdWireLogger 使用 logrus 输出日志。
type StdWireLogger struct {
	entry *logrus.Entry
}

// NewWireLogger 构造默认的报文日志记录器；entry 为 nil 时使用全局 logger。
func NewWireLogger(entry *LogEntry) *StdWireLogger {
	if entry == nil {
		entry = Named("wire")
	}
	return &StdWireLogger{entry: entry}
}

// Outbound 记录一次出站请求。
func (l *StdWireLogger) Outbound(sessionID, route string, body []byte) {
	l.printf(logrus.DebugLevel, sessionID, "", "-> %s body=%s", route, sanitize(string(body)))
}

// Inbound 记录一条入站事件。
func (l *StdWireLogger) Inbound(sessionID, eventType string, body []byte) {
	l.printf(logrus.DebugLevel, sessionID, eventType, "<- event body=%s", sanitize(string(body)))
}

// StreamOpened 记录事件流建立。
func (l *StdWireLogger) StreamOpened(sessionID string) {
	l.printf(logrus.InfoLevel, sessionID, "", "<- stream opened")
}

// StreamClosed 记录事件流结束。
func (l *StdWireLogger) StreamClosed(sessionID string, err error) {
	if err != nil {
		l.printf(logrus.WarnLevel, sessionID, "", "<- stream closed err=%v", err)
		return
	}
	l.printf(logrus.InfoLevel, sessionID, "", "<- stream closed")
}

// Error 记录请求错误。
func (l *StdWireLogger) Error(sessionID, route string, err error) {
	l.printf(logrus.ErrorLevel, sessionID, "", "!! %s err=%v", route, err)
}

func (l *StdWireLogger) printf(level logrus.Level, sessionID, eventType, format string, args ...any) {
	if l == nil || l.entry == nil {
		return
	}
	if !l.entry.Logger.IsLevelEnabled(level) {
		return
	}
	entry := l.entry
	if sessionID != "" {
		entry = entry.WithField("session_id", sessionID)
	}
	if eventType != "" {
		entry = entry.WithField("type", eventType)
	}
	if caller := findCaller(); caller != "" {
		entry = entry.WithField("caller", caller)
	}
	entry.Log(level, fmt.Sprintf(format, args...))
}

func sanitize(text string) string {
	text = strings.ReplaceAll(text, "\n", `\n`)
	text = strings.ReplaceAll(text, "\r", `\r`)
	return text
}

func findCaller() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.File != "" && !strings.HasSuffix(frame.File, "logger/wire.go") {
			return fmt.Sprintf("%s:%d", shortenFilePath(frame.File), frame.Line)
		}
		if !more {
			break
		}
	}
	return ""
}
