package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger/LogEntry/Fields 是 logrus 类型的别名，调用方无需直接引入 logrus。
type Logger = logrus.Logger
type LogEntry = logrus.Entry
type Fields = logrus.Fields

const DefaultLogPath = "logs/deckpilot.log"

// 这些字段进入行首前缀，不再在行尾重复。
const (
	fieldComponent = "component"
	fieldDeck      = "deck_id"
	fieldType      = "type"
	fieldCaller    = "caller"
)

// Configure 为全局 logger 启用 caller 与 PlainFormatter。
func Configure() {
	std := logrus.StandardLogger()
	std.SetReportCaller(true)
	std.SetFormatter(PlainFormatter{})
}

// SetLevel 设置全局级别；空字符串不做修改。
func SetLevel(level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

// SetupFile 把全局日志写入 logPath，调用方负责关闭返回的文件。
func SetupFile(logPath string) (io.Closer, string, error) {
	f, resolved, err := openLogFile(logPath)
	if err != nil {
		return nil, "", err
	}
	logrus.SetOutput(f)
	return f, resolved, nil
}

// SetupComponentFile 创建写入独立文件的 logger，例如 wire、sq、eq 日志。
// 级别跟随全局 logger。
func SetupComponentFile(component, logPath string) (*LogEntry, io.Closer, string, error) {
	f, resolved, err := openLogFile(logPath)
	if err != nil {
		return nil, nil, "", err
	}
	l := logrus.New()
	l.SetReportCaller(true)
	l.SetFormatter(PlainFormatter{})
	l.SetOutput(f)
	l.SetLevel(logrus.GetLevel())
	return withComponent(logrus.NewEntry(l), component), f, resolved, nil
}

// Named 返回带 component 字段的全局入口。
func Named(component string) *LogEntry {
	return withComponent(logrus.NewEntry(logrus.StandardLogger()), component)
}

// Discard 返回不输出任何内容的入口，测试中使用。
func Discard() *LogEntry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func withComponent(entry *LogEntry, component string) *LogEntry {
	if component == "" {
		return entry
	}
	return entry.WithField(fieldComponent, component)
}

// PlainFormatter 输出单行日志：
//
//	caller [ts] [LEVEL] [component] [deck=…] [type=…] message k=v…
type PlainFormatter struct{}

func (PlainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if entry == nil {
		return nil, nil
	}
	var b strings.Builder
	if caller := callerOf(entry); caller != "" {
		b.WriteString(caller)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s] [%s]", entry.Time.UTC().Format(time.RFC3339Nano), strings.ToUpper(entry.Level.String()))
	if v, ok := entry.Data[fieldComponent].(string); ok && v != "" {
		fmt.Fprintf(&b, " [%s]", v)
	}
	if v, ok := entry.Data[fieldDeck]; ok && fmt.Sprint(v) != "" {
		fmt.Fprintf(&b, " [deck=%v]", v)
	}
	if v, ok := entry.Data[fieldType]; ok {
		fmt.Fprintf(&b, " [type=%v]", v)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		switch k {
		case fieldComponent, fieldDeck, fieldType, fieldCaller:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// callerOf 优先使用 logrus 记录的调用位置，其次是 wire 日志自带的 caller 字段。
func callerOf(entry *logrus.Entry) string {
	if entry.HasCaller() {
		return fmt.Sprintf("%s:%d", shortenFilePath(entry.Caller.File), entry.Caller.Line)
	}
	if v, ok := entry.Data[fieldCaller].(string); ok {
		return v
	}
	return ""
}

// shortenFilePath 保留 internal/ 或 cmd/ 之后的路径。
func shortenFilePath(file string) string {
	file = filepath.ToSlash(file)
	for _, marker := range []string{"/internal/", "/cmd/"} {
		if idx := strings.Index(file, marker); idx != -1 {
			return file[idx+1:]
		}
	}
	return filepath.Base(file)
}

func openLogFile(logPath string) (*os.File, string, error) {
	if logPath == "" {
		logPath = DefaultLogPath
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, "", err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, "", err
	}
	return f, logPath, nil
}
