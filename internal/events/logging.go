package events

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"deckpilot/internal/logger"
)

// 默认的 SQ/EQ 日志文件路径。
const (
	DefaultSQLogPath = "logs/sq.log"
	DefaultEQLogPath = "logs/eq.log"
)

// log 复用全局 logger，标记事件组件。
var log = logger.Named("events")

func newQueueLogger(component, path string) (*logger.LogEntry, io.Closer) {
	if path == "" {
		return logger.Named(component), nil
	}
	entry, closer, _, err := logger.SetupComponentFile(component, path)
	if err != nil {
		log.Warnf("failed to set up %s log file (%s): %v", component, path, err)
		return logger.Named(component), nil
	}
	return entry, closer
}

// encodePayload 把载荷转成便于阅读的日志文本：字符串原样输出，
// 看起来像 JSON 的字符串（含转义换行）和其它值输出缩进 JSON。
func encodePayload(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		trimmed := strings.TrimSpace(p)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			return p
		}
		raw := strings.ReplaceAll(trimmed, `\n`, "\n")
		var out bytes.Buffer
		if err := json.Indent(&out, []byte(raw), "", "  "); err != nil {
			return p
		}
		return out.String()
	case json.RawMessage:
		var out bytes.Buffer
		if err := json.Indent(&out, p, "", "  "); err != nil {
			return string(p)
		}
		return out.String()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
