package dispatch

import (
	"errors"
	"fmt"
)

// Stages a send can fail in.
const (
	StageSession = "session"
	StageSend    = "send"
	StageLegacy  = "legacy"
	StageUpload  = "upload"
	StageMerge   = "merge"
)

// stageError wraps an underlying error with the step it failed in, so the
// caller and the logs can tell a dead session from a rejected message.
type stageError struct {
	Stage string
	Err   error
}

func (e stageError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%v", e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e stageError) Unwrap() error { return e.Err }

// StageOf returns the stage tag of err, or "".
func StageOf(err error) string {
	var se stageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
