package allocation

import (
	"fmt"
	"time"
)

// Status is the outcome of an allocator run.
type Status int

const (
	StatusVoid       Status = 0
	StatusExecuted   Status = 1
	StatusFailed     Status = 2
	StatusConfigured Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusVoid:
		return "void"
	case StatusExecuted:
		return "executed"
	case StatusFailed:
		return "failed"
	case StatusConfigured:
		return "configured"
	default:
		return "unknown"
	}
}

// Log entry types.
const (
	LogInfo  = "info"
	LogOK    = "ok"
	LogError = "error"
	LogDebug = "debug"
)

// LogEntry is one human-readable line of an allocation log.
type LogEntry struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Indent  int    `json:"indent,omitempty"`
}

// Result carries the status, message and log of one allocator run.
type Result struct {
	Status    Status     `json:"status"`
	Message   string     `json:"message"`
	Log       []LogEntry `json:"log"`
	TimeStart time.Time  `json:"time_start"`
	TimeEnd   time.Time  `json:"time_end"`
}

// NewResult starts a void result.
func NewResult(now time.Time) *Result {
	return &Result{Status: StatusVoid, TimeStart: now}
}

// Logf appends a formatted log entry.
func (r *Result) Logf(kind string, indent int, format string, args ...interface{}) {
	r.Log = append(r.Log, LogEntry{Type: kind, Message: fmt.Sprintf(format, args...), Indent: indent})
}

// Finish sets the final status and message.
func (r *Result) Finish(status Status, message string, now time.Time) {
	r.Status = status
	r.Message = message
	r.TimeEnd = now
}
