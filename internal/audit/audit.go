// Package audit writes an append-only, JSON-lines trail of
// state-machine-significant coordinator decisions, adapted from
// bundoc's security audit logger for the split-recovery domain.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// EventType categorizes a loggable coordinator decision.
type EventType string

const (
	EventForceResubmit     EventType = "FORCE_RESUBMIT"
	EventCheckResubmit     EventType = "CHECK_RESUBMIT"
	EventBudgetExhausted   EventType = "BUDGET_EXHAUSTED"
	EventDeadWorkerTakeover EventType = "DEAD_WORKER_TAKEOVER"
	EventTaskFailure       EventType = "TASK_FAILURE"
	EventBatchFailure      EventType = "BATCH_FAILURE"
	EventLogicError        EventType = "LOGIC_ERROR"
)

// Event is one audit record.
type Event struct {
	Timestamp time.Time              `json:"ts"`
	Type      EventType              `json:"type"`
	TaskKey   string                 `json:"task_key,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Logger appends Events to a file as JSON lines. A nil *Logger is
// valid and silently drops every event, so callers can construct one
// unconditionally and only skip wiring a file when AuditPath is empty.
type Logger struct {
	file *os.File
	mu   sync.Mutex
}

// New opens (creating if absent) an audit log at path. Passing an
// empty path returns nil, disabling auditing.
func New(path string) (*Logger, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &Logger{file: f}, nil
}

// Log records one event. Safe to call on a nil Logger.
func (l *Logger) Log(evtType EventType, taskKey string, details map[string]interface{}) {
	if l == nil || l.file == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	evt := Event{Timestamp: time.Now().UTC(), Type: evtType, TaskKey: taskKey, Details: details}
	line, err := json.Marshal(evt)
	if err != nil {
		return
	}
	line = append(line, '\n')
	l.file.Write(line)
}

// Close releases the underlying file handle. Safe to call on nil.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
