package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gzhole/deskpilot/internal/redact"
)

// defaultMaxLogBytes is the size at which the audit file is rotated to
// path.1 before the next write.
const defaultMaxLogBytes = 10 * 1024 * 1024

// Sources of audit events.
const (
	SourcePlanner  = "planner"
	SourceExecutor = "executor"
)

// AuditEvent is one JSON line in the audit log. Planner events describe a
// proposed action and its policy decision; executor events describe what
// was actually done.
type AuditEvent struct {
	Timestamp      string  `json:"timestamp"`
	Source         string  `json:"source"`
	Event          string  `json:"event"`
	SessionID      string  `json:"session_id,omitempty"`
	TraceID        string  `json:"trace_id,omitempty"`
	Step           int     `json:"step"`
	Action         string  `json:"action,omitempty"`
	Risk           string  `json:"risk,omitempty"`
	Decision       string  `json:"decision,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	ConfirmationID string  `json:"confirmation_id,omitempty"`
	ResultStatus   string  `json:"result_status,omitempty"`
	ResultMessage  string  `json:"result_message,omitempty"`
	Error          string  `json:"error,omitempty"`
}

type AuditLogger struct {
	path     string
	maxBytes int64
	file     *os.File
	size     int64
	mu       sync.Mutex
}

func New(path string) (*AuditLogger, error) {
	l := &AuditLogger{path: path, maxBytes: defaultMaxLogBytes}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AuditLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}
	l.file = file
	l.size = info.Size()
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return err
	}
	return l.open()
}

// Log appends event, redacting free-text fields first. A zero Timestamp is
// filled with the current UTC time.
func (l *AuditLogger) Log(event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("audit logger is closed")
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	event.Action = redact.Redact(event.Action)
	event.Reason = redact.Redact(event.Reason)
	event.ResultMessage = redact.Redact(event.ResultMessage)
	if event.Error != "" {
		event.Error = redact.Redact(event.Error)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if l.size >= l.maxBytes {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate audit log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	l.size += int64(n)
	return err
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Filter selects events in ReadEvents. Zero fields match everything.
type Filter struct {
	SessionID string
	Source    string
	Limit     int
}

func (f Filter) match(e AuditEvent) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	return true
}

// ReadEvents returns the matching events from the audit file at path,
// keeping the last Limit when Limit is positive. Lines that fail to parse
// are skipped. A missing file yields no events.
func ReadEvents(path string, filter Filter) ([]AuditEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if filter.match(e) {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}
