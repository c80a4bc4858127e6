package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditLogger_Log(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test_audit.jsonl")

	logger, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Close()
	}()

	event := AuditEvent{
		Timestamp: "2026-02-02T12:00:00Z",
		Source:    SourcePlanner,
		Event:     "turn",
		SessionID: "abc",
		Step:      3,
		Action:    "click(10, 20)",
		Risk:      "low",
		Decision:  "allow",
	}

	if err := logger.Log(event); err != nil {
		t.Fatalf("failed to log event: %v", err)
	}

	_ = logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var parsed AuditEvent
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to parse log line as JSON: %v", err)
	}

	if parsed.Action != "click(10, 20)" {
		t.Errorf("expected action 'click(10, 20)', got '%s'", parsed.Action)
	}
	if parsed.Decision != "allow" {
		t.Errorf("expected decision 'allow', got '%s'", parsed.Decision)
	}
	if parsed.Step != 3 {
		t.Errorf("expected step 3, got %d", parsed.Step)
	}
}

func TestAuditLogger_RedactsAndStamps(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	lg, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	err = lg.Log(AuditEvent{
		Source:        SourceExecutor,
		Event:         "execute",
		Action:        `type("password=hunter22")`,
		ResultMessage: "typed token=abcdefgh12345",
		Error:         "api_key=0123456789abcdef rejected",
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	_ = lg.Close()

	data, _ := os.ReadFile(logPath)
	line := string(data)
	for _, secret := range []string{"hunter22", "abcdefgh12345", "0123456789abcdef"} {
		if strings.Contains(line, secret) {
			t.Errorf("audit line leaked %q: %s", secret, line)
		}
	}

	var parsed AuditEvent
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if parsed.Timestamp == "" {
		t.Error("expected timestamp to be filled in")
	}
}

func TestAuditLogger_Rotation(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.jsonl")

	// Pre-create the log file already at the rotation limit.
	big := make([]byte, defaultMaxLogBytes)
	if err := os.WriteFile(logPath, big, 0600); err != nil {
		t.Fatalf("failed to seed large log file: %v", err)
	}

	lg, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = lg.Close() }()

	event := AuditEvent{
		Timestamp: "2026-03-01T00:00:00Z",
		Source:    SourcePlanner,
		Event:     "turn",
		Decision:  "allow",
	}
	if err := lg.Log(event); err != nil {
		t.Fatalf("Log after rotation failed: %v", err)
	}

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected rotated file %s.1 to exist: %v", logPath, err)
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("fresh log file missing: %v", err)
	}
	if info.Size() >= defaultMaxLogBytes {
		t.Errorf("fresh log file is still %d bytes; expected < %d", info.Size(), defaultMaxLogBytes)
	}
}

func TestAuditLogger_FilePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "secure_audit.jsonl")

	logger, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	_ = logger.Close()

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("failed to stat log file: %v", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("expected file permissions 0600, got %04o", perm)
	}
}

func TestAuditLogger_LogAfterClose(t *testing.T) {
	lg, err := New(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	_ = lg.Close()
	if err := lg.Log(AuditEvent{Event: "turn"}); err == nil {
		t.Error("expected error logging to a closed logger")
	}
}

func TestReadEvents(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	lg, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	events := []AuditEvent{
		{Source: SourcePlanner, Event: "turn", SessionID: "a", Step: 0},
		{Source: SourceExecutor, Event: "execute", SessionID: "a", Step: 0},
		{Source: SourcePlanner, Event: "turn", SessionID: "b", Step: 0},
		{Source: SourcePlanner, Event: "turn", SessionID: "a", Step: 1},
	}
	for _, e := range events {
		if err := lg.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	_ = lg.Close()

	// A corrupt line is skipped.
	f, _ := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0600)
	_, _ = f.WriteString("not json\n")
	_ = f.Close()

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"session", Filter{SessionID: "a"}, 3},
		{"source", Filter{Source: SourceExecutor}, 1},
		{"session and source", Filter{SessionID: "a", Source: SourcePlanner}, 2},
		{"limit", Filter{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadEvents(logPath, tt.filter)
			if err != nil {
				t.Fatalf("ReadEvents failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d events, got %d", tt.want, len(got))
			}
		})
	}

	last, _ := ReadEvents(logPath, Filter{Limit: 1})
	if len(last) != 1 || last[0].SessionID != "a" || last[0].Step != 1 {
		t.Errorf("limit should keep the newest event, got %+v", last)
	}
}

func TestReadEvents_MissingFile(t *testing.T) {
	got, err := ReadEvents(filepath.Join(t.TempDir(), "nope.jsonl"), Filter{})
	if err != nil || got != nil {
		t.Errorf("expected nil, nil for missing file; got %v, %v", got, err)
	}
}
