package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/datapilot-ai/datapilot/internal/config"
)

func TestConversationLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(config.ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	})
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(ConversationLogEvent{
		SessionID: "sess-1",
		Direction: "outbound",
		EventType: "user_message",
		Content:   "show me the trends",
	})

	path := filepath.Join(dir, "sess-1.ndjson")
	line := waitForLogLine(t, path)
	var got ConversationLogEvent
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.Content != "show me the trends" {
		t.Fatalf("unexpected Content: %q", got.Content)
	}
	if got.Timestamp == "" {
		t.Fatal("expected timestamp to be populated")
	}
}

func TestConversationLoggerFallsBackToDefaultFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(config.ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	})
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(ConversationLogEvent{
		Direction: "inbound",
		EventType: "assistant_message",
		Content:   "Analysis complete.",
	})

	waitForLogLine(t, filepath.Join(dir, "default.ndjson"))
}

func TestConversationLoggerDisabledIsNop(t *testing.T) {
	t.Parallel()

	logger, err := NewConversationLogger(config.ConversationLogConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	if _, ok := logger.(NopConversationLogger); !ok {
		t.Fatalf("expected nop logger when disabled, got %T", logger)
	}
}

func TestConversationLoggerCloseFlushesQueue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(config.ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 64,
	})
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		logger.Log(ConversationLogEvent{
			SessionID: "flush",
			EventType: "user_message",
			Content:   "msg",
		})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "flush.ndjson"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 10 {
		t.Fatalf("expected 10 flushed lines, got %d", len(lines))
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
