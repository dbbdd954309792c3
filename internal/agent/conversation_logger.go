package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/datapilot-ai/datapilot/internal/config"
)

// ConversationLogEvent is one NDJSON record in a conversation transcript.
type ConversationLogEvent struct {
	Timestamp string         `json:"ts"`
	SessionID string         `json:"session_id"`
	Direction string         `json:"direction"`
	EventType string         `json:"event_type"`
	Content   string         `json:"content"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records conversation events for later inspection.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// NopConversationLogger discards all events.
type NopConversationLogger struct{}

// Log implements ConversationLogger.
func (NopConversationLogger) Log(ConversationLogEvent) {}

// Close implements ConversationLogger.
func (NopConversationLogger) Close() error { return nil }

// FileConversationLogger appends events to one NDJSON file per session
// via a bounded queue. Logging never blocks a conversation turn; events
// are dropped with a warning when the queue is full.
type FileConversationLogger struct {
	dir    string
	queue  chan ConversationLogEvent
	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

// NewConversationLogger creates a file-backed conversation logger, or a
// nop logger when logging is disabled.
func NewConversationLogger(cfg config.ConversationLogConfig) (ConversationLogger, error) {
	if !cfg.Enabled {
		return NopConversationLogger{}, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log directory: %w", err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	l := &FileConversationLogger{
		dir:   cfg.Dir,
		queue: make(chan ConversationLogEvent, queueSize),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.drain()
	return l, nil
}

// Log enqueues an event without blocking.
func (l *FileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case l.queue <- event:
	default:
		slog.Warn("Conversation log queue full, dropping event", "event_type", event.EventType)
	}
}

// Close stops the writer after flushing queued events.
func (l *FileConversationLogger) Close() error {
	l.closed.Do(func() {
		close(l.done)
		l.wg.Wait()
	})
	return nil
}

func (l *FileConversationLogger) drain() {
	defer l.wg.Done()
	for {
		select {
		case event := <-l.queue:
			l.write(event)
		case <-l.done:
			for {
				select {
				case event := <-l.queue:
					l.write(event)
				default:
					return
				}
			}
		}
	}
}

func (l *FileConversationLogger) write(event ConversationLogEvent) {
	name := event.SessionID
	if name == "" {
		name = "default"
	}
	path := filepath.Join(l.dir, name+".ndjson")

	line, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal conversation log event", "error", err)
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("Failed to open conversation log file", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Warn("Failed to write conversation log event", "path", path, "error", err)
	}
}
