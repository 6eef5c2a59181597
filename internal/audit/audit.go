// Package audit keeps a bounded in-memory trail of encryption-layer
// operations: crypto file opens and closes, encrypt and decrypt calls, and
// their outcomes. Events can additionally be streamed to an EventWriter.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventTypeOpenWrite EventType = "open_write"
	EventTypeOpenRead  EventType = "open_read"
	EventTypeEncrypt   EventType = "encrypt"
	EventTypeDecrypt   EventType = "decrypt"
	EventTypeClose     EventType = "close"
)

// Event is a single audit trail entry.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	File      string        `json:"file,omitempty"`
	Algorithm string        `json:"algorithm,omitempty"`
	Mode      string        `json:"mode,omitempty"`
	Bytes     int           `json:"bytes,omitempty"`
	Offset    int64         `json:"offset,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ms,omitempty"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log records one audit event.
	Log(event *Event)

	// LogOpen records a crypto file open in either direction.
	LogOpen(eventType EventType, file, algorithm, mode string, err error, duration time.Duration)

	// LogOperation records an encrypt or decrypt call.
	LogOperation(eventType EventType, file string, bytes int, err error, duration time.Duration)

	// LogClose records a crypto file close with its final offset.
	LogClose(file string, offset int64)

	// Events returns a copy of the retained events.
	Events() []*Event
}

// EventWriter is an interface for streaming audit events elsewhere.
type EventWriter interface {
	WriteEvent(event *Event) error
}

type auditLogger struct {
	mu        sync.Mutex
	events    []*Event
	maxEvents int
	writer    EventWriter
}

// NewLogger creates an audit logger retaining at most maxEvents entries.
// A nil writer streams events as JSON lines to stderr.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	if writer == nil {
		writer = &jsonWriter{out: os.Stderr}
	}
	return &auditLogger{
		events:    make([]*Event, 0, maxEvents),
		maxEvents: maxEvents,
		writer:    writer,
	}
}

func (l *auditLogger) Log(event *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		// A failing writer must not fail the operation being audited.
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
}

func (l *auditLogger) LogOpen(eventType EventType, file, algorithm, mode string, err error, duration time.Duration) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: eventType,
		File:      file,
		Algorithm: algorithm,
		Mode:      mode,
		Success:   err == nil,
		Duration:  duration,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

func (l *auditLogger) LogOperation(eventType EventType, file string, bytes int, err error, duration time.Duration) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: eventType,
		File:      file,
		Bytes:     bytes,
		Success:   err == nil,
		Duration:  duration,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

func (l *auditLogger) LogClose(file string, offset int64) {
	l.Log(&Event{
		Timestamp: time.Now(),
		EventType: EventTypeClose,
		File:      file,
		Offset:    offset,
		Success:   true,
	})
}

func (l *auditLogger) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*Event, len(l.events))
	copy(events, l.events)
	return events
}

// jsonWriter streams events as JSON lines.
type jsonWriter struct {
	out io.Writer
}

func (w *jsonWriter) WriteEvent(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w.out, "%s\n", data)
	return err
}
