package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestLoggerRecordsEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(100, &jsonWriter{out: &buf})

	logger.LogOpen(EventTypeOpenWrite, "/var/log/app.log", "aes128", "cbc", nil, time.Millisecond)
	logger.LogOperation(EventTypeEncrypt, "/var/log/app.log", 16, nil, time.Microsecond)
	logger.LogOperation(EventTypeDecrypt, "/var/log/app.log", 16, errors.New("boom"), time.Microsecond)
	logger.LogClose("/var/log/app.log", 42)

	events := logger.Events()
	if len(events) != 4 {
		t.Fatalf("Events() returned %d events, want 4", len(events))
	}

	if events[0].EventType != EventTypeOpenWrite || !events[0].Success {
		t.Fatalf("unexpected open event: %+v", events[0])
	}
	if events[1].Bytes != 16 {
		t.Fatalf("encrypt event bytes = %d, want 16", events[1].Bytes)
	}
	if events[2].Success || events[2].Error != "boom" {
		t.Fatalf("failed decrypt not recorded: %+v", events[2])
	}
	if events[3].Offset != 42 {
		t.Fatalf("close event offset = %d, want 42", events[3].Offset)
	}

	// The stream is valid JSON lines.
	dec := json.NewDecoder(&buf)
	for i := 0; i < 4; i++ {
		var event Event
		if err := dec.Decode(&event); err != nil {
			t.Fatalf("decoding streamed event %d: %v", i, err)
		}
	}
}

func TestLoggerBoundsRetainedEvents(t *testing.T) {
	logger := NewLogger(3, &discardWriter{})

	for i := 0; i < 10; i++ {
		logger.LogClose(fmt.Sprintf("file-%d", i), int64(i))
	}

	events := logger.Events()
	if len(events) != 3 {
		t.Fatalf("Events() retained %d events, want 3", len(events))
	}
	if events[0].File != "file-7" || events[2].File != "file-9" {
		t.Fatalf("wrong events retained: first=%s last=%s", events[0].File, events[2].File)
	}
}

type discardWriter struct{}

func (*discardWriter) WriteEvent(*Event) error { return nil }
