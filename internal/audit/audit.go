// Package audit provides a structured trail of every encrypt/decrypt/
// seal/open operation the core performs: a Logger front end over
// pluggable EventWriter sinks, an in-memory ring buffer for inspection,
// and a metadata redaction hook.
package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventType identifies the kind of core operation an event describes.
type EventType string

const (
	EventTypeEncrypt EventType = "encrypt"
	EventTypeDecrypt EventType = "decrypt"
	EventTypeSeal    EventType = "seal"
	EventTypeOpen    EventType = "open"
	EventTypeKeySave EventType = "key_save"
)

// Event is a single audit record.
type Event struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  EventType              `json:"event_type"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Version    byte                   `json:"version,omitempty"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Duration   time.Duration          `json:"duration_ms"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Logger records operations against the core.
type Logger interface {
	Log(event *Event) error

	LogEncrypt(resourceID string, version byte, success bool, err error, duration time.Duration, metadata map[string]interface{})
	LogDecrypt(resourceID string, version byte, success bool, err error, duration time.Duration, metadata map[string]interface{})
	LogSeal(resourceID string, success bool, err error, duration time.Duration)
	LogOpen(resourceID string, success bool, err error, duration time.Duration)

	GetEvents() []*Event
	Close() error
}

// EventWriter writes a single event to some external sink (stdout, a
// file, an HTTP collector, ...).
type EventWriter interface {
	WriteEvent(event *Event) error
}

type logger struct {
	mu         sync.Mutex
	events     []*Event
	maxEvents  int
	writer     EventWriter
	redactKeys []string
}

// NewLogger creates a logger that keeps at most maxEvents in memory and
// forwards every event to writer. A nil writer defaults to newline-
// delimited JSON on stdout.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	return NewLoggerWithRedaction(maxEvents, writer, nil)
}

// NewLoggerWithRedaction is NewLogger plus a list of metadata keys whose
// values are replaced with "[REDACTED]" before an event is written or
// retained.
func NewLoggerWithRedaction(maxEvents int, writer EventWriter, redactKeys []string) Logger {
	if writer == nil {
		writer = &stdoutWriter{}
	}
	return &logger{
		events:     make([]*Event, 0, maxEvents),
		maxEvents:  maxEvents,
		writer:     writer,
		redactKeys: redactKeys,
	}
}

func (l *logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event.Metadata = l.redactMetadata(event.Metadata)

	if l.writer != nil {
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
	return nil
}

func (l *logger) redactMetadata(metadata map[string]interface{}) map[string]interface{} {
	if len(l.redactKeys) == 0 || len(metadata) == 0 {
		return metadata
	}
	needsRedaction := false
	for _, k := range l.redactKeys {
		if _, ok := metadata[k]; ok {
			needsRedaction = true
			break
		}
	}
	if !needsRedaction {
		return metadata
	}
	clone := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}
	for _, k := range l.redactKeys {
		if _, ok := clone[k]; ok {
			clone[k] = "[REDACTED]"
		}
	}
	return clone
}

func (l *logger) LogEncrypt(resourceID string, version byte, success bool, err error, duration time.Duration, metadata map[string]interface{}) {
	l.logOp(EventTypeEncrypt, resourceID, version, success, err, duration, metadata)
}

func (l *logger) LogDecrypt(resourceID string, version byte, success bool, err error, duration time.Duration, metadata map[string]interface{}) {
	l.logOp(EventTypeDecrypt, resourceID, version, success, err, duration, metadata)
}

func (l *logger) LogSeal(resourceID string, success bool, err error, duration time.Duration) {
	l.logOp(EventTypeSeal, resourceID, 0, success, err, duration, nil)
}

func (l *logger) LogOpen(resourceID string, success bool, err error, duration time.Duration) {
	l.logOp(EventTypeOpen, resourceID, 0, success, err, duration, nil)
}

func (l *logger) logOp(t EventType, resourceID string, version byte, success bool, err error, duration time.Duration, metadata map[string]interface{}) {
	event := &Event{
		Timestamp:  time.Now(),
		EventType:  t,
		ResourceID: resourceID,
		Version:    version,
		Success:    success,
		Duration:   duration,
		Metadata:   metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	_ = l.Log(event)
}

func (l *logger) GetEvents() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := make([]*Event, len(l.events))
	copy(events, l.events)
	return events
}

func (l *logger) Close() error {
	if closer, ok := l.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

type stdoutWriter struct{}

func (w *stdoutWriter) WriteEvent(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
