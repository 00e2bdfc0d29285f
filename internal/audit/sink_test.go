package audit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWriter is a thread-safe mock writer.
type mockWriter struct {
	mu     sync.Mutex
	events []*Event
}

func (w *mockWriter) WriteEvent(event *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

func (w *mockWriter) WriteBatch(events []*Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, events...)
	return nil
}

func TestBatchSink(t *testing.T) {
	mock := &mockWriter{}
	sink := NewBatchSink(mock, 5, 100*time.Millisecond, 0, 0)

	for i := 0; i < 3; i++ {
		sink.WriteEvent(&Event{ResourceID: "r1", EventType: EventTypeEncrypt})
	}

	time.Sleep(10 * time.Millisecond)
	mock.mu.Lock()
	assert.Len(t, mock.events, 0)
	mock.mu.Unlock()

	time.Sleep(150 * time.Millisecond)
	mock.mu.Lock()
	assert.Len(t, mock.events, 3)
	mock.mu.Unlock()

	for i := 0; i < 5; i++ {
		sink.WriteEvent(&Event{ResourceID: "r2", EventType: EventTypeDecrypt})
	}

	time.Sleep(50 * time.Millisecond)
	mock.mu.Lock()
	assert.Len(t, mock.events, 8)
	mock.mu.Unlock()

	sink.Close()
}

func TestHTTPSink(t *testing.T) {
	var capturedEvents []*Event
	var mu sync.Mutex

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		r.Body.Close()

		var events []*Event
		require.NoError(t, json.Unmarshal(body, &events))
		capturedEvents = append(capturedEvents, events...)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := NewHTTPSink(ts.URL, map[string]string{"X-Test": "true"})

	err := sink.WriteEvent(&Event{ResourceID: "test-http", EventType: EventTypeSeal})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, capturedEvents, 1)
	assert.Equal(t, "test-http", capturedEvents[0].ResourceID)
	mu.Unlock()
}

func TestFileSink(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "audit-log-*.json")
	require.NoError(t, err)
	path := tmpfile.Name()
	tmpfile.Close()
	defer os.Remove(path)

	sink := NewFileSink(path)
	err = sink.WriteEvent(&Event{ResourceID: "test-file", EventType: EventTypeOpen})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Event
	require.NoError(t, json.Unmarshal(content, &loaded))
	assert.Equal(t, "test-file", loaded.ResourceID)
}

func TestLoggerRedactsMetadata(t *testing.T) {
	mock := &mockWriter{}
	l := NewLoggerWithRedaction(10, mock, []string{"secret"})

	l.LogEncrypt("r1", 4, true, nil, time.Millisecond, map[string]interface{}{
		"secret": "shhh",
		"public": "ok",
	})

	events := l.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "[REDACTED]", events[0].Metadata["secret"])
	assert.Equal(t, "ok", events[0].Metadata["public"])
}

func TestLoggerCapsEventCount(t *testing.T) {
	l := NewLogger(2, &mockWriter{})
	l.LogSeal("r1", true, nil, 0)
	l.LogSeal("r2", true, nil, 0)
	l.LogSeal("r3", true, nil, 0)

	events := l.GetEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "r2", events[0].ResourceID)
	assert.Equal(t, "r3", events[1].ResourceID)
}
