package api

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/framerec/internal/events"
	"github.com/smazurov/framerec/internal/logging"
)

// openSSE connects to an SSE endpoint and returns the response with a
// channel of its data lines. Callers close the body before the server.
func openSSE(t *testing.T, url string) (*http.Response, <-chan string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Failed to connect to SSE: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		resp.Body.Close()
		t.Fatalf("Expected SSE content type, got %s", resp.Header.Get("Content-Type"))
	}

	messages := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				messages <- line
			}
		}
	}()
	return resp, messages
}

func nextMessage(t *testing.T, messages <-chan string) string {
	t.Helper()
	select {
	case msg := <-messages:
		return msg
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for SSE message")
	}
	return ""
}

func TestSSEEventStream(t *testing.T) {
	bus := events.New()
	server := NewServer(&Options{AuthUsername: "test", AuthPassword: "test", EventBus: bus})
	server.SetRecorder(newFakeRecorder("sse-session"))

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	credentials := base64.StdEncoding.EncodeToString([]byte("test:test"))
	resp, messages := openSSE(t, fmt.Sprintf("%s/api/events?auth=%s", ts.URL, credentials))
	defer resp.Body.Close()

	hello := nextMessage(t, messages)
	if !strings.Contains(hello, "SSE connection established") || !strings.Contains(hello, "sse-session") {
		t.Errorf("Expected connection message naming the session, got: %s", hello)
	}

	bus.Publish(events.SessionStartedEvent{Session: "sse-session", Kind: "video", PoolSize: 50})
	if msg := nextMessage(t, messages); !strings.Contains(msg, `"pool_size":50`) {
		t.Errorf("Expected session-started payload, got: %s", msg)
	}

	bus.Publish(events.FrameDroppedEvent{Session: "sse-session", Reason: "pool_exhausted", Count: 3})
	if msg := nextMessage(t, messages); !strings.Contains(msg, "pool_exhausted") {
		t.Errorf("Expected frame-dropped payload, got: %s", msg)
	}

	// Log entries belong to the log stream only
	bus.Publish(events.LogEntryEvent{Message: "not for this stream"})
	bus.Publish(events.SinkFailedEvent{Session: "sse-session", Stamp: 7, Error: "broken pipe"})
	if msg := nextMessage(t, messages); !strings.Contains(msg, "broken pipe") {
		t.Errorf("Expected sink-failed payload, got: %s", msg)
	}
}

func TestSSEEventStreamRequiresAuth(t *testing.T) {
	server := NewServer(&Options{AuthUsername: "test", AuthPassword: "test"})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSSELogStreamReplaysThenStreams(t *testing.T) {
	bus := events.New()
	buffer := logging.NewRingBuffer(16)
	for _, msg := range []string{"first", "second", "third"} {
		buffer.Write(logging.LogEntry{Timestamp: time.Now(), Level: "info", Module: "pipeline", Message: msg})
	}

	server := NewServer(&Options{EventBus: bus, LogBuffer: buffer})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, messages := openSSE(t, ts.URL+"/api/logs/stream?backlog=2")
	defer resp.Body.Close()

	for _, want := range []string{"second", "third"} {
		if msg := nextMessage(t, messages); !strings.Contains(msg, want) {
			t.Errorf("Expected replayed %q, got: %s", want, msg)
		}
	}

	// Seq 3 was already replayed and must not be sent twice
	bus.Publish(events.LogEntryEvent{Seq: 3, Message: "third"})
	bus.Publish(events.LogEntryEvent{Seq: 4, Level: "warn", Module: "sink", Message: "fourth"})

	if msg := nextMessage(t, messages); !strings.Contains(msg, "fourth") {
		t.Errorf("Expected live entry, got: %s", msg)
	}
}
