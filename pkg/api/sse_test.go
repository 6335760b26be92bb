package api

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/psaab/bigsh/pkg/logging"
)

func TestSetSSEHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	setSSEHeaders(w)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
}

func TestWriteSSEEvent(t *testing.T) {
	w := httptest.NewRecorder()
	writeSSEEvent(w, "42", "log", `{"key":"value"}`)

	body := w.Body.String()
	want := "id: 42\nevent: log\ndata: {\"key\":\"value\"}\n\n"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}

	w = httptest.NewRecorder()
	writeSSEEvent(w, "1", "", "hello")
	if strings.Contains(w.Body.String(), "event:") {
		t.Errorf("should not have event line when empty, got %q", w.Body.String())
	}
}

// streamLogs runs the log stream handler while add feeds the buffer, and
// returns the response.
func streamLogs(t *testing.T, buf *logging.Buffer, query string, add func()) *httptest.ResponseRecorder {
	t.Helper()
	s := &Server{logs: buf}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/logs/stream"+query, nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		s.logStreamHandler(w, req)
		close(done)
	}()

	// wait for the subscription
	time.Sleep(50 * time.Millisecond)
	add()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	return w
}

func dataLines(t *testing.T, body string) []LogStreamEntry {
	t.Helper()
	var out []LogStreamEntry
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var e LogStreamEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("unmarshal log entry: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestLogStreamHandler(t *testing.T) {
	buf := logging.NewBuffer(16)
	w := streamLogs(t, buf, "", func() {
		buf.Add(logging.Record{Time: time.Now(), Level: slog.LevelWarn, Message: "top path failed", Attrs: "code=403"})
	})

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: log") {
		t.Errorf("expected 'event: log' in response, got %q", body)
	}
	entries := dataLines(t, body)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %q", len(entries), body)
	}
	if entries[0].Level != "WARN" || entries[0].Message != "top path failed" || entries[0].Attrs != "code=403" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestLogStreamLevelFilter(t *testing.T) {
	buf := logging.NewBuffer(16)
	w := streamLogs(t, buf, "?level=warn", func() {
		buf.Add(logging.Record{Time: time.Now(), Level: slog.LevelInfo, Message: "quiet"})
		buf.Add(logging.Record{Time: time.Now(), Level: slog.LevelError, Message: "loud"})
	})

	body := w.Body.String()
	if strings.Contains(body, "quiet") {
		t.Errorf("info record should be filtered with level=warn, got %q", body)
	}
	if !strings.Contains(body, "loud") {
		t.Errorf("error record should pass level=warn, got %q", body)
	}
}

func TestLogStreamBacklog(t *testing.T) {
	buf := logging.NewBuffer(16)
	for _, msg := range []string{"one", "two", "three"} {
		buf.Add(logging.Record{Time: time.Now(), Level: slog.LevelInfo, Message: msg})
	}
	w := streamLogs(t, buf, "?backlog=2", func() {})

	entries := dataLines(t, w.Body.String())
	if len(entries) != 2 || entries[0].Message != "two" || entries[1].Message != "three" {
		t.Errorf("backlog entries = %+v", entries)
	}
}

func TestLogStreamErrors(t *testing.T) {
	s := &Server{}
	w := httptest.NewRecorder()
	s.logStreamHandler(w, httptest.NewRequest("GET", "/api/v1/logs/stream", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	s = &Server{logs: logging.NewBuffer(4)}
	for _, q := range []string{"?level=loud", "?backlog=-1", "?backlog=x"} {
		w = httptest.NewRecorder()
		s.logStreamHandler(w, httptest.NewRequest("GET", "/api/v1/logs/stream"+q, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", q, w.Code, http.StatusBadRequest)
		}
	}
}
