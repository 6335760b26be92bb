package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/psaab/bigsh/pkg/logging"
)

// setSSEHeaders configures the response for Server-Sent Events streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent writes a single SSE event to the response.
func writeSSEEvent(w http.ResponseWriter, id string, event string, data string) {
	fmt.Fprintf(w, "id: %s\n", id)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// logStreamHandler streams log records via SSE. ?level= drops records
// below the given level; ?backlog=N first replays the N latest records.
func (s *Server) logStreamHandler(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log buffer not available")
		return
	}
	floor := slog.LevelDebug
	if v := r.URL.Query().Get("level"); v != "" {
		lvl, err := logging.ParseLevel(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		floor = lvl
	}
	var backlog int
	if v := r.URL.Query().Get("backlog"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "backlog: invalid count")
			return
		}
		backlog = n
	}

	setSSEHeaders(w)
	sub := s.logs.Subscribe(128)
	defer sub.Close()

	var seq uint64
	send := func(rec logging.Record) {
		seq++
		data, err := json.Marshal(LogStreamEntry{
			Time:    rec.Time.Format(time.RFC3339),
			Level:   rec.Level.String(),
			Message: rec.Message,
			Attrs:   rec.Attrs,
		})
		if err != nil {
			return
		}
		writeSSEEvent(w, strconv.FormatUint(seq, 10), "log", string(data))
	}
	if backlog > 0 {
		for _, rec := range s.logs.Latest(backlog, floor) {
			send(rec)
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-sub.C:
			if !ok {
				return
			}
			if rec.Level >= floor {
				send(rec)
			}
		}
	}
}
