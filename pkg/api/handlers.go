package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/psaab/bigsh/pkg/configstore"
	"github.com/psaab/bigsh/pkg/datastore"
	"github.com/psaab/bigsh/pkg/runconfig"
	"github.com/psaab/bigsh/pkg/schema"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, text)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, HealthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.startTime).Truncate(time.Second).String(),
		TopPaths: s.g.TopPaths(),
	})
}

func (s *Server) topPathsHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, s.g.TopPaths())
}

// runningConfigHandler generates the running config. Query parameters:
// path (repeatable), filter (JSON object, one path only), detail=true and
// format=json. The default format is the plain text the CLI prints.
func (s *Server) runningConfigHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := s.opts
	if v := q.Get("detail"); v != "" {
		detail, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "detail: "+err.Error())
			return
		}
		opts.Detail = detail
	}

	paths := q["path"]
	filter, err := datastore.DecodeFilter(q.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(filter) > 0 && len(paths) != 1 {
		writeError(w, http.StatusBadRequest, "filter needs exactly one path")
		return
	}
	if len(paths) > 0 {
		opts.Tops = nil
	}
	for _, p := range paths {
		p = schema.Clean(p)
		if _, err := s.g.Model().Lookup(p); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		opts.Tops = append(opts.Tops, runconfig.Top{Path: p, Filter: filter})
	}

	res, err := s.g.Generate(r.Context(), s.q, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	comment := "api"
	if len(paths) > 0 {
		comment += " " + strings.Join(paths, " ")
	}
	snap := s.snaps.Record(r.Context(), res.Lines, res.Codes, comment)
	w.Header().Set("X-Snapshot-Id", snap.ID)

	if q.Get("format") != "json" {
		writeText(w, snap.Text())
		return
	}
	out := RunningConfig{
		Snapshot: snap.ID,
		Lines:    res.Lines,
		Codes:    res.Codes,
		Commands: res.Commands,
	}
	for _, d := range res.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, d.String())
	}
	writeOK(w, out)
}

// snapshotsHandler lists the in-memory history, or the sqlite archive with
// archived=true.
func (s *Server) snapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("archived") == "true" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := s.snaps.Archived(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]SnapshotEntry, len(list))
		for i, sum := range list {
			out[i] = SnapshotEntry{Index: i, ID: sum.ID, Time: sum.Time, Comment: sum.Comment,
				Lines: sum.Lines, Complete: sum.Complete, Archived: true}
		}
		writeOK(w, out)
		return
	}
	list := s.snaps.History().List()
	out := make([]SnapshotEntry, len(list))
	for i, snap := range list {
		out[i] = SnapshotEntry{Index: i, ID: snap.ID, Time: snap.Time, Comment: snap.Comment,
			Lines: len(snap.Lines), Complete: snap.Complete()}
	}
	writeOK(w, out)
}

func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snaps.Lookup(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeText(w, snap.Text())
}

// compareHandler diffs two snapshots; from defaults to 1 and to to 0.
func (s *Server) compareHandler(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" {
		from = "1"
	}
	if to == "" {
		to = "0"
	}
	a, err := s.snaps.Lookup(r.Context(), from)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	b, err := s.snaps.Lookup(r.Context(), to)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeText(w, configstore.Compare(a, b))
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, configstore.ErrNoSnapshot) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
