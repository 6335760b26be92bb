package datastore

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Handler serves a Store over the endpoints Client uses.
type Handler struct {
	store  Store
	schema []byte
	log    *slog.Logger
}

// NewHandler returns a handler for store. schemaJSON is served verbatim.
func NewHandler(store Store, schemaJSON []byte, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, schema: schemaJSON, log: log}
}

// Register adds the data endpoints to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+SchemaEndpoint, h.schemaHandler)
	mux.HandleFunc("GET "+DataEndpoint+"/{path...}", h.queryHandler)
	mux.HandleFunc("POST "+DataEndpoint, h.applyHandler)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var de *Error
	if errors.As(err, &de) {
		code = de.Code
		msg = ""
		if de.Err != nil {
			msg = de.Err.Error()
		}
	}
	writeJSON(w, code, Envelope{Error: msg})
}

func (h *Handler) schemaHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(h.schema)
}

func (h *Handler) queryHandler(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	filter, err := DecodeFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, &Error{Code: http.StatusBadRequest, Path: path, Err: err})
		return
	}
	_, v, err := h.store.Query(r.Context(), path, filter)
	if err != nil {
		h.log.Debug("query failed", "path", path, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: v})
}

func (h *Handler) applyHandler(w http.ResponseWriter, r *http.Request) {
	var body PlanBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, &Error{Code: http.StatusBadRequest, Path: DataEndpoint, Err: err})
		return
	}
	plan, err := body.Plan()
	if err != nil {
		writeError(w, &Error{Code: http.StatusBadRequest, Path: body.Selector, Err: err})
		return
	}
	if err := h.store.Apply(r.Context(), plan); err != nil {
		h.log.Info("apply failed", "op", body.Op, "selector", body.Selector, "err", err)
		writeError(w, err)
		return
	}
	h.log.Info("applied", "op", body.Op, "selector", body.Selector)
	writeJSON(w, http.StatusOK, Envelope{Success: true})
}
