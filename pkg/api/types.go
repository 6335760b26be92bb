// Package api implements the HTTP API: the datastore endpoints, running
// config generation, snapshots, the log stream and Prometheus metrics.
package api

import "time"

// Response is the standard JSON response envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is served on /health.
type HealthResponse struct {
	Status   string   `json:"status"`
	Uptime   string   `json:"uptime"`
	TopPaths []string `json:"top_paths"`
}

// RunningConfig is the JSON form of a generated running configuration.
type RunningConfig struct {
	Snapshot    string   `json:"snapshot"`
	Lines       []string `json:"lines"`
	Codes       []int    `json:"codes,omitempty"`
	Commands    int      `json:"commands"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// SnapshotEntry describes one recorded snapshot.
type SnapshotEntry struct {
	Index    int       `json:"index"`
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Comment  string    `json:"comment,omitempty"`
	Lines    int       `json:"lines"`
	Complete bool      `json:"complete"`
	Archived bool      `json:"archived,omitempty"`
}

// LogStreamEntry is a log record sent via SSE.
type LogStreamEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Attrs   string `json:"attrs,omitempty"`
}
