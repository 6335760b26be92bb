package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psaab/bigsh/pkg/command"
	"github.com/psaab/bigsh/pkg/configstore"
	"github.com/psaab/bigsh/pkg/datastore"
	"github.com/psaab/bigsh/pkg/logging"
	"github.com/psaab/bigsh/pkg/metrics"
	"github.com/psaab/bigsh/pkg/runconfig"
	"github.com/psaab/bigsh/pkg/schema"
)

type fixture struct {
	srv     *Server
	mem     *datastore.Memory
	snaps   *configstore.Store
	metrics *metrics.Collector
	logs    *logging.Buffer
	golden  string
}

func newFixture(t *testing.T, auth *AuthConfig) *fixture {
	t.Helper()
	schemaJSON, err := os.ReadFile("../../testdata/schema.json")
	require.NoError(t, err)
	m, err := schema.ParseModel(schemaJSON)
	require.NoError(t, err)
	reg, err := command.LoadFiles("../../testdata/descriptors.yaml")
	require.NoError(t, err)
	mem, err := datastore.LoadMemory(m, "../../testdata/data.yaml")
	require.NoError(t, err)
	golden, err := os.ReadFile("../../testdata/running-config.golden")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	col := metrics.New()
	snaps := configstore.New(10, nil, log)
	logs := logging.NewBuffer(64)
	srv := NewServer(Config{
		Auth:       auth,
		Generator:  runconfig.NewGenerator(m, reg, runconfig.WithLogger(log), runconfig.WithObserver(col)),
		Querier:    mem,
		Data:       mem,
		SchemaJSON: schemaJSON,
		Snapshots:  snaps,
		Metrics:    col,
		Logs:       logs,
		Logger:     log,
	})
	return &fixture{srv: srv, mem: mem, snaps: snaps, metrics: col, logs: logs, golden: string(golden)}
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) Response {
	t.Helper()
	resp := Response{Data: data}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, NewAuthConfig("tok"))
	w := f.get(t, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var h HealthResponse
	resp := decode(t, w, &h)
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", h.Status)
	assert.Contains(t, h.TopPaths, "ntp")
}

func TestRunningConfigText(t *testing.T) {
	f := newFixture(t, nil)
	w := f.get(t, "/api/v1/running-config")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, f.golden, w.Body.String())

	snap, err := f.snaps.History().Get(0)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, w.Header().Get("X-Snapshot-Id"))
	assert.Equal(t, "api", snap.Comment)
}

func TestRunningConfigJSON(t *testing.T) {
	f := newFixture(t, nil)
	q := url.Values{}
	q.Set("format", "json")
	q.Add("path", "core/switch")
	q.Set("filter", datastore.EncodeFilter(map[string]any{"dpid": "00:00:00:00:00:00:00:02"}))
	w := f.get(t, "/api/v1/running-config?"+q.Encode())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rc RunningConfig
	resp := decode(t, w, &rc)
	assert.True(t, resp.Success)
	assert.Contains(t, rc.Lines, "switch 00:00:00:00:00:00:00:02")
	assert.NotContains(t, rc.Lines, "  switch-alias spine-1")
	assert.Empty(t, rc.Codes)
	assert.NotEmpty(t, rc.Snapshot)
}

func TestRunningConfigIncomplete(t *testing.T) {
	f := newFixture(t, nil)
	f.mem.Deny("ntp", http.StatusForbidden)
	w := f.get(t, "/api/v1/running-config?format=json")
	require.Equal(t, http.StatusOK, w.Code)
	var rc RunningConfig
	decode(t, w, &rc)
	assert.Equal(t, []int{http.StatusForbidden}, rc.Codes)

	snap, err := f.snaps.History().Get(0)
	require.NoError(t, err)
	assert.False(t, snap.Complete())
}

func TestRunningConfigErrors(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		target string
		want   int
	}{
		{"/api/v1/running-config?detail=maybe", http.StatusBadRequest},
		{"/api/v1/running-config?filter=%5B1%5D", http.StatusBadRequest},
		{"/api/v1/running-config?path=ntp&path=tenant&filter=%7B%22name%22%3A%22red%22%7D", http.StatusBadRequest},
		{"/api/v1/running-config?path=core/bogus", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := f.get(t, tt.target)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			resp := decode(t, w, nil)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestSnapshotsAndCompare(t *testing.T) {
	f := newFixture(t, nil)
	w := f.get(t, "/api/v1/running-config?path=core/switch")
	require.Equal(t, http.StatusOK, w.Code)
	first := w.Header().Get("X-Snapshot-Id")

	f.mem.Deny("core", http.StatusUnauthorized)
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/running-config?path=core/switch").Code)

	var list []SnapshotEntry
	resp := decode(t, f.get(t, "/api/v1/snapshots"), &list)
	assert.True(t, resp.Success)
	require.Len(t, list, 2)
	assert.Equal(t, first, list[1].ID)
	assert.True(t, list[1].Complete)
	assert.False(t, list[0].Complete)

	w = f.get(t, "/api/v1/snapshots/"+first[:8])
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "switch-alias spine-1")

	w = f.get(t, "/api/v1/snapshots/compare")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "- switch 00:00:00:00:00:00:00:01 > switch-alias spine-1\n")

	w = f.get(t, "/api/v1/snapshots/compare?from=0&to=0")
	assert.Equal(t, "[no changes]\n", w.Body.String())

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/snapshots/compare?from=zz").Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/snapshots/nope").Code)

	var archived []SnapshotEntry
	resp = decode(t, f.get(t, "/api/v1/snapshots?archived=true"), &archived)
	assert.True(t, resp.Success)
	assert.Empty(t, archived)
}

func TestDatastoreRoutes(t *testing.T) {
	f := newFixture(t, nil)
	w := f.get(t, datastore.SchemaEndpoint)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.get(t, datastore.DataEndpoint+"/ntp/time-zone")
	require.Equal(t, http.StatusOK, w.Code)
	var env datastore.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "UTC", env.Data)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, NewAuthConfig("tok"))
	req := httptest.NewRequest("GET", "/api/v1/running-config", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bigsh_runs_total 1")

	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/api/v1/top-paths").Code)
}

func TestSelfSignedCertPersists(t *testing.T) {
	dir := t.TempDir()
	a, err := selfSignedCert(dir)
	require.NoError(t, err)
	b, err := selfSignedCert(dir)
	require.NoError(t, err)
	assert.Equal(t, a.Certificate[0], b.Certificate[0])

	_, err = selfSignedCert("")
	assert.NoError(t, err)
}
