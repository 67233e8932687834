package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sla/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"overall_status":"healthy","total_metrics":1,"healthy_metrics":1,"warning_metrics":0,
			"critical_metrics":0,"uptime_percentage":99.9,"metrics_summary":{}}`))
	})
	mux.HandleFunc("/sla/alerts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"cli-alert","severity":"warning","triggered_at":"2026-03-01T10:00:00Z"}]`))
	})
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":1,"grouped_sessions":[{"key":"phone","sessions":[{"id":"s1"}]}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T, apiURL string) {
	t.Setenv("API_BASE_URL", apiURL)
	t.Setenv("SLA_WS_URL", "ws://127.0.0.1:1/ws")
	t.Setenv("CACHE_BACKEND", "file")
	t.Setenv("CACHE_DIR", t.TempDir())
	t.Setenv("LOG_OUTPUT", "stderr")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSnapshotWritesThroughToCache(t *testing.T) {
	setEnv(t, fakeAPI(t).URL)

	out, err := run(t, "snapshot")
	require.NoError(t, err)
	assert.Contains(t, out, "cli-alert")

	out, err = run(t, "snapshot", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "cli-alert")
	assert.Contains(t, out, "cache_timestamp")
}

func TestSnapshotOfflineWithoutCache(t *testing.T) {
	setEnv(t, fakeAPI(t).URL)
	_, err := run(t, "snapshot", "--offline")
	assert.Error(t, err)
}

func TestSessionsGrouped(t *testing.T) {
	setEnv(t, fakeAPI(t).URL)
	out, err := run(t, "sessions", "--grouped")
	require.NoError(t, err)
	assert.Contains(t, out, `"kind": "grouped"`)
	assert.Contains(t, out, "phone")
}

func TestMissingConfigFails(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("SLA_WS_URL", "")
	_, err := run(t, "snapshot")
	assert.Error(t, err)
}
