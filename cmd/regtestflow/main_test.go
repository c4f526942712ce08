package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// failingNode answers every JSON-RPC request with an RPC error.
func failingNode(t *testing.T, message string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"result": nil,
			"error":  map[string]any{"code": -1, "message": message},
			"id":     req.ID,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunReportsFailureOnce(t *testing.T) {
	srv := failingNode(t, "node exploded")
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	var logs bytes.Buffer
	logOutput = &logs
	defer func() { logOutput = os.Stderr }()

	err := run([]string{
		"--config", filepath.Join(dir, "none.conf"),
		"--rpcaddr", strings.TrimPrefix(srv.URL, "http://"),
		"--out", out,
	})
	require.ErrorContains(t, err, "node exploded")

	// The error is returned for main to print, not logged as well.
	require.NotContains(t, logs.String(), "node exploded")

	// Nothing is written on failure.
	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr))
}
