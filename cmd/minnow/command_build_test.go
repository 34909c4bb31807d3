package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildCmdSurvivesManySlowCalls(t *testing.T) {
	// every service call stays inside the configured timeout, but the five
	// calls of a build (probe, upload, three row queries) together take
	// several times longer than one of them
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(400 * time.Millisecond)

		switch {
		case r.URL.Path == "/v2/status":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer server.Close()

	dir := t.TempDir()

	configDir := filepath.Join(dir, "configs")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "r1.cfg"), []byte("hostname r1\n"), 0o644))

	configPath := filepath.Join(dir, "minnow.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(
		"service:\n  address: "+server.URL+"\n  timeout: 1s\n"), 0o644))

	output := filepath.Join(dir, "out.json")
	cmd := &BuildCmd{ConfigDir: configDir, Output: output}

	err := cmd.Run(&Context{Config: configPath, Quiet: true, Logger: zap.NewNop()})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"topology"`)
}
