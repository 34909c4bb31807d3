package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minnowtool/minnow"
)

func serviceConfig(address string, retries int) minnow.ServiceConfig {
	return minnow.ServiceConfig{
		Address: address,
		Network: "testnet",
		Timeout: 5 * time.Second,
		Retries: retries,
	}
}

func TestNewClientRetriesStatusProbe(t *testing.T) {
	var probes int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/status", r.URL.Path)

		probes++
		if probes == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := NewClient(context.Background(), serviceConfig(server.URL, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, probes)
}

func TestNewClientGivesUpAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(context.Background(), serviceConfig(server.URL, 1), nil)
	assert.ErrorIs(t, err, minnow.ErrServiceUnavailable)
}

func TestUploadSnapshotAndFetchDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r1.cfg"), []byte("hostname r1\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "r2.cfg"), []byte("hostname r2\n"), 0o644))

	var uploaded snapshotPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/status":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/v2/networks/testnet/snapshots" && r.Method == http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&uploaded))
			w.WriteHeader(http.StatusCreated)
		case strings.HasSuffix(r.URL.Path, "/answers/topology"):
			w.Write([]byte(`[{"interface": {"hostname": "r1", "interface": "eth0"},
				"remoteInterface": {"hostname": "r2", "interface": "eth0"}}]`))
		case strings.HasSuffix(r.URL.Path, "/answers/nodeProperties"):
			w.Write([]byte(`[{"node": "r1", "asn": 65001, "interfaces": {}},
				{"node": "r2", "asn": 65002, "interfaces": {}}]`))
		case strings.HasSuffix(r.URL.Path, "/answers/namedStructures"):
			w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), serviceConfig(server.URL, 0), nil)
	require.NoError(t, err)

	snapshot, err := client.UploadSnapshot(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, snapshot, uploaded.Name)
	assert.Contains(t, snapshot, filepath.Base(dir))
	assert.Equal(t, map[string]string{
		"r1.cfg":     "hostname r1\n",
		"sub/r2.cfg": "hostname r2\n",
	}, uploaded.Files)

	doc, err := client.FetchDocument(context.Background(), snapshot)
	require.NoError(t, err)

	assert.Len(t, doc.Topology, 1)
	assert.Len(t, doc.Policy, 2)
	assert.Empty(t, doc.Declarations)
}

func TestFetchDocumentSurfacesServiceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/status" {
			w.WriteHeader(http.StatusOK)
			return
		}

		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), serviceConfig(server.URL, 0), nil)
	require.NoError(t, err)

	_, err = client.FetchDocument(context.Background(), "snap")
	assert.ErrorIs(t, err, minnow.ErrServiceStatus)
}

func TestFetchDocumentRejectsMalformedRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/status" {
			w.WriteHeader(http.StatusOK)
			return
		}

		w.Write([]byte(`{"not": "a list"}`))
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), serviceConfig(server.URL, 0), nil)
	require.NoError(t, err)

	_, err = client.FetchDocument(context.Background(), "snap")
	assert.ErrorIs(t, err, minnow.ErrMalformedDocument)
}
