package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const registryYAML = `servers:
  - name: Weather Server
    description: Forecasts
    repository: https://github.com/example/weather-mcp.git
    version: 1.2.0
    tags: [weather]
  - name: Git MCP Server
    description: Git history tools
    repository: https://github.com/example/git-mcp
    package: git-mcp-server
    runtime: node
    version: 0.3.0
    tags: [git, vcs]
`

func newRegistryServer(t *testing.T, hits *int32, fail *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(registryYAML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRegistryFetchUsesFreshCache(t *testing.T) {
	var hits int32
	var fail atomic.Bool
	srv := newRegistryServer(t, &hits, &fail)
	cachePath := filepath.Join(t.TempDir(), "registry_cache.yaml")
	client := NewRegistryClient(srv.URL, cachePath, time.Hour, srv.Client(), zap.NewNop())

	catalog, err := client.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, catalog.Servers, 2)
	assert.FileExists(t, cachePath)

	_, err = client.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_, err = client.Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRegistryFallsBackToStaleCache(t *testing.T) {
	var hits int32
	var fail atomic.Bool
	srv := newRegistryServer(t, &hits, &fail)
	client := NewRegistryClient(srv.URL, filepath.Join(t.TempDir(), "cache.yaml"), time.Minute, srv.Client(), zap.NewNop())

	_, err := client.Fetch(context.Background(), false)
	require.NoError(t, err)

	client.now = func() time.Time { return time.Now().Add(time.Hour) }
	fail.Store(true)

	catalog, err := client.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, catalog.Servers, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRegistryFetchErrorWithoutCache(t *testing.T) {
	var hits int32
	var fail atomic.Bool
	fail.Store(true)
	srv := newRegistryServer(t, &hits, &fail)
	client := NewRegistryClient(srv.URL, filepath.Join(t.TempDir(), "cache.yaml"), time.Minute, srv.Client(), zap.NewNop())

	_, err := client.Fetch(context.Background(), false)
	assert.ErrorContains(t, err, "503")
}

func TestRegistrySearchAndLookup(t *testing.T) {
	var hits int32
	var fail atomic.Bool
	srv := newRegistryServer(t, &hits, &fail)
	client := NewRegistryClient(srv.URL, filepath.Join(t.TempDir(), "cache.yaml"), time.Hour, srv.Client(), zap.NewNop())
	ctx := context.Background()

	all, err := client.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	results, err := client.Search(ctx, "VCS")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Git MCP Server", results[0].Name)

	entry, err := client.Lookup(ctx, "weather server")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", entry.Version)

	_, err = client.Lookup(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}
