package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vlazic/mcphub/internal/models"
	"github.com/vlazic/mcphub/internal/services/testutil"
)

func newClientConfigService(t *testing.T) (*ClientConfigService, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Claude", "claude_desktop_config.json")
	return NewClientConfigService(path, zap.NewNop()), path
}

func readJSON(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func gitRecord() *models.InstalledServer {
	return &models.InstalledServer{
		Name:        testutil.GitServerSlug,
		Runtime:     models.RuntimeNode,
		Enabled:     true,
		CommandArgs: []string{"--stdio"},
		Env:         map[string]string{},
	}
}

func TestReadClientConfigMissingFile(t *testing.T) {
	service, _ := newClientConfigService(t)

	result, err := service.ReadClientConfig()
	require.NoError(t, err)
	assert.False(t, result.Corrupt)
	assert.Equal(t, map[string]interface{}{}, result.Document["mcpServers"])
}

func TestSyncWritesEntry(t *testing.T) {
	service, path := newClientConfigService(t)

	require.NoError(t, service.Sync(testutil.GitServerName, gitRecord()))

	doc := readJSON(t, path)
	servers := doc["mcpServers"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{
		"command": "node",
		"args":    []interface{}{"--stdio"},
		"env":     map[string]interface{}{},
	}, servers[testutil.GitServerSlug])

	exists, err := service.GetMCPServerStatus(testutil.GitServerName)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSyncIsIdempotent(t *testing.T) {
	service, path := newClientConfigService(t)
	require.NoError(t, service.Sync("git_mcp_server", gitRecord()))

	before, err := os.Stat(path)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, service.Sync("git_mcp_server", gitRecord()))

	after, err := os.Stat(path)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, before.ModTime(), after.ModTime(), "unchanged entry must not rewrite the file")
}

func TestSyncPreservesOtherKeys(t *testing.T) {
	service, path := newClientConfigService(t)
	testutil.WriteTestFile(t, path, `{
  "other": 1,
  "theme": "dark",
  "mcpServers": {
    "filesystem": {"command": "npx", "args": ["@modelcontextprotocol/server-filesystem"]}
  }
}`)

	require.NoError(t, service.Sync("git_mcp_server", gitRecord()))

	doc := readJSON(t, path)
	assert.Equal(t, float64(1), doc["other"])
	assert.Equal(t, "dark", doc["theme"])
	servers := doc["mcpServers"].(map[string]interface{})
	assert.Contains(t, servers, "filesystem")
	assert.Contains(t, servers, "git_mcp_server")
}

func TestRemoveEntry(t *testing.T) {
	service, path := newClientConfigService(t)
	testutil.WriteTestFile(t, path, `{"other": 1, "mcpServers": {"git_mcp_server": {"command": "node"}}}`)

	require.NoError(t, service.Remove("Git MCP Server"))

	doc := readJSON(t, path)
	assert.Equal(t, float64(1), doc["other"])
	assert.Empty(t, doc["mcpServers"])
}

func TestRemoveMissingEntryDoesNotWrite(t *testing.T) {
	service, path := newClientConfigService(t)

	require.NoError(t, service.Remove("unknown"))
	assert.NoFileExists(t, path)
}

func TestCorruptClientConfig(t *testing.T) {
	service, path := newClientConfigService(t)
	testutil.WriteTestFile(t, path, "{not json")

	result, err := service.ReadClientConfig()
	require.NoError(t, err)
	assert.True(t, result.Corrupt)
	assert.Empty(t, result.Document["mcpServers"])

	require.NoError(t, service.Sync("git_mcp_server", gitRecord()))

	doc := readJSON(t, path)
	assert.Contains(t, doc["mcpServers"], "git_mcp_server")

	matches, err := filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	backup, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(backup))
}

func TestApplyMatchesEnabledFlags(t *testing.T) {
	service, path := newClientConfigService(t)
	testutil.WriteTestFile(t, path, `{"mcpServers": {
  "weather": {"command": "python", "args": [], "env": {}},
  "manual": {"url": "https://example.com/mcp"}
}}`)

	weather := &models.InstalledServer{Name: "weather", Runtime: models.RuntimePython, Enabled: false}
	servers := map[string]*models.InstalledServer{
		"git_mcp_server": gitRecord(),
		"weather":        weather,
	}

	changed, err := service.Apply(servers)
	require.NoError(t, err)
	assert.True(t, changed)

	entries := readJSON(t, path)["mcpServers"].(map[string]interface{})
	assert.Contains(t, entries, "git_mcp_server")
	assert.NotContains(t, entries, "weather")
	assert.Contains(t, entries, "manual", "entries not managed locally are left alone")

	changed, err = service.Apply(servers)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestWriteClientConfigReplacesDocument(t *testing.T) {
	service, path := newClientConfigService(t)
	require.NoError(t, service.Sync("git_mcp_server", gitRecord()))

	require.NoError(t, service.WriteClientConfig(map[string]interface{}{"theme": "light"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"theme": "light"`))
	assert.NotContains(t, string(data), "git_mcp_server")
}

func TestServerEntryNeverNull(t *testing.T) {
	entry := ServerEntry(&models.InstalledServer{Runtime: models.RuntimePython})
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"python","args":[],"env":{}}`, string(data))
}
