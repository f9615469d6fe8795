package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlazic/mcphub/internal/models"
)

func TestInstallOptionsDescriptorFromFlags(t *testing.T) {
	opts := &installOptions{name: "Git MCP Server", runtime: "node", pkg: "git-mcp-server"}

	d, err := opts.descriptor()
	require.NoError(t, err)
	assert.Equal(t, models.RuntimeNode, d.Runtime)
	assert.NotNil(t, d.CommandArgs, "no --arg flags still yields an empty argument list")
	assert.Empty(t, d.CommandArgs)
}

func TestInstallOptionsDescriptorFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.yaml")
	content := `name: Weather Server
runtime: python
package_reference: https://github.com/example/weather-mcp.git
command_args: []
default_network:
  port: 8080
  auth_token: ""
  env:
    API_KEY: secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	d, err := (&installOptions{file: path}).descriptor()
	require.NoError(t, err)
	assert.Equal(t, "weather_server", d.Slug())
	assert.True(t, d.IsRepository())
	assert.Equal(t, 8080, d.DefaultNetwork.Port)
	assert.Equal(t, "secret", d.DefaultNetwork.Env["API_KEY"])
	assert.NotNil(t, d.CommandArgs)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "install", "uninstall", "list", "status", "enable", "disable",
		"configure", "start", "stop", "sync", "registry"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
