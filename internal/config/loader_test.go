package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlazic/mcphub/internal/models"
)

func TestExternalConfigPath(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"darwin", filepath.Join("/home/u", "Library", "Application Support", "Claude", "claude_desktop_config.json")},
		{"windows", filepath.Join("/appdata", "Claude", "claude_desktop_config.json")},
		{"linux", filepath.Join("/home/u", ".config", "Claude", "claude_desktop_config.json")},
		{"freebsd", filepath.Join("/home/u", ".config", "Claude", "claude_desktop_config.json")},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			assert.Equal(t, tt.want, ExternalConfigPath(tt.goos, "/home/u", "/appdata"))
		})
	}
}

func TestApplyDerivedDefaults(t *testing.T) {
	s := &models.Settings{DataDir: "/var/lib/mcphub"}
	ApplyDerivedDefaults(s, "linux", "/home/u", "")

	assert.Equal(t, filepath.Join("/var/lib/mcphub", "config.yaml"), s.StateFile)
	assert.Equal(t, filepath.Join("/var/lib/mcphub", "servers"), s.ServersDir)
	assert.Equal(t, filepath.Join("/var/lib/mcphub", "processes.yaml"), s.ProcessFile)
	assert.Equal(t, filepath.Join("/var/lib/mcphub", "logs"), s.LogsDir)
	assert.Equal(t, ExternalConfigPath("linux", "/home/u", ""), s.ClientConfigPath)
	assert.Equal(t, DefaultServerPort, s.ServerPort)
	assert.Equal(t, "npm", s.NPMCommand)
	assert.Equal(t, "pip", s.PipCommand)
}

func TestApplyDerivedDefaultsKeepsExplicitPaths(t *testing.T) {
	s := &models.Settings{
		DataDir:          "/data",
		StateFile:        "/elsewhere/state.yaml",
		ClientConfigPath: "/tmp/claude.json",
	}
	ApplyDerivedDefaults(s, "darwin", "/home/u", "")

	assert.Equal(t, "/elsewhere/state.yaml", s.StateFile)
	assert.Equal(t, "/tmp/claude.json", s.ClientConfigPath)
}

func TestLoadSettingsCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	settings, used, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.FileExists(t, path)

	assert.Equal(t, "localhost", settings.Host)
	assert.Equal(t, 3000, settings.ServerPort)
	assert.Equal(t, time.Hour, settings.RegistryCacheTTL)
	assert.True(t, settings.WatchClientConfig)
	assert.Equal(t, 1, settings.CloneDepth)
	assert.Equal(t, DefaultRegistryURL, settings.RegistryURL)
}

func TestLoadSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := "data_dir: " + dir + "\nserver_port: 4100\nwatch_client_config: false\nclient_config_path: " +
		filepath.Join(dir, "claude.json") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	settings, _, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 4100, settings.ServerPort)
	assert.False(t, settings.WatchClientConfig)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), settings.StateFile)
	assert.Equal(t, filepath.Join(dir, "claude.json"), settings.ClientConfigPath)
}

func TestLoadSettingsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: 4100\n"), 0644))
	t.Setenv("MCPHUB_SERVER_PORT", "5200")
	t.Setenv("MCPHUB_DATA_DIR", dir)

	settings, _, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 5200, settings.ServerPort)
	assert.Equal(t, dir, settings.DataDir)
}
