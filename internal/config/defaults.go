package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultSettings = `# mcphub settings
# Every key can be overridden with an MCPHUB_<KEY> environment variable.

host: "localhost"
server_port: 3000

# Root for local state. The paths below default to files inside it.
data_dir: "~/.mcphub"
# state_file: "~/.mcphub/config.yaml"
# servers_dir: "~/.mcphub/servers"
# process_file: "~/.mcphub/processes.yaml"
# logs_dir: "~/.mcphub/logs"

# Claude Desktop config. Empty means the platform default:
#   macOS:   ~/Library/Application Support/Claude/claude_desktop_config.json
#   Windows: %APPDATA%\Claude\claude_desktop_config.json
#   Linux:   ~/.config/Claude/claude_desktop_config.json
client_config_path: ""

# Re-apply installed servers when the Claude Desktop config is edited elsewhere.
watch_client_config: true

registry_url: "https://raw.githubusercontent.com/hemangjoshi37a/mcphub/main/registry/servers.yaml"
registry_cache_ttl: "1h"

allowed_origins:
  - "http://localhost:3000"
  - "https://mcphub.io"

# 0 disables the timeout for package manager and git steps.
install_timeout: "0s"
npm_command: "npm"
pip_command: "pip"
clone_depth: 1
`

// createDefaultSettings writes a commented settings file
func createDefaultSettings(settingsPath string) error {
	if err := os.MkdirAll(filepath.Dir(settingsPath), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}
