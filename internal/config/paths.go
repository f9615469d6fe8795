package config

import (
	"os"
	"path/filepath"
)

const clientConfigFile = "claude_desktop_config.json"

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// ExternalConfigPath returns where Claude Desktop keeps its config for the given GOOS.
// home and appData are passed in so the result does not depend on the running machine.
func ExternalConfigPath(goos, home, appData string) string {
	switch goos {
	case "windows":
		return filepath.Join(appData, "Claude", clientConfigFile)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Claude", clientConfigFile)
	default:
		return filepath.Join(home, ".config", "Claude", clientConfigFile)
	}
}
