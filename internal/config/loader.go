package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vlazic/mcphub/internal/models"
)

const (
	DefaultSettingsPath = "~/.mcphub/settings.yaml"
	DefaultDataDir      = "~/.mcphub"
	DefaultServerPort   = 3000
	DefaultRegistryURL  = "https://raw.githubusercontent.com/hemangjoshi37a/mcphub/main/registry/servers.yaml"
)

var defaultAllowedOrigins = []string{"http://localhost:3000", "https://mcphub.io"}

func newSettingsViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MCPHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setSettingsDefaults(v)
	return v
}

func setSettingsDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("server_port", DefaultServerPort)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("state_file", "")
	v.SetDefault("servers_dir", "")
	v.SetDefault("process_file", "")
	v.SetDefault("logs_dir", "")
	v.SetDefault("client_config_path", "")
	v.SetDefault("registry_url", DefaultRegistryURL)
	v.SetDefault("registry_cache_ttl", time.Hour)
	v.SetDefault("allowed_origins", defaultAllowedOrigins)
	v.SetDefault("watch_client_config", true)
	v.SetDefault("install_timeout", time.Duration(0))
	v.SetDefault("npm_command", "npm")
	v.SetDefault("pip_command", "pip")
	v.SetDefault("clone_depth", 1)
}

// LoadSettings resolves, reads and normalizes the settings file. It returns the
// settings together with the path that was actually used.
func LoadSettings(settingsPath string) (*models.Settings, string, error) {
	actualPath, err := resolveSettingsPath(settingsPath)
	if err != nil {
		return nil, "", err
	}

	v := newSettingsViper()
	v.SetConfigFile(actualPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, "", fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings models.Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, "", fmt.Errorf("failed to parse settings file: %w", err)
	}

	home, _ := os.UserHomeDir()
	ApplyDerivedDefaults(&settings, runtime.GOOS, home, os.Getenv("APPDATA"))

	return &settings, actualPath, nil
}

// ApplyDerivedDefaults fills every path left empty from data_dir and the platform.
func ApplyDerivedDefaults(s *models.Settings, goos, home, appData string) {
	if s.DataDir == "" {
		s.DataDir = DefaultDataDir
	}
	s.DataDir = ExpandPath(s.DataDir)

	if s.StateFile == "" {
		s.StateFile = filepath.Join(s.DataDir, "config.yaml")
	}
	if s.ServersDir == "" {
		s.ServersDir = filepath.Join(s.DataDir, "servers")
	}
	if s.ProcessFile == "" {
		s.ProcessFile = filepath.Join(s.DataDir, "processes.yaml")
	}
	if s.LogsDir == "" {
		s.LogsDir = filepath.Join(s.DataDir, "logs")
	}
	if s.ClientConfigPath == "" {
		s.ClientConfigPath = ExternalConfigPath(goos, home, appData)
	}
	s.StateFile = ExpandPath(s.StateFile)
	s.ServersDir = ExpandPath(s.ServersDir)
	s.ProcessFile = ExpandPath(s.ProcessFile)
	s.LogsDir = ExpandPath(s.LogsDir)
	s.ClientConfigPath = ExpandPath(s.ClientConfigPath)

	if s.ServerPort == 0 {
		s.ServerPort = DefaultServerPort
	}
	if s.NPMCommand == "" {
		s.NPMCommand = "npm"
	}
	if s.PipCommand == "" {
		s.PipCommand = "pip"
	}
}

// resolveSettingsPath implements settings path resolution with fallback
func resolveSettingsPath(settingsPath string) (string, error) {
	// If explicit path provided, try to use it - create if it doesn't exist
	if settingsPath != "" {
		expanded := ExpandPath(settingsPath)
		if _, err := os.Stat(expanded); err != nil {
			if err := createDefaultSettings(expanded); err != nil {
				return "", fmt.Errorf("specified settings file not found and could not create: %s", expanded)
			}
		}
		return expanded, nil
	}

	// Priority order:
	// 1. ~/.mcphub/settings.yaml
	// 2. ./settings.yaml
	// 3. auto-create 1.
	candidates := []string{
		ExpandPath(DefaultSettingsPath),
		"./settings.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	userSettingsPath := ExpandPath(DefaultSettingsPath)
	if err := createDefaultSettings(userSettingsPath); err != nil {
		return "", fmt.Errorf("failed to create default settings: %w", err)
	}

	return userSettingsPath, nil
}
