package models

import "time"

// Settings configures one mcphub process. It is loaded once and passed explicitly.
type Settings struct {
	Host              string        `mapstructure:"host" yaml:"host" json:"host"`
	ServerPort        int           `mapstructure:"server_port" yaml:"server_port" json:"server_port"`
	DataDir           string        `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`
	StateFile         string        `mapstructure:"state_file" yaml:"state_file" json:"state_file"`
	ServersDir        string        `mapstructure:"servers_dir" yaml:"servers_dir" json:"servers_dir"`
	ProcessFile       string        `mapstructure:"process_file" yaml:"process_file" json:"process_file"`
	LogsDir           string        `mapstructure:"logs_dir" yaml:"logs_dir" json:"logs_dir"`
	ClientConfigPath  string        `mapstructure:"client_config_path" yaml:"client_config_path" json:"client_config_path"`
	RegistryURL       string        `mapstructure:"registry_url" yaml:"registry_url" json:"registry_url"`
	RegistryCacheTTL  time.Duration `mapstructure:"registry_cache_ttl" yaml:"registry_cache_ttl" json:"registry_cache_ttl"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
	WatchClientConfig bool          `mapstructure:"watch_client_config" yaml:"watch_client_config" json:"watch_client_config"`
	InstallTimeout    time.Duration `mapstructure:"install_timeout" yaml:"install_timeout" json:"install_timeout"`
	NPMCommand        string        `mapstructure:"npm_command" yaml:"npm_command" json:"npm_command"`
	PipCommand        string        `mapstructure:"pip_command" yaml:"pip_command" json:"pip_command"`
	CloneDepth        int           `mapstructure:"clone_depth" yaml:"clone_depth" json:"clone_depth"`
}
