package models

import "time"

// InstalledServer is the persisted record of a successfully installed server.
// Name is the map key in the state file and is not serialized inside the record.
type InstalledServer struct {
	Name        string            `yaml:"-" json:"name"`
	Version     string            `yaml:"version" json:"version"`
	InstallPath string            `yaml:"install_path" json:"install_path"`
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Runtime     Runtime           `yaml:"runtime" json:"runtime"`
	Port        int               `yaml:"port" json:"port"`
	AuthToken   string            `yaml:"auth_token" json:"auth_token"`
	CommandArgs []string          `yaml:"command_args" json:"command_args"`
	Env         map[string]string `yaml:"env" json:"env"`
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (s *InstalledServer) Clone() *InstalledServer {
	c := *s
	if s.CommandArgs != nil {
		c.CommandArgs = append([]string(nil), s.CommandArgs...)
	}
	if s.Env != nil {
		c.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			c.Env[k] = v
		}
	}
	return &c
}

// ServerUpdate is a partial update applied by reconfigure. Nil fields are left unchanged.
type ServerUpdate struct {
	Port        *int              `json:"port,omitempty"`
	AuthToken   *string           `json:"auth_token,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	CommandArgs []string          `json:"command_args,omitempty"`
}

// Apply merges the update into s. Env replaces the whole mapping when provided.
func (u *ServerUpdate) Apply(s *InstalledServer) {
	if u.Port != nil {
		s.Port = *u.Port
	}
	if u.AuthToken != nil {
		s.AuthToken = *u.AuthToken
	}
	if u.Env != nil {
		s.Env = make(map[string]string, len(u.Env))
		for k, v := range u.Env {
			s.Env[k] = v
		}
	}
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.CommandArgs != nil {
		s.CommandArgs = append([]string(nil), u.CommandArgs...)
	}
}

// StateDocument is the on-disk shape of the local state file.
type StateDocument struct {
	InstalledServers map[string]*InstalledServer `yaml:"installed_servers"`
}

// ProcessInfo is a durable record of a server process started by the manager.
type ProcessInfo struct {
	PID       int       `yaml:"pid" json:"pid"`
	Command   []string  `yaml:"command" json:"command"`
	LogPath   string    `yaml:"log_path" json:"log_path"`
	StartedAt time.Time `yaml:"started_at" json:"started_at"`
}

// ProcessTable is the on-disk shape of the process file.
type ProcessTable struct {
	Processes map[string]*ProcessInfo `yaml:"processes"`
}

// ServerStatus combines an installed record with its current process state.
type ServerStatus struct {
	*InstalledServer
	Running bool         `json:"running"`
	Process *ProcessInfo `json:"process,omitempty"`
}
