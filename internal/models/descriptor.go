package models

import "strings"

// Runtime selects how a server is installed and launched.
type Runtime string

const (
	RuntimeNode   Runtime = "node"
	RuntimePython Runtime = "python"
)

// Valid reports whether r is one of the recognized runtimes.
func (r Runtime) Valid() bool {
	return r == RuntimeNode || r == RuntimePython
}

// Command returns the executable written to the client config and used to launch the server.
func (r Runtime) Command() string {
	if r == RuntimeNode {
		return "node"
	}
	return "python"
}

// NetworkSettings holds the default port, token and environment for a server.
type NetworkSettings struct {
	Port      int               `yaml:"port" json:"port"`
	AuthToken string            `yaml:"auth_token" json:"auth_token"`
	Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// ServerDescriptor describes an installable server.
type ServerDescriptor struct {
	Name             string          `yaml:"name" json:"name"`
	Version          string          `yaml:"version,omitempty" json:"version,omitempty"`
	Runtime          Runtime         `yaml:"runtime" json:"runtime"`
	PackageReference string          `yaml:"package_reference" json:"package_reference"`
	InstallCommand   string          `yaml:"install_command,omitempty" json:"install_command,omitempty"`
	InstallArgs      []string        `yaml:"install_args,omitempty" json:"install_args,omitempty"`
	CommandArgs      []string        `yaml:"command_args" json:"command_args"`
	DefaultNetwork   NetworkSettings `yaml:"default_network" json:"default_network"`
}

// Slug returns the normalized identity key for the descriptor.
func (d *ServerDescriptor) Slug() string {
	return Slug(d.Name)
}

// IsRepository reports whether the package reference points at a source repository
// rather than a registry package name.
func (d *ServerDescriptor) IsRepository() bool {
	return IsRepositoryURL(d.PackageReference)
}

// Slug normalizes a server name: lowercase, spaces to underscores.
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

var repositoryPrefixes = []string{"http://", "https://", "git://", "ssh://", "git@"}

// IsRepositoryURL reports whether ref looks like something git can clone.
func IsRepositoryURL(ref string) bool {
	ref = strings.TrimSpace(ref)
	for _, prefix := range repositoryPrefixes {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return strings.HasSuffix(ref, ".git")
}
