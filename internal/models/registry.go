package models

import "strings"

// RegistryEntry is one server listed in the public registry catalog.
type RegistryEntry struct {
	Name         string         `yaml:"name" json:"name"`
	Description  string         `yaml:"description" json:"description"`
	Repository   string         `yaml:"repository" json:"repository"`
	Package      string         `yaml:"package,omitempty" json:"package,omitempty"`
	Version      string         `yaml:"version" json:"version"`
	Tags         []string       `yaml:"tags" json:"tags"`
	Runtime      Runtime        `yaml:"runtime,omitempty" json:"runtime,omitempty"`
	CommandArgs  []string       `yaml:"command_args,omitempty" json:"command_args,omitempty"`
	ConfigSchema map[string]any `yaml:"config_schema,omitempty" json:"config_schema,omitempty"`
}

// RegistryCatalog is the document served at the registry URL.
type RegistryCatalog struct {
	Servers []RegistryEntry `yaml:"servers" json:"servers"`
}

// Matches reports whether query appears in the name, description or any tag.
func (e *RegistryEntry) Matches(query string) bool {
	query = strings.ToLower(query)
	if strings.Contains(strings.ToLower(e.Name), query) ||
		strings.Contains(strings.ToLower(e.Description), query) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

// DefaultPort reads config_schema.port.default, returning 0 when absent.
func (e *RegistryEntry) DefaultPort() int {
	port, ok := e.ConfigSchema["port"].(map[string]any)
	if !ok {
		return 0
	}
	switch v := port["default"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Descriptor converts the entry into an installable descriptor.
// Entries without a runtime are python repositories.
func (e *RegistryEntry) Descriptor() *ServerDescriptor {
	ref := e.Package
	if ref == "" {
		ref = e.Repository
	}
	runtime := e.Runtime
	if runtime == "" {
		runtime = RuntimePython
	}
	args := e.CommandArgs
	if len(args) == 0 {
		args = []string{}
	}
	return &ServerDescriptor{
		Name:             e.Name,
		Version:          e.Version,
		Runtime:          runtime,
		PackageReference: ref,
		CommandArgs:      append([]string(nil), args...),
		DefaultNetwork: NetworkSettings{
			Port: e.DefaultPort(),
			Env:  map[string]string{},
		},
	}
}
