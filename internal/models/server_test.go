package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerUpdateApply(t *testing.T) {
	server := &InstalledServer{
		Name:        "weather",
		Port:        8080,
		AuthToken:   "old",
		Enabled:     true,
		CommandArgs: []string{"--stdio"},
		Env:         map[string]string{"A": "1"},
	}

	port := 9090
	disabled := false
	update := &ServerUpdate{Port: &port, Enabled: &disabled, Env: map[string]string{"B": "2"}}
	update.Apply(server)

	assert.Equal(t, 9090, server.Port)
	assert.Equal(t, "old", server.AuthToken, "unset fields are left alone")
	assert.False(t, server.Enabled)
	assert.Equal(t, map[string]string{"B": "2"}, server.Env, "env replaces the whole mapping")
	assert.Equal(t, []string{"--stdio"}, server.CommandArgs)
}

func TestInstalledServerClone(t *testing.T) {
	original := &InstalledServer{
		Name:        "weather",
		CommandArgs: []string{"--stdio"},
		Env:         map[string]string{"A": "1"},
	}
	clone := original.Clone()
	clone.CommandArgs[0] = "--http"
	clone.Env["A"] = "2"

	assert.Equal(t, "--stdio", original.CommandArgs[0])
	assert.Equal(t, "1", original.Env["A"])
}
