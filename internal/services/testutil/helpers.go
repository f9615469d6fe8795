package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vlazic/mcphub/internal/models"
)

// Common test server names
const (
	GitServerName = "Git MCP Server"
	GitServerSlug = "git_mcp_server"
	GitPackage    = "git-mcp-server"
	TestRepoURL   = "https://github.com/example/weather-mcp.git"
)

// WriteTestFile writes content to path, creating parent directories.
func WriteTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// NewSettings returns settings rooted in a fresh temp directory.
func NewSettings(t *testing.T) *models.Settings {
	t.Helper()
	dir := t.TempDir()
	return &models.Settings{
		DataDir:          dir,
		StateFile:        filepath.Join(dir, "config.yaml"),
		ServersDir:       filepath.Join(dir, "servers"),
		ProcessFile:      filepath.Join(dir, "processes.yaml"),
		LogsDir:          filepath.Join(dir, "logs"),
		ClientConfigPath: filepath.Join(dir, "Claude", "claude_desktop_config.json"),
		NPMCommand:       "npm",
		PipCommand:       "pip",
	}
}

// GitServerDescriptor returns a node registry package with a single --stdio argument.
func GitServerDescriptor() *models.ServerDescriptor {
	return &models.ServerDescriptor{
		Name:             GitServerName,
		Runtime:          models.RuntimeNode,
		PackageReference: GitPackage,
		CommandArgs:      []string{"--stdio"},
		DefaultNetwork: models.NetworkSettings{
			Env: map[string]string{},
		},
	}
}

// RepoDescriptor returns a python repository descriptor.
func RepoDescriptor() *models.ServerDescriptor {
	return &models.ServerDescriptor{
		Name:             "Weather Server",
		Runtime:          models.RuntimePython,
		PackageReference: TestRepoURL,
		CommandArgs:      []string{},
		DefaultNetwork: models.NetworkSettings{
			Port: 8080,
			Env:  map[string]string{"API_KEY": "secret"},
		},
	}
}

// RecordedCommand is one invocation seen by FakeRunner.
type RecordedCommand struct {
	Dir  string
	Name string
	Args []string
}

func (c RecordedCommand) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// FakeRunner records commands and fails those whose String() starts with a key in Fail.
type FakeRunner struct {
	mu       sync.Mutex
	Commands []RecordedCommand
	Fail     map[string]error
}

func (r *FakeRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd := RecordedCommand{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	r.Commands = append(r.Commands, cmd)
	for prefix, err := range r.Fail {
		if strings.HasPrefix(cmd.String(), prefix) {
			return err
		}
	}
	return nil
}

// Invocations returns the recorded commands as strings.
func (r *FakeRunner) Invocations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Commands))
	for _, c := range r.Commands {
		out = append(out, c.String())
	}
	return out
}

// FakeFetcher writes Files into the target directory instead of cloning.
type FakeFetcher struct {
	Revision string
	Files    map[string]string
	Err      error
	URLs     []string
}

func (f *FakeFetcher) Fetch(ctx context.Context, url, dir string) (string, error) {
	f.URLs = append(f.URLs, url)
	if f.Err != nil {
		return "", f.Err
	}
	for name, content := range f.Files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return "", err
		}
	}
	return f.Revision, nil
}

// FakeInspector is an in-memory process table keyed by pid. Terminate fails with
// TerminateErr[pid] when set.
type FakeInspector struct {
	mu           sync.Mutex
	Procs        map[int]string
	Terminated   []int
	TerminateErr map[int]error
}

func NewFakeInspector() *FakeInspector {
	return &FakeInspector{Procs: make(map[int]string)}
}

func (f *FakeInspector) Cmdline(ctx context.Context, pid int) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmdline, ok := f.Procs[pid]
	return cmdline, ok
}

func (f *FakeInspector) Find(ctx context.Context, substr string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pids []int
	for pid, cmdline := range f.Procs {
		if strings.Contains(cmdline, substr) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (f *FakeInspector) Terminate(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Procs[pid]; !ok {
		return fmt.Errorf("process %d not found", pid)
	}
	if err := f.TerminateErr[pid]; err != nil {
		return err
	}
	delete(f.Procs, pid)
	f.Terminated = append(f.Terminated, pid)
	return nil
}

// Add registers a live process.
func (f *FakeInspector) Add(pid int, cmdline string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Procs[pid] = cmdline
}
