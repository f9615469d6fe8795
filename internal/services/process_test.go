package services

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vlazic/mcphub/internal/models"
	"github.com/vlazic/mcphub/internal/services/testutil"
)

// fakeLauncher registers every launched command with inspector under increasing pids.
func fakeLauncher(inspector *testutil.FakeInspector, launched *[]*exec.Cmd) ProcessLauncher {
	next := 4000
	return func(cmd *exec.Cmd) (int, error) {
		next++
		*launched = append(*launched, cmd)
		inspector.Add(next, strings.Join(cmd.Args, " "))
		return next, nil
	}
}

func installedPythonServer(t *testing.T, settings *models.Settings) *models.InstalledServer {
	t.Helper()
	path := filepath.Join(settings.ServersDir, "weather_server")
	testutil.WriteTestFile(t, filepath.Join(path, "src", "server.py"), "")
	return &models.InstalledServer{
		Name:        "weather_server",
		InstallPath: path,
		Runtime:     models.RuntimePython,
		Enabled:     true,
		Port:        8080,
		AuthToken:   "tok",
		CommandArgs: []string{"--verbose"},
		Env:         map[string]string{"API_KEY": "secret"},
	}
}

func TestFindEntryPoint(t *testing.T) {
	t.Run("priority order wins over depth", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTestFile(t, filepath.Join(root, "main.py"), "")
		testutil.WriteTestFile(t, filepath.Join(root, "pkg", "server.py"), "")

		entry, err := FindEntryPoint(root, models.RuntimePython)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "pkg", "server.py"), entry)
	})

	t.Run("node candidates", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTestFile(t, filepath.Join(root, "main.js"), "")
		testutil.WriteTestFile(t, filepath.Join(root, "index.js"), "")

		entry, err := FindEntryPoint(root, models.RuntimeNode)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "index.js"), entry)
	})

	t.Run("dependency directories are skipped", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTestFile(t, filepath.Join(root, "node_modules", "dep", "index.js"), "")

		_, err := FindEntryPoint(root, models.RuntimeNode)
		assert.ErrorIs(t, err, ErrEntryPointNotFound)
	})

	t.Run("nothing found", func(t *testing.T) {
		_, err := FindEntryPoint(t.TempDir(), models.RuntimePython)
		assert.ErrorIs(t, err, ErrEntryPointNotFound)
		assert.ErrorContains(t, err, "server.py or main.py")
	})
}

func TestLaunchCommand(t *testing.T) {
	server := &models.InstalledServer{
		Runtime:     models.RuntimePython,
		Port:        8080,
		AuthToken:   "tok",
		CommandArgs: []string{"--verbose"},
	}
	assert.Equal(t,
		[]string{"python", "/srv/server.py", "--verbose", "--port", "8080", "--auth-token", "tok"},
		LaunchCommand(server, "/srv/server.py"))

	bare := &models.InstalledServer{Runtime: models.RuntimeNode, CommandArgs: []string{}}
	assert.Equal(t, []string{"node", "/srv/index.js"}, LaunchCommand(bare, "/srv/index.js"))
}

func TestProcessServiceStartStop(t *testing.T) {
	settings := testutil.NewSettings(t)
	inspector := testutil.NewFakeInspector()
	var launched []*exec.Cmd
	service := NewProcessService(settings, zap.NewNop(),
		WithProcessLauncher(fakeLauncher(inspector, &launched)),
		WithProcessInspector(inspector))

	server := installedPythonServer(t, settings)
	ctx := context.Background()

	info, err := service.Start(ctx, server)
	require.NoError(t, err)
	require.Len(t, launched, 1)
	assert.Equal(t, 4001, info.PID)
	assert.Equal(t, filepath.Join(settings.LogsDir, "weather_server.log"), info.LogPath)
	assert.FileExists(t, info.LogPath)
	assert.Equal(t, server.InstallPath, launched[0].Dir)
	assert.Contains(t, launched[0].Env, "API_KEY=secret")
	assert.Equal(t, []string{"--port", "8080", "--auth-token", "tok"}, info.Command[len(info.Command)-4:])

	again, err := service.Start(ctx, server)
	require.NoError(t, err)
	assert.Equal(t, info.PID, again.PID, "start is idempotent while the process lives")
	assert.Len(t, launched, 1)

	status, running := service.Status(ctx, server)
	assert.True(t, running)
	assert.Equal(t, info.PID, status.PID)

	stopped, err := service.Stop(ctx, server)
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, []int{4001}, inspector.Terminated)

	_, running = service.Status(ctx, server)
	assert.False(t, running)

	stopped, err = service.Stop(ctx, server)
	require.NoError(t, err)
	assert.False(t, stopped, "stopping a stopped server is not an error")
}

func TestProcessServiceReusedPID(t *testing.T) {
	settings := testutil.NewSettings(t)
	inspector := testutil.NewFakeInspector()
	var launched []*exec.Cmd
	service := NewProcessService(settings, zap.NewNop(),
		WithProcessLauncher(fakeLauncher(inspector, &launched)),
		WithProcessInspector(inspector))

	server := installedPythonServer(t, settings)
	ctx := context.Background()

	info, err := service.Start(ctx, server)
	require.NoError(t, err)

	// The server exits and an unrelated process takes its pid.
	inspector.Add(info.PID, "/usr/bin/vim notes.txt")

	_, running := service.Status(ctx, server)
	assert.False(t, running)

	stopped, err := service.Stop(ctx, server)
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Empty(t, inspector.Terminated, "an unrelated process must never be killed")
}

func TestProcessServiceStopFindsUntrackedProcess(t *testing.T) {
	settings := testutil.NewSettings(t)
	inspector := testutil.NewFakeInspector()
	service := NewProcessService(settings, zap.NewNop(), WithProcessInspector(inspector))

	server := installedPythonServer(t, settings)
	inspector.Add(777, "python "+filepath.Join(server.InstallPath, "src", "server.py"))

	stopped, err := service.Stop(context.Background(), server)
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, []int{777}, inspector.Terminated)
}

func TestProcessServiceStartErrors(t *testing.T) {
	settings := testutil.NewSettings(t)
	inspector := testutil.NewFakeInspector()

	t.Run("missing entry point", func(t *testing.T) {
		service := NewProcessService(settings, zap.NewNop(), WithProcessInspector(inspector))
		server := &models.InstalledServer{Name: "empty", InstallPath: t.TempDir(), Runtime: models.RuntimeNode}

		_, err := service.Start(context.Background(), server)
		assert.ErrorIs(t, err, ErrEntryPointNotFound)
	})

	t.Run("launch failure", func(t *testing.T) {
		service := NewProcessService(settings, zap.NewNop(),
			WithProcessInspector(inspector),
			WithProcessLauncher(func(*exec.Cmd) (int, error) { return 0, errors.New("exec format error") }))
		server := installedPythonServer(t, settings)

		_, err := service.Start(context.Background(), server)
		assert.ErrorContains(t, err, "exec format error")
	})
}

func TestProcessServiceStopMatchesWholeDirectory(t *testing.T) {
	settings := testutil.NewSettings(t)
	inspector := testutil.NewFakeInspector()
	service := NewProcessService(settings, zap.NewNop(), WithProcessInspector(inspector))

	other := filepath.Join(settings.ServersDir, "git_mcp_server", "server.js")
	inspector.Add(4242, "node "+other)

	// "git" is a prefix of "git_mcp_server" but a different directory.
	git := &models.InstalledServer{
		Name:        "git",
		InstallPath: filepath.Join(settings.ServersDir, "git"),
		Runtime:     models.RuntimeNode,
	}
	stopped, err := service.Stop(context.Background(), git)
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Empty(t, inspector.Terminated)
}

func TestProcessServiceIgnoresRecordsWithoutOwnDirectory(t *testing.T) {
	settings := testutil.NewSettings(t)
	inspector := testutil.NewFakeInspector()
	var launched []*exec.Cmd
	service := NewProcessService(settings, zap.NewNop(),
		WithProcessLauncher(fakeLauncher(inspector, &launched)),
		WithProcessInspector(inspector))

	inspector.Add(99, "/usr/sbin/sshd -D")
	inspector.Add(4242, "node "+filepath.Join(settings.ServersDir, "git_mcp_server", "server.js"))
	ctx := context.Background()

	for _, path := range []string{"", settings.ServersDir, settings.DataDir} {
		server := &models.InstalledServer{Name: "broken", InstallPath: path, Runtime: models.RuntimeNode}

		stopped, err := service.Stop(ctx, server)
		require.NoError(t, err, path)
		assert.False(t, stopped, path)

		_, running := service.Status(ctx, server)
		assert.False(t, running, path)
	}
	assert.Empty(t, inspector.Terminated)
}

func TestProcessServiceStopKeepsRecordWhenTerminateFails(t *testing.T) {
	settings := testutil.NewSettings(t)
	inspector := testutil.NewFakeInspector()
	var launched []*exec.Cmd
	service := NewProcessService(settings, zap.NewNop(),
		WithProcessLauncher(fakeLauncher(inspector, &launched)),
		WithProcessInspector(inspector))

	server := installedPythonServer(t, settings)
	ctx := context.Background()

	info, err := service.Start(ctx, server)
	require.NoError(t, err)

	inspector.TerminateErr = map[int]error{info.PID: errors.New("operation not permitted")}
	_, err = service.Stop(ctx, server)
	assert.ErrorContains(t, err, "operation not permitted")

	status, running := service.Status(ctx, server)
	require.True(t, running, "the pid stays recorded for a retry")
	assert.Equal(t, info.PID, status.PID)

	inspector.TerminateErr = nil
	stopped, err := service.Stop(ctx, server)
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, []int{info.PID}, inspector.Terminated)

	_, running = service.Status(ctx, server)
	assert.False(t, running)
}
