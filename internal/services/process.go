package services

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vlazic/mcphub/internal/models"
)

var entryPointCandidates = map[models.Runtime][]string{
	models.RuntimePython: {"server.py", "main.py"},
	models.RuntimeNode:   {"server.js", "index.js", "main.js"},
}

var skippedDirs = []string{".git", "node_modules", ".venv", "venv", "__pycache__"}

// ProcessInspector looks up and terminates operating system processes.
type ProcessInspector interface {
	// Cmdline returns the command line of pid and whether it is running.
	Cmdline(ctx context.Context, pid int) (string, bool)
	// Find returns the pids whose command line contains substr.
	Find(ctx context.Context, substr string) ([]int, error)
	Terminate(pid int) error
}

// ProcessLauncher starts cmd without waiting for it and returns its pid.
type ProcessLauncher func(cmd *exec.Cmd) (int, error)

// ProcessService starts servers as detached background processes and remembers
// their pids in a process file so stop can target exactly what was started.
type ProcessService struct {
	tablePath  string
	serversDir string
	logsDir    string
	launch     ProcessLauncher
	inspector  ProcessInspector
	logger     *zap.Logger
	mu         sync.Mutex
}

type ProcessOption func(*ProcessService)

func WithProcessLauncher(l ProcessLauncher) ProcessOption {
	return func(s *ProcessService) { s.launch = l }
}

func WithProcessInspector(i ProcessInspector) ProcessOption {
	return func(s *ProcessService) { s.inspector = i }
}

func NewProcessService(settings *models.Settings, logger *zap.Logger, opts ...ProcessOption) *ProcessService {
	s := &ProcessService{
		tablePath:  settings.ProcessFile,
		serversDir: settings.ServersDir,
		logsDir:    settings.LogsDir,
		launch:     startDetached,
		inspector:  gopsutilInspector{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the server unless the recorded process for it is still alive,
// in which case the existing process is returned.
func (s *ProcessService) Start(ctx context.Context, server *models.InstalledServer) (*models.ProcessInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.loadTable()
	if err != nil {
		return nil, err
	}
	if info, ok := table.Processes[server.Name]; ok && s.owns(ctx, info, server) {
		return info, nil
	}

	entryPoint, err := FindEntryPoint(server.InstallPath, server.Runtime)
	if err != nil {
		return nil, err
	}
	argv := LaunchCommand(server, entryPoint)

	if err := os.MkdirAll(s.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	logPath := filepath.Join(s.logsDir, server.Name+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = server.InstallPath
	cmd.Env = append(os.Environ(), envPairs(server.Env)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	pid, err := s.launch(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start '%s': %w", server.Name, err)
	}

	info := &models.ProcessInfo{
		PID:       pid,
		Command:   argv,
		LogPath:   logPath,
		StartedAt: time.Now().UTC(),
	}
	table.Processes[server.Name] = info
	if err := s.saveTable(table); err != nil {
		return nil, err
	}

	s.logger.Info("server started",
		zap.String("server", server.Name), zap.Int("pid", pid), zap.Strings("command", argv))
	return info, nil
}

// Stop terminates the server's process and reports whether anything was stopped.
// A server with no live process is already stopped, which is not an error. The
// process table entry is dropped only once every termination succeeded.
func (s *ProcessService) Stop(ctx context.Context, server *models.InstalledServer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.loadTable()
	if err != nil {
		return false, err
	}

	var pids []int
	info, recorded := table.Processes[server.Name]
	if recorded && s.owns(ctx, info, server) {
		pids = append(pids, info.PID)
	}

	if len(pids) == 0 {
		if marker, ok := s.pathMarker(server); ok {
			found, err := s.inspector.Find(ctx, marker)
			if err != nil {
				s.logger.Warn("failed to list processes", zap.String("server", server.Name), zap.Error(err))
			}
			pids = found
		}
	}

	for _, pid := range pids {
		if err := s.inspector.Terminate(pid); err != nil {
			return false, fmt.Errorf("failed to stop '%s' (pid %d): %w", server.Name, pid, err)
		}
		s.logger.Info("server stopped", zap.String("server", server.Name), zap.Int("pid", pid))
	}

	if recorded {
		delete(table.Processes, server.Name)
		if err := s.saveTable(table); err != nil {
			return false, err
		}
	}

	return len(pids) > 0, nil
}

// Status returns the recorded process for the server if it is still alive.
func (s *ProcessService) Status(ctx context.Context, server *models.InstalledServer) (*models.ProcessInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.loadTable()
	if err != nil {
		s.logger.Warn("failed to read process table", zap.Error(err))
		return nil, false
	}
	info, ok := table.Processes[server.Name]
	if !ok || !s.owns(ctx, info, server) {
		return nil, false
	}
	return info, true
}

// owns guards against pid reuse: the live process must still run something from
// inside the install directory.
func (s *ProcessService) owns(ctx context.Context, info *models.ProcessInfo, server *models.InstalledServer) bool {
	marker, ok := s.pathMarker(server)
	if !ok {
		return false
	}
	cmdline, running := s.inspector.Cmdline(ctx, info.PID)
	return running && strings.Contains(cmdline, marker)
}

// pathMarker is the install directory with a trailing separator, so that
// servers/git never matches servers/git_mcp_server. Records whose directory is
// empty or outside the servers root have no marker and match nothing.
func (s *ProcessService) pathMarker(server *models.InstalledServer) (string, bool) {
	if !insideDir(s.serversDir, server.InstallPath) {
		return "", false
	}
	return filepath.Clean(server.InstallPath) + string(filepath.Separator), true
}

func (s *ProcessService) loadTable() (*models.ProcessTable, error) {
	table := &models.ProcessTable{}
	data, err := os.ReadFile(s.tablePath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read process file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, table); err != nil {
			s.logger.Warn("process file is corrupt, starting with an empty table",
				zap.String("path", s.tablePath), zap.Error(err))
			table = &models.ProcessTable{}
		}
	}
	if table.Processes == nil {
		table.Processes = make(map[string]*models.ProcessInfo)
	}
	return table, nil
}

func (s *ProcessService) saveTable(table *models.ProcessTable) error {
	data, err := yaml.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to marshal process table: %w", err)
	}
	if err := writeFileAtomic(s.tablePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write process file: %w", err)
	}
	return nil
}

// FindEntryPoint searches root for the runtime's entry-point files in priority order.
func FindEntryPoint(root string, runtime models.Runtime) (string, error) {
	for _, candidate := range entryPointCandidates[runtime] {
		var found string
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && slices.Contains(skippedDirs, d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Name() == candidate {
				found = path
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to search %s: %w", root, err)
		}
		if found != "" {
			return found, nil
		}
	}
	return "", fmt.Errorf("%w: no %s in %s", ErrEntryPointNotFound,
		strings.Join(entryPointCandidates[runtime], " or "), root)
}

// LaunchCommand builds argv: runtime, entry point, command args, then --port and
// --auth-token when they are set.
func LaunchCommand(server *models.InstalledServer, entryPoint string) []string {
	argv := []string{server.Runtime.Command(), entryPoint}
	argv = append(argv, server.CommandArgs...)
	if server.Port > 0 {
		argv = append(argv, "--port", strconv.Itoa(server.Port))
	}
	if server.AuthToken != "" {
		argv = append(argv, "--auth-token", server.AuthToken)
	}
	return argv
}

func envPairs(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

func startDetached(cmd *exec.Cmd) (int, error) {
	configureDetached(cmd)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Reap the child so it does not linger as a zombie while the agent runs.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

type gopsutilInspector struct{}

func (gopsutilInspector) Cmdline(ctx context.Context, pid int) (string, bool) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", false
	}
	running, err := p.IsRunningWithContext(ctx)
	if err != nil || !running {
		return "", false
	}
	cmdline, err := p.CmdlineWithContext(ctx)
	if err != nil {
		return "", true
	}
	return cmdline, true
}

func (gopsutilInspector) Find(ctx context.Context, substr string) ([]int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("error retrieving processes: %w", err)
	}

	self := os.Getpid()
	var pids []int
	for _, p := range procs {
		if int(p.Pid) == self {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, substr) {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}

func (gopsutilInspector) Terminate(pid int) error {
	return terminateProcess(pid)
}
