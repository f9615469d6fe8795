package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/vlazic/mcphub/internal/models"
)

// PackageInstaller acquires a server package on disk.
type PackageInstaller interface {
	Install(ctx context.Context, d *models.ServerDescriptor) (*InstallResult, error)
}

// ServerProcesses starts and stops installed servers.
type ServerProcesses interface {
	Start(ctx context.Context, server *models.InstalledServer) (*models.ProcessInfo, error)
	Stop(ctx context.Context, server *models.InstalledServer) (bool, error)
	Status(ctx context.Context, server *models.InstalledServer) (*models.ProcessInfo, bool)
}

// MCPManagerService turns descriptors into installed, registered and running servers.
//
// The state store is the source of truth. After every mutating call the client config
// has an entry for exactly the enabled records; when the second half of a transition
// fails, the first half is undone or the error says what is left to retry.
//
// Calls are synchronous. Only one operation per server slug runs at a time; a second
// call for a busy slug fails with ErrOperationInProgress. Calls for different slugs may
// run concurrently; the state store serializes its own read-modify-write.
type MCPManagerService struct {
	store      *StateStore
	clients    *ClientConfigService
	installer  PackageInstaller
	processes  ServerProcesses
	serversDir string
	validator  *ValidatorService
	metrics    *Metrics
	logger     *zap.Logger

	inflightMu sync.Mutex
	inflight   map[string]string
}

func NewMCPManagerService(
	store *StateStore,
	clients *ClientConfigService,
	installer PackageInstaller,
	processes ServerProcesses,
	serversDir string,
	metrics *Metrics,
	logger *zap.Logger,
) *MCPManagerService {
	return &MCPManagerService{
		store:      store,
		clients:    clients,
		installer:  installer,
		processes:  processes,
		serversDir: serversDir,
		validator:  NewValidatorService(),
		metrics:    metrics,
		logger:     logger,
		inflight:   make(map[string]string),
	}
}

// Install runs the installer and registers the result, enabled. Nothing is recorded
// when the installer fails.
func (s *MCPManagerService) Install(ctx context.Context, d *models.ServerDescriptor) (server *models.InstalledServer, err error) {
	defer func() { s.metrics.observe("install", err) }()

	if err := s.validator.ValidateDescriptor(d); err != nil {
		return nil, err
	}
	slug := d.Slug()

	release, err := s.acquire(slug, "install")
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.store.Get(slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: '%s'", ErrAlreadyInstalled, slug)
	}

	result, err := s.installer.Install(ctx, d)
	if err != nil {
		return nil, err
	}

	record := &models.InstalledServer{
		Name:        slug,
		Version:     result.Version,
		InstallPath: result.Path,
		Enabled:     true,
		Runtime:     d.Runtime,
		Port:        d.DefaultNetwork.Port,
		AuthToken:   d.DefaultNetwork.AuthToken,
		CommandArgs: append([]string{}, d.CommandArgs...),
		Env:         copyEnv(d.DefaultNetwork.Env),
	}

	if err := s.store.Upsert(record); err != nil {
		return nil, err
	}

	if err := s.clients.Sync(slug, record); err != nil {
		if _, rollbackErr := s.store.Remove(slug); rollbackErr != nil {
			s.logger.Error("failed to roll back state after client config error",
				zap.String("server", slug), zap.Error(rollbackErr))
		}
		return nil, fmt.Errorf("failed to register '%s': %w", slug, err)
	}

	s.updateInstalledGauge()
	s.logger.Info("server installed", zap.String("server", slug), zap.String("path", record.InstallPath))
	return record, nil
}

// Uninstall stops the server, deletes its directory, then unregisters it. Directory
// deletion is best-effort: failures are logged and unregistration still happens.
// Only directories strictly inside the servers root are ever deleted.
func (s *MCPManagerService) Uninstall(ctx context.Context, name string) (err error) {
	defer func() { s.metrics.observe("uninstall", err) }()

	slug := models.Slug(name)
	release, err := s.acquire(slug, "uninstall")
	if err != nil {
		return err
	}
	defer release()

	server, err := s.lookup(slug)
	if err != nil {
		return err
	}
	logger := s.logger.With(zap.String("server", slug))

	if _, err := s.processes.Stop(ctx, server); err != nil {
		logger.Warn("failed to stop server before uninstall", zap.Error(err))
	}

	switch {
	case server.InstallPath == "":
	case !insideDir(s.serversDir, server.InstallPath):
		logger.Warn("install path is outside the servers directory, leaving it in place",
			zap.String("path", server.InstallPath), zap.String("servers_dir", s.serversDir))
	default:
		if err := os.RemoveAll(server.InstallPath); err != nil {
			logger.Warn("failed to delete install directory",
				zap.String("path", server.InstallPath), zap.Error(err))
		}
	}

	// Unregister before dropping the record so a failure leaves a record the
	// caller can retry against instead of an orphaned client entry.
	if err := s.clients.Remove(slug); err != nil {
		return fmt.Errorf("failed to unregister '%s': %w", slug, err)
	}

	if _, err := s.store.Remove(slug); err != nil {
		return err
	}

	s.updateInstalledGauge()
	logger.Info("server uninstalled")
	return nil
}

// Reconfigure merges update into the record and re-syncs the client config. If the
// client config cannot be updated the previous record is restored.
func (s *MCPManagerService) Reconfigure(name string, update *models.ServerUpdate) (server *models.InstalledServer, err error) {
	defer func() { s.metrics.observe("reconfigure", err) }()

	if err := s.validator.ValidateUpdate(update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}

	slug := models.Slug(name)
	release, err := s.acquire(slug, "reconfigure")
	if err != nil {
		return nil, err
	}
	defer release()

	previous, err := s.lookup(slug)
	if err != nil {
		return nil, err
	}

	updated := previous.Clone()
	update.Apply(updated)

	if err := s.store.Upsert(updated); err != nil {
		return nil, err
	}

	if updated.Enabled {
		err = s.clients.Sync(slug, updated)
	} else {
		err = s.clients.Remove(slug)
	}
	if err != nil {
		if restoreErr := s.store.Upsert(previous); restoreErr != nil {
			s.logger.Error("failed to restore record after client config error",
				zap.String("server", slug), zap.Error(restoreErr))
		}
		return nil, fmt.Errorf("failed to update client config for '%s': %w", slug, err)
	}

	s.logger.Info("server reconfigured", zap.String("server", slug), zap.Bool("enabled", updated.Enabled))
	return updated, nil
}

// SetEnabled is Reconfigure with only the enabled flag.
func (s *MCPManagerService) SetEnabled(name string, enabled bool) (*models.InstalledServer, error) {
	return s.Reconfigure(name, &models.ServerUpdate{Enabled: &enabled})
}

// Start launches the server's entry point in the background.
func (s *MCPManagerService) Start(ctx context.Context, name string) (info *models.ProcessInfo, err error) {
	defer func() { s.metrics.observe("start", err) }()

	slug := models.Slug(name)
	release, err := s.acquire(slug, "start")
	if err != nil {
		return nil, err
	}
	defer release()

	server, err := s.lookup(slug)
	if err != nil {
		return nil, err
	}
	return s.processes.Start(ctx, server)
}

// Stop terminates the server's process. It reports false when nothing was running.
func (s *MCPManagerService) Stop(ctx context.Context, name string) (stopped bool, err error) {
	defer func() { s.metrics.observe("stop", err) }()

	slug := models.Slug(name)
	release, err := s.acquire(slug, "stop")
	if err != nil {
		return false, err
	}
	defer release()

	server, err := s.lookup(slug)
	if err != nil {
		return false, err
	}
	return s.processes.Stop(ctx, server)
}

// GetServer returns the record with its process status.
func (s *MCPManagerService) GetServer(ctx context.Context, name string) (*models.ServerStatus, error) {
	server, err := s.lookup(models.Slug(name))
	if err != nil {
		return nil, err
	}
	return s.status(ctx, server), nil
}

// ListServers returns every installed server sorted by name.
func (s *MCPManagerService) ListServers(ctx context.Context) ([]*models.ServerStatus, error) {
	servers, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]*models.ServerStatus, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, s.status(ctx, servers[name]))
	}
	return statuses, nil
}

// Reconcile rewrites the client config from the state store and reports whether
// anything had to change.
func (s *MCPManagerService) Reconcile() (changed bool, err error) {
	defer func() { s.metrics.observe("reconcile", err) }()

	servers, err := s.store.Load()
	if err != nil {
		return false, err
	}
	changed, err = s.clients.Apply(servers)
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Info("client config reconciled with local state")
	}
	s.metrics.setInstalled(len(servers))
	return changed, nil
}

// ClientConfig returns the current client config document.
func (s *MCPManagerService) ClientConfig() (*ReadResult, error) {
	return s.clients.ReadClientConfig()
}

// ReplaceClientConfig overwrites the client config document, then re-applies the
// installed servers so enabled entries survive the overwrite.
func (s *MCPManagerService) ReplaceClientConfig(doc map[string]interface{}) error {
	if err := s.validator.ValidateClientConfig(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClientConfig, err)
	}
	if err := s.clients.WriteClientConfig(doc); err != nil {
		return err
	}
	_, err := s.Reconcile()
	return err
}

func (s *MCPManagerService) status(ctx context.Context, server *models.InstalledServer) *models.ServerStatus {
	status := &models.ServerStatus{InstalledServer: server}
	if info, running := s.processes.Status(ctx, server); running {
		status.Running = true
		status.Process = info
	}
	return status
}

func (s *MCPManagerService) lookup(slug string) (*models.InstalledServer, error) {
	server, err := s.store.Get(slug)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, notFound(slug)
	}
	return server, nil
}

// acquire marks slug busy for operation and returns the release func.
func (s *MCPManagerService) acquire(slug, operation string) (func(), error) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	if running, busy := s.inflight[slug]; busy {
		return nil, fmt.Errorf("%w: '%s' is running %s", ErrOperationInProgress, slug, running)
	}
	s.inflight[slug] = operation
	return func() {
		s.inflightMu.Lock()
		delete(s.inflight, slug)
		s.inflightMu.Unlock()
	}, nil
}

func (s *MCPManagerService) updateInstalledGauge() {
	servers, err := s.store.Load()
	if err != nil {
		return
	}
	s.metrics.setInstalled(len(servers))
}

// IsNotFound reports whether err means the server is not installed.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
