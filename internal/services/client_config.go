package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/vlazic/mcphub/internal/models"
)

const mcpServersKey = "mcpServers"

// ClientConfigService mirrors enabled servers into the Claude Desktop config file.
// It only touches the mcpServers entries it is asked to write or remove; every other
// key in the document is carried through unchanged.
type ClientConfigService struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

func NewClientConfigService(path string, logger *zap.Logger) *ClientConfigService {
	return &ClientConfigService{
		path:   path,
		logger: logger,
	}
}

func (s *ClientConfigService) Path() string {
	return s.path
}

// ReadResult is a parsed client config document. Corrupt is set when the file existed
// but could not be parsed; Document is then empty.
type ReadResult struct {
	Document map[string]interface{}
	Corrupt  bool
}

// ReadClientConfig returns the current document. Missing files and missing mcpServers
// keys are reported as an empty mcpServers object.
func (s *ClientConfigService) ReadClientConfig() (*ReadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// WriteClientConfig replaces the whole document.
func (s *ClientConfigService) WriteClientConfig(doc map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := s.lock()
	if err != nil {
		return err
	}
	defer lock.Unlock()

	return s.write(doc)
}

// Sync writes mcpServers[slug] for the record.
func (s *ClientConfigService) Sync(name string, server *models.InstalledServer) error {
	slug := models.Slug(name)
	entry := ServerEntry(server)
	return s.update(func(servers map[string]interface{}) bool {
		if existing, ok := servers[slug]; ok && entryEqual(existing, entry) {
			return false
		}
		servers[slug] = entry
		return true
	})
}

// Remove deletes mcpServers[slug]. Absent entries are not an error.
func (s *ClientConfigService) Remove(name string) error {
	slug := models.Slug(name)
	return s.update(func(servers map[string]interface{}) bool {
		if _, ok := servers[slug]; !ok {
			return false
		}
		delete(servers, slug)
		return true
	})
}

// Apply brings every given record in line with its enabled flag in one write.
// It reports whether the file had to change.
func (s *ClientConfigService) Apply(servers map[string]*models.InstalledServer) (bool, error) {
	changed := false
	err := s.update(func(entries map[string]interface{}) bool {
		for slug, server := range servers {
			if server.Enabled {
				entry := ServerEntry(server)
				if existing, ok := entries[slug]; ok && entryEqual(existing, entry) {
					continue
				}
				entries[slug] = entry
				changed = true
				continue
			}
			if _, ok := entries[slug]; ok {
				delete(entries, slug)
				changed = true
			}
		}
		return changed
	})
	return changed, err
}

// GetMCPServerStatus reports whether the client config currently has an entry for name.
func (s *ClientConfigService) GetMCPServerStatus(name string) (bool, error) {
	result, err := s.ReadClientConfig()
	if err != nil {
		return false, err
	}
	_, exists := mcpServers(result.Document)[models.Slug(name)]
	return exists, nil
}

// ServerEntry builds the {command, args, env} object for a record.
func ServerEntry(server *models.InstalledServer) map[string]interface{} {
	args := make([]interface{}, 0, len(server.CommandArgs))
	for _, arg := range server.CommandArgs {
		args = append(args, arg)
	}
	env := make(map[string]interface{}, len(server.Env))
	for k, v := range server.Env {
		env[k] = v
	}
	return map[string]interface{}{
		"command": server.Runtime.Command(),
		"args":    args,
		"env":     env,
	}
}

// update runs mutate on the mcpServers object under both the in-process mutex and a
// file lock, and writes only when mutate reports a change.
func (s *ClientConfigService) update(mutate func(servers map[string]interface{}) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := s.lock()
	if err != nil {
		return err
	}
	defer lock.Unlock()

	result, err := s.read()
	if err != nil {
		return err
	}

	servers := mcpServers(result.Document)
	if !mutate(servers) && !result.Corrupt {
		return nil
	}
	if result.Corrupt {
		if err := s.backupConfig(".corrupt."); err != nil {
			return &ConfigWriteError{Path: s.path, Err: fmt.Errorf("failed to back up corrupt config: %w", err)}
		}
	}
	result.Document[mcpServersKey] = servers

	return s.write(result.Document)
}

func (s *ClientConfigService) read() (*ReadResult, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ReadResult{Document: emptyDocument()}, nil
		}
		return nil, fmt.Errorf("failed to read client config '%s': %w", s.path, err)
	}

	doc := make(map[string]interface{})
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
			s.logger.Warn("client config is not valid JSON, treating it as empty",
				zap.String("path", s.path), zap.Error(err))
			return &ReadResult{Document: emptyDocument(), Corrupt: true}, nil
		}
	}

	if _, ok := doc[mcpServersKey].(map[string]interface{}); !ok {
		doc[mcpServersKey] = make(map[string]interface{})
	}
	return &ReadResult{Document: doc}, nil
}

func (s *ClientConfigService) write(doc map[string]interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &ConfigWriteError{Path: s.path, Err: fmt.Errorf("failed to marshal client config: %w", err)}
	}
	if err := writeFileAtomic(s.path, data, 0644); err != nil {
		return &ConfigWriteError{Path: s.path, Err: err}
	}
	return nil
}

func (s *ClientConfigService) lock() (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, &ConfigWriteError{Path: s.path, Err: fmt.Errorf("failed to create config directory: %w", err)}
	}
	fileLock := flock.New(s.path + ".lock")
	if err := fileLock.Lock(); err != nil {
		return nil, &ConfigWriteError{Path: s.path, Err: fmt.Errorf("failed to lock client config: %w", err)}
	}
	return fileLock, nil
}

func (s *ClientConfigService) backupConfig(infix string) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	backupPath := s.path + infix + time.Now().Format("20060102-150405")
	return os.WriteFile(backupPath, data, 0644)
}

func emptyDocument() map[string]interface{} {
	return map[string]interface{}{mcpServersKey: make(map[string]interface{})}
}

func mcpServers(doc map[string]interface{}) map[string]interface{} {
	servers, ok := doc[mcpServersKey].(map[string]interface{})
	if !ok {
		servers = make(map[string]interface{})
		doc[mcpServersKey] = servers
	}
	return servers
}

// entryEqual compares an entry decoded from JSON with a freshly built one.
func entryEqual(existing interface{}, entry map[string]interface{}) bool {
	data, err := json.Marshal(entry)
	if err != nil {
		return false
	}
	var normalized interface{}
	if err := json.Unmarshal(data, &normalized); err != nil {
		return false
	}
	return reflect.DeepEqual(existing, normalized)
}
