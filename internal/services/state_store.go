package services

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vlazic/mcphub/internal/models"
)

// StateStore persists installed servers to a YAML file keyed by slug.
// Each call reads or rewrites the whole file; callers serialize read-modify-write sequences.
type StateStore struct {
	path string
	mu   sync.Mutex
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

func (s *StateStore) Path() string {
	return s.path
}

// Load returns every installed server. A missing file is an empty mapping.
func (s *StateStore) Load() (map[string]*models.InstalledServer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save atomically replaces the state file with servers.
func (s *StateStore) Save(servers map[string]*models.InstalledServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(servers)
}

// Get returns the record for name, or nil when it is not installed.
func (s *StateStore) Get(name string) (*models.InstalledServer, error) {
	servers, err := s.Load()
	if err != nil {
		return nil, err
	}
	server, ok := servers[models.Slug(name)]
	if !ok {
		return nil, nil
	}
	return server, nil
}

// Upsert inserts or replaces the record under its slug.
func (s *StateStore) Upsert(server *models.InstalledServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers, err := s.load()
	if err != nil {
		return err
	}
	record := server.Clone()
	record.Name = models.Slug(server.Name)
	servers[record.Name] = record
	return s.save(servers)
}

// Remove deletes the record for name and reports whether it existed.
func (s *StateStore) Remove(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers, err := s.load()
	if err != nil {
		return false, err
	}
	slug := models.Slug(name)
	if _, ok := servers[slug]; !ok {
		return false, nil
	}
	delete(servers, slug)
	return true, s.save(servers)
}

func (s *StateStore) load() (map[string]*models.InstalledServer, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*models.InstalledServer), nil
		}
		return nil, fmt.Errorf("failed to read state file '%s': %w", s.path, err)
	}

	var doc models.StateDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStateCorrupt, s.path, err)
	}

	if doc.InstalledServers == nil {
		doc.InstalledServers = make(map[string]*models.InstalledServer)
	}
	for name, server := range doc.InstalledServers {
		if server == nil {
			delete(doc.InstalledServers, name)
			continue
		}
		server.Name = name
	}

	return doc.InstalledServers, nil
}

func (s *StateStore) save(servers map[string]*models.InstalledServer) error {
	if servers == nil {
		servers = make(map[string]*models.InstalledServer)
	}
	data, err := yaml.Marshal(&models.StateDocument{InstalledServers: servers})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file '%s': %w", s.path, err)
	}
	return nil
}
