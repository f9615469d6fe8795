package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/vlazic/mcphub/internal/models"
)

type registryCache struct {
	Timestamp int64                  `yaml:"timestamp"`
	Data      models.RegistryCatalog `yaml:"data"`
}

// RegistryClient fetches the server catalog and caches it on disk.
type RegistryClient struct {
	url       string
	cachePath string
	ttl       time.Duration
	client    *http.Client
	logger    *zap.Logger
	group     singleflight.Group
	now       func() time.Time
}

func NewRegistryClient(url, cachePath string, ttl time.Duration, client *http.Client, logger *zap.Logger) *RegistryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RegistryClient{
		url:       url,
		cachePath: cachePath,
		ttl:       ttl,
		client:    client,
		logger:    logger,
		now:       time.Now,
	}
}

// Fetch returns the catalog from a fresh cache or the network. When the network fetch
// fails, a stale cache is returned instead; with no cache at all the error is returned.
func (r *RegistryClient) Fetch(ctx context.Context, force bool) (*models.RegistryCatalog, error) {
	if !force {
		if cache, err := r.readCache(); err == nil && r.fresh(cache) {
			return &cache.Data, nil
		}
	}

	v, err, _ := r.group.Do("fetch", func() (interface{}, error) {
		return r.download(ctx)
	})
	if err == nil {
		return v.(*models.RegistryCatalog), nil
	}

	r.logger.Warn("registry fetch failed, falling back to cache", zap.String("url", r.url), zap.Error(err))
	cache, cacheErr := r.readCache()
	if cacheErr != nil {
		return nil, fmt.Errorf("failed to fetch registry: %w", err)
	}
	return &cache.Data, nil
}

// Search returns entries whose name, description or tags contain query.
func (r *RegistryClient) Search(ctx context.Context, query string) ([]models.RegistryEntry, error) {
	catalog, err := r.Fetch(ctx, false)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return catalog.Servers, nil
	}

	var results []models.RegistryEntry
	for _, entry := range catalog.Servers {
		if entry.Matches(query) {
			results = append(results, entry)
		}
	}
	return results, nil
}

// Lookup finds an entry by case-insensitive name.
func (r *RegistryClient) Lookup(ctx context.Context, name string) (*models.RegistryEntry, error) {
	catalog, err := r.Fetch(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range catalog.Servers {
		if strings.EqualFold(catalog.Servers[i].Name, name) {
			return &catalog.Servers[i], nil
		}
	}
	return nil, fmt.Errorf("%w in registry: '%s'", ErrNotFound, name)
}

func (r *RegistryClient) download(ctx context.Context) (*models.RegistryCatalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry response: %w", err)
	}

	var catalog models.RegistryCatalog
	if err := yaml.Unmarshal(body, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}

	if err := r.writeCache(&catalog); err != nil {
		r.logger.Warn("failed to write registry cache", zap.String("path", r.cachePath), zap.Error(err))
	}
	return &catalog, nil
}

func (r *RegistryClient) fresh(cache *registryCache) bool {
	return time.Unix(cache.Timestamp, 0).Add(r.ttl).After(r.now())
}

func (r *RegistryClient) readCache() (*registryCache, error) {
	data, err := os.ReadFile(r.cachePath)
	if err != nil {
		return nil, err
	}
	var cache registryCache
	if err := yaml.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func (r *RegistryClient) writeCache(catalog *models.RegistryCatalog) error {
	data, err := yaml.Marshal(&registryCache{Timestamp: r.now().Unix(), Data: *catalog})
	if err != nil {
		return err
	}
	return writeFileAtomic(r.cachePath, data, 0644)
}
