// Package completion provides tab completion for project and contract ids.
// List commands record what they fetched in a small file cache; completion
// reads only that file and never calls the API.
package completion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CachedProject holds project data for tab completion.
type CachedProject struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
}

// CachedContract holds contract data for tab completion.
type CachedContract struct {
	ID           int64  `json:"id"`
	ProjectTitle string `json:"project_title"`
	Status       string `json:"status,omitempty"`
}

// Cache stores completion data for one API origin.
type Cache struct {
	Origin             string           `json:"origin"`
	Projects           []CachedProject  `json:"projects,omitempty"`
	Contracts          []CachedContract `json:"contracts,omitempty"`
	ProjectsUpdatedAt  time.Time        `json:"projects_updated_at,omitempty"`
	ContractsUpdatedAt time.Time        `json:"contracts_updated_at,omitempty"`
	Version            int              `json:"version"`
}

const (
	// CacheVersion is the current cache schema version.
	CacheVersion = 1

	// CacheFileName is the cache file name.
	CacheFileName = "completion.json"
)

// Store handles reading and writing the completion cache.
type Store struct {
	dir    string
	origin string
	mu     sync.RWMutex
}

// NewStore creates a cache store for origin. If dir is empty, it uses
// $GIG_CACHE_DIR or ~/.cache/gig.
func NewStore(dir, origin string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{dir: dir, origin: origin}
}

// DefaultDir returns the default cache directory.
func DefaultDir() string {
	if v := os.Getenv("GIG_CACHE_DIR"); v != "" {
		return v
	}
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "gig")
}

// Path returns the full path to the cache file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, CacheFileName)
}

// Load reads the cache from disk. A missing or corrupt file, or one written
// for another origin, yields an empty cache.
func (s *Store) Load() *Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() *Cache {
	empty := &Cache{Origin: s.origin, Version: CacheVersion}
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return empty
	}
	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return empty
	}
	if cache.Origin != s.origin || cache.Version != CacheVersion {
		return empty
	}
	return &cache
}

// saveLocked writes the cache atomically via a temp file.
func (s *Store) saveLocked(cache *Cache) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	cache.Origin = s.origin
	cache.Version = CacheVersion

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := s.Path() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.Path())
}

// UpdateProjects replaces the cached projects.
func (s *Store) UpdateProjects(projects []CachedProject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache := s.loadLocked()
	cache.Projects = projects
	cache.ProjectsUpdatedAt = time.Now()
	return s.saveLocked(cache)
}

// UpdateContracts replaces the cached contracts.
func (s *Store) UpdateContracts(contracts []CachedContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache := s.loadLocked()
	cache.Contracts = contracts
	cache.ContractsUpdatedAt = time.Now()
	return s.saveLocked(cache)
}

// Clear removes the cache file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
