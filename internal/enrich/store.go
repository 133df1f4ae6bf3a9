package enrich

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/apifoundry/apibridge/internal/common"
)

// Store persists compiled catalogs keyed by combined hash. Load misses and
// read errors are both reported as a miss; enrichment treats the store as
// best-effort.
type Store interface {
	Load(hash string) (*EnrichedDefinition, bool)
	Save(def *EnrichedDefinition) error
}

// NewStore selects the store backend for a cache directory. An empty
// directory disables persistent caching and returns nil.
func NewStore(dir string, logger *common.Logger) Store {
	if dir == "" {
		return nil
	}
	return &FileStore{dir: dir, logger: logger}
}

// FileStore keeps one catalog file per hash (<hash>.enriched.json) plus a
// marker file (<hash>.hash) inside the cache directory.
type FileStore struct {
	dir    string
	logger *common.Logger
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string, logger *common.Logger) *FileStore {
	return &FileStore{dir: dir, logger: logger}
}

func (s *FileStore) catalogPath(hash string) string {
	return filepath.Join(s.dir, hash+".enriched.json")
}

func (s *FileStore) markerPath(hash string) string {
	return filepath.Join(s.dir, hash+".hash")
}

// Load reads a cached catalog. Any read or decode failure is a miss.
func (s *FileStore) Load(hash string) (*EnrichedDefinition, bool) {
	if _, err := os.Stat(s.markerPath(hash)); err != nil {
		return nil, false
	}
	data, err := os.ReadFile(s.catalogPath(hash))
	if err != nil {
		return nil, false
	}
	var def EnrichedDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		s.logger.Warn().Str("hash", hash).Str("error", err.Error()).Msg("discarding unreadable catalog cache entry")
		return nil, false
	}
	return &def, true
}

// Save writes the catalog file and its marker.
func (s *FileStore) Save(def *EnrichedDefinition) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir %s: %w", s.dir, err)
	}
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(s.catalogPath(def.Hash), data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	if err := os.WriteFile(s.markerPath(def.Hash), []byte(def.Hash+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write marker file: %w", err)
	}
	return nil
}

// MemoryStore is an in-process store used by tests and cache-disabled
// deployments that still want intra-process reuse. Thread-safe.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*EnrichedDefinition
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]*EnrichedDefinition{}}
}

func (s *MemoryStore) Load(hash string) (*EnrichedDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.items[hash]
	return def, ok
}

func (s *MemoryStore) Save(def *EnrichedDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[def.Hash] = def
	return nil
}
