package graph

import (
	"github.com/mvp-joe/ccindex/internal/codedb"
)

// Storage provides the index a Searcher is built from.
type Storage interface {
	// Load returns the current index.
	Load() (*codedb.Database, error)
}

type fileStorage struct {
	path string
}

// NewFileStorage reads the index artifact at path on every Load.
func NewFileStorage(path string) Storage {
	return &fileStorage{path: path}
}

func (s *fileStorage) Load() (*codedb.Database, error) {
	return codedb.LoadDatabase(s.path)
}

type memoryStorage struct {
	db *codedb.Database
}

// NewMemoryStorage serves an index that is already in memory.
func NewMemoryStorage(db *codedb.Database) Storage {
	return &memoryStorage{db: db}
}

func (s *memoryStorage) Load() (*codedb.Database, error) {
	return s.db, nil
}
