// Package storage selects the token store backend.
package storage

import (
	"acbridge/internal/core"
	"acbridge/internal/storage/file"
	"acbridge/internal/storage/sqlite"
	"fmt"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Storage is a token store that may hold resources
type Storage interface {
	core.TokenStore
	Close() error
}

// Options selects and locates the backend
type Options struct {
	Backend  string
	FilePath string
	DBPath   string
}

// Open returns the configured backend. FileStore exposes the file backend
// for watching.
func Open(opts Options) (Storage, error) {
	switch opts.Backend {
	case BackendFile, "":
		return fileStorage{file.New(opts.FilePath)}, nil
	case BackendSQLite:
		db, err := sqlite.New(opts.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open token database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown token store backend %q", opts.Backend)
	}
}

// FileStore returns the underlying file store, or nil for other backends
func FileStore(s Storage) *file.Store {
	if fs, ok := s.(fileStorage); ok {
		return fs.Store
	}
	return nil
}

// fileStorage adds a no-op Close to the file store
type fileStorage struct {
	*file.Store
}

func (fileStorage) Close() error { return nil }
