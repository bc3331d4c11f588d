package core

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements the Store interface using SQLite as backend
type SQLiteStore struct {
	db     *sql.DB
	config Config
	logger Logger
	mu     sync.RWMutex
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// New creates a new SQLite record store with the given path and dimension
func New(path string, dimension int) (*SQLiteStore, error) {
	config := DefaultConfig()
	config.Path = path
	config.Dimension = dimension

	return NewWithConfig(config)
}

// NewWithConfig creates a new SQLite record store with custom configuration.
// Init must be called before the store is used.
func NewWithConfig(config Config) (*SQLiteStore, error) {
	if config.Path == "" {
		return nil, wrapError("init", fmt.Errorf("%w: database path cannot be empty", ErrInvalidConfig))
	}

	if config.Dimension <= 0 {
		return nil, wrapError("init", fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, config.Dimension))
	}

	defaults := DefaultConfig()
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = defaults.BusyTimeout
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = defaults.MaxOpenConns
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = defaults.MaxIdleConns
	}
	if config.ConnMaxLifetime <= 0 {
		config.ConnMaxLifetime = defaults.ConnMaxLifetime
	}

	logger := config.Logger
	if logger == nil {
		logger = NopLogger()
	}

	return &SQLiteStore{
		config: config,
		logger: logger.With("component", "store"),
	}, nil
}

// Dimension returns the embedding dimension enforced by the store
func (s *SQLiteStore) Dimension() int {
	return s.config.Dimension
}

// GetDB returns the underlying database handle
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}
