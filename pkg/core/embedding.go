package core

import (
	"context"
	"iter"
	"time"
)

// DefaultDimension is the embedding size produced by common face recognition models
const DefaultDimension = 128

// Face is the data supplied when a record is inserted
type Face struct {
	Name           string    `json:"name"`
	Age            int32     `json:"age"`
	Gender         string    `json:"gender"`
	Hairstyle      string    `json:"hairstyle"`
	FeatureVersion int32     `json:"featureVersion"`
	Embedding      []float32 `json:"embedding"`
}

// Record is a stored face together with its engine-assigned ID
type Record struct {
	ID uint64 `json:"id"`
	Face
}

// StoreStats provides statistics about the record store
type StoreStats struct {
	Count         uint64 `json:"count"`
	DistinctNames uint64 `json:"distinctNames"`
	Dimensions    int    `json:"dimensions"`
	Size          int64  `json:"size"`
}

// Config represents configuration options for the record store
type Config struct {
	Path            string        `json:"path"`            // Database file path, ":memory:" for a private in-memory database
	Dimension       int           `json:"dimension"`       // Embedding dimension shared by every record
	BusyTimeout     time.Duration `json:"busyTimeout"`     // How long a writer waits for the database lock
	MaxOpenConns    int           `json:"maxOpenConns"`    // Connection pool size
	MaxIdleConns    int           `json:"maxIdleConns"`    // Idle connections kept around
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"` // Maximum lifetime of a pooled connection
	Logger          Logger        `json:"-"`               // Structured logger, defaults to NopLogger
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Dimension:       DefaultDimension,
		BusyTimeout:     5 * time.Second,
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 2 * time.Hour,
	}
}

// Store defines the record store operations
type Store interface {
	// Init opens the database and creates the schema
	Init(ctx context.Context) error

	// Insert appends a record and returns its ID
	Insert(ctx context.Context, face *Face) (uint64, error)

	// InsertBatch appends all faces in one transaction
	InsertBatch(ctx context.Context, faces []*Face) ([]uint64, error)

	// GetByName returns the first record with the given name
	GetByName(ctx context.Context, name string) (*Record, bool, error)

	// GetByID returns the record with the given ID
	GetByID(ctx context.Context, id uint64) (*Record, bool, error)

	// ListByName returns every record with the given name
	ListByName(ctx context.Context, name string) ([]*Record, error)

	// Scan iterates all records in ascending ID order
	Scan(ctx context.Context) iter.Seq2[*Record, error]

	// DeleteByID removes the record with the given ID
	DeleteByID(ctx context.Context, id uint64) (int64, error)

	// DeleteByName removes every record with the given name
	DeleteByName(ctx context.Context, name string) (int64, error)

	// Count returns the number of live records
	Count(ctx context.Context) (uint64, error)

	// Stats returns statistics about the store
	Stats(ctx context.Context) (StoreStats, error)

	// Close closes the store and releases resources
	Close() error
}
