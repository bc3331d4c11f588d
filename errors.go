package facevec

import (
	"github.com/liliang-cn/facevec/pkg/core"
	"github.com/liliang-cn/facevec/pkg/vector"
)

// Errors returned by DB operations. Match them with errors.Is.
var (
	// ErrStorage is matched by every failure of the underlying SQLite engine
	ErrStorage = core.ErrStorage

	// ErrCorruptRecord is matched when a stored embedding cannot be decoded
	ErrCorruptRecord = core.ErrCorruptRecord

	// ErrStoreClosed is returned when trying to use a closed DB
	ErrStoreClosed = core.ErrStoreClosed

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = core.ErrInvalidConfig

	// ErrDimensionMismatch is returned when an embedding has the wrong length
	ErrDimensionMismatch = vector.ErrDimensionMismatch

	// ErrInvalidVector is returned for embeddings containing NaN or Inf
	ErrInvalidVector = vector.ErrInvalidVector

	// ErrInvalidQuery is returned when a search query or k is invalid
	ErrInvalidQuery = vector.ErrInvalidQuery
)

// StoreError carries the operation that failed
type StoreError = core.StoreError

// DimensionError describes an embedding length mismatch
type DimensionError = vector.DimensionError
