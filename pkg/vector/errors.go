package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when an embedding does not have the configured dimension
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidQuery is returned when a query vector or its parameters cannot be searched
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidVector is returned when a vector holds NaN or infinite components
	ErrInvalidVector = errors.New("invalid vector")
)

// DimensionError reports the expected and actual dimension of a rejected vector.
//
// It matches ErrDimensionMismatch with errors.Is.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
