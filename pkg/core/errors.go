package core

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrStorage is matched by every failure of the underlying SQLite engine
	ErrStorage = errors.New("storage error")

	// ErrCorruptRecord is returned when a stored FeatureVector does not have the configured size.
	// It is always wrapped together with ErrStorage.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrStoreClosed is returned when trying to use a closed store
	ErrStoreClosed = errors.New("store is closed")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StoreError wraps errors with operation context
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("facevec: %v", e.Err)
	}
	return fmt.Sprintf("facevec: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// storageError wraps an engine failure so that it matches ErrStorage
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrapError(op, fmt.Errorf("%w: %w", ErrStorage, err))
}

// corruptError reports a row whose blob cannot be decoded
func corruptError(op string, id uint64, err error) error {
	return storageError(op, fmt.Errorf("%w: record %d: %w", ErrCorruptRecord, id, err))
}
