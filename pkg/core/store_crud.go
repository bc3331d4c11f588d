package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/liliang-cn/facevec/internal/encoding"
	"github.com/liliang-cn/facevec/pkg/vector"
)

const insertFaceSQL = `
	INSERT INTO Faces (Name, Age, Gender, Hairstyle, FeatureVersion, FeatureVector)
	VALUES (?, ?, ?, ?, ?, ?)
`

// Insert appends a single face and returns the ID assigned by the engine
func (s *SQLiteStore) Insert(ctx context.Context, face *Face) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("insert"); err != nil {
		return 0, err
	}

	if err := s.validateFace(face); err != nil {
		return 0, wrapError("insert", err)
	}

	result, err := s.db.ExecContext(ctx, insertFaceSQL,
		face.Name, int64(face.Age), face.Gender, face.Hairstyle, int64(face.FeatureVersion),
		encoding.EncodeVector(face.Embedding))
	if err != nil {
		return 0, storageError("insert", fmt.Errorf("failed to insert face: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageError("insert", fmt.Errorf("failed to get inserted ID: %w", err))
	}

	s.logger.Debug("face inserted", "id", id, "name", face.Name)

	return uint64(id), nil
}

// InsertBatch inserts multiple faces in a transaction.
// Either every face is stored or none is.
func (s *SQLiteStore) InsertBatch(ctx context.Context, faces []*Face) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("insert_batch"); err != nil {
		return nil, err
	}

	if len(faces) == 0 {
		return nil, nil
	}

	for i, face := range faces {
		if err := s.validateFace(face); err != nil {
			return nil, wrapError("insert_batch", fmt.Errorf("invalid face at index %d: %w", i, err))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("insert_batch", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if rollErr := tx.Rollback(); rollErr != nil && !errors.Is(rollErr, sql.ErrTxDone) {
			s.logger.Warn("failed to rollback transaction during batch insert", "error", rollErr)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertFaceSQL)
	if err != nil {
		return nil, storageError("insert_batch", fmt.Errorf("failed to prepare statement: %w", err))
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			s.logger.Warn("failed to close statement during batch insert", "error", closeErr)
		}
	}()

	ids := make([]uint64, 0, len(faces))
	for i, face := range faces {
		result, err := stmt.ExecContext(ctx,
			face.Name, int64(face.Age), face.Gender, face.Hairstyle, int64(face.FeatureVersion),
			encoding.EncodeVector(face.Embedding))
		if err != nil {
			return nil, storageError("insert_batch", fmt.Errorf("failed to insert face at index %d: %w", i, err))
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, storageError("insert_batch", fmt.Errorf("failed to get inserted ID at index %d: %w", i, err))
		}
		ids = append(ids, uint64(id))
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("insert_batch", fmt.Errorf("failed to commit transaction: %w", err))
	}

	s.logger.Debug("batch insert completed", "count", len(ids))

	return ids, nil
}

// DeleteByID removes the record with the given ID and reports how many rows were removed.
// Deleting an unknown ID is not an error.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id uint64) (int64, error) {
	return s.deleteWhere(ctx, "delete_by_id", "ID = ?", int64(id))
}

// DeleteByName removes every record with the given name.
// Names are not unique, so this may remove several records.
func (s *SQLiteStore) DeleteByName(ctx context.Context, name string) (int64, error) {
	return s.deleteWhere(ctx, "delete_by_name", "Name = ?", name)
}

func (s *SQLiteStore) deleteWhere(ctx context.Context, op, predicate string, arg any) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(op); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM Faces WHERE "+predicate, arg)
	if err != nil {
		return 0, storageError(op, fmt.Errorf("failed to delete faces: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, storageError(op, fmt.Errorf("failed to get rows affected: %w", err))
	}

	s.logger.Info("faces deleted", "op", op, "key", arg, "deleted", rowsAffected)

	return rowsAffected, nil
}

// validateFace checks a face before it reaches the engine
func (s *SQLiteStore) validateFace(face *Face) error {
	if face == nil {
		return fmt.Errorf("face cannot be nil")
	}
	return vector.Validate(face.Embedding, s.config.Dimension)
}

// checkOpen must be called with s.mu held
func (s *SQLiteStore) checkOpen(op string) error {
	if s.closed {
		return wrapError(op, ErrStoreClosed)
	}
	if s.db == nil {
		return wrapError(op, fmt.Errorf("store is not initialized"))
	}
	return nil
}
