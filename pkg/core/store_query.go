package core

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/liliang-cn/facevec/internal/encoding"
)

const selectFaceSQL = `
	SELECT ID, Name, Age, Gender, Hairstyle, FeatureVersion, FeatureVector
	FROM Faces
`

// GetByName returns the first record with the given name.
// When several records share the name the lowest ID wins.
// A missing name is reported with found == false, not an error.
func (s *SQLiteStore) GetByName(ctx context.Context, name string) (*Record, bool, error) {
	return s.getOne(ctx, "get_by_name", selectFaceSQL+" WHERE Name = ? ORDER BY ID ASC LIMIT 1", name)
}

// GetByID returns the record with the given ID
func (s *SQLiteStore) GetByID(ctx context.Context, id uint64) (*Record, bool, error) {
	return s.getOne(ctx, "get_by_id", selectFaceSQL+" WHERE ID = ?", int64(id))
}

func (s *SQLiteStore) getOne(ctx context.Context, op, query string, arg any) (*Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(op); err != nil {
		return nil, false, err
	}

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, false, storageError(op, fmt.Errorf("failed to query faces: %w", err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close rows", "op", op, "error", closeErr)
		}
	}()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, storageError(op, err)
		}
		return nil, false, nil
	}

	rec, err := s.scanRecord(op, rows)
	if err != nil {
		return nil, false, err
	}

	return rec, true, nil
}

// ListByName returns every record with the given name in ascending ID order
func (s *SQLiteStore) ListByName(ctx context.Context, name string) ([]*Record, error) {
	var records []*Record
	for rec, err := range s.query(ctx, "list_by_name", selectFaceSQL+" WHERE Name = ? ORDER BY ID ASC", name) {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Scan iterates over every record in ascending ID order.
// Iteration stops at the first error, which is yielded with a nil record.
// A corrupt FeatureVector yields an error matching ErrCorruptRecord.
//
// The store's read lock is held while iterating, so the loop body must not call Close.
func (s *SQLiteStore) Scan(ctx context.Context) iter.Seq2[*Record, error] {
	return s.query(ctx, "scan", selectFaceSQL+" ORDER BY ID ASC")
}

func (s *SQLiteStore) query(ctx context.Context, op, query string, args ...any) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		if err := s.checkOpen(op); err != nil {
			yield(nil, err)
			return
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, storageError(op, fmt.Errorf("failed to query faces: %w", err)))
			return
		}
		defer func() {
			if closeErr := rows.Close(); closeErr != nil {
				s.logger.Warn("failed to close rows", "op", op, "error", closeErr)
			}
		}()

		for rows.Next() {
			rec, err := s.scanRecord(op, rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, storageError(op, err))
		}
	}
}

// scanRecord reads one Faces row and decodes its FeatureVector
func (s *SQLiteStore) scanRecord(op string, rows *sql.Rows) (*Record, error) {
	var (
		id                      int64
		name, gender, hairstyle sql.NullString
		age, version            sql.NullInt64
		blob                    []byte
	)

	if err := rows.Scan(&id, &name, &age, &gender, &hairstyle, &version, &blob); err != nil {
		return nil, storageError(op, fmt.Errorf("failed to scan face: %w", err))
	}

	embedding, err := encoding.DecodeVector(blob, s.config.Dimension)
	if err != nil {
		return nil, corruptError(op, uint64(id), err)
	}

	return &Record{
		ID: uint64(id),
		Face: Face{
			Name:           name.String,
			Age:            int32(age.Int64),
			Gender:         gender.String,
			Hairstyle:      hairstyle.String,
			FeatureVersion: int32(version.Int64),
			Embedding:      embedding,
		},
	}, nil
}

// Count returns the number of live records
func (s *SQLiteStore) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("count"); err != nil {
		return 0, err
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM Faces").Scan(&count); err != nil {
		return 0, storageError("count", fmt.Errorf("failed to count faces: %w", err))
	}

	return uint64(count), nil
}

// Stats returns statistics about the store
func (s *SQLiteStore) Stats(ctx context.Context) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("stats"); err != nil {
		return StoreStats{}, err
	}

	var count, distinct int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COUNT(DISTINCT Name) FROM Faces").Scan(&count, &distinct)
	if err != nil {
		return StoreStats{}, storageError("stats", fmt.Errorf("failed to get count: %w", err))
	}

	// Get database file size (approximate)
	var size int64
	err = s.db.QueryRowContext(ctx, "SELECT page_count * page_size as size FROM pragma_page_count(), pragma_page_size()").Scan(&size)
	if err != nil {
		s.logger.Warn("failed to get database size", "error", err)
		size = 0
	}

	return StoreStats{
		Count:         uint64(count),
		DistinctNames: uint64(distinct),
		Dimensions:    s.config.Dimension,
		Size:          size,
	}, nil
}
