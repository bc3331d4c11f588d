package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/liliang-cn/facevec/pkg/vector"
)

const (
	memoryPath       = ":memory:"
	metaKeyDimension = "dimension"
)

// Init initializes the SQLite database and creates necessary tables
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wrapError("init", ErrStoreClosed)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return storageError("init", fmt.Errorf("failed to open database: %w", err))
	}

	if s.config.Path == memoryPath {
		// Every new connection would see its own empty database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(s.config.MaxOpenConns)
		db.SetMaxIdleConns(s.config.MaxIdleConns)
		db.SetConnMaxLifetime(s.config.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return storageError("init", fmt.Errorf("failed to open database: %w", err))
	}

	s.db = db

	if err := s.createTables(ctx); err != nil {
		s.abortInit()
		return storageError("init", err)
	}

	if err := s.checkDimension(ctx); err != nil {
		s.abortInit()
		return err
	}

	s.logger.Info("database initialized", "path", s.config.Path, "dimension", s.config.Dimension)

	return nil
}

// uriPathEscaper escapes the characters SQLite treats as URI syntax in the path part of a file: URI
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// dsn builds the driver connection string.
// Pragmas are passed through the DSN so every pooled connection gets them.
func (s *SQLiteStore) dsn() string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		uriPathEscaper.Replace(s.config.Path), s.config.BusyTimeout.Milliseconds(),
	)
}

// abortInit releases the connection after a failed Init so it can be retried
func (s *SQLiteStore) abortInit() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("failed to close database after init failure", "error", err)
	}
	s.db = nil
}

// createTables creates the necessary database tables
func (s *SQLiteStore) createTables(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS Faces (
		ID INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
		Name TEXT,
		Age INTEGER,
		Gender TEXT,
		Hairstyle TEXT,
		FeatureVersion INTEGER,
		FeatureVector BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_faces_name ON Faces(Name);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// checkDimension records the dimension of a new database, or verifies it
// against the configured one when the database already exists.
func (s *SQLiteStore) checkDimension(ctx context.Context) error {
	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = ?", metaKeyDimension).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO store_meta (key, value) VALUES (?, ?)",
			metaKeyDimension, strconv.Itoa(s.config.Dimension))
		if err != nil {
			return storageError("init", fmt.Errorf("failed to record dimension: %w", err))
		}
		return nil
	}
	if err != nil {
		return storageError("init", fmt.Errorf("failed to read dimension: %w", err))
	}

	dim, err := strconv.Atoi(stored)
	if err != nil {
		return storageError("init", fmt.Errorf("%w: stored dimension %q", ErrCorruptRecord, stored))
	}
	if dim != s.config.Dimension {
		return wrapError("init", &vector.DimensionError{Expected: dim, Actual: s.config.Dimension})
	}

	return nil
}
