package core

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// DumpFormat represents the format for data export
type DumpFormat string

const (
	// DumpFormatJSON exports a single JSON document with a metadata header
	DumpFormatJSON DumpFormat = "json"
	// DumpFormatJSONL exports one record per line
	DumpFormatJSONL DumpFormat = "jsonl"
)

// ParseDumpFormat accepts "json" or "jsonl"
func ParseDumpFormat(s string) (DumpFormat, error) {
	switch f := DumpFormat(strings.ToLower(s)); f {
	case DumpFormatJSON, DumpFormatJSONL:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// DumpStats provides statistics about the export operation
type DumpStats struct {
	Records int `json:"records"`
}

// ExportMetadata heads a JSON export
type ExportMetadata struct {
	Version    string `json:"version"`
	ExportedAt string `json:"exportedAt"`
	Dimension  int    `json:"dimension"`
	Records    int    `json:"records"`
}

// ImportStats provides statistics about the import operation
type ImportStats struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

func (s *ImportStats) String() string {
	return fmt.Sprintf("ImportStats{Imported: %d, Failed: %d}", s.Imported, s.Failed)
}

const (
	exportVersion   = "1"
	importBatchSize = 500
	maxImportLine   = 16 * 1024 * 1024
)

// Dump writes every record in ascending ID order
func (s *SQLiteStore) Dump(ctx context.Context, w io.Writer, format DumpFormat) (*DumpStats, error) {
	switch format {
	case DumpFormatJSON:
		return s.dumpJSON(ctx, w)
	case DumpFormatJSONL:
		return s.dumpJSONL(ctx, w)
	default:
		return nil, wrapError("dump", fmt.Errorf("unsupported format: %s", format))
	}
}

func (s *SQLiteStore) dumpJSON(ctx context.Context, w io.Writer) (*DumpStats, error) {
	var records []*Record
	for rec, err := range s.Scan(ctx) {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	export := struct {
		Metadata ExportMetadata `json:"metadata"`
		Faces    []*Record      `json:"faces"`
	}{
		Metadata: ExportMetadata{
			Version:    exportVersion,
			ExportedAt: time.Now().Format(time.RFC3339),
			Dimension:  s.config.Dimension,
			Records:    len(records),
		},
		Faces: records,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return nil, wrapError("dump_json", fmt.Errorf("failed to encode JSON: %w", err))
	}

	return &DumpStats{Records: len(records)}, nil
}

func (s *SQLiteStore) dumpJSONL(ctx context.Context, w io.Writer) (*DumpStats, error) {
	stats := &DumpStats{}

	encoder := json.NewEncoder(w)
	for rec, err := range s.Scan(ctx) {
		if err != nil {
			return stats, err
		}
		if err := encoder.Encode(rec); err != nil {
			return stats, wrapError("dump_jsonl", fmt.Errorf("failed to encode: %w", err))
		}
		stats.Records++
	}

	return stats, nil
}

// Load imports faces written by Dump. Imported faces get new IDs.
// Faces that cannot be decoded or fail validation are counted as failed and
// skipped; the rest are inserted in batches.
func (s *SQLiteStore) Load(ctx context.Context, r io.Reader, format DumpFormat) (*ImportStats, error) {
	switch format {
	case DumpFormatJSON:
		return s.loadJSON(ctx, r)
	case DumpFormatJSONL:
		return s.loadJSONL(ctx, r)
	default:
		return nil, wrapError("load", fmt.Errorf("unsupported format: %s", format))
	}
}

func (s *SQLiteStore) loadJSON(ctx context.Context, r io.Reader) (*ImportStats, error) {
	var export struct {
		Metadata ExportMetadata `json:"metadata"`
		Faces    []*Face        `json:"faces"`
	}

	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, wrapError("load_json", fmt.Errorf("failed to decode JSON: %w", err))
	}
	if export.Metadata.Dimension != 0 && export.Metadata.Dimension != s.config.Dimension {
		s.logger.Warn("import dimension differs from store",
			"import_dimension", export.Metadata.Dimension, "store_dimension", s.config.Dimension)
	}

	stats := &ImportStats{}
	l := loader{store: s, stats: stats}
	for _, face := range export.Faces {
		if err := l.add(ctx, face); err != nil {
			return stats, err
		}
	}
	return stats, l.flush(ctx)
}

func (s *SQLiteStore) loadJSONL(ctx context.Context, r io.Reader) (*ImportStats, error) {
	stats := &ImportStats{}
	l := loader{store: s, stats: stats}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var face Face
		if err := json.Unmarshal([]byte(line), &face); err != nil {
			stats.Failed++
			continue
		}
		if err := l.add(ctx, &face); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, wrapError("load_jsonl", fmt.Errorf("failed to read input: %w", err))
	}

	return stats, l.flush(ctx)
}

// loader accumulates valid faces and inserts them in batches
type loader struct {
	store   *SQLiteStore
	stats   *ImportStats
	pending []*Face
}

func (l *loader) add(ctx context.Context, face *Face) error {
	if err := l.store.validateFace(face); err != nil {
		l.stats.Failed++
		return nil
	}
	l.pending = append(l.pending, face)
	if len(l.pending) >= importBatchSize {
		return l.flush(ctx)
	}
	return nil
}

func (l *loader) flush(ctx context.Context) error {
	if len(l.pending) == 0 {
		return nil
	}
	ids, err := l.store.InsertBatch(ctx, l.pending)
	if err != nil {
		return err
	}
	l.stats.Imported += len(ids)
	l.pending = l.pending[:0]
	return nil
}

// DumpToFile exports data to a file
func (s *SQLiteStore) DumpToFile(ctx context.Context, path string, format DumpFormat) (*DumpStats, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, wrapError("dump_to_file", fmt.Errorf("failed to create file: %w", err))
	}

	stats, err := s.Dump(ctx, file, format)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = wrapError("dump_to_file", fmt.Errorf("failed to close file: %w", closeErr))
	}
	return stats, err
}

// LoadFromFile imports data from a file
func (s *SQLiteStore) LoadFromFile(ctx context.Context, path string, format DumpFormat) (*ImportStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, wrapError("load_from_file", fmt.Errorf("failed to open file: %w", err))
	}
	defer file.Close()

	return s.Load(ctx, file, format)
}

// Backup writes a consistent copy of the database to path, which must not exist yet
func (s *SQLiteStore) Backup(ctx context.Context, path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("backup"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return storageError("backup", fmt.Errorf("failed to create backup: %w", err))
	}

	s.logger.Info("database backed up", "path", path)

	return nil
}
