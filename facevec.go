package facevec

import (
	"context"
	"fmt"
	"io"
	"iter"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liliang-cn/facevec/pkg/core"
	"github.com/liliang-cn/facevec/pkg/index"
)

// Face is the data supplied when a record is added
type Face = core.Face

// Record is a stored face with its ID
type Record = core.Record

// Logger is the structured logger used by the DB
type Logger = core.Logger

// Config represents database configuration
type Config struct {
	Path        string        // Database file path, ":memory:" for a private in-memory database
	Dimension   int           // Embedding dimension shared by every record
	BusyTimeout time.Duration // How long a writer waits for the database lock (0 for default)
}

// DefaultConfig returns default configuration
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		Dimension:   core.DefaultDimension,
		BusyTimeout: core.DefaultConfig().BusyTimeout,
	}
}

// Match is a search hit resolved to the stored record identity
type Match struct {
	Slot     int     `json:"slot"`
	ID       uint64  `json:"id"`
	Name     string  `json:"name"`
	Distance float32 `json:"distance"` // squared L2
}

// L2 returns the Euclidean distance
func (m Match) L2() float32 {
	return float32(math.Sqrt(float64(m.Distance)))
}

// Stats combines record store and index statistics
type Stats struct {
	core.StoreStats
	IndexSlots      int       `json:"indexSlots"`
	IndexGeneration uuid.UUID `json:"indexGeneration"`
	IndexBuiltAt    time.Time `json:"indexBuiltAt"`
}

// DB couples the record store with the similarity index built from it.
//
// Writes go straight to the store and are not visible to searches until
// Rebuild is called. Searches run against the last published snapshot, which
// is built on first use if nothing has been built yet.
type DB struct {
	store      *core.SQLiteStore
	holder     index.Holder
	logger     Logger
	registerer prometheus.Registerer
	metrics    *metrics
	closed     atomic.Bool
}

// Option is a functional option for configuring the DB.
type Option func(*DB)

// WithLogger sets the logger used by the DB and its store
func WithLogger(logger Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// WithMetrics registers the DB's Prometheus collectors on reg
func WithMetrics(reg prometheus.Registerer) Option {
	return func(db *DB) {
		db.registerer = reg
	}
}

// Open opens or creates a face database.
func Open(ctx context.Context, config Config, opts ...Option) (*DB, error) {
	db := &DB{logger: core.NopLogger()}
	for _, opt := range opts {
		opt(db)
	}

	coreConfig := core.DefaultConfig()
	coreConfig.Path = config.Path
	coreConfig.Dimension = config.Dimension
	if config.BusyTimeout > 0 {
		coreConfig.BusyTimeout = config.BusyTimeout
	}
	coreConfig.Logger = db.logger

	store, err := core.NewWithConfig(coreConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	db.metrics, err = newMetrics(db.registerer)
	if err != nil {
		if closeErr := store.Close(); closeErr != nil {
			db.logger.Warn("failed to close store after metrics registration failure", "error", closeErr)
		}
		return nil, err
	}
	db.store = store

	return db, nil
}

// Store returns the underlying record store
func (db *DB) Store() core.Store {
	return db.store
}

// Dimension returns the embedding dimension
func (db *DB) Dimension() int {
	return db.store.Dimension()
}

// Add stores a face and returns its ID
func (db *DB) Add(ctx context.Context, face *Face) (id uint64, err error) {
	defer db.metrics.observe("add", time.Now(), &err)
	return db.store.Insert(ctx, face)
}

// AddBatch stores all faces atomically and returns their IDs in order
func (db *DB) AddBatch(ctx context.Context, faces []*Face) (ids []uint64, err error) {
	defer db.metrics.observe("add_batch", time.Now(), &err)
	return db.store.InsertBatch(ctx, faces)
}

// Get returns the first record with the given name
func (db *DB) Get(ctx context.Context, name string) (rec *Record, found bool, err error) {
	defer db.metrics.observe("get", time.Now(), &err)
	return db.store.GetByName(ctx, name)
}

// GetByID returns the record with the given ID
func (db *DB) GetByID(ctx context.Context, id uint64) (rec *Record, found bool, err error) {
	defer db.metrics.observe("get_by_id", time.Now(), &err)
	return db.store.GetByID(ctx, id)
}

// List returns every record with the given name
func (db *DB) List(ctx context.Context, name string) (recs []*Record, err error) {
	defer db.metrics.observe("list", time.Now(), &err)
	return db.store.ListByName(ctx, name)
}

// DeleteByID removes one record. The index keeps serving it until the next Rebuild.
func (db *DB) DeleteByID(ctx context.Context, id uint64) (deleted int64, err error) {
	defer db.metrics.observe("delete_by_id", time.Now(), &err)
	return db.store.DeleteByID(ctx, id)
}

// DeleteByName removes every record with the given name
func (db *DB) DeleteByName(ctx context.Context, name string) (deleted int64, err error) {
	defer db.metrics.observe("delete_by_name", time.Now(), &err)
	return db.store.DeleteByName(ctx, name)
}

// Count returns the number of stored records
func (db *DB) Count(ctx context.Context) (uint64, error) {
	return db.store.Count(ctx)
}

// Stats returns store statistics together with details of the current index snapshot
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	storeStats, err := db.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{StoreStats: storeStats}
	if idx := db.holder.Load(); idx != nil {
		stats.IndexSlots = idx.Len()
		stats.IndexGeneration = idx.Generation()
		stats.IndexBuiltAt = idx.BuiltAt()
	}

	return stats, nil
}

// Snapshot returns the current index snapshot, or nil if none has been built
func (db *DB) Snapshot() *index.Index {
	return db.holder.Load()
}

// Rebuild scans every record and publishes a new index snapshot.
// Concurrent calls share one scan. If the scan fails the previous snapshot is kept.
func (db *DB) Rebuild(ctx context.Context) (*index.Index, error) {
	if db.closed.Load() {
		return nil, &core.StoreError{Op: "rebuild", Err: ErrStoreClosed}
	}

	start := time.Now()
	idx, err := db.holder.Rebuild(ctx, db.build)
	db.metrics.observe("rebuild", start, &err)
	if err != nil {
		db.metrics.recordRebuild(0, err)
		db.logger.Error("index rebuild failed", "error", err)
		return nil, err
	}
	db.metrics.recordRebuild(idx.Len(), nil)

	db.logger.Info("index rebuilt",
		"slots", idx.Len(),
		"generation", idx.Generation().String(),
		"duration", time.Since(start))

	return idx, nil
}

func (db *DB) build(ctx context.Context) (*index.Index, error) {
	return index.Build(db.store.Dimension(), db.entries(ctx))
}

// entries adapts the store scan to index entries, stopping once ctx is done
func (db *DB) entries(ctx context.Context) iter.Seq2[index.Entry, error] {
	return func(yield func(index.Entry, error) bool) {
		for rec, err := range db.store.Scan(ctx) {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield(index.Entry{}, err)
				return
			}
			if !yield(index.Entry{ID: rec.ID, Name: rec.Name, Vector: rec.Embedding}, nil) {
				return
			}
		}
	}
}

// Search returns the k records nearest to query, nearest first.
// If no snapshot has been built yet one is built first.
func (db *DB) Search(ctx context.Context, query []float32, k int) (matches []Match, err error) {
	defer db.metrics.observe("search", time.Now(), &err)

	if db.closed.Load() {
		return nil, &core.StoreError{Op: "search", Err: ErrStoreClosed}
	}

	idx := db.holder.Load()
	if idx == nil {
		db.logger.Debug("no index snapshot, building")
		if idx, err = db.Rebuild(ctx); err != nil {
			return nil, err
		}
	}

	results, err := idx.Search(query, k)
	if err != nil {
		return nil, &core.StoreError{Op: "search", Err: err}
	}

	return toMatches(results), nil
}

// SearchRadius returns every record whose squared distance to query is at most radius,
// nearest first. Like Search it builds a snapshot if none exists.
func (db *DB) SearchRadius(ctx context.Context, query []float32, radius float32) (matches []Match, err error) {
	defer db.metrics.observe("search_radius", time.Now(), &err)

	if db.closed.Load() {
		return nil, &core.StoreError{Op: "search_radius", Err: ErrStoreClosed}
	}

	idx := db.holder.Load()
	if idx == nil {
		if idx, err = db.Rebuild(ctx); err != nil {
			return nil, err
		}
	}

	results, err := idx.RangeSearch(query, radius)
	if err != nil {
		return nil, &core.StoreError{Op: "search_radius", Err: err}
	}

	return toMatches(results), nil
}

func toMatches(results []index.Result) []Match {
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{Slot: r.Slot, ID: r.ID, Name: r.Name, Distance: r.Distance}
	}
	return matches
}

// QueryByName looks up the first record with the given name and returns the
// k records nearest to its embedding. The record itself is normally the first match.
// found is false when no record has the name.
func (db *DB) QueryByName(ctx context.Context, name string, k int) ([]Match, bool, error) {
	rec, found, err := db.Get(ctx, name)
	if err != nil || !found {
		return nil, found, err
	}

	matches, err := db.Search(ctx, rec.Embedding, k)
	if err != nil {
		return nil, true, err
	}

	return matches, true, nil
}

// Export writes every record to w
func (db *DB) Export(ctx context.Context, w io.Writer, format core.DumpFormat) (stats *core.DumpStats, err error) {
	defer db.metrics.observe("export", time.Now(), &err)
	return db.store.Dump(ctx, w, format)
}

// Import adds the faces read from r under new IDs. Like other writes it does not touch the index.
func (db *DB) Import(ctx context.Context, r io.Reader, format core.DumpFormat) (stats *core.ImportStats, err error) {
	defer db.metrics.observe("import", time.Now(), &err)
	return db.store.Load(ctx, r, format)
}

// Backup writes a consistent copy of the database file to path
func (db *DB) Backup(ctx context.Context, path string) (err error) {
	defer db.metrics.observe("backup", time.Now(), &err)
	return db.store.Backup(ctx, path)
}

// Close closes the database. Snapshots already handed out remain usable.
func (db *DB) Close() error {
	db.closed.Store(true)
	return db.store.Close()
}
