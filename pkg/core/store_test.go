package core

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/liliang-cn/facevec/internal/encoding"
	"github.com/liliang-cn/facevec/pkg/vector"
)

func newTestStore(t *testing.T, dim int) *SQLiteStore {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "faces.db"), dim)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func unitVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func testFace(name string, embedding []float32) *Face {
	return &Face{
		Name:           name,
		Age:            30,
		Gender:         "Male",
		Hairstyle:      "Short",
		FeatureVersion: 1,
		Embedding:      embedding,
	}
}

func TestNewWithConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"empty path", Config{Dimension: 128}},
		{"zero dimension", Config{Path: "faces.db"}},
		{"negative dimension", Config{Path: "faces.db", Dimension: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithConfig(tt.config)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestInsertAndGetByNameRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 8)

	embedding := []float32{0.1, -0.2, 0.3, 1e-7, 123.456, -0, math.MaxFloat32, 0.5}
	face := testFace("John", embedding)

	id, err := store.Insert(ctx, face)
	require.NoError(t, err)
	assert.NotZero(t, id)

	rec, found, err := store.GetByName(ctx, "John")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "John", rec.Name)
	assert.Equal(t, int32(30), rec.Age)
	assert.Equal(t, "Male", rec.Gender)
	assert.Equal(t, "Short", rec.Hairstyle)
	assert.Equal(t, int32(1), rec.FeatureVersion)
	assert.True(t, bytes.Equal(encoding.EncodeVector(embedding), encoding.EncodeVector(rec.Embedding)),
		"embedding bytes changed on round trip")
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	var last uint64
	for i := 0; i < 5; i++ {
		id, err := store.Insert(ctx, testFace("face", unitVector(4, i%4)))
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}

	// AUTOINCREMENT never reuses IDs of deleted rows
	_, err := store.DeleteByID(ctx, last)
	require.NoError(t, err)
	id, err := store.Insert(ctx, testFace("face", unitVector(4, 0)))
	require.NoError(t, err)
	assert.Greater(t, id, last)
}

func TestGetByNameMissing(t *testing.T) {
	store := newTestStore(t, 4)

	rec, found, err := store.GetByName(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rec)
}

func TestGetByNameFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	firstID, err := store.Insert(ctx, testFace("dup", unitVector(4, 0)))
	require.NoError(t, err)
	_, err = store.Insert(ctx, testFace("dup", unitVector(4, 1)))
	require.NoError(t, err)

	rec, found, err := store.GetByName(ctx, "dup")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, firstID, rec.ID)
	assert.Equal(t, unitVector(4, 0), rec.Embedding)

	all, err := store.ListByName(ctx, "dup")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Less(t, all[0].ID, all[1].ID)
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	id, err := store.Insert(ctx, testFace("alice", unitVector(4, 2)))
	require.NoError(t, err)

	rec, found, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", rec.Name)

	_, found, err = store.GetByID(ctx, id+100)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInsertDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	for _, embedding := range [][]float32{{1, 2, 3}, {1, 2, 3, 4, 5}, nil} {
		_, err := store.Insert(ctx, testFace("bad", embedding))
		require.Error(t, err)
		assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "insert", storeErr.Op)
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rejected inserts must not create rows")
}

func TestInsertRejectsNonFinite(t *testing.T) {
	store := newTestStore(t, 2)

	_, err := store.Insert(context.Background(), testFace("nan", []float32{float32(math.NaN()), 0}))
	assert.ErrorIs(t, err, vector.ErrInvalidVector)
}

func TestInsertBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	ids, err := store.InsertBatch(ctx, []*Face{
		testFace("a", unitVector(4, 0)),
		testFace("b", unitVector(4, 1)),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])

	_, err = store.InsertBatch(ctx, []*Face{
		testFace("c", unitVector(4, 2)),
		testFace("d", []float32{1}),
	})
	require.ErrorIs(t, err, vector.ErrDimensionMismatch)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	_, found, err := store.GetByName(ctx, "c")
	require.NoError(t, err)
	assert.False(t, found, "failed batch must not leave partial rows")
}

func TestDeleteByIDAndName(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	idA, err := store.Insert(ctx, testFace("A", unitVector(4, 0)))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := store.Insert(ctx, testFace("B", unitVector(4, 1)))
		require.NoError(t, err)
	}

	deleted, err := store.DeleteByID(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, found, err := store.GetByName(ctx, "A")
	require.NoError(t, err)
	assert.False(t, found)

	deleted, err = store.DeleteByID(ctx, idA)
	require.NoError(t, err)
	assert.Zero(t, deleted, "deleting a missing id is not an error")

	deleted, err = store.DeleteByName(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted, "delete by name removes every duplicate")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCountTracksLiveRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	var ids []uint64
	for i := 0; i < 10; i++ {
		id, err := store.Insert(ctx, testFace("n", unitVector(4, i%4)))
		require.NoError(t, err)
		ids = append(ids, id)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), count)
	}

	for i, id := range ids {
		_, err := store.DeleteByID(ctx, id)
		require.NoError(t, err)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(len(ids)-i-1), count)
	}
}

func TestScanOrderedByID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	names := []string{"c", "a", "b", "a"}
	for i, name := range names {
		_, err := store.Insert(ctx, testFace(name, unitVector(4, i)))
		require.NoError(t, err)
	}

	var got []string
	var last uint64
	for rec, err := range store.Scan(ctx) {
		require.NoError(t, err)
		assert.Greater(t, rec.ID, last)
		last = rec.ID
		got = append(got, rec.Name)
	}
	assert.Equal(t, names, got)
}

func TestScanStopsEarly(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	for i := 0; i < 4; i++ {
		_, err := store.Insert(ctx, testFace("x", unitVector(4, i)))
		require.NoError(t, err)
	}

	seen := 0
	for _, err := range store.Scan(ctx) {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)

	// The read lock and rows must have been released
	_, err := store.Insert(ctx, testFace("y", unitVector(4, 0)))
	require.NoError(t, err)
}

func TestCorruptBlobRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	_, err := store.GetDB().ExecContext(ctx,
		"INSERT INTO Faces (Name, Age, Gender, Hairstyle, FeatureVersion, FeatureVector) VALUES (?, ?, ?, ?, ?, ?)",
		"broken", 1, "F", "Long", 1, []byte{1, 2, 3})
	require.NoError(t, err)

	_, _, err = store.GetByName(ctx, "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, ErrCorruptRecord)

	var scanErr error
	for _, err := range store.Scan(ctx) {
		if err != nil {
			scanErr = err
		}
	}
	assert.ErrorIs(t, scanErr, ErrCorruptRecord)
}

func TestReopenWithDifferentDimension(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "faces.db")

	store, err := New(path, 4)
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))
	_, err = store.Insert(ctx, testFace("a", unitVector(4, 0)))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(path, 4)
	require.NoError(t, err)
	require.NoError(t, reopened.Init(ctx))
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	require.NoError(t, reopened.Close())

	wrong, err := New(path, 8)
	require.NoError(t, err)
	err = wrong.Init(ctx)
	require.ErrorIs(t, err, vector.ErrDimensionMismatch)

	var dimErr *vector.DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 8, dimErr.Actual)
}

func TestPathWithURICharacters(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"faces?v1.db", "faces#2.db", "100%25.db", "faces?mode=ro.db"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, name)

			store, err := New(path, 4)
			require.NoError(t, err)
			require.NoError(t, store.Init(ctx))
			_, err = store.Insert(ctx, testFace("a", unitVector(4, 0)))
			require.NoError(t, err)
			require.NoError(t, store.Close())

			_, err = os.Stat(path)
			require.NoError(t, err, "database must be created at the configured path")
			assert.NoFileExists(t, filepath.Join(dir, "faces"))
			assert.NoFileExists(t, filepath.Join(dir, "100%.db"))

			reopened, err := New(path, 4)
			require.NoError(t, err)
			require.NoError(t, reopened.Init(ctx))
			defer reopened.Close()

			count, err := reopened.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), count)
		})
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	for _, name := range []string{"a", "b", "b"} {
		_, err := store.Insert(ctx, testFace(name, unitVector(4, 0)))
		require.NoError(t, err)
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Count)
	assert.Equal(t, uint64(2), stats.DistinctNames)
	assert.Equal(t, 4, stats.Dimensions)
	assert.Positive(t, stats.Size)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store, err := New(":memory:", 4)
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	_, err = store.Insert(ctx, testFace("m", unitVector(4, 3)))
	require.NoError(t, err)

	rec, found, err := store.GetByName(ctx, "m")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, unitVector(4, 3), rec.Embedding)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 4)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "Close must be idempotent")

	_, err := store.Insert(ctx, testFace("a", unitVector(4, 0)))
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = store.Count(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)

	for _, err := range store.Scan(ctx) {
		assert.ErrorIs(t, err, ErrStoreClosed)
	}

	assert.ErrorIs(t, store.Init(ctx), ErrStoreClosed)
}

func TestUninitializedStore(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "faces.db"), 4)
	require.NoError(t, err)

	_, err = store.Count(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStoreClosed))
}

func TestStoreLogging(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	config := DefaultConfig()
	config.Path = filepath.Join(t.TempDir(), "faces.db")
	config.Dimension = 4
	config.Logger = NewLogger(&buf, zapcore.DebugLevel)

	store, err := NewWithConfig(config)
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	_, err = store.Insert(ctx, testFace("logged", unitVector(4, 0)))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "database initialized")
	assert.Contains(t, out, "face inserted")
	assert.Contains(t, out, "logged")
}
