package index

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func staticBuild(list ...Entry) BuildFunc {
	return func(ctx context.Context) (*Index, error) {
		return Build(2, entries(list...))
	}
}

func TestHolderEmpty(t *testing.T) {
	var h Holder
	if h.Load() != nil {
		t.Error("Expected zero Holder to be empty")
	}
}

func TestHolderRebuildPublishes(t *testing.T) {
	var h Holder
	ctx := context.Background()

	first, err := h.Rebuild(ctx, staticBuild(Entry{ID: 1, Name: "a", Vector: []float32{0, 0}}))
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if h.Load() != first {
		t.Error("Expected the rebuilt index to be published")
	}

	second, err := h.Rebuild(ctx, staticBuild(
		Entry{ID: 1, Name: "a", Vector: []float32{0, 0}},
		Entry{ID: 2, Name: "b", Vector: []float32{1, 1}},
	))
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if h.Load() != second || second.Len() != 2 {
		t.Error("Expected the second build to replace the first")
	}

	// A snapshot taken earlier is unaffected by the swap
	if first.Len() != 1 {
		t.Errorf("Expected old snapshot to keep 1 slot, got %d", first.Len())
	}
}

func TestHolderFailedRebuildKeepsSnapshot(t *testing.T) {
	var h Holder
	ctx := context.Background()

	good, err := h.Rebuild(ctx, staticBuild(Entry{ID: 1, Name: "a", Vector: []float32{0, 0}}))
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	buildErr := errors.New("scan failed")
	_, err = h.Rebuild(ctx, func(ctx context.Context) (*Index, error) {
		return nil, buildErr
	})
	if !errors.Is(err, buildErr) {
		t.Errorf("Expected build error, got %v", err)
	}
	if h.Load() != good {
		t.Error("Expected previous snapshot to survive a failed rebuild")
	}

	_, err = h.Rebuild(ctx, func(ctx context.Context) (*Index, error) {
		return nil, nil
	})
	if err == nil {
		t.Error("Expected error when build returns no index")
	}
	if h.Load() != good {
		t.Error("Expected previous snapshot to survive an empty build")
	}
}

func TestHolderStore(t *testing.T) {
	var h Holder
	idx := buildIndex(t, 2, Entry{ID: 1, Name: "a", Vector: []float32{0, 0}})

	if old := h.Store(idx); old != nil {
		t.Error("Expected no previous snapshot")
	}
	if h.Load() != idx {
		t.Error("Expected stored snapshot to be loaded")
	}
}

func TestHolderLoadOrBuild(t *testing.T) {
	var h Holder
	var calls atomic.Int32
	build := func(ctx context.Context) (*Index, error) {
		calls.Add(1)
		return Build(2, entries(Entry{ID: 1, Name: "a", Vector: []float32{0, 0}}))
	}

	first, err := h.LoadOrBuild(context.Background(), build)
	if err != nil {
		t.Fatalf("LoadOrBuild failed: %v", err)
	}
	second, err := h.LoadOrBuild(context.Background(), build)
	if err != nil {
		t.Fatalf("LoadOrBuild failed: %v", err)
	}

	if first != second {
		t.Error("Expected the existing snapshot to be reused")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 build, got %d", calls.Load())
	}
}

func TestHolderCoalescesConcurrentRebuilds(t *testing.T) {
	var h Holder
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	build := func(ctx context.Context) (*Index, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return Build(2, entries(Entry{ID: 1, Name: "a", Vector: []float32{0, 0}}))
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Index, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = h.Rebuild(context.Background(), build)
	}()
	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.Rebuild(context.Background(), build)
		}()
	}

	// Give the followers time to join the in-flight build
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] == nil {
			t.Fatalf("caller %d: nil index", i)
		}
	}
	if calls.Load() >= callers {
		t.Errorf("Expected concurrent rebuilds to share work, got %d builds for %d callers", calls.Load(), callers)
	}
}

func TestHolderConcurrentSearchDuringRebuild(t *testing.T) {
	var h Holder
	ctx := context.Background()

	build := func(n int) BuildFunc {
		return func(ctx context.Context) (*Index, error) {
			list := make([]Entry, n)
			for i := range list {
				list[i] = Entry{ID: uint64(i + 1), Name: "face", Vector: []float32{float32(i), 0}}
			}
			return Build(2, entries(list...))
		}
	}

	if _, err := h.Rebuild(ctx, build(10)); err != nil {
		t.Fatalf("initial Rebuild failed: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var failures atomic.Int32

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				idx := h.Load()
				results, err := idx.Search([]float32{0, 0}, 5)
				if err != nil || len(results) != 5 || results[0].Slot != 0 {
					failures.Add(1)
					return
				}
			}
		}()
	}

	for i := range 20 {
		if _, err := h.Rebuild(ctx, build(10+i)); err != nil {
			t.Errorf("Rebuild %d failed: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	if failures.Load() != 0 {
		t.Errorf("Expected searches to see consistent snapshots, got %d failures", failures.Load())
	}
	if h.Load().Len() != 29 {
		t.Errorf("Expected final snapshot with 29 slots, got %d", h.Load().Len())
	}
}
