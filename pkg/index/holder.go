package index

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// BuildFunc produces a fresh Index, typically from a full store scan
type BuildFunc func(ctx context.Context) (*Index, error)

// Holder publishes the current Index snapshot to concurrent searchers.
// A zero Holder is empty and ready to use.
//
// Searchers call Load and keep using the snapshot they got; a rebuild swaps
// in a new snapshot without disturbing them.
type Holder struct {
	current atomic.Pointer[Index]
	group   singleflight.Group
}

// Load returns the current snapshot, or nil if nothing has been built yet
func (h *Holder) Load() *Index {
	return h.current.Load()
}

// Store publishes idx unconditionally and returns the snapshot it replaced
func (h *Holder) Store(idx *Index) *Index {
	return h.current.Swap(idx)
}

// Rebuild runs build and publishes its result.
// Concurrent calls share a single build and all receive its outcome, which
// means they also share the context of the caller that started it.
// If build fails the previous snapshot stays in place.
func (h *Holder) Rebuild(ctx context.Context, build BuildFunc) (*Index, error) {
	v, err, _ := h.group.Do("rebuild", func() (any, error) {
		idx, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if idx == nil {
			return nil, fmt.Errorf("build returned no index")
		}
		h.current.Store(idx)
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

// LoadOrBuild returns the current snapshot, building one first if the holder is empty
func (h *Holder) LoadOrBuild(ctx context.Context, build BuildFunc) (*Index, error) {
	if idx := h.Load(); idx != nil {
		return idx, nil
	}
	return h.Rebuild(ctx, build)
}
