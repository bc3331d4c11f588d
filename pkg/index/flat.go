package index

import (
	"cmp"
	"container/heap"
	"fmt"
	"iter"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/liliang-cn/facevec/pkg/vector"
)

// Entry is one record handed to Build, in scan order
type Entry struct {
	ID     uint64
	Name   string
	Vector []float32
}

// Identity maps an index slot back to the record it was built from
type Identity struct {
	ID   uint64
	Name string
}

// Result is a single search hit.
// Distance is the squared L2 distance between the query and the slot's vector.
type Result struct {
	Slot     int
	ID       uint64
	Name     string
	Distance float32
}

// L2 returns the Euclidean distance
func (r Result) L2() float32 {
	return float32(math.Sqrt(float64(r.Distance)))
}

// Index is an immutable brute-force exact search index.
// Vectors are stored contiguously, slot i occupying data[i*dim:(i+1)*dim].
// A built Index is never modified and is safe for concurrent searches.
type Index struct {
	dim        int
	data       []float32
	identities []Identity
	generation uuid.UUID
	builtAt    time.Time
}

// Build consumes entries in order and flattens them into a new Index.
// The n-th entry becomes slot n. Any entry whose vector length differs from
// dim or that holds a NaN or infinite component aborts the build, as does any
// error yielded by entries.
func Build(dim int, entries iter.Seq2[Entry, error]) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}

	idx := &Index{dim: dim}
	for entry, err := range entries {
		if err != nil {
			return nil, fmt.Errorf("failed to read entry at slot %d: %w", len(idx.identities), err)
		}
		if err := vector.Validate(entry.Vector, dim); err != nil {
			return nil, fmt.Errorf("entry %d (%q): %w", entry.ID, entry.Name, err)
		}
		idx.data = append(idx.data, entry.Vector...)
		idx.identities = append(idx.identities, Identity{ID: entry.ID, Name: entry.Name})
	}

	idx.generation = uuid.New()
	idx.builtAt = time.Now()

	return idx, nil
}

// Search returns the k slots closest to query, nearest first.
// Equal distances are ordered by ascending slot. A k larger than the index
// returns every slot; k == 0 returns no results.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if err := idx.checkQuery(query); err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative, got %d", vector.ErrInvalidQuery, k)
	}

	n := idx.Len()
	if k > n {
		k = n
	}
	if k == 0 {
		return []Result{}, nil
	}

	// Max heap holding the k best candidates seen so far
	h := make(resultHeap, 0, k)
	for slot := range n {
		dist := vector.SquaredL2(query, idx.slotVector(slot))
		if h.Len() < k {
			heap.Push(&h, heapItem{slot: slot, distance: dist})
		} else if dist < h[0].distance {
			// Slots arrive in ascending order, so an equal distance never displaces the top
			h[0] = heapItem{slot: slot, distance: dist}
			heap.Fix(&h, 0)
		}
	}

	results := make([]Result, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = idx.result(heap.Pop(&h).(heapItem))
	}

	return results, nil
}

// RangeSearch returns every slot whose squared distance to query is at most radius,
// ordered the same way as Search.
func (idx *Index) RangeSearch(query []float32, radius float32) ([]Result, error) {
	if err := idx.checkQuery(query); err != nil {
		return nil, err
	}
	if radius < 0 || math.IsNaN(float64(radius)) {
		return nil, fmt.Errorf("%w: radius must be a non-negative number, got %v", vector.ErrInvalidQuery, radius)
	}

	var items []heapItem
	for slot := range idx.Len() {
		dist := vector.SquaredL2(query, idx.slotVector(slot))
		if dist <= radius {
			items = append(items, heapItem{slot: slot, distance: dist})
		}
	}

	slices.SortFunc(items, func(a, b heapItem) int {
		return cmp.Or(cmp.Compare(a.distance, b.distance), cmp.Compare(a.slot, b.slot))
	})

	results := make([]Result, len(items))
	for i, item := range items {
		results[i] = idx.result(item)
	}

	return results, nil
}

// Len returns the number of slots
func (idx *Index) Len() int {
	return len(idx.identities)
}

// Dimension returns the vector dimension
func (idx *Index) Dimension() int {
	return idx.dim
}

// Identity returns the record identity stored at slot
func (idx *Index) Identity(slot int) (Identity, bool) {
	if slot < 0 || slot >= idx.Len() {
		return Identity{}, false
	}
	return idx.identities[slot], true
}

// Vector returns a copy of the vector stored at slot
func (idx *Index) Vector(slot int) ([]float32, bool) {
	if slot < 0 || slot >= idx.Len() {
		return nil, false
	}
	return vector.Clone(idx.slotVector(slot)), true
}

// Generation uniquely identifies this build
func (idx *Index) Generation() uuid.UUID {
	return idx.generation
}

// BuiltAt returns when the build finished
func (idx *Index) BuiltAt() time.Time {
	return idx.builtAt
}

func (idx *Index) checkQuery(query []float32) error {
	if err := vector.Validate(query, idx.dim); err != nil {
		return fmt.Errorf("%w: %w", vector.ErrInvalidQuery, err)
	}
	return nil
}

func (idx *Index) slotVector(slot int) []float32 {
	return idx.data[slot*idx.dim : (slot+1)*idx.dim]
}

func (idx *Index) result(item heapItem) Result {
	id := idx.identities[item.slot]
	return Result{
		Slot:     item.slot,
		ID:       id.ID,
		Name:     id.Name,
		Distance: item.distance,
	}
}

type heapItem struct {
	slot     int
	distance float32
}

// resultHeap implements heap.Interface as a max heap on (distance, slot)
type resultHeap []heapItem

func (h resultHeap) Len() int { return len(h) }
func (h resultHeap) Less(i, j int) bool {
	if h[i].distance != h[j].distance {
		return h[i].distance > h[j].distance
	}
	return h[i].slot > h[j].slot
}
func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) {
	*h = append(*h, x.(heapItem))
}

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}
