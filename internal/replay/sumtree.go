package replay

import (
	"fmt"
	"math/rand"
)

// SumTree is a complete binary tree stored as a flat array of length
// 2*maxSize-1. The last maxSize slots are leaves holding priorities,
// paired 1:1 with a data array indexed by the same circular cursor.
// Every internal node caches the sum of its subtree, maintained by delta
// propagation, so weighted lookups and updates are O(log n).
type SumTree[T any] struct {
	maxSize int
	nodes   []float64
	data    []T
	idx     int
	full    bool
	rng     *rand.Rand
}

// NewSumTree creates a sum tree with capacity for maxSize leaves. The rng
// breaks ties between equal-valued siblings during descent.
func NewSumTree[T any](maxSize int, rng *rand.Rand) (*SumTree[T], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", maxSize)
	}
	if rng == nil {
		return nil, fmt.Errorf("rng is required")
	}
	return &SumTree[T]{
		maxSize: maxSize,
		nodes:   make([]float64, 2*maxSize-1),
		data:    make([]T, maxSize),
		rng:     rng,
	}, nil
}

// Add inserts the items at the next leaf slots with the given priorities,
// wrapping and overwriting the oldest entries once full.
func (t *SumTree[T]) Add(items []T, priorities []float64) error {
	if len(items) != len(priorities) {
		return fmt.Errorf("%w: %d items vs %d priorities", ErrLengthMismatch, len(items), len(priorities))
	}

	for i, item := range items {
		leaf := t.idx + t.maxSize - 1

		t.data[t.idx] = item
		t.set(leaf, priorities[i])

		t.idx++
		if t.idx == t.maxSize {
			t.idx = 0
			t.full = true
		}
	}
	return nil
}

// Update replaces the priority at each leaf index and propagates the
// resulting delta up to the root.
func (t *SumTree[T]) Update(indices []int, priorities []float64) error {
	if len(indices) != len(priorities) {
		return fmt.Errorf("%w: %d indices vs %d priorities", ErrLengthMismatch, len(indices), len(priorities))
	}

	for i, leaf := range indices {
		if leaf < t.maxSize-1 || leaf >= len(t.nodes) {
			return fmt.Errorf("leaf index %d out of range [%d, %d)", leaf, t.maxSize-1, len(t.nodes))
		}
		t.set(leaf, priorities[i])
	}
	return nil
}

func (t *SumTree[T]) set(leaf int, priority float64) {
	delta := priority - t.nodes[leaf]
	t.nodes[leaf] = priority

	for idx := leaf; idx != 0; {
		idx = (idx - 1) / 2
		t.nodes[idx] += delta
	}
}

// Get descends from the root by cumulative value and returns the leaf
// index, its priority and the stored item. The value s must lie in
// [0, Total()); siblings with equal sums are chosen uniformly at random
// so degenerate equal-priority regions do not starve one branch.
func (t *SumTree[T]) Get(s float64) (int, float64, T, error) {
	if s < 0 || s >= t.Total() {
		var zero T
		return 0, 0, zero, fmt.Errorf("%w: %g not in [0, %g)", ErrValueOutOfRange, s, t.Total())
	}

	idx := 0
	for {
		left := 2*idx + 1
		right := left + 1
		if left >= len(t.nodes) {
			break
		}

		switch {
		case t.nodes[left] == t.nodes[right]:
			if t.rng.Intn(2) == 0 {
				idx = left
			} else {
				idx = right
			}
		case s <= t.nodes[left]:
			idx = left
		default:
			s -= t.nodes[left]
			idx = right
		}
	}

	return idx, t.nodes[idx], t.data[idx-t.maxSize+1], nil
}

// Size returns the number of populated leaves.
func (t *SumTree[T]) Size() int {
	if t.full {
		return t.maxSize
	}
	return t.idx
}

// Total returns the sum of all leaf priorities, i.e. the root value.
func (t *SumTree[T]) Total() float64 {
	return t.nodes[0]
}

// Max returns the maximum priority among populated leaves only; leaves
// never written do not count. Returns 0 for an empty tree.
func (t *SumTree[T]) Max() float64 {
	max := 0.0
	for i := 0; i < t.Size(); i++ {
		if p := t.nodes[t.maxSize-1+i]; p > max {
			max = p
		}
	}
	return max
}
