package replay

import (
	"fmt"
	"math"
	"math/rand"
)

// PrioritizedBuffer biases sampling toward transitions with large TD
// errors, as in "Prioritized Experience Replay" (Schaul et al., 2015).
// Priorities live in a sum tree; sampling is stratified over the priority
// mass and returns importance-sampling weights that correct the bias.
type PrioritizedBuffer struct {
	initialSize int
	maxSize     int
	alpha       float64
	epsilon     float64
	beta        Schedule

	tree *SumTree[Transition]
	rng  *rand.Rand
}

// NewPrioritizedBuffer creates a prioritized buffer. alpha is the
// priority exponent, beta the importance-sampling exponent schedule and
// epsilon the floor added to every error so no priority is exactly zero.
func NewPrioritizedBuffer(initialSize, maxSize int, alpha float64, beta Schedule, epsilon float64, rng *rand.Rand) (*PrioritizedBuffer, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", maxSize)
	}
	if initialSize < 0 || initialSize > maxSize {
		return nil, fmt.Errorf("initial size %d out of range [0, %d]", initialSize, maxSize)
	}
	if beta == nil {
		return nil, fmt.Errorf("beta schedule is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("rng is required")
	}

	tree, err := NewSumTree[Transition](maxSize, rng)
	if err != nil {
		return nil, err
	}
	return &PrioritizedBuffer{
		initialSize: initialSize,
		maxSize:     maxSize,
		alpha:       alpha,
		epsilon:     epsilon,
		beta:        beta,
		tree:        tree,
		rng:         rng,
	}, nil
}

// Add stores the transitions with explicit priorities, one per
// transition. There is no implicit default; callers typically pass
// MaxPriority for fresh transitions.
func (b *PrioritizedBuffer) Add(batch []Transition, priorities []float64) error {
	return b.tree.Add(batch, priorities)
}

// Sample draws n transitions by stratified priority sampling: the
// priority mass [0, total) is split into n equal segments and one value
// is drawn uniformly per segment, which guarantees coverage across the
// whole range. It returns the batch, the leaf indices to report errors
// against later, and importance weights normalized so the batch maximum
// is exactly 1.
func (b *PrioritizedBuffer) Sample(n int) (Batch, []int, []float64, error) {
	if n <= 0 {
		return Batch{}, nil, nil, fmt.Errorf("sample size must be positive, got %d", n)
	}
	total := b.tree.Total()
	if total <= 0 {
		return Batch{}, nil, nil, fmt.Errorf("%w: total priority is zero", ErrNotInitialized)
	}

	out := newBatch(n)
	indices := make([]int, n)
	priorities := make([]float64, n)

	segment := total / float64(n)
	for i := 0; i < n; i++ {
		s := (float64(i) + b.rng.Float64()) * segment
		if s >= total {
			s = math.Nextafter(total, 0)
		}

		leaf, p, tr, err := b.tree.Get(s)
		if err != nil {
			return Batch{}, nil, nil, err
		}
		indices[i] = leaf
		priorities[i] = p
		out.append(tr)
	}

	beta := b.beta.Value()
	size := float64(b.tree.Size())
	weights := make([]float64, n)
	maxWeight := 0.0
	for i, p := range priorities {
		weights[i] = math.Pow(size*p/total, -beta)
		if weights[i] > maxWeight {
			maxWeight = weights[i]
		}
	}
	for i := range weights {
		weights[i] /= maxWeight
	}

	return out, indices, weights, nil
}

// UpdatePriorities recomputes the priority of each sampled transition
// from its reported error as (|error| + epsilon)^alpha and writes it back
// into the tree.
func (b *PrioritizedBuffer) UpdatePriorities(errors []float64, indices []int) error {
	if len(errors) != len(indices) {
		return fmt.Errorf("%w: %d errors vs %d indices", ErrLengthMismatch, len(errors), len(indices))
	}

	priorities := make([]float64, len(errors))
	for i, e := range errors {
		priorities[i] = b.Priority(e)
	}
	return b.tree.Update(indices, priorities)
}

// Priority converts a raw TD error into a sampling priority.
func (b *PrioritizedBuffer) Priority(err float64) float64 {
	return math.Pow(math.Abs(err)+b.epsilon, b.alpha)
}

// MaxPriority returns the largest priority in the buffer, or 1 while the
// buffer is not yet initialized so the first insertions get a neutral
// priority before any error signal exists.
func (b *PrioritizedBuffer) MaxPriority() float64 {
	if !b.Initialized() {
		return 1.0
	}
	return b.tree.Max()
}

// TotalPriority returns the sum of all stored priorities.
func (b *PrioritizedBuffer) TotalPriority() float64 {
	return b.tree.Total()
}

// Size returns the number of stored transitions.
func (b *PrioritizedBuffer) Size() int {
	return b.tree.Size()
}

// MaxSize returns the buffer capacity.
func (b *PrioritizedBuffer) MaxSize() int {
	return b.maxSize
}

// Initialized reports whether enough transitions have been collected for
// learning to start.
func (b *PrioritizedBuffer) Initialized() bool {
	return b.tree.Size() > b.initialSize
}

// Reset clears the buffer and its priority tree.
func (b *PrioritizedBuffer) Reset() {
	tree, _ := NewSumTree[Transition](b.maxSize, b.rng)
	b.tree = tree
}
