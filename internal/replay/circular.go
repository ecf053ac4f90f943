package replay

import (
	"fmt"
	"math/rand"
)

// CircularBuffer is a fixed-capacity ring buffer of transitions stored as
// six parallel arrays sharing one write cursor. Once full, the oldest
// entry is silently overwritten.
type CircularBuffer struct {
	initialSize int
	maxSize     int

	idx  int
	full bool

	states     [][]float64
	actions    [][]float64
	rewards    []float64
	nextStates [][]float64
	absorbing  []bool
	last       []bool

	rng *rand.Rand
}

// NewCircularBuffer creates a buffer holding at most maxSize transitions.
// The buffer reports Initialized once it holds more than initialSize
// transitions. The rng drives uniform sampling and must be seeded by the
// caller for reproducible draws.
func NewCircularBuffer(initialSize, maxSize int, rng *rand.Rand) (*CircularBuffer, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", maxSize)
	}
	if initialSize < 0 || initialSize > maxSize {
		return nil, fmt.Errorf("initial size %d out of range [0, %d]", initialSize, maxSize)
	}
	if rng == nil {
		return nil, fmt.Errorf("rng is required")
	}

	b := &CircularBuffer{
		initialSize: initialSize,
		maxSize:     maxSize,
		rng:         rng,
	}
	b.Reset()
	return b, nil
}

// Add appends the transitions at the write cursor, wrapping and
// overwriting the oldest entries once the buffer is full.
func (b *CircularBuffer) Add(batch []Transition) {
	for _, t := range batch {
		b.states[b.idx] = t.State
		b.actions[b.idx] = t.Action
		b.rewards[b.idx] = t.Reward
		b.nextStates[b.idx] = t.NextState
		b.absorbing[b.idx] = t.Absorbing
		b.last[b.idx] = t.Last

		b.idx++
		if b.idx == b.maxSize {
			b.full = true
			b.idx = 0
		}
	}
}

// Sample draws n transitions uniformly with replacement. Sampling from an
// empty buffer returns ErrEmptyBuffer.
func (b *CircularBuffer) Sample(n int) (Batch, error) {
	size := b.Size()
	if size == 0 {
		return Batch{}, ErrEmptyBuffer
	}

	out := newBatch(n)
	for i := 0; i < n; i++ {
		j := b.rng.Intn(size)
		out.append(Transition{
			State:     b.states[j],
			Action:    b.actions[j],
			Reward:    b.rewards[j],
			NextState: b.nextStates[j],
			Absorbing: b.absorbing[j],
			Last:      b.last[j],
		})
	}
	return out, nil
}

// Size returns the number of stored transitions.
func (b *CircularBuffer) Size() int {
	if b.full {
		return b.maxSize
	}
	return b.idx
}

// MaxSize returns the buffer capacity.
func (b *CircularBuffer) MaxSize() int {
	return b.maxSize
}

// Initialized reports whether enough transitions have been collected for
// learning to start.
func (b *CircularBuffer) Initialized() bool {
	return b.Size() > b.initialSize
}

// Reset clears all stored transitions and rewinds the cursor.
func (b *CircularBuffer) Reset() {
	b.idx = 0
	b.full = false
	b.states = make([][]float64, b.maxSize)
	b.actions = make([][]float64, b.maxSize)
	b.rewards = make([]float64, b.maxSize)
	b.nextStates = make([][]float64, b.maxSize)
	b.absorbing = make([]bool, b.maxSize)
	b.last = make([]bool, b.maxSize)
}
