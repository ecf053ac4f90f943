package replay

import (
	"fmt"
	"math/rand"
)

// Snapshots capture the full internal state of a buffer for
// checkpoint/resume. They are plain JSON-serializable structs; restoring
// one with the same seed reproduces the original sampling behavior.

// CircularSnapshot is the persisted state of a CircularBuffer.
type CircularSnapshot struct {
	InitialSize int         `json:"initial_size"`
	MaxSize     int         `json:"max_size"`
	Idx         int         `json:"idx"`
	Full        bool        `json:"full"`
	States      [][]float64 `json:"states,omitempty"`
	Actions     [][]float64 `json:"actions,omitempty"`
	Rewards     []float64   `json:"rewards,omitempty"`
	NextStates  [][]float64 `json:"next_states,omitempty"`
	Absorbing   []bool      `json:"absorbing,omitempty"`
	Last        []bool      `json:"last,omitempty"`
}

// Snapshot captures the buffer state.
func (b *CircularBuffer) Snapshot() CircularSnapshot {
	return CircularSnapshot{
		InitialSize: b.initialSize,
		MaxSize:     b.maxSize,
		Idx:         b.idx,
		Full:        b.full,
		States:      b.states,
		Actions:     b.actions,
		Rewards:     b.rewards,
		NextStates:  b.nextStates,
		Absorbing:   b.absorbing,
		Last:        b.last,
	}
}

// RestoreCircular rebuilds a CircularBuffer from a snapshot. A snapshot
// without array contents restores to an empty buffer of the same shape.
func RestoreCircular(snap CircularSnapshot, rng *rand.Rand) (*CircularBuffer, error) {
	b, err := NewCircularBuffer(snap.InitialSize, snap.MaxSize, rng)
	if err != nil {
		return nil, err
	}
	if snap.States == nil {
		return b, nil
	}
	if len(snap.States) != snap.MaxSize || len(snap.Rewards) != snap.MaxSize ||
		len(snap.Actions) != snap.MaxSize || len(snap.NextStates) != snap.MaxSize ||
		len(snap.Absorbing) != snap.MaxSize || len(snap.Last) != snap.MaxSize {
		return nil, fmt.Errorf("snapshot arrays do not match max size %d", snap.MaxSize)
	}
	if snap.Idx < 0 || snap.Idx >= snap.MaxSize {
		return nil, fmt.Errorf("snapshot cursor %d out of range [0, %d)", snap.Idx, snap.MaxSize)
	}

	b.idx = snap.Idx
	b.full = snap.Full
	b.states = snap.States
	b.actions = snap.Actions
	b.rewards = snap.Rewards
	b.nextStates = snap.NextStates
	b.absorbing = snap.Absorbing
	b.last = snap.Last
	return b, nil
}

// SumTreeSnapshot is the persisted state of a SumTree.
type SumTreeSnapshot[T any] struct {
	MaxSize int       `json:"max_size"`
	Idx     int       `json:"idx"`
	Full    bool      `json:"full"`
	Nodes   []float64 `json:"nodes"`
	Data    []T       `json:"data"`
}

// Snapshot captures the tree state.
func (t *SumTree[T]) Snapshot() SumTreeSnapshot[T] {
	return SumTreeSnapshot[T]{
		MaxSize: t.maxSize,
		Idx:     t.idx,
		Full:    t.full,
		Nodes:   t.nodes,
		Data:    t.data,
	}
}

// RestoreSumTree rebuilds a SumTree from a snapshot.
func RestoreSumTree[T any](snap SumTreeSnapshot[T], rng *rand.Rand) (*SumTree[T], error) {
	t, err := NewSumTree[T](snap.MaxSize, rng)
	if err != nil {
		return nil, err
	}
	if len(snap.Nodes) != 2*snap.MaxSize-1 || len(snap.Data) != snap.MaxSize {
		return nil, fmt.Errorf("snapshot arrays do not match max size %d", snap.MaxSize)
	}
	if snap.Idx < 0 || snap.Idx >= snap.MaxSize {
		return nil, fmt.Errorf("snapshot cursor %d out of range [0, %d)", snap.Idx, snap.MaxSize)
	}

	t.idx = snap.Idx
	t.full = snap.Full
	t.nodes = snap.Nodes
	t.data = snap.Data
	return t, nil
}

// PrioritizedSnapshot is the persisted state of a PrioritizedBuffer. The
// beta schedule is supplied again on restore; it is configuration, not
// buffer state.
type PrioritizedSnapshot struct {
	InitialSize int                          `json:"initial_size"`
	MaxSize     int                          `json:"max_size"`
	Alpha       float64                      `json:"alpha"`
	Epsilon     float64                      `json:"epsilon"`
	Tree        *SumTreeSnapshot[Transition] `json:"tree,omitempty"`
}

// Snapshot captures the buffer state, including the full tree.
func (b *PrioritizedBuffer) Snapshot() PrioritizedSnapshot {
	tree := b.tree.Snapshot()
	return PrioritizedSnapshot{
		InitialSize: b.initialSize,
		MaxSize:     b.maxSize,
		Alpha:       b.alpha,
		Epsilon:     b.epsilon,
		Tree:        &tree,
	}
}

// RestorePrioritized rebuilds a PrioritizedBuffer from a snapshot. A
// snapshot without tree contents lazily reconstructs an empty tree.
func RestorePrioritized(snap PrioritizedSnapshot, beta Schedule, rng *rand.Rand) (*PrioritizedBuffer, error) {
	b, err := NewPrioritizedBuffer(snap.InitialSize, snap.MaxSize, snap.Alpha, beta, snap.Epsilon, rng)
	if err != nil {
		return nil, err
	}
	if snap.Tree == nil {
		return b, nil
	}
	if snap.Tree.MaxSize != snap.MaxSize {
		return nil, fmt.Errorf("tree capacity %d does not match buffer capacity %d", snap.Tree.MaxSize, snap.MaxSize)
	}

	tree, err := RestoreSumTree(*snap.Tree, rng)
	if err != nil {
		return nil, err
	}
	b.tree = tree
	return b, nil
}

// EpisodicSnapshot is the persisted state of an EpisodicBuffer.
type EpisodicSnapshot struct {
	InitialSize       int            `json:"initial_size"`
	MaxSize           int            `json:"max_size"`
	UnrollSteps       int            `json:"unroll_steps"`
	SequentialUpdates bool           `json:"sequential_updates,omitempty"`
	Episodes          [][]Transition `json:"episodes,omitempty"`
	Unfinished        []Transition   `json:"unfinished,omitempty"`
	Dropped           uint64         `json:"dropped,omitempty"`
}

// Snapshot captures the buffer state, including the unfinished tail.
func (b *EpisodicBuffer) Snapshot() EpisodicSnapshot {
	return EpisodicSnapshot{
		InitialSize:       b.initialSize,
		MaxSize:           b.maxSize,
		UnrollSteps:       b.unrollSteps,
		SequentialUpdates: b.opts.SequentialUpdates,
		Episodes:          b.episodes,
		Unfinished:        b.unfinished,
		Dropped:           b.dropped,
	}
}

// RestoreEpisodic rebuilds an EpisodicBuffer from a snapshot. The total
// size is recomputed from the stored episodes.
func RestoreEpisodic(snap EpisodicSnapshot, rng *rand.Rand) (*EpisodicBuffer, error) {
	opts := EpisodicOptions{SequentialUpdates: snap.SequentialUpdates}
	b, err := NewEpisodicBuffer(snap.InitialSize, snap.MaxSize, snap.UnrollSteps, opts, rng)
	if err != nil {
		return nil, err
	}

	size := 0
	for _, ep := range snap.Episodes {
		if len(ep) < snap.UnrollSteps || len(ep) >= snap.MaxSize {
			return nil, fmt.Errorf("snapshot episode length %d out of range [%d, %d)", len(ep), snap.UnrollSteps, snap.MaxSize)
		}
		size += len(ep)
	}
	if size > snap.MaxSize {
		return nil, fmt.Errorf("snapshot size %d exceeds max size %d", size, snap.MaxSize)
	}

	b.episodes = snap.Episodes
	b.size = size
	b.unfinished = snap.Unfinished
	b.dropped = snap.Dropped
	return b, nil
}
