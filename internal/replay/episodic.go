package replay

import (
	"fmt"
	"math/rand"
)

// EpisodicOptions tweak episodic buffer behavior.
type EpisodicOptions struct {
	// SequentialUpdates selects whole-episode sampling instead of fixed
	// windows. The mode can be configured but is not implemented;
	// sampling returns ErrSequentialUnsupported when it is set.
	SequentialUpdates bool
}

// EpisodicBuffer stores whole variable-length episodes up to a total
// transition budget, evicting oldest episodes first, and samples
// fixed-length contiguous windows for recurrent training, as in
// "Deep Recurrent Q-Learning for Partially Observable MDPs"
// (Hausknecht et al., 2015).
//
// Incoming transitions may arrive mid-episode: the tail after the final
// episode boundary is carried over and prepended to the next Add call, so
// only complete episodes are ever stored.
type EpisodicBuffer struct {
	initialSize int
	maxSize     int
	unrollSteps int
	opts        EpisodicOptions

	episodes   [][]Transition
	size       int
	unfinished []Transition
	dropped    uint64

	rng *rand.Rand
}

// NewEpisodicBuffer creates an episodic buffer with a budget of maxSize
// transitions across stored episodes. Sampled windows are unrollSteps
// long; that is also the minimum episode length worth storing.
func NewEpisodicBuffer(initialSize, maxSize, unrollSteps int, opts EpisodicOptions, rng *rand.Rand) (*EpisodicBuffer, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", maxSize)
	}
	if initialSize < 0 || initialSize > maxSize {
		return nil, fmt.Errorf("initial size %d out of range [0, %d]", initialSize, maxSize)
	}
	if unrollSteps <= 0 || unrollSteps >= maxSize {
		return nil, fmt.Errorf("unroll steps %d out of range [1, %d)", unrollSteps, maxSize)
	}
	if rng == nil {
		return nil, fmt.Errorf("rng is required")
	}
	return &EpisodicBuffer{
		initialSize: initialSize,
		maxSize:     maxSize,
		unrollSteps: unrollSteps,
		opts:        opts,
		rng:         rng,
	}, nil
}

// Add consumes a stream of transitions, possibly starting mid-episode.
// The carried-over unfinished tail is prepended, the concatenation is
// split into complete episodes at every absorbing transition, and the
// trailing incomplete run becomes the new unfinished tail. Episodes
// shorter than the unroll length or not shorter than the capacity are
// dropped. Returns the number of episodes stored.
func (b *EpisodicBuffer) Add(stream []Transition) int {
	joined := append(append([]Transition{}, b.unfinished...), stream...)
	episodes, tail := splitEpisodes(joined)
	b.unfinished = tail

	added := 0
	for _, ep := range episodes {
		if len(ep) < b.unrollSteps || len(ep) >= b.maxSize {
			b.dropped++
			continue
		}

		b.episodes = append(b.episodes, ep)
		b.size += len(ep)
		for b.size > b.maxSize {
			b.size -= len(b.episodes[0])
			b.episodes = b.episodes[1:]
		}
		added++
	}
	return added
}

// splitEpisodes cuts the stream after every absorbing transition and
// returns the complete episodes plus the incomplete tail.
func splitEpisodes(stream []Transition) ([][]Transition, []Transition) {
	var episodes [][]Transition
	start := 0
	for i, t := range stream {
		if t.Absorbing {
			episodes = append(episodes, stream[start:i+1])
			start = i + 1
		}
	}
	return episodes, stream[start:]
}

// Sample draws batchSize windows of unrollSteps consecutive transitions
// and returns them time-major: fields are indexed by unroll step first,
// then batch position. Episodes are drawn uniformly with replacement;
// each stored episode gets one uniform start offset, shared by every
// batch slot that picked it and advanced together across steps.
func (b *EpisodicBuffer) Sample(batchSize int) (SequenceBatch, error) {
	eps, starts, err := b.draw(batchSize)
	if err != nil {
		return SequenceBatch{}, err
	}

	out := newSequenceBatch(b.unrollSteps)
	for step := 0; step < b.unrollSteps; step++ {
		row := newBatch(batchSize)
		for _, ep := range eps {
			row.append(b.episodes[ep][starts[ep]+step])
		}
		out.append(row)
	}
	return out, nil
}

// SampleBatchFirst draws nSamples windows with the same policy as Sample
// but returns them batch-major: fields are indexed by batch position
// first, then unroll step. Each window gets an independent start offset.
func (b *EpisodicBuffer) SampleBatchFirst(nSamples int) (SequenceBatch, error) {
	if err := b.checkSample(nSamples); err != nil {
		return SequenceBatch{}, err
	}

	out := newSequenceBatch(nSamples)
	for i := 0; i < nSamples; i++ {
		ep := b.rng.Intn(len(b.episodes))
		start := b.rng.Intn(len(b.episodes[ep]) - b.unrollSteps + 1)

		row := newBatch(b.unrollSteps)
		for step := 0; step < b.unrollSteps; step++ {
			row.append(b.episodes[ep][start+step])
		}
		out.append(row)
	}
	return out, nil
}

func (b *EpisodicBuffer) checkSample(batchSize int) error {
	if b.opts.SequentialUpdates {
		return ErrSequentialUnsupported
	}
	if batchSize > b.initialSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, batchSize, b.initialSize)
	}
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if len(b.episodes) == 0 {
		return ErrNoEpisodes
	}
	return nil
}

func (b *EpisodicBuffer) draw(batchSize int) ([]int, []int, error) {
	if err := b.checkSample(batchSize); err != nil {
		return nil, nil, err
	}

	eps := make([]int, batchSize)
	for i := range eps {
		eps[i] = b.rng.Intn(len(b.episodes))
	}
	starts := make([]int, len(b.episodes))
	for i, ep := range b.episodes {
		starts[i] = b.rng.Intn(len(ep) - b.unrollSteps + 1)
	}
	return eps, starts, nil
}

// Size returns the total number of transitions across stored episodes,
// not counting the unfinished tail.
func (b *EpisodicBuffer) Size() int {
	return b.size
}

// MaxSize returns the transition budget.
func (b *EpisodicBuffer) MaxSize() int {
	return b.maxSize
}

// Episodes returns the number of stored complete episodes.
func (b *EpisodicBuffer) Episodes() int {
	return len(b.episodes)
}

// UnrollSteps returns the sampled window length.
func (b *EpisodicBuffer) UnrollSteps() int {
	return b.unrollSteps
}

// Dropped returns how many complete episodes were filtered out for being
// too short or too long.
func (b *EpisodicBuffer) Dropped() uint64 {
	return b.dropped
}

// Initialized reports whether enough transitions have been collected for
// learning to start.
func (b *EpisodicBuffer) Initialized() bool {
	return b.size > b.initialSize
}

// Reset clears stored episodes, the unfinished tail and counters.
func (b *EpisodicBuffer) Reset() {
	b.episodes = nil
	b.size = 0
	b.unfinished = nil
	b.dropped = 0
}
