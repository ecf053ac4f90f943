// Package service manages named replay buffer instances and exposes the
// operations the HTTP layer wires up. The engines themselves are
// single-writer structures; this layer supplies the mutual exclusion
// they require.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mosaicrl/replay/internal/metrics"
	"github.com/mosaicrl/replay/internal/replay"
	"github.com/mosaicrl/replay/internal/storage"
)

var (
	// ErrNotFound indicates the requested buffer does not exist.
	ErrNotFound = errors.New("buffer not found")
	// ErrInvalidSpec indicates a malformed buffer specification.
	ErrInvalidSpec = errors.New("invalid buffer spec")
	// ErrKindMismatch indicates an operation the buffer kind does not
	// support.
	ErrKindMismatch = errors.New("operation not supported by buffer kind")
)

// Kind selects a buffer engine.
type Kind string

const (
	KindUniform     Kind = "uniform"
	KindPrioritized Kind = "prioritized"
	KindEpisodic    Kind = "episodic"
)

// BetaSpec configures the importance-sampling exponent. Steps == 0 keeps
// beta constant at Start; otherwise beta anneals linearly to End.
type BetaSpec struct {
	Start float64 `json:"start"`
	End   float64 `json:"end,omitempty"`
	Steps int     `json:"steps,omitempty"`
}

func (b BetaSpec) schedule() replay.Schedule {
	if b.Steps <= 0 {
		return replay.Constant(b.Start)
	}
	return &replay.Linear{Start: b.Start, End: b.End, Steps: b.Steps}
}

// BufferSpec describes a buffer to create.
type BufferSpec struct {
	Kind        Kind `json:"kind"`
	InitialSize int  `json:"initial_size"`
	MaxSize     int  `json:"max_size"`

	// Prioritized only
	Alpha   float64   `json:"alpha,omitempty"`
	Epsilon float64   `json:"epsilon,omitempty"`
	Beta    *BetaSpec `json:"beta,omitempty"`

	// Episodic only
	UnrollSteps       int  `json:"unroll_steps,omitempty"`
	SequentialUpdates bool `json:"sequential_updates,omitempty"`
}

// Info summarizes a buffer's state for callers.
type Info struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Size          int       `json:"size"`
	MaxSize       int       `json:"max_size"`
	Initialized   bool      `json:"initialized"`
	TotalPriority float64   `json:"total_priority,omitempty"`
	MaxPriority   float64   `json:"max_priority,omitempty"`
	Episodes      int       `json:"episodes,omitempty"`
	UnrollSteps   int       `json:"unroll_steps,omitempty"`
	Dropped       uint64    `json:"dropped,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AppendResult reports the outcome of an append.
type AppendResult struct {
	Received      int `json:"received"`
	Size          int `json:"size"`
	EpisodesAdded int `json:"episodes_added,omitempty"`
}

// SampleResult carries a sampled batch. Batch is set for uniform and
// prioritized buffers (with Indices and Weights on the latter); Sequence
// is set for episodic buffers.
type SampleResult struct {
	Batch      *replay.Batch         `json:"batch,omitempty"`
	Sequence   *replay.SequenceBatch `json:"sequence,omitempty"`
	Indices    []int                 `json:"indices,omitempty"`
	Weights    []float64             `json:"weights,omitempty"`
	BatchFirst bool                  `json:"batch_first,omitempty"`
}

type buffer struct {
	mu        sync.Mutex
	id        string
	spec      BufferSpec
	createdAt time.Time

	uniform     *replay.CircularBuffer
	prioritized *replay.PrioritizedBuffer
	episodic    *replay.EpisodicBuffer

	reportedDrops uint64
}

// Service owns the buffer registry and snapshot persistence.
type Service struct {
	mu      sync.RWMutex
	buffers map[string]*buffer

	store   storage.SnapshotStore
	metrics *metrics.Collector
	logger  zerolog.Logger

	seedMu   sync.Mutex
	baseSeed int64
	nextSeed int64
}

// New constructs a Service. Buffer rngs are derived deterministically
// from seed in creation order, so two services with the same seed and
// the same call sequence sample identically.
func New(store storage.SnapshotStore, logger zerolog.Logger, seed int64) *Service {
	return &Service{
		buffers:  make(map[string]*buffer),
		store:    store,
		metrics:  metrics.NewCollector(logger),
		logger:   logger.With().Str("component", "replay_service").Logger(),
		baseSeed: seed,
	}
}

func (s *Service) rng() *rand.Rand {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	seed := s.baseSeed + s.nextSeed
	s.nextSeed++
	return rand.New(rand.NewSource(seed))
}

// CreateBuffer builds a buffer from the spec and registers it under a
// fresh ID.
func (s *Service) CreateBuffer(ctx context.Context, spec BufferSpec) (Info, error) {
	b, err := s.build(spec)
	if err != nil {
		return Info{}, err
	}

	s.mu.Lock()
	s.buffers[b.id] = b
	s.mu.Unlock()

	s.metrics.BufferCreated(b.id, string(spec.Kind), spec.MaxSize)
	return b.info(), nil
}

func (s *Service) build(spec BufferSpec) (*buffer, error) {
	b := &buffer{
		id:        uuid.New().String(),
		spec:      spec,
		createdAt: time.Now().UTC(),
	}

	var err error
	switch spec.Kind {
	case KindUniform:
		b.uniform, err = replay.NewCircularBuffer(spec.InitialSize, spec.MaxSize, s.rng())
	case KindPrioritized:
		if spec.Beta == nil {
			return nil, fmt.Errorf("%w: prioritized buffer requires beta", ErrInvalidSpec)
		}
		b.prioritized, err = replay.NewPrioritizedBuffer(spec.InitialSize, spec.MaxSize,
			spec.Alpha, spec.Beta.schedule(), spec.Epsilon, s.rng())
	case KindEpisodic:
		opts := replay.EpisodicOptions{SequentialUpdates: spec.SequentialUpdates}
		b.episodic, err = replay.NewEpisodicBuffer(spec.InitialSize, spec.MaxSize,
			spec.UnrollSteps, opts, s.rng())
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, spec.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return b, nil
}

func (s *Service) get(id string) (*buffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

// Append inserts transitions into the buffer. For prioritized buffers a
// missing priorities slice applies the max-priority policy: fresh
// transitions enter at the buffer's current maximum so they are sampled
// at least once before their first error report.
func (s *Service) Append(ctx context.Context, id string, transitions []replay.Transition, priorities []float64) (AppendResult, error) {
	b, err := s.get(id)
	if err != nil {
		return AppendResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	result := AppendResult{Received: len(transitions)}
	switch {
	case b.uniform != nil:
		if priorities != nil {
			return AppendResult{}, fmt.Errorf("%w: uniform buffers take no priorities", ErrKindMismatch)
		}
		b.uniform.Add(transitions)
		result.Size = b.uniform.Size()
	case b.prioritized != nil:
		if priorities == nil {
			priorities = make([]float64, len(transitions))
			max := b.prioritized.MaxPriority()
			for i := range priorities {
				priorities[i] = max
			}
		}
		if err := b.prioritized.Add(transitions, priorities); err != nil {
			return AppendResult{}, err
		}
		result.Size = b.prioritized.Size()
	case b.episodic != nil:
		if priorities != nil {
			return AppendResult{}, fmt.Errorf("%w: episodic buffers take no priorities", ErrKindMismatch)
		}
		result.EpisodesAdded = b.episodic.Add(transitions)
		result.Size = b.episodic.Size()
		if dropped := b.episodic.Dropped(); dropped > b.reportedDrops {
			b.reportedDrops = dropped
			s.metrics.EpisodesDropped(b.id, dropped)
		}
	}

	s.metrics.BatchAppended(b.id, len(transitions), result.Size)
	return result, nil
}

// Sample draws a batch from the buffer. batchFirst selects batch-major
// window layout and only applies to episodic buffers.
func (s *Service) Sample(ctx context.Context, id string, batchSize int, batchFirst bool) (SampleResult, error) {
	b, err := s.get(id)
	if err != nil {
		return SampleResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var result SampleResult
	switch {
	case b.uniform != nil:
		batch, err := b.uniform.Sample(batchSize)
		if err != nil {
			return SampleResult{}, err
		}
		result.Batch = &batch
	case b.prioritized != nil:
		batch, indices, weights, err := b.prioritized.Sample(batchSize)
		if err != nil {
			return SampleResult{}, err
		}
		result.Batch = &batch
		result.Indices = indices
		result.Weights = weights
	case b.episodic != nil:
		var seq replay.SequenceBatch
		if batchFirst {
			seq, err = b.episodic.SampleBatchFirst(batchSize)
		} else {
			seq, err = b.episodic.Sample(batchSize)
		}
		if err != nil {
			return SampleResult{}, err
		}
		result.Sequence = &seq
		result.BatchFirst = batchFirst
	}

	s.metrics.BatchSampled(b.id, batchSize)
	return result, nil
}

// UpdatePriorities reports TD errors back for transitions sampled from a
// prioritized buffer.
func (s *Service) UpdatePriorities(ctx context.Context, id string, errs []float64, indices []int) error {
	b, err := s.get(id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.prioritized == nil {
		return fmt.Errorf("%w: priority updates require a prioritized buffer", ErrKindMismatch)
	}
	if err := b.prioritized.UpdatePriorities(errs, indices); err != nil {
		return err
	}

	s.metrics.PrioritiesUpdated(b.id, len(indices))
	return nil
}

// Stats returns the buffer's current state.
func (s *Service) Stats(ctx context.Context, id string) (Info, error) {
	b, err := s.get(id)
	if err != nil {
		return Info{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info(), nil
}

// Reset clears the buffer to its empty state.
func (s *Service) Reset(ctx context.Context, id string) (Info, error) {
	b, err := s.get(id)
	if err != nil {
		return Info{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.uniform != nil:
		b.uniform.Reset()
	case b.prioritized != nil:
		b.prioritized.Reset()
	case b.episodic != nil:
		b.episodic.Reset()
		b.reportedDrops = 0
	}
	return b.info(), nil
}

func (b *buffer) info() Info {
	info := Info{
		ID:        b.id,
		Kind:      b.spec.Kind,
		CreatedAt: b.createdAt,
	}
	switch {
	case b.uniform != nil:
		info.Size = b.uniform.Size()
		info.MaxSize = b.uniform.MaxSize()
		info.Initialized = b.uniform.Initialized()
	case b.prioritized != nil:
		info.Size = b.prioritized.Size()
		info.MaxSize = b.prioritized.MaxSize()
		info.Initialized = b.prioritized.Initialized()
		info.TotalPriority = b.prioritized.TotalPriority()
		info.MaxPriority = b.prioritized.MaxPriority()
	case b.episodic != nil:
		info.Size = b.episodic.Size()
		info.MaxSize = b.episodic.MaxSize()
		info.Initialized = b.episodic.Initialized()
		info.Episodes = b.episodic.Episodes()
		info.UnrollSteps = b.episodic.UnrollSteps()
		info.Dropped = b.episodic.Dropped()
	}
	return info
}

// snapshotPayload is the document persisted per snapshot: the original
// spec plus the kind-specific engine state.
type snapshotPayload struct {
	Spec        BufferSpec                  `json:"spec"`
	Uniform     *replay.CircularSnapshot    `json:"uniform,omitempty"`
	Prioritized *replay.PrioritizedSnapshot `json:"prioritized,omitempty"`
	Episodic    *replay.EpisodicSnapshot    `json:"episodic,omitempty"`
}

// Snapshot persists the buffer's full state and returns the snapshot ID.
func (s *Service) Snapshot(ctx context.Context, id string) (string, error) {
	b, err := s.get(id)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	payload := snapshotPayload{Spec: b.spec}
	switch {
	case b.uniform != nil:
		snap := b.uniform.Snapshot()
		payload.Uniform = &snap
	case b.prioritized != nil:
		snap := b.prioritized.Snapshot()
		payload.Prioritized = &snap
	case b.episodic != nil:
		snap := b.episodic.Snapshot()
		payload.Episodic = &snap
	}
	b.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot for buffer %s: %w", id, err)
	}

	record := storage.Record{
		ID:        uuid.New().String(),
		BufferID:  id,
		Kind:      string(b.spec.Kind),
		CreatedAt: time.Now().UTC(),
		Payload:   data,
	}
	if err := s.store.Save(ctx, record); err != nil {
		return "", fmt.Errorf("saving snapshot for buffer %s: %w", id, err)
	}

	s.metrics.SnapshotSaved(id, record.ID)
	return record.ID, nil
}

// Restore loads a snapshot and registers the rebuilt buffer under a new
// ID.
func (s *Service) Restore(ctx context.Context, snapshotID string) (Info, error) {
	record, err := s.store.Load(ctx, snapshotID)
	if err != nil {
		return Info{}, err
	}

	var payload snapshotPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return Info{}, fmt.Errorf("decoding snapshot %s: %w", snapshotID, err)
	}

	b := &buffer{
		id:        uuid.New().String(),
		spec:      payload.Spec,
		createdAt: time.Now().UTC(),
	}
	switch {
	case payload.Uniform != nil:
		b.uniform, err = replay.RestoreCircular(*payload.Uniform, s.rng())
	case payload.Prioritized != nil:
		if payload.Spec.Beta == nil {
			return Info{}, fmt.Errorf("snapshot %s: prioritized spec missing beta", snapshotID)
		}
		b.prioritized, err = replay.RestorePrioritized(*payload.Prioritized,
			payload.Spec.Beta.schedule(), s.rng())
	case payload.Episodic != nil:
		b.episodic, err = replay.RestoreEpisodic(*payload.Episodic, s.rng())
		if b.episodic != nil {
			b.reportedDrops = b.episodic.Dropped()
		}
	default:
		return Info{}, fmt.Errorf("snapshot %s has no buffer state", snapshotID)
	}
	if err != nil {
		return Info{}, fmt.Errorf("restoring snapshot %s: %w", snapshotID, err)
	}

	s.mu.Lock()
	s.buffers[b.id] = b
	s.mu.Unlock()

	s.metrics.SnapshotRestored(snapshotID, b.id)
	return b.info(), nil
}
