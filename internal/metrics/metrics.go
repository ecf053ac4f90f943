package metrics

import (
	"github.com/rs/zerolog"
)

// Collector emits operational metrics for buffer operations as
// structured log events.
type Collector struct {
	logger zerolog.Logger
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// Track buffer lifecycle
func (c *Collector) BufferCreated(bufferID, kind string, maxSize int) {
	c.logger.Info().
		Str("metric", "buffer_created").
		Str("buffer_id", bufferID).
		Str("kind", kind).
		Int("max_size", maxSize).
		Msg("Buffer created")
}

// Track insertion throughput
func (c *Collector) BatchAppended(bufferID string, count, size int) {
	c.logger.Debug().
		Str("metric", "batch_appended").
		Str("buffer_id", bufferID).
		Int("count", count).
		Int("size", size).
		Msg("Batch appended")
}

// Track sampling activity
func (c *Collector) BatchSampled(bufferID string, batchSize int) {
	c.logger.Debug().
		Str("metric", "batch_sampled").
		Str("buffer_id", bufferID).
		Int("batch_size", batchSize).
		Msg("Batch sampled")
}

// Track priority feedback from the training loop
func (c *Collector) PrioritiesUpdated(bufferID string, count int) {
	c.logger.Debug().
		Str("metric", "priorities_updated").
		Str("buffer_id", bufferID).
		Int("count", count).
		Msg("Priorities updated")
}

// Track silently filtered episodes; a rising value usually means the
// unroll length does not fit the environment's episode lengths.
func (c *Collector) EpisodesDropped(bufferID string, dropped uint64) {
	c.logger.Warn().
		Str("metric", "episodes_dropped").
		Str("buffer_id", bufferID).
		Uint64("dropped_total", dropped).
		Msg("Episodes dropped by length filter")
}

// Track snapshot activity
func (c *Collector) SnapshotSaved(bufferID, snapshotID string) {
	c.logger.Info().
		Str("metric", "snapshot_saved").
		Str("buffer_id", bufferID).
		Str("snapshot_id", snapshotID).
		Msg("Snapshot saved")
}

func (c *Collector) SnapshotRestored(snapshotID, bufferID string) {
	c.logger.Info().
		Str("metric", "snapshot_restored").
		Str("snapshot_id", snapshotID).
		Str("buffer_id", bufferID).
		Msg("Snapshot restored")
}
