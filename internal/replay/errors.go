package replay

import "errors"

var (
	// ErrEmptyBuffer is returned when sampling from a buffer with no
	// stored transitions.
	ErrEmptyBuffer = errors.New("replay buffer is empty")
	// ErrNotInitialized is returned when a prioritized buffer holds no
	// priority mass to sample from.
	ErrNotInitialized = errors.New("replay buffer not initialized")
	// ErrValueOutOfRange is returned when a weighted lookup value falls
	// outside [0, total priority).
	ErrValueOutOfRange = errors.New("cumulative value out of range")
	// ErrLengthMismatch is returned when parallel argument slices differ
	// in length.
	ErrLengthMismatch = errors.New("mismatched argument lengths")
	// ErrNoEpisodes is returned when sampling an episodic buffer that
	// holds no complete episodes.
	ErrNoEpisodes = errors.New("no stored episodes")
	// ErrBatchTooLarge is returned when an episodic sample request
	// exceeds the buffer's initial-size threshold.
	ErrBatchTooLarge = errors.New("batch size exceeds initial size")
	// ErrSequentialUnsupported is returned when whole-episode sampling
	// is requested; only windowed sampling is implemented.
	ErrSequentialUnsupported = errors.New("sequential updates not supported")
)
