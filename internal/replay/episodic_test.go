package replay

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEpisodic(t *testing.T, initialSize, maxSize, unrollSteps int, seed int64) *EpisodicBuffer {
	t.Helper()
	b, err := NewEpisodicBuffer(initialSize, maxSize, unrollSteps, EpisodicOptions{}, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return b
}

// episodeStream builds a stream of n transitions with rewards from..from+n-1
// where the listed positions (0-indexed) are absorbing.
func episodeStream(from float64, n int, boundaries ...int) []Transition {
	isBoundary := map[int]bool{}
	for _, i := range boundaries {
		isBoundary[i] = true
	}
	out := make([]Transition, n)
	for i := range out {
		out[i] = tr(from + float64(i))
		out[i].Absorbing = isBoundary[i]
		out[i].Last = isBoundary[i]
	}
	return out
}

func TestEpisodicBuffer_SplitsStreamAtBoundaries(t *testing.T) {
	b := newEpisodic(t, 5, 100, 2, 1)

	// 7 steps with boundaries at positions 2 and 5: two episodes of
	// length 3 plus one leftover unfinished transition.
	added := b.Add(episodeStream(0, 7, 2, 5))

	assert.Equal(t, 2, added)
	assert.Equal(t, 2, b.Episodes())
	assert.Equal(t, 6, b.Size())
	assert.Len(t, b.unfinished, 1)
	assert.Equal(t, 6.0, b.unfinished[0].Reward)
}

func TestEpisodicBuffer_CarriesUnfinishedAcrossAdds(t *testing.T) {
	b := newEpisodic(t, 5, 100, 2, 1)

	// First call ends mid-episode; second call completes it.
	added := b.Add(episodeStream(0, 5, 2))
	assert.Equal(t, 1, added)
	assert.Len(t, b.unfinished, 2)

	added = b.Add(episodeStream(5, 2, 1))
	assert.Equal(t, 1, added)
	assert.Equal(t, 2, b.Episodes())
	assert.Empty(t, b.unfinished)

	// The assembled episode spans both calls: rewards 3..6.
	second := b.episodes[1]
	require.Len(t, second, 4)
	assert.Equal(t, 3.0, second[0].Reward)
	assert.Equal(t, 6.0, second[3].Reward)
	assert.True(t, second[3].Absorbing)
}

func TestEpisodicBuffer_DropsShortAndLongEpisodes(t *testing.T) {
	b := newEpisodic(t, 2, 8, 3, 1)

	// Length 2 < unroll 3: dropped.
	added := b.Add(episodeStream(0, 2, 1))
	assert.Equal(t, 0, added)
	assert.EqualValues(t, 1, b.Dropped())

	// Length 8 >= max size 8: dropped.
	added = b.Add(episodeStream(0, 8, 7))
	assert.Equal(t, 0, added)
	assert.EqualValues(t, 2, b.Dropped())

	assert.Equal(t, 0, b.Size())
}

func TestEpisodicBuffer_EvictsWholeEpisodesOnly(t *testing.T) {
	b := newEpisodic(t, 2, 10, 2, 1)

	// Three length-4 episodes against a 10-transition budget: the
	// oldest must go in one piece.
	for i := 0; i < 3; i++ {
		added := b.Add(episodeStream(float64(10*i), 4, 3))
		assert.Equal(t, 1, added)
	}

	assert.Equal(t, 2, b.Episodes())
	assert.Equal(t, 8, b.Size())
	assert.LessOrEqual(t, b.Size(), b.MaxSize())
	assert.Equal(t, 10.0, b.episodes[0][0].Reward)
	assert.Equal(t, 20.0, b.episodes[1][0].Reward)
}

func TestEpisodicBuffer_SampleTimeMajorShape(t *testing.T) {
	b := newEpisodic(t, 8, 100, 3, 21)

	b.Add(episodeStream(0, 10, 9))
	b.Add(episodeStream(100, 6, 5))

	out, err := b.Sample(4)
	require.NoError(t, err)

	// Time-major: [unroll][batch].
	require.Len(t, out.Rewards, 3)
	for step := 0; step < 3; step++ {
		assert.Len(t, out.Rewards[step], 4)
		assert.Len(t, out.States[step], 4)
		assert.Len(t, out.Absorbing[step], 4)
	}

	// Windows are contiguous and advance together: each batch slot's
	// reward increases by exactly one per step.
	for slot := 0; slot < 4; slot++ {
		base := out.Rewards[0][slot]
		for step := 1; step < 3; step++ {
			assert.Equal(t, base+float64(step), out.Rewards[step][slot])
		}
	}
}

func TestEpisodicBuffer_SampleBatchFirstShape(t *testing.T) {
	b := newEpisodic(t, 8, 100, 3, 21)

	b.Add(episodeStream(0, 10, 9))

	out, err := b.SampleBatchFirst(5)
	require.NoError(t, err)

	// Batch-major: [batch][unroll].
	require.Len(t, out.Rewards, 5)
	for i := 0; i < 5; i++ {
		require.Len(t, out.Rewards[i], 3)
		base := out.Rewards[i][0]
		for step := 1; step < 3; step++ {
			assert.Equal(t, base+float64(step), out.Rewards[i][step])
		}
	}
}

func TestEpisodicBuffer_SamplePreconditions(t *testing.T) {
	b := newEpisodic(t, 4, 100, 2, 1)

	_, err := b.Sample(2)
	assert.ErrorIs(t, err, ErrNoEpisodes)

	b.Add(episodeStream(0, 5, 4))

	_, err = b.Sample(5)
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = b.SampleBatchFirst(5)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestEpisodicBuffer_SequentialUpdatesUnsupported(t *testing.T) {
	b, err := NewEpisodicBuffer(4, 100, 2, EpisodicOptions{SequentialUpdates: true}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	b.Add(episodeStream(0, 5, 4))

	_, err = b.Sample(2)
	assert.ErrorIs(t, err, ErrSequentialUnsupported)
}

func TestEpisodicBuffer_Initialized(t *testing.T) {
	b := newEpisodic(t, 4, 100, 2, 1)

	b.Add(episodeStream(0, 4, 3))
	assert.False(t, b.Initialized())

	b.Add(episodeStream(10, 3, 2))
	assert.True(t, b.Initialized())
}

func TestEpisodicBuffer_Deterministic(t *testing.T) {
	build := func() *EpisodicBuffer {
		b := newEpisodic(t, 8, 100, 3, 77)
		b.Add(episodeStream(0, 10, 9))
		b.Add(episodeStream(50, 8, 7))
		return b
	}

	s1, err := build().Sample(4)
	require.NoError(t, err)
	s2, err := build().Sample(4)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestEpisodicBuffer_Reset(t *testing.T) {
	b := newEpisodic(t, 2, 100, 2, 1)

	b.Add(episodeStream(0, 7, 2, 5))
	require.NotZero(t, b.Size())

	b.Reset()
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, 0, b.Episodes())
	assert.Empty(t, b.unfinished)
	assert.Zero(t, b.Dropped())
}
