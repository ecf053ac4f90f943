package replay

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumTree_RootEqualsLeafSum(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tree, err := NewSumTree[int](8, rng)
	require.NoError(t, err)

	// Random inserts and updates; the root must always equal the exact
	// sum of the populated leaves.
	for step := 0; step < 200; step++ {
		if rng.Intn(2) == 0 || tree.Size() == 0 {
			p := rng.Float64() * 10
			require.NoError(t, tree.Add([]int{step}, []float64{p}))
		} else {
			leaf := tree.maxSize - 1 + rng.Intn(tree.Size())
			require.NoError(t, tree.Update([]int{leaf}, []float64{rng.Float64() * 10}))
		}

		sum := 0.0
		for i := 0; i < tree.maxSize; i++ {
			sum += tree.nodes[tree.maxSize-1+i]
		}
		assert.InDelta(t, sum, tree.Total(), 1e-9)
	}
}

func TestSumTree_SingleNonZeroLeaf(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	tree, err := NewSumTree[string](4, rng)
	require.NoError(t, err)

	require.NoError(t, tree.Add([]string{"a", "b", "c", "d"}, []float64{10, 0, 0, 0}))

	for _, s := range []float64{0, 0.5, 3.3, 9.999} {
		leaf, p, item, err := tree.Get(s)
		require.NoError(t, err)
		assert.Equal(t, tree.maxSize-1, leaf)
		assert.Equal(t, 10.0, p)
		assert.Equal(t, "a", item)
	}
}

func TestSumTree_GetOutOfRange(t *testing.T) {
	tree, err := NewSumTree[int](4, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, tree.Add([]int{1, 2}, []float64{1, 2}))

	_, _, _, err = tree.Get(-0.1)
	assert.ErrorIs(t, err, ErrValueOutOfRange)

	_, _, _, err = tree.Get(tree.Total())
	assert.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestSumTree_UpdatePropagatesDelta(t *testing.T) {
	tree, err := NewSumTree[int](4, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, tree.Add([]int{1, 2, 3, 4}, []float64{1, 2, 3, 4}))
	require.InDelta(t, 10, tree.Total(), 1e-12)

	leaf := tree.maxSize - 1 + 1
	require.NoError(t, tree.Update([]int{leaf}, []float64{7}))
	assert.InDelta(t, 15, tree.Total(), 1e-12)
	assert.Equal(t, 7.0, tree.nodes[leaf])
}

func TestSumTree_MaxOverPopulatedLeaves(t *testing.T) {
	tree, err := NewSumTree[int](8, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, 0.0, tree.Max())

	require.NoError(t, tree.Add([]int{1, 2}, []float64{0.1, 0.4}))
	assert.Equal(t, 0.4, tree.Max())
	assert.Equal(t, 2, tree.Size())
}

func TestSumTree_Wraparound(t *testing.T) {
	tree, err := NewSumTree[int](3, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	require.NoError(t, tree.Add([]int{1, 2, 3, 4}, []float64{1, 2, 3, 4}))

	// The fourth insert overwrites the first leaf.
	assert.Equal(t, 3, tree.Size())
	assert.InDelta(t, 2+3+4, tree.Total(), 1e-12)
	assert.Equal(t, 4.0, tree.Max())
	assert.Equal(t, 4, tree.data[0])
}

func TestSumTree_WeightedDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	tree, err := NewSumTree[int](4, rng)
	require.NoError(t, err)

	require.NoError(t, tree.Add([]int{0, 1, 2, 3}, []float64{1, 2, 3, 4}))

	counts := make([]int, 4)
	draws := 20000
	for i := 0; i < draws; i++ {
		_, _, item, err := tree.Get(rng.Float64() * tree.Total())
		require.NoError(t, err)
		counts[item]++
	}

	for i, p := range []float64{1, 2, 3, 4} {
		expected := float64(draws) * p / 10
		assert.InDelta(t, expected, float64(counts[i]), float64(draws)*0.03)
	}
}

func TestSumTree_SingleLeafCapacity(t *testing.T) {
	tree, err := NewSumTree[int](1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	require.NoError(t, tree.Add([]int{42}, []float64{2.5}))
	leaf, p, item, err := tree.Get(1.0)
	require.NoError(t, err)
	assert.Equal(t, 0, leaf)
	assert.Equal(t, 2.5, p)
	assert.Equal(t, 42, item)
}

func TestSumTree_LengthMismatch(t *testing.T) {
	tree, err := NewSumTree[int](4, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.ErrorIs(t, tree.Add([]int{1}, []float64{1, 2}), ErrLengthMismatch)
	assert.ErrorIs(t, tree.Update([]int{3}, nil), ErrLengthMismatch)
}
