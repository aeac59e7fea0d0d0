package commute_test

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/commute/pkg/alg/commute"
	"github.com/Sumatoshi-tech/commute/pkg/alg/minmax"
)

const (
	shardCount   = 32
	shardWorkers = 4
)

var errShard = errors.New("shard failed")

func trackers(groups ...[]int) []*minmax.MinMax[int] {
	out := make([]*minmax.MinMax[int], 0, len(groups))
	for _, g := range groups {
		out = append(out, minmax.Collect(slices.Values(g)))
	}

	return out
}

func TestMergeAll_Empty(t *testing.T) {
	t.Parallel()

	got, ok := commute.MergeAll(slices.Values([]*minmax.MinMax[int]{}))
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestMergeAll_FoldsIntoFirst(t *testing.T) {
	t.Parallel()

	parts := trackers([]int{1, 2}, []int{0, 3}, []int{7})

	got, ok := commute.MergeAll(slices.Values(parts))
	require.True(t, ok)
	assert.Same(t, parts[0], got)
	assert.Equal(t, 5, got.Len())
	assert.Equal(t, "[0, 7]", got.String())
}

func TestMergeAll_SkipsNilParts(t *testing.T) {
	t.Parallel()

	parts := trackers([]int{4, 6}, []int{-3})
	seq := slices.Values([]*minmax.MinMax[int]{nil, parts[0], nil, parts[1], nil})

	got, ok := commute.MergeAll(seq)
	require.True(t, ok)
	assert.Same(t, parts[0], got)
	assert.Equal(t, 3, got.Len())
	assert.Equal(t, "[-3, 6]", got.String())
}

func TestMergeAll_OnlyNilParts(t *testing.T) {
	t.Parallel()

	got, ok := commute.MergeAll(slices.Values([]*minmax.MinMax[int]{nil, nil}))
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestMergeInto_SkipsNilParts(t *testing.T) {
	t.Parallel()

	dst := minmax.New[int]()
	got := commute.MergeInto(dst, slices.Values([]*minmax.MinMax[int]{nil, minmax.Collect(slices.Values([]int{2}))}))

	assert.Equal(t, 1, got.Len())
	assert.Equal(t, "[2, 2]", got.String())
}

func TestMergeAll_OrderIndependent(t *testing.T) {
	t.Parallel()

	forward, ok := commute.MergeAll(slices.Values(trackers([]int{5}, []int{-2, 4}, []int{9, 1})))
	require.True(t, ok)

	reversed := trackers([]int{5}, []int{-2, 4}, []int{9, 1})
	slices.Reverse(reversed)

	backward, ok := commute.MergeAll(slices.Values(reversed))
	require.True(t, ok)

	assert.Equal(t, forward.Len(), backward.Len())
	assert.Equal(t, forward.String(), backward.String())
}

func TestMergeInto(t *testing.T) {
	t.Parallel()

	dst := minmax.New[int]()
	got := commute.MergeInto(dst, slices.Values(trackers([]int{3}, nil, []int{8, -1})))

	assert.Same(t, dst, got)
	assert.Equal(t, 3, got.Len())
	assert.Equal(t, "[-1, 8]", got.String())
}

func TestMapShards_PreservesInputOrder(t *testing.T) {
	t.Parallel()

	inputs := make([]int, shardCount)
	for i := range inputs {
		inputs[i] = i
	}

	var inflight, peak atomic.Int64

	partials, err := commute.MapShards(context.Background(), inputs, shardWorkers,
		func(_ context.Context, in int) (*minmax.MinMax[int], error) {
			cur := inflight.Add(1)
			defer inflight.Add(-1)

			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}

			return minmax.Collect(slices.Values([]int{in, in * 2})), nil
		})
	require.NoError(t, err)
	require.Len(t, partials, shardCount)

	for i, part := range partials {
		lo, hi, ok := part.Bounds()
		require.True(t, ok)
		assert.Equal(t, i, lo)
		assert.Equal(t, i*2, hi)
	}

	assert.LessOrEqual(t, peak.Load(), int64(shardWorkers))

	total := commute.MergeInto(minmax.New[int](), slices.Values(partials))
	assert.Equal(t, shardCount*2, total.Len())
	assert.Equal(t, "[0, 62]", total.String())
}

func TestMapShards_PropagatesError(t *testing.T) {
	t.Parallel()

	_, err := commute.MapShards(context.Background(), []int{1, 2, 3}, shardWorkers,
		func(_ context.Context, in int) (int, error) {
			if in == 2 {
				return 0, errShard
			}

			return in, nil
		})
	assert.ErrorIs(t, err, errShard)
}

func TestMapShards_InvalidWorkers(t *testing.T) {
	t.Parallel()

	_, err := commute.MapShards(context.Background(), []int{1}, 0,
		func(_ context.Context, in int) (int, error) { return in, nil })
	assert.ErrorIs(t, err, commute.ErrInvalidWorkers)
}

func TestMapShards_EmptyInputs(t *testing.T) {
	t.Parallel()

	partials, err := commute.MapShards(context.Background(), []string{}, 1,
		func(_ context.Context, in string) (string, error) { return in, nil })
	require.NoError(t, err)
	assert.Empty(t, partials)
}
