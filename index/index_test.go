package index

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "0|1|-2", Key{0, 1, -2}.String())
	assert.Equal(t, 0, Compare(Key{1, 2}, Key{1, 2}))
	assert.Negative(t, Compare(Key{0, 9}, Key{1, 0}))
	assert.Positive(t, Compare(Key{1, 1}, Key{1, 0}))
	assert.Negative(t, Compare(Key{1}, Key{1, 0}))
}

func TestStrategies(t *testing.T) {
	workingday := []int64{0, 1, 1, 0, 1, 0}
	holiday := []int64{0, 0, 1, 0, 0, 1}

	for _, strategy := range []Strategy{RoaringBitmap, HashIndex} {
		strategy := strategy
		t.Run(strategy.String(), func(t *testing.T) {
			idx, err := Build(strategy, [][]int64{workingday, holiday})
			require.NoError(t, err)
			assert.Equal(t, 4, idx.Len())

			parts := idx.Partitions()
			require.Len(t, parts, 4)
			assert.Equal(t, Key{0, 0}, parts[0].Key)
			assert.Equal(t, []uint32{0, 3}, parts[0].Rows.ToArray())
			assert.Equal(t, Key{0, 1}, parts[1].Key)
			assert.Equal(t, []uint32{5}, parts[1].Rows.ToArray())
			assert.Equal(t, Key{1, 0}, parts[2].Key)
			assert.Equal(t, []uint32{1, 4}, parts[2].Rows.ToArray())
			assert.Equal(t, Key{1, 1}, parts[3].Key)
			assert.Equal(t, []uint32{2}, parts[3].Rows.ToArray())
		})
	}
}

func TestPartitionsDisjointAndExhaustive(t *testing.T) {
	col := []int64{3, 1, 3, 2, 1, 1, 3}
	idx, err := Build(HashIndex, [][]int64{col})
	require.NoError(t, err)

	union := roaring.New()
	parts := idx.Partitions()
	for i, p := range parts {
		for j := i + 1; j < len(parts); j++ {
			assert.False(t, p.Rows.Intersects(parts[j].Rows))
		}
		union.Or(p.Rows)
	}
	assert.Equal(t, uint64(len(col)), union.GetCardinality())
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(RoaringBitmap, nil)
	assert.Error(t, err)

	_, err = Build(RoaringBitmap, [][]int64{{1, 2}, {1}})
	assert.Error(t, err)

	_, err = New(Strategy(99), 0)
	assert.Error(t, err)
}
