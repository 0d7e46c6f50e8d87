package allocator

import (
	"errors"
	"testing"

	"github.com/rarydzu/monodisk/monodisk/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 5 files, 16 blocks of 128 bytes: 5*15+16*9 = 219 bytes -> data starts at block 2
func newTestAllocator() (*Allocator, *layout.Metadata) {
	meta := layout.New(5, 16, 128)
	return New(meta), meta
}

func TestAllocateLowestFirst(t *testing.T) {
	a, meta := newTestAllocator()
	require.Equal(t, 2, meta.DataBlockStart())
	require.Equal(t, 14, a.CountFree())

	blocks, err := a.Allocate(3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, blocks)
	assert.Equal(t, 11, a.CountFree())
	assert.Equal(t, int32(3), meta.Nodes[2].Next)
	assert.Equal(t, int32(4), meta.Nodes[3].Next)
	assert.Equal(t, int32(layout.End), meta.Nodes[4].Next)
	assert.Equal(t, blocks, a.Chain(2))
}

func TestAllocateSkipsUsed(t *testing.T) {
	a, _ := newTestAllocator()
	first, err := a.Allocate(2)
	require.NoError(t, err)
	second, err := a.Allocate(2)
	require.NoError(t, err)
	require.NoError(t, a.Free(first[0], nil))

	blocks, err := a.Allocate(3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 6}, blocks)
	assert.Equal(t, []int{4, 5}, second)
}

func TestAllocateInsufficient(t *testing.T) {
	a, meta := newTestAllocator()
	before := meta.Clone()
	_, err := a.Allocate(15)
	assert.ErrorIs(t, err, ErrInsufficientSpace)
	assert.Equal(t, before.Free, meta.Free)
	assert.Equal(t, before.Nodes, meta.Nodes)

	blocks, err := a.Allocate(14)
	require.NoError(t, err)
	assert.Len(t, blocks, 14)
	assert.Equal(t, 0, a.CountFree())
}

func TestAllocateZero(t *testing.T) {
	a, _ := newTestAllocator()
	blocks, err := a.Allocate(0)
	assert.NoError(t, err)
	assert.Empty(t, blocks)
	assert.Equal(t, 14, a.CountFree())
}

func TestFreeWithZero(t *testing.T) {
	a, meta := newTestAllocator()
	blocks, err := a.Allocate(4)
	require.NoError(t, err)

	zeroed := []int{}
	require.NoError(t, a.Free(blocks[0], func(index int) error {
		zeroed = append(zeroed, index)
		return nil
	}))
	assert.Equal(t, blocks, zeroed)
	assert.Equal(t, 14, a.CountFree())
	for _, b := range blocks {
		assert.Equal(t, int32(layout.End), meta.Nodes[b].Next)
	}
}

func TestFreeZeroFailure(t *testing.T) {
	a, _ := newTestAllocator()
	blocks, err := a.Allocate(3)
	require.NoError(t, err)
	boom := errors.New("boom")
	err = a.Free(blocks[0], func(index int) error {
		if index == blocks[1] {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}
