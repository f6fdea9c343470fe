package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knncache"
)

func TestPlan_PieceOf(t *testing.T) {
	p := Plan{Pieces: 16}
	assert.Equal(t, 1, p.PieceOf(0))
	assert.Equal(t, 16, p.PieceOf(15))
	assert.Equal(t, 1, p.PieceOf(16))
	assert.Equal(t, 4, p.PieceOf(1_000_003))
}

func TestPlan_Rows(t *testing.T) {
	p := Plan{Pieces: 3}
	assert.Equal(t, []uint32{0, 3, 6, 9}, p.Rows(1, 10).ToArray())
	assert.Equal(t, []uint32{1, 4, 7}, p.Rows(2, 10).ToArray())
	assert.Equal(t, []uint32{2, 5, 8}, p.Rows(3, 10).ToArray())
	assert.True(t, p.Rows(3, 2).IsEmpty())

	for row := 0; row < 10; row++ {
		assert.True(t, p.Rows(p.PieceOf(row), 10).Contains(uint32(row)))
	}
}

func TestPlan_Validate(t *testing.T) {
	for _, tc := range []struct{ pieces, n int }{{1, 0}, {1, 5}, {4, 3}, {16, 1000}, {7, 7}} {
		assert.NoError(t, Plan{Pieces: tc.pieces}.Validate(tc.n), "%+v", tc)
	}
	assert.ErrorIs(t, Plan{}.Validate(10), knncache.ErrInvalidArgument)
	assert.ErrorIs(t, Plan{Pieces: -2}.Validate(10), knncache.ErrInvalidArgument)
	assert.ErrorIs(t, Plan{Pieces: 2}.Validate(-1), knncache.ErrInvalidArgument)
}

func TestPlan_CheckPiece(t *testing.T) {
	p := Plan{Pieces: 4}
	require.NoError(t, p.CheckPiece(1))
	require.NoError(t, p.CheckPiece(4))
	assert.ErrorIs(t, p.CheckPiece(0), knncache.ErrInvalidArgument)
	assert.ErrorIs(t, p.CheckPiece(5), knncache.ErrInvalidArgument)
}

func TestSuffix(t *testing.T) {
	assert.Equal(t, "-1", Suffix(1))
	assert.Equal(t, "-16", Suffix(16))
	assert.Equal(t, "-merged", MergedSuffix)
}
