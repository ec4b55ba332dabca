package meta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsearch/streamsearch/internal/record"
	"github.com/streamsearch/streamsearch/internal/store"
)

func TestMetadataEmptyIndex(t *testing.T) {
	a := New(store.NewMemory())

	md, capacity, err := a.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), md.DocumentCount)
	assert.Empty(t, md.TokenCount)
	assert.Equal(t, 0.5, capacity)
}

func TestApplyDeltaAccumulates(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemory())

	require.NoError(t, a.ApplyDelta(ctx, 1, map[string]int64{"M": 2}))
	require.NoError(t, a.ApplyDelta(ctx, 2, map[string]int64{"M": 5, "D": 7}))

	md, _, err := a.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), md.DocumentCount)
	assert.Equal(t, int64(7), md.TokenCount["M"])
	assert.Equal(t, int64(7), md.TokenCount["D"])
}

func TestApplyDeltaNegative(t *testing.T) {
	ctx := context.Background()
	a := New(store.NewMemory())

	require.NoError(t, a.ApplyDelta(ctx, 1, map[string]int64{"M": 4}))
	require.NoError(t, a.ApplyDelta(ctx, -1, map[string]int64{"M": -4}))

	md, _, err := a.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), md.DocumentCount)
	assert.Equal(t, int64(0), md.TokenCount["M"])
}

func TestApplyDeltaSkipsZeroes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	a := New(st)

	// An all-zero delta must not materialize the metadata record.
	require.NoError(t, a.ApplyDelta(ctx, 0, map[string]int64{"M": 0}))
	rec, _, err := st.Get(ctx, record.MetaKey())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAvgDocLength(t *testing.T) {
	md := &Metadata{DocumentCount: 4, TokenCount: map[string]int64{"M": 10}}
	assert.Equal(t, 2.5, md.AvgDocLength("M"))
	assert.Equal(t, 0.0, md.AvgDocLength("absent"))

	empty := &Metadata{TokenCount: map[string]int64{}}
	assert.Equal(t, 0.0, empty.AvgDocLength("M"))
}
