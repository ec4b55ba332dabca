package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
)

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.ErrorIs(t, m.CreateIndex(ctx, false), pkgerrors.ErrResourceExists)
	assert.NoError(t, m.CreateIndex(ctx, true))

	require.NoError(t, m.DeleteIndex(ctx, false))
	assert.ErrorIs(t, m.DeleteIndex(ctx, false), pkgerrors.ErrResourceNotFound)
	assert.NoError(t, m.DeleteIndex(ctx, true))

	require.NoError(t, m.CreateIndex(ctx, false))
}

func TestMemoryBatchWriteAndQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	recs := []Record{
		{Key: Key{Partition: "M;new", Sort: []byte{0, 1}}, DocKey: "Ia"},
		{Key: Key{Partition: "M;new", Sort: []byte{0, 3}}, DocKey: "Ib"},
		{Key: Key{Partition: "M;new", Sort: []byte{0, 2}}, DocKey: "Ic"},
		{Key: Key{Partition: "M;old", Sort: []byte{0, 9}}, DocKey: "Ia"},
	}
	reqs := make([]WriteRequest, len(recs))
	for i := range recs {
		reqs[i] = WriteRequest{Put: &recs[i]}
	}
	require.NoError(t, m.BatchWrite(ctx, reqs))

	got, capacity, err := m.QueryPartition(ctx, "M;new")
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Descending sort order.
	assert.Equal(t, "Ib", got[0].DocKey)
	assert.Equal(t, "Ic", got[1].DocKey)
	assert.Equal(t, "Ia", got[2].DocKey)
	assert.Equal(t, 0.5, capacity)

	empty, capacity, err := m.QueryPartition(ctx, "M;absent")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, 0.5, capacity)
}

func TestMemoryQueryByDocKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	reqs := []WriteRequest{
		{Put: &Record{Key: Key{Partition: "M;new", Sort: []byte{1}}, DocKey: "Ia"}},
		{Put: &Record{Key: Key{Partition: "M;item", Sort: []byte{2}}, DocKey: "Ia"}},
		{Put: &Record{Key: Key{Partition: "M;new", Sort: []byte{3}}, DocKey: "Ib"}},
	}
	require.NoError(t, m.BatchWrite(ctx, reqs))

	got, err := m.QueryByDocKey(ctx, "Ia")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, rec := range got {
		assert.Equal(t, "Ia", rec.DocKey)
	}

	// Deleting unlinks the secondary index too.
	del := Record{Key: Key{Partition: "M;new", Sort: []byte{1}}, DocKey: "Ia"}
	require.NoError(t, m.BatchWrite(ctx, []WriteRequest{{Delete: &del}}))
	got, err = m.QueryByDocKey(ctx, "Ia")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "M;item", got[0].Partition)
}

func TestMemoryPutIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	key := Key{Partition: "M;new", Sort: []byte{7}}

	first := Record{Key: key, DocKey: "Ia"}
	again := Record{Key: key, DocKey: "Ia"}
	require.NoError(t, m.BatchWrite(ctx, []WriteRequest{{Put: &first}}))
	require.NoError(t, m.BatchWrite(ctx, []WriteRequest{{Put: &again}}))

	got, _, err := m.QueryPartition(ctx, "M;new")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryGetAndAdd(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	key := Key{Partition: "_", Sort: []byte{0}}

	rec, capacity, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 0.5, capacity)

	require.NoError(t, m.Add(ctx, key, map[string]int64{"dc": 1, "tc:M": 2}))
	require.NoError(t, m.Add(ctx, key, map[string]int64{"dc": -1, "tc:M": 3}))

	rec, _, err = m.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(0), rec.Numbers["dc"])
	assert.Equal(t, int64(5), rec.Numbers["tc:M"])
}

func TestMemoryGetReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	key := Key{Partition: "_", Sort: []byte{0}}
	require.NoError(t, m.Add(ctx, key, map[string]int64{"dc": 1}))

	before, _, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, before)

	// Later increments must not show through a previously returned record;
	// the real backends always return fresh values.
	require.NoError(t, m.Add(ctx, key, map[string]int64{"dc": 41}))
	assert.Equal(t, int64(1), before.Numbers["dc"])

	after, _, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(42), after.Numbers["dc"])
}

func TestChunk(t *testing.T) {
	reqs := make([]WriteRequest, 0, 60)
	for i := 0; i < 60; i++ {
		rec := Record{Key: Key{Partition: "p", Sort: []byte{byte(i)}}}
		reqs = append(reqs, WriteRequest{Put: &rec})
	}
	batches := chunk(reqs)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], MaxBatchSize)
	assert.Len(t, batches[1], MaxBatchSize)
	assert.Len(t, batches[2], 10)

	assert.Nil(t, chunk(nil))
}

func TestReadCapacity(t *testing.T) {
	tests := []struct {
		records int
		want    float64
	}{
		{0, 0.5},
		{1, 0.5},
		{8, 1.0},
		{9, 1.0},
		{16, 1.5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("records_%d", tt.records), func(t *testing.T) {
			assert.Equal(t, tt.want, readCapacity(tt.records))
		})
	}
}
