package record

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "M;hello", PartitionKey("M", "hello"))

	attrKey, token, err := SplitPartitionKey("M;hello")
	require.NoError(t, err)
	assert.Equal(t, "M", attrKey)
	assert.Equal(t, "hello", token)
}

func TestSplitPartitionKeyTokenWithSeparator(t *testing.T) {
	// Tokens may contain the separator; only the first one splits.
	attrKey, token, err := SplitPartitionKey("M;a;b;c")
	require.NoError(t, err)
	assert.Equal(t, "M", attrKey)
	assert.Equal(t, "a;b;c", token)
}

func TestSplitPartitionKeyMalformed(t *testing.T) {
	_, _, err := SplitPartitionKey("noseparator")
	assert.Error(t, err)
}

func TestSortKeyRoundTrip(t *testing.T) {
	p := Posting{
		AttrKey:       "M",
		Token:         "new",
		Occurrence:    3,
		DocTokenCount: 17,
		DocKey:        "I101",
	}
	sort := p.SortKey()
	require.Len(t, sort, SortKeyLen)

	occurrence, docTokenCount, keyHash, err := DecodeSortKey(sort)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), occurrence)
	assert.Equal(t, uint32(17), docTokenCount)
	assert.Equal(t, KeyHash("I101"), keyHash)
}

func TestSortKeyOrdersByOccurrence(t *testing.T) {
	// Big-endian packing makes byte order match numeric order, so a
	// descending range read returns highest occurrence first.
	low := Posting{Occurrence: 2, DocTokenCount: 1000, DocKey: "Ia"}.SortKey()
	high := Posting{Occurrence: 300, DocTokenCount: 1, DocKey: "Ib"}.SortKey()
	assert.Negative(t, bytes.Compare(low, high))
}

func TestDecodeSortKeyWrongLength(t *testing.T) {
	_, _, _, err := DecodeSortKey([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestRecordRoundTrip(t *testing.T) {
	p := Posting{
		AttrKey:       "M",
		Token:         "item",
		Occurrence:    1,
		DocTokenCount: 2,
		DocKey:        "I101",
	}
	got, err := FromRecord(p.ToRecord())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestMetaKey(t *testing.T) {
	key := MetaKey()
	assert.Equal(t, MetaPartition, key.Partition)
	assert.Equal(t, []byte{0}, key.Sort)
}

func TestMetaTokenCountField(t *testing.T) {
	field := MetaTokenCountField("M")
	assert.Equal(t, "tc:M", field)

	attrKey, ok := AttrFromTokenCountField(field)
	require.True(t, ok)
	assert.Equal(t, "M", attrKey)

	_, ok = AttrFromTokenCountField(MetaDocCountField)
	assert.False(t, ok)
}

func TestExportPosting(t *testing.T) {
	p := Posting{AttrKey: "M", Token: "new", Occurrence: 1, DocTokenCount: 2, DocKey: "I101"}
	line := ExportPosting(p)
	assert.Equal(t, "M;new", line.Partition)
	assert.Equal(t, p.SortKey(), line.Sort)
	assert.Equal(t, "I101", line.DocKey)
	require.NotNil(t, line.HashPrefix)
	assert.Equal(t, KeyHashPrefix("I101"), *line.HashPrefix)
	assert.Nil(t, line.DocCount)
}

func TestExportMetadata(t *testing.T) {
	line := ExportMetadata(5, map[string]int64{"M": 42})
	assert.Equal(t, MetaPartition, line.Partition)
	assert.Equal(t, []byte{0}, line.Sort)
	require.NotNil(t, line.DocCount)
	assert.Equal(t, int64(5), *line.DocCount)
	assert.Equal(t, int64(42), line.TokenCount["M"])
}
