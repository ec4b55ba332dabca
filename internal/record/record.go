// Package record defines the inverted-index record layout: one posting per
// (attribute, token, document) triple, plus the single global metadata
// record. Postings are addressed by a "{attrKey};{token}" partition key and a
// 14-byte binary sort key packing occurrence, document token count, and a
// key-hash prefix, so a partition range read returns postings in descending
// occurrence order.
package record

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/streamsearch/streamsearch/internal/store"
)

const (
	// PartitionSeparator joins the attribute key and token in the partition key.
	PartitionSeparator = ";"

	// SortKeyLen is the fixed width of a posting sort key: 2-byte big-endian
	// occurrence, 4-byte big-endian document token count, 8-byte key-hash
	// prefix.
	SortKeyLen = 14

	// MaxOccurrence caps a token's per-document occurrence count.
	MaxOccurrence = math.MaxUint16

	// MaxDocTokenCount caps a document attribute's total token count.
	MaxDocTokenCount = math.MaxUint32

	// MetaPartition is the metadata record's sentinel partition key.
	MetaPartition = "_"

	// MetaDocCountField is the metadata counter holding the document count.
	MetaDocCountField = "dc"

	// metaTokenCountPrefix prefixes per-attribute token-count counters.
	metaTokenCountPrefix = "tc:"
)

// MetaKey returns the metadata record's fixed store key.
func MetaKey() store.Key {
	return store.Key{Partition: MetaPartition, Sort: []byte{0}}
}

// MetaTokenCountField returns the metadata counter field for an attribute's
// running token count.
func MetaTokenCountField(attrKey string) string {
	return metaTokenCountPrefix + attrKey
}

// AttrFromTokenCountField reverses MetaTokenCountField, reporting ok=false
// for unrelated fields.
func AttrFromTokenCountField(field string) (string, bool) {
	if !strings.HasPrefix(field, metaTokenCountPrefix) {
		return "", false
	}
	return field[len(metaTokenCountPrefix):], true
}

// Posting is one inverted-index entry. DocTokenCount is the total analyzed
// token count of the document's attribute value, denormalized onto every one
// of the document's postings so a single range read suffices for scoring.
type Posting struct {
	AttrKey       string
	Token         string
	Occurrence    uint16
	DocTokenCount uint32
	DocKey        string
}

// PartitionKey returns the posting's partition key.
func (p Posting) PartitionKey() string {
	return PartitionKey(p.AttrKey, p.Token)
}

// PartitionKey joins an attribute key and token into a partition key.
func PartitionKey(attrKey, token string) string {
	return attrKey + PartitionSeparator + token
}

// SplitPartitionKey recovers the attribute key and token from a partition
// key. The attribute key never contains the separator, so the split is on the
// first occurrence; the token may contain further separators.
func SplitPartitionKey(partition string) (attrKey, token string, err error) {
	i := strings.Index(partition, PartitionSeparator)
	if i < 0 {
		return "", "", fmt.Errorf("malformed partition key %q", partition)
	}
	return partition[:i], partition[i+len(PartitionSeparator):], nil
}

// KeyHash returns the 8-byte key-hash prefix for an encoded document key.
func KeyHash(docKey string) [8]byte {
	sum := sha256.Sum256([]byte(docKey))
	var prefix [8]byte
	copy(prefix[:], sum[:8])
	return prefix
}

// KeyHashPrefix returns the single hash byte reserved for partition
// cardinality estimation.
func KeyHashPrefix(docKey string) byte {
	return KeyHash(docKey)[0]
}

// SortKey packs the posting's occurrence, document token count, and key-hash
// prefix into the fixed-width binary sort key.
func (p Posting) SortKey() []byte {
	buf := make([]byte, SortKeyLen)
	binary.BigEndian.PutUint16(buf[0:2], p.Occurrence)
	binary.BigEndian.PutUint32(buf[2:6], p.DocTokenCount)
	hash := KeyHash(p.DocKey)
	copy(buf[6:], hash[:])
	return buf
}

// DecodeSortKey unpacks a posting sort key.
func DecodeSortKey(sort []byte) (occurrence uint16, docTokenCount uint32, keyHash [8]byte, err error) {
	if len(sort) != SortKeyLen {
		return 0, 0, keyHash, fmt.Errorf("sort key must be %d bytes, got %d", SortKeyLen, len(sort))
	}
	occurrence = binary.BigEndian.Uint16(sort[0:2])
	docTokenCount = binary.BigEndian.Uint32(sort[2:6])
	copy(keyHash[:], sort[6:])
	return occurrence, docTokenCount, keyHash, nil
}

// ToRecord converts the posting to its stored form.
func (p Posting) ToRecord() store.Record {
	return store.Record{
		Key: store.Key{
			Partition: p.PartitionKey(),
			Sort:      p.SortKey(),
		},
		DocKey: p.DocKey,
	}
}

// FromRecord reconstructs a posting from its stored form.
func FromRecord(rec store.Record) (Posting, error) {
	attrKey, token, err := SplitPartitionKey(rec.Partition)
	if err != nil {
		return Posting{}, err
	}
	occurrence, docTokenCount, _, err := DecodeSortKey(rec.Sort)
	if err != nil {
		return Posting{}, fmt.Errorf("partition %q: %w", rec.Partition, err)
	}
	return Posting{
		AttrKey:       attrKey,
		Token:         token,
		Occurrence:    occurrence,
		DocTokenCount: docTokenCount,
		DocKey:        rec.DocKey,
	}, nil
}
