// Package store abstracts the ordered key-value store the index lives in:
// records addressed by (partition, binary sort key), range reads over a
// partition in descending sort order, a secondary index on the document key,
// batched unconditional writes, and atomic commutative numeric increments
// for the metadata counters. Backends: Redis, PostgreSQL, and an in-memory
// implementation for tests.
package store

import "context"

// MaxBatchSize is the store's batch-write ceiling. BatchWrite implementations
// chunk larger request sets into underlying calls of at most this many
// records.
const MaxBatchSize = 25

// Key addresses one record.
type Key struct {
	Partition string
	Sort      []byte
}

// Record is one stored item. DocKey populates the document-key secondary
// index; Numbers holds the additive counter fields of the metadata record.
type Record struct {
	Key
	DocKey  string
	Numbers map[string]int64
}

// WriteRequest is one element of a batch write: exactly one of Put or Delete
// is set. Deletes carry the full record so backends can also unlink
// secondary-index entries.
type WriteRequest struct {
	Put    *Record
	Delete *Record
}

// Store is the ordered key-value store contract. All writes are unconditional
// puts/deletes except Add, which must be an atomic read-modify-write
// (initialize to 0 if absent, then add) safe under concurrent writers.
type Store interface {
	// CreateIndex provisions the backing table(s). With ifNotExists false,
	// an existing table is reported as errors.ErrResourceExists.
	CreateIndex(ctx context.Context, ifNotExists bool) error

	// DeleteIndex tears the backing table(s) down. With ifExists false, a
	// missing table is reported as errors.ErrResourceNotFound.
	DeleteIndex(ctx context.Context, ifExists bool) error

	// BatchWrite applies puts and deletes, chunked to MaxBatchSize per
	// underlying call. Writes are unconditional; last write wins.
	BatchWrite(ctx context.Context, reqs []WriteRequest) error

	// QueryPartition returns every record in the partition in descending
	// sort-key order, along with the read capacity consumed.
	QueryPartition(ctx context.Context, partition string) ([]Record, float64, error)

	// QueryByDocKey returns every record whose DocKey matches, via the
	// secondary index. Order is unspecified.
	QueryByDocKey(ctx context.Context, docKey string) ([]Record, error)

	// Get point-reads one record, returning nil if absent, plus the read
	// capacity consumed.
	Get(ctx context.Context, key Key) (*Record, float64, error)

	// Add atomically increments the record's numeric fields by the given
	// deltas, creating the record (fields at zero) if absent. Deltas
	// commute, so concurrent callers sum correctly in any interleaving.
	Add(ctx context.Context, key Key, deltas map[string]int64) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// readCapacity approximates read-capacity units for n records read: a half
// unit per started block of eight records, mirroring eventually-consistent
// read accounting on capacity-metered stores.
func readCapacity(n int) float64 {
	return 0.5 * float64(n/8+1)
}

// chunk splits reqs into slices of at most MaxBatchSize.
func chunk(reqs []WriteRequest) [][]WriteRequest {
	var out [][]WriteRequest
	for len(reqs) > MaxBatchSize {
		out = append(out, reqs[:MaxBatchSize])
		reqs = reqs[MaxBatchSize:]
	}
	if len(reqs) > 0 {
		out = append(out, reqs)
	}
	return out
}
