package store

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
	pkgredis "github.com/streamsearch/streamsearch/pkg/redis"
)

// Redis implements Store on Redis. Each partition is a sorted set ordered
// lexicographically by member bytes (length-prefixed sort key, then document
// key), which matches binary sort-key order because all postings in a
// partition share a fixed sort-key width. The document-key secondary index is
// a set per document, and counter records are hashes mutated with HINCRBY.
type Redis struct {
	client *pkgredis.Client
	rdb    *redis.Client
	table  string
}

// NewRedis creates a Redis-backed store using the given key namespace.
func NewRedis(client *pkgredis.Client, table string) *Redis {
	return &Redis{client: client, rdb: client.Raw(), table: table}
}

func (r *Redis) markerKey() string {
	return r.table + ":schema"
}

func (r *Redis) partitionKey(partition string) string {
	return r.table + ":p:" + partition
}

func (r *Redis) docKeyKey(docKey string) string {
	return r.table + ":d:" + docKey
}

func (r *Redis) counterKey(key Key) string {
	return r.table + ":c:" + key.Partition + ":" + hex.EncodeToString(key.Sort)
}

// member packs a record's address into one sorted-set member. The sort key is
// length-prefixed so the document key can be recovered; ordering across
// members holds because sort keys within a partition share a width.
func member(sort []byte, docKey string) string {
	buf := make([]byte, 0, 1+len(sort)+len(docKey))
	buf = append(buf, byte(len(sort)))
	buf = append(buf, sort...)
	buf = append(buf, docKey...)
	return string(buf)
}

func parseMember(m string) (sort []byte, docKey string, err error) {
	if len(m) < 1 {
		return nil, "", fmt.Errorf("malformed index member: empty")
	}
	n := int(m[0])
	if len(m) < 1+n {
		return nil, "", fmt.Errorf("malformed index member: short sort key")
	}
	return []byte(m[1 : 1+n]), m[1+n:], nil
}

// docMember packs (partition, sort) into one document-index member.
func docMember(partition string, sort []byte) string {
	buf := make([]byte, 0, 2+len(partition)+1+len(sort))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(partition)))
	buf = append(buf, partition...)
	buf = append(buf, byte(len(sort)))
	buf = append(buf, sort...)
	return string(buf)
}

func parseDocMember(m string) (partition string, sort []byte, err error) {
	if len(m) < 2 {
		return "", nil, fmt.Errorf("malformed doc-index member: short header")
	}
	pn := int(binary.BigEndian.Uint16([]byte(m[:2])))
	if len(m) < 2+pn+1 {
		return "", nil, fmt.Errorf("malformed doc-index member: short partition")
	}
	partition = m[2 : 2+pn]
	sn := int(m[2+pn])
	rest := m[2+pn+1:]
	if len(rest) != sn {
		return "", nil, fmt.Errorf("malformed doc-index member: short sort key")
	}
	return partition, []byte(rest), nil
}

func (r *Redis) CreateIndex(ctx context.Context, ifNotExists bool) error {
	created, err := r.rdb.SetNX(ctx, r.markerKey(), "1", 0).Result()
	if err != nil {
		return fmt.Errorf("creating index marker: %w", err)
	}
	if !created && !ifNotExists {
		return fmt.Errorf("%w: index %q", pkgerrors.ErrResourceExists, r.table)
	}
	return nil
}

func (r *Redis) DeleteIndex(ctx context.Context, ifExists bool) error {
	existed, err := r.rdb.Del(ctx, r.markerKey()).Result()
	if err != nil {
		return fmt.Errorf("deleting index marker: %w", err)
	}
	if existed == 0 && !ifExists {
		return fmt.Errorf("%w: index %q", pkgerrors.ErrResourceNotFound, r.table)
	}
	if _, err := r.client.FlushByPattern(ctx, r.table+":*"); err != nil {
		return fmt.Errorf("deleting index data: %w", err)
	}
	return nil
}

func (r *Redis) BatchWrite(ctx context.Context, reqs []WriteRequest) error {
	for _, batch := range chunk(reqs) {
		pipe := r.rdb.TxPipeline()
		for _, req := range batch {
			switch {
			case req.Put != nil:
				rec := req.Put
				pipe.ZAdd(ctx, r.partitionKey(rec.Partition), redis.Z{
					Score:  0,
					Member: member(rec.Sort, rec.DocKey),
				})
				if rec.DocKey != "" {
					pipe.SAdd(ctx, r.docKeyKey(rec.DocKey), docMember(rec.Partition, rec.Sort))
				}
			case req.Delete != nil:
				rec := req.Delete
				pipe.ZRem(ctx, r.partitionKey(rec.Partition), member(rec.Sort, rec.DocKey))
				if rec.DocKey != "" {
					pipe.SRem(ctx, r.docKeyKey(rec.DocKey), docMember(rec.Partition, rec.Sort))
				}
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("batch write: %w", err)
		}
	}
	return nil
}

func (r *Redis) QueryPartition(ctx context.Context, partition string) ([]Record, float64, error) {
	members, err := r.rdb.ZRevRangeByLex(ctx, r.partitionKey(partition), &redis.ZRangeBy{
		Min: "-",
		Max: "+",
	}).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("querying partition %q: %w", partition, err)
	}
	records := make([]Record, 0, len(members))
	for _, m := range members {
		sortKey, docKey, err := parseMember(m)
		if err != nil {
			return nil, 0, fmt.Errorf("partition %q: %w", partition, err)
		}
		records = append(records, Record{
			Key:    Key{Partition: partition, Sort: sortKey},
			DocKey: docKey,
		})
	}
	return records, readCapacity(len(records)), nil
}

func (r *Redis) QueryByDocKey(ctx context.Context, docKey string) ([]Record, error) {
	members, err := r.rdb.SMembers(ctx, r.docKeyKey(docKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("querying doc key %q: %w", docKey, err)
	}
	records := make([]Record, 0, len(members))
	for _, m := range members {
		partition, sortKey, err := parseDocMember(m)
		if err != nil {
			return nil, fmt.Errorf("doc key %q: %w", docKey, err)
		}
		records = append(records, Record{
			Key:    Key{Partition: partition, Sort: sortKey},
			DocKey: docKey,
		})
	}
	return records, nil
}

// Get reads a counter record (the metadata record). Posting records are
// range-read via QueryPartition, never point-read.
func (r *Redis) Get(ctx context.Context, key Key) (*Record, float64, error) {
	fields, err := r.rdb.HGetAll(ctx, r.counterKey(key)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("reading record: %w", err)
	}
	if len(fields) == 0 {
		return nil, readCapacity(0), nil
	}
	numbers := make(map[string]int64, len(fields))
	for field, raw := range fields {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("parsing counter %q: %w", field, err)
		}
		numbers[field] = v
	}
	return &Record{Key: key, Numbers: numbers}, readCapacity(1), nil
}

func (r *Redis) Add(ctx context.Context, key Key, deltas map[string]int64) error {
	pipe := r.rdb.TxPipeline()
	for field, delta := range deltas {
		pipe.HIncrBy(ctx, r.counterKey(key), field, delta)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incrementing counters: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}
