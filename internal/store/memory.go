package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
)

// Memory is an in-memory Store used by tests and examples. It mirrors the
// semantics of the real backends, including capacity accounting and the
// create/delete lifecycle errors.
type Memory struct {
	mu      sync.Mutex
	created bool
	// partition -> sort key (as string) -> record
	partitions map[string]map[string]Record
	// docKey -> set of (partition, sort) addresses
	docIndex map[string]map[string]Key
}

// NewMemory returns an empty, already-created in-memory store.
func NewMemory() *Memory {
	return &Memory{
		created:    true,
		partitions: make(map[string]map[string]Record),
		docIndex:   make(map[string]map[string]Key),
	}
}

func (m *Memory) CreateIndex(ctx context.Context, ifNotExists bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		if ifNotExists {
			return nil
		}
		return pkgerrors.ErrResourceExists
	}
	m.created = true
	return nil
}

func (m *Memory) DeleteIndex(ctx context.Context, ifExists bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		if ifExists {
			return nil
		}
		return pkgerrors.ErrResourceNotFound
	}
	m.created = false
	m.partitions = make(map[string]map[string]Record)
	m.docIndex = make(map[string]map[string]Key)
	return nil
}

func (m *Memory) BatchWrite(ctx context.Context, reqs []WriteRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, batch := range chunk(reqs) {
		for _, req := range batch {
			switch {
			case req.Put != nil:
				m.put(*req.Put)
			case req.Delete != nil:
				m.delete(*req.Delete)
			}
		}
	}
	return nil
}

func (m *Memory) put(rec Record) {
	part, ok := m.partitions[rec.Partition]
	if !ok {
		part = make(map[string]Record)
		m.partitions[rec.Partition] = part
	}
	stored := rec
	stored.Sort = append([]byte(nil), rec.Sort...)
	if rec.Numbers != nil {
		stored.Numbers = make(map[string]int64, len(rec.Numbers))
		for k, v := range rec.Numbers {
			stored.Numbers[k] = v
		}
	}
	part[string(rec.Sort)] = stored
	if rec.DocKey != "" {
		addrs, ok := m.docIndex[rec.DocKey]
		if !ok {
			addrs = make(map[string]Key)
			m.docIndex[rec.DocKey] = addrs
		}
		addrs[rec.Partition+"\x00"+string(rec.Sort)] = stored.Key
	}
}

func (m *Memory) delete(rec Record) {
	if part, ok := m.partitions[rec.Partition]; ok {
		delete(part, string(rec.Sort))
		if len(part) == 0 {
			delete(m.partitions, rec.Partition)
		}
	}
	if rec.DocKey != "" {
		if addrs, ok := m.docIndex[rec.DocKey]; ok {
			delete(addrs, rec.Partition+"\x00"+string(rec.Sort))
			if len(addrs) == 0 {
				delete(m.docIndex, rec.DocKey)
			}
		}
	}
}

func (m *Memory) QueryPartition(ctx context.Context, partition string) ([]Record, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	part := m.partitions[partition]
	records := make([]Record, 0, len(part))
	for _, rec := range part {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return bytes.Compare(records[i].Sort, records[j].Sort) > 0
	})
	return records, readCapacity(len(records)), nil
}

func (m *Memory) QueryByDocKey(ctx context.Context, docKey string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addrs := m.docIndex[docKey]
	records := make([]Record, 0, len(addrs))
	for _, key := range addrs {
		if part, ok := m.partitions[key.Partition]; ok {
			if rec, ok := part[string(key.Sort)]; ok {
				records = append(records, rec)
			}
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Partition != records[j].Partition {
			return records[i].Partition < records[j].Partition
		}
		return bytes.Compare(records[i].Sort, records[j].Sort) < 0
	})
	return records, nil
}

func (m *Memory) Get(ctx context.Context, key Key) (*Record, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if part, ok := m.partitions[key.Partition]; ok {
		if rec, ok := part[string(key.Sort)]; ok {
			// Copy the mutable fields: Add mutates the stored Numbers map
			// in place, and callers must see a stable snapshot, as with
			// the real backends.
			out := rec
			out.Key.Sort = append([]byte(nil), rec.Key.Sort...)
			if rec.Numbers != nil {
				out.Numbers = make(map[string]int64, len(rec.Numbers))
				for field, v := range rec.Numbers {
					out.Numbers[field] = v
				}
			}
			return &out, readCapacity(1), nil
		}
	}
	return nil, readCapacity(0), nil
}

func (m *Memory) Add(ctx context.Context, key Key, deltas map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	part, ok := m.partitions[key.Partition]
	if !ok {
		part = make(map[string]Record)
		m.partitions[key.Partition] = part
	}
	rec, ok := part[string(key.Sort)]
	if !ok {
		rec = Record{
			Key:     Key{Partition: key.Partition, Sort: append([]byte(nil), key.Sort...)},
			Numbers: make(map[string]int64),
		}
	}
	if rec.Numbers == nil {
		rec.Numbers = make(map[string]int64)
	}
	for field, delta := range deltas {
		rec.Numbers[field] += delta
	}
	part[string(key.Sort)] = rec
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}
