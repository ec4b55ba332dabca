package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
)

// Postgres implements Store on PostgreSQL. Postings live in one table keyed
// (partition, sort bytea) with a btree index on the document key; counter
// records live in a second table mutated with commutative
// ON CONFLICT .. value + EXCLUDED.value upserts.
type Postgres struct {
	db       *sql.DB
	postings string
	counters string
}

// NewPostgres creates a PostgreSQL-backed store. The table name is sanitized
// into an identifier prefix.
func NewPostgres(db *sql.DB, table string) *Postgres {
	ident := strings.NewReplacer("-", "_", ".", "_").Replace(table)
	return &Postgres{
		db:       db,
		postings: ident + "_postings",
		counters: ident + "_counters",
	}
}

const (
	pqDuplicateTable = "42P07"
	pqUndefinedTable = "42P01"
)

func isPQCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

func (p *Postgres) CreateIndex(ctx context.Context, ifNotExists bool) error {
	opt := ""
	if ifNotExists {
		opt = "IF NOT EXISTS "
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s%s (
			partition TEXT NOT NULL,
			sort BYTEA NOT NULL,
			dockey TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (partition, sort)
		)`, opt, p.postings),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_dockey ON %s (dockey)`, p.postings, p.postings),
		fmt.Sprintf(`CREATE TABLE %s%s (
			partition TEXT NOT NULL,
			sort BYTEA NOT NULL,
			field TEXT NOT NULL,
			value BIGINT NOT NULL,
			PRIMARY KEY (partition, sort, field)
		)`, opt, p.counters),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			if isPQCode(err, pqDuplicateTable) {
				return fmt.Errorf("%w: table %s", pkgerrors.ErrResourceExists, p.postings)
			}
			return fmt.Errorf("creating index tables: %w", err)
		}
	}
	return nil
}

func (p *Postgres) DeleteIndex(ctx context.Context, ifExists bool) error {
	opt := ""
	if ifExists {
		opt = "IF EXISTS "
	}
	for _, table := range []string{p.postings, p.counters} {
		if _, err := p.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s%s`, opt, table)); err != nil {
			if isPQCode(err, pqUndefinedTable) {
				return fmt.Errorf("%w: table %s", pkgerrors.ErrResourceNotFound, table)
			}
			return fmt.Errorf("dropping index tables: %w", err)
		}
	}
	return nil
}

func (p *Postgres) BatchWrite(ctx context.Context, reqs []WriteRequest) error {
	putStmt := fmt.Sprintf(`INSERT INTO %s (partition, sort, dockey) VALUES ($1, $2, $3)
		ON CONFLICT (partition, sort) DO UPDATE SET dockey = EXCLUDED.dockey`, p.postings)
	delStmt := fmt.Sprintf(`DELETE FROM %s WHERE partition = $1 AND sort = $2`, p.postings)

	for _, batch := range chunk(reqs) {
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning batch write: %w", err)
		}
		for _, req := range batch {
			switch {
			case req.Put != nil:
				rec := req.Put
				_, err = tx.ExecContext(ctx, putStmt, rec.Partition, rec.Sort, rec.DocKey)
			case req.Delete != nil:
				rec := req.Delete
				_, err = tx.ExecContext(ctx, delStmt, rec.Partition, rec.Sort)
			}
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("batch write: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing batch write: %w", err)
		}
	}
	return nil
}

func (p *Postgres) QueryPartition(ctx context.Context, partition string) ([]Record, float64, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT sort, dockey FROM %s WHERE partition = $1 ORDER BY sort DESC`, p.postings,
	), partition)
	if err != nil {
		return nil, 0, fmt.Errorf("querying partition %q: %w", partition, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var sortKey []byte
		var docKey string
		if err := rows.Scan(&sortKey, &docKey); err != nil {
			return nil, 0, fmt.Errorf("scanning posting row: %w", err)
		}
		records = append(records, Record{
			Key:    Key{Partition: partition, Sort: sortKey},
			DocKey: docKey,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating partition %q: %w", partition, err)
	}
	return records, readCapacity(len(records)), nil
}

func (p *Postgres) QueryByDocKey(ctx context.Context, docKey string) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT partition, sort FROM %s WHERE dockey = $1`, p.postings,
	), docKey)
	if err != nil {
		return nil, fmt.Errorf("querying doc key %q: %w", docKey, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var partition string
		var sortKey []byte
		if err := rows.Scan(&partition, &sortKey); err != nil {
			return nil, fmt.Errorf("scanning posting row: %w", err)
		}
		records = append(records, Record{
			Key:    Key{Partition: partition, Sort: sortKey},
			DocKey: docKey,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating doc key %q: %w", docKey, err)
	}
	return records, nil
}

// Get reads a counter record (the metadata record). Posting records are
// range-read via QueryPartition, never point-read.
func (p *Postgres) Get(ctx context.Context, key Key) (*Record, float64, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT field, value FROM %s WHERE partition = $1 AND sort = $2`, p.counters,
	), key.Partition, key.Sort)
	if err != nil {
		return nil, 0, fmt.Errorf("reading record: %w", err)
	}
	defer rows.Close()

	numbers := make(map[string]int64)
	for rows.Next() {
		var field string
		var value int64
		if err := rows.Scan(&field, &value); err != nil {
			return nil, 0, fmt.Errorf("scanning counter row: %w", err)
		}
		numbers[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating counters: %w", err)
	}
	if len(numbers) == 0 {
		return nil, readCapacity(0), nil
	}
	return &Record{Key: key, Numbers: numbers}, readCapacity(1), nil
}

func (p *Postgres) Add(ctx context.Context, key Key, deltas map[string]int64) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (partition, sort, field, value) VALUES ($1, $2, $3, $4)
		ON CONFLICT (partition, sort, field) DO UPDATE SET value = %s.value + EXCLUDED.value`,
		p.counters, p.counters)
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning counter update: %w", err)
	}
	for field, delta := range deltas {
		if _, err := tx.ExecContext(ctx, stmt, key.Partition, key.Sort, field, delta); err != nil {
			tx.Rollback()
			return fmt.Errorf("incrementing counter %q: %w", field, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing counter update: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
