// Package bulk converts an existing document collection into index records
// offline, writing newline-delimited JSON that can be bulk-loaded into the
// index table before live change-stream consumption starts.
package bulk

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/streamsearch/streamsearch/internal/index"
	"github.com/streamsearch/streamsearch/internal/record"
)

// Document is one source document: its key attributes plus every attribute
// value, as attribute-name → string maps.
type Document struct {
	Key        map[string]string `json:"key"`
	Attributes map[string]string `json:"attributes"`
}

// DocumentSource yields documents one at a time, returning io.EOF when
// exhausted.
type DocumentSource interface {
	Next(ctx context.Context) (Document, error)
}

// FileSource reads NDJSON documents from a reader, one Document per line.
type FileSource struct {
	scanner *bufio.Scanner
	line    int
}

func NewFileSource(r io.Reader) *FileSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &FileSource{scanner: sc}
}

func (s *FileSource) Next(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	for s.scanner.Scan() {
		s.line++
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc Document
		if err := json.Unmarshal(line, &doc); err != nil {
			return Document{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		return doc, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Document{}, err
	}
	return Document{}, io.EOF
}

// Stats summarises an export run. Documents counts only documents that
// produced at least one posting; Skipped counts the rest.
type Stats struct {
	Documents int64
	Postings  int64
	Skipped   int64
}

// Exporter streams documents through the analysis pipeline and writes their
// index records as NDJSON. The index is assumed empty, so metadata is
// accumulated locally and emitted as a single trailing line instead of being
// folded through atomic increments.
type Exporter struct {
	schema *index.Schema
	logger *slog.Logger
}

func NewExporter(schema *index.Schema) *Exporter {
	return &Exporter{
		schema: schema,
		logger: slog.Default().With("component", "bulk-exporter"),
	}
}

// Export drains src, writing one posting line per (attribute, token,
// document) and a final metadata line carrying the document count and
// per-attribute token counts.
func (e *Exporter) Export(ctx context.Context, src DocumentSource, w io.Writer) (Stats, error) {
	start := time.Now()
	var stats Stats
	out := bufio.NewWriter(w)
	enc := json.NewEncoder(out)
	tokenCount := make(map[string]int64)

	var seen int64
	for {
		doc, err := src.Next(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			return stats, fmt.Errorf("reading document: %w", err)
		}
		seen++
		docKey, err := e.schema.EncodeKey(doc.Key)
		if err != nil {
			return stats, fmt.Errorf("document %d: %w", seen, err)
		}
		postings, deltas, err := index.BuildPostings(e.schema, docKey, doc.Attributes)
		if err != nil {
			return stats, fmt.Errorf("document %q: %w", docKey, err)
		}
		// A document with no indexable tokens contributes nothing, exactly
		// as a live insert that writes zero postings leaves the document
		// count untouched.
		if len(postings) == 0 {
			stats.Skipped++
			continue
		}
		for _, p := range postings {
			if err := enc.Encode(record.ExportPosting(p)); err != nil {
				return stats, fmt.Errorf("writing posting: %w", err)
			}
		}
		for attrKey, n := range deltas {
			tokenCount[attrKey] += n
		}
		stats.Documents++
		stats.Postings += int64(len(postings))
	}

	if err := enc.Encode(record.ExportMetadata(stats.Documents, tokenCount)); err != nil {
		return stats, fmt.Errorf("writing metadata: %w", err)
	}
	if err := out.Flush(); err != nil {
		return stats, err
	}
	e.logger.Info("export completed",
		"documents", stats.Documents,
		"postings", stats.Postings,
		"skipped", stats.Skipped,
		"duration", time.Since(start),
	)
	return stats, nil
}
