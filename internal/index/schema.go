// Package index implements incremental maintenance of the inverted index:
// re-tokenizing changed documents, diffing the index at the document level
// (full delete-then-reinsert on modify), and accumulating the metadata deltas
// that keep corpus statistics consistent under at-least-once event delivery.
package index

import (
	"fmt"
	"strings"

	"github.com/streamsearch/streamsearch/internal/analysis"
	"github.com/streamsearch/streamsearch/internal/keycodec"
	"github.com/streamsearch/streamsearch/internal/record"
	"github.com/streamsearch/streamsearch/pkg/config"
	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
)

// Attribute is one searchable attribute: its analyzer, the short key it is
// stored under, and its default query-time boost.
type Attribute struct {
	Name     string
	AttrKey  string
	Boost    float64
	Analyzer *analysis.Analyzer
}

// KeySchema names the source collection's primary-key attributes.
type KeySchema struct {
	PartitionAttribute string
	SortAttribute      string
}

// Schema resolves the index configuration into built analyzers and validated
// attribute keys.
type Schema struct {
	Key        KeySchema
	Attributes []Attribute
	byName     map[string]*Attribute
}

// NewSchema builds a Schema from configuration, constructing each attribute's
// analyzer through the shared cache. Attribute keys must not contain the
// partition separator, and short names must be unique.
func NewSchema(cfg config.IndexConfig, analyzers *analysis.Cache) (*Schema, error) {
	if cfg.Key.PartitionAttribute == "" {
		return nil, fmt.Errorf("%w: partition key attribute", pkgerrors.ErrMissingKeyAttribute)
	}
	s := &Schema{
		Key: KeySchema{
			PartitionAttribute: cfg.Key.PartitionAttribute,
			SortAttribute:      cfg.Key.SortAttribute,
		},
		byName: make(map[string]*Attribute, len(cfg.Attributes)),
	}
	seen := make(map[string]struct{}, len(cfg.Attributes))
	for _, ac := range cfg.Attributes {
		attrKey := ac.ShortName
		if attrKey == "" {
			attrKey = ac.Name
		}
		if strings.Contains(attrKey, record.PartitionSeparator) {
			return nil, fmt.Errorf("attribute key %q must not contain %q", attrKey, record.PartitionSeparator)
		}
		if _, dup := seen[attrKey]; dup {
			return nil, fmt.Errorf("duplicate attribute key %q", attrKey)
		}
		seen[attrKey] = struct{}{}
		analyzer, err := analyzers.Get(ac.Analyzer)
		if err != nil {
			return nil, fmt.Errorf("building analyzer for attribute %q: %w", ac.Name, err)
		}
		boost := ac.Boost
		if boost == 0 {
			boost = 1
		}
		s.Attributes = append(s.Attributes, Attribute{
			Name:     ac.Name,
			AttrKey:  attrKey,
			Boost:    boost,
			Analyzer: analyzer,
		})
	}
	for i := range s.Attributes {
		s.byName[s.Attributes[i].Name] = &s.Attributes[i]
	}
	return s, nil
}

// Attribute looks an attribute up by its logical name.
func (s *Schema) Attribute(name string) (*Attribute, error) {
	attr, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pkgerrors.ErrUnknownAttribute, name)
	}
	return attr, nil
}

// EncodeKey encodes a change event's key image into the posting document-key
// string. Every configured key attribute must be present.
func (s *Schema) EncodeKey(key map[string]string) (string, error) {
	pk, ok := key[s.Key.PartitionAttribute]
	if !ok {
		return "", fmt.Errorf("%w: %q", pkgerrors.ErrMissingKeyAttribute, s.Key.PartitionAttribute)
	}
	parts := []keycodec.Part{{Name: s.Key.PartitionAttribute, Value: pk}}
	if s.Key.SortAttribute != "" {
		sk, ok := key[s.Key.SortAttribute]
		if !ok {
			return "", fmt.Errorf("%w: %q", pkgerrors.ErrMissingKeyAttribute, s.Key.SortAttribute)
		}
		parts = append(parts, keycodec.Part{Name: s.Key.SortAttribute, Value: sk})
	}
	return keycodec.Encode(parts), nil
}

// DecodeKey reverses EncodeKey, restoring the full key-attribute names from
// the key schema by position.
func (s *Schema) DecodeKey(docKey string) (map[string]string, error) {
	parts, err := keycodec.Decode(docKey)
	if err != nil {
		return nil, err
	}
	names := []string{s.Key.PartitionAttribute}
	if s.Key.SortAttribute != "" {
		names = append(names, s.Key.SortAttribute)
	}
	if len(parts) != len(names) {
		return nil, fmt.Errorf("%w: key %q has %d parts, schema expects %d",
			pkgerrors.ErrInvalidInput, docKey, len(parts), len(names))
	}
	keys := make(map[string]string, len(parts))
	for i, part := range parts {
		keys[names[i]] = part.Value
	}
	return keys, nil
}
