// Package keycodec encodes a document's primary key (one or two attribute
// values) into a single self-delimiting string usable as an index-record
// field, and decodes it back. The encoding must round-trip exactly even when
// key values contain the delimiter or escape characters, since the store
// reserves no characters in key values.
package keycodec

import (
	"fmt"
	"strings"

	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
)

const (
	delimiter = '/'
	escape    = '\\'
)

// Part is one primary-key attribute. Encode keeps only the first rune of
// Name; Decode therefore returns single-rune names.
type Part struct {
	Name  string
	Value string
}

// Encode concatenates each part as the first rune of its attribute name
// followed by its value, delimiter-separated, escaping any literal delimiter
// or escape rune.
func Encode(parts []Part) string {
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteRune(delimiter)
		}
		field := firstRune(p.Name) + p.Value
		for _, r := range field {
			if r == delimiter || r == escape {
				sb.WriteRune(escape)
			}
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Decode reverses Encode by scanning rune-by-rune: an escape rune followed by
// any rune is a literal, and an unescaped delimiter is a field boundary.
func Decode(encoded string) ([]Part, error) {
	var parts []Part
	var field []rune
	flush := func() error {
		if len(field) == 0 {
			return fmt.Errorf("%w: empty key part in %q", pkgerrors.ErrInvalidInput, encoded)
		}
		parts = append(parts, Part{
			Name:  string(field[0]),
			Value: string(field[1:]),
		})
		field = field[:0]
		return nil
	}

	runes := []rune(encoded)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case escape:
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("%w: dangling escape in %q", pkgerrors.ErrInvalidInput, encoded)
			}
			i++
			field = append(field, runes[i])
		case delimiter:
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			field = append(field, runes[i])
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return parts, nil
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
