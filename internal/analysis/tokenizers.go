package analysis

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
)

// KeywordTokenizer emits the whole input as a single token, for exact-match
// attributes. Empty input yields no tokens.
type KeywordTokenizer struct{}

func (KeywordTokenizer) Tokenize(text string) ([]Token, error) {
	if text == "" {
		return nil, nil
	}
	return []Token{{Text: text}}, nil
}

// DelimiterTokenizer splits on a fixed delimiter string, or on Unicode
// whitespace when Delimiter is empty.
type DelimiterTokenizer struct {
	Delimiter string
}

func (t DelimiterTokenizer) Tokenize(text string) ([]Token, error) {
	var parts []string
	if t.Delimiter == "" {
		parts = strings.FieldsFunc(text, unicode.IsSpace)
	} else {
		parts = strings.Split(text, t.Delimiter)
	}
	tokens := make([]Token, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		tokens = append(tokens, Token{Text: p})
	}
	return tokens, nil
}

// NGramTokenizer emits every character n-gram of length MinGram through
// MaxGram, sliding over every start offset. Grams are rune-based so
// multi-byte text windows correctly.
type NGramTokenizer struct {
	MinGram int
	MaxGram int
}

func (t NGramTokenizer) Tokenize(text string) ([]Token, error) {
	if t.MinGram < 1 || t.MaxGram < t.MinGram {
		return nil, fmt.Errorf("invalid ngram bounds min=%d max=%d", t.MinGram, t.MaxGram)
	}
	runes := []rune(text)
	var tokens []Token
	for start := 0; start < len(runes); start++ {
		for n := t.MinGram; n <= t.MaxGram && start+n <= len(runes); n++ {
			tokens = append(tokens, Token{Text: string(runes[start : start+n])})
		}
	}
	return tokens, nil
}

// PathTokenizer splits hierarchical values such as file paths: for each
// delimiter boundary it emits the non-empty prefix ending there, plus the
// full value, most specific last. "/usr/local/bin" with delimiter "/" yields
// "/usr", "/usr/local", "/usr/local/bin".
type PathTokenizer struct {
	Delimiter string
}

func (t PathTokenizer) Tokenize(text string) ([]Token, error) {
	delim := t.Delimiter
	if delim == "" {
		delim = "/"
	}
	var tokens []Token
	seen := make(map[string]struct{})
	emit := func(prefix string) {
		if prefix == "" {
			return
		}
		if _, dup := seen[prefix]; dup {
			return
		}
		seen[prefix] = struct{}{}
		tokens = append(tokens, Token{Text: prefix})
	}
	for i := 0; i+len(delim) <= len(text); i++ {
		if text[i:i+len(delim)] == delim {
			emit(text[:i])
		}
	}
	emit(text)
	return tokens, nil
}

// UnicodeTokenizer segments text on UAX#29 word boundaries, dropping
// segments that contain no letter or digit (bare punctuation, whitespace).
type UnicodeTokenizer struct{}

func (UnicodeTokenizer) Tokenize(text string) ([]Token, error) {
	segs := words.FromString(text)
	var tokens []Token
	for segs.Next() {
		seg := segs.Value()
		if !strings.ContainsFunc(seg, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) {
			continue
		}
		tokens = append(tokens, Token{Text: seg})
	}
	return tokens, nil
}
