// Package analysis implements the text-analysis pipeline that converts raw
// attribute values and query strings into token sequences: zero or more
// character filters, exactly one tokenizer, and zero or more token filters,
// applied strictly in order.
//
// Index correctness depends on symmetric analysis: the same attribute must be
// analyzed with the same pipeline at index time and query time, and identical
// input plus identical configuration always yields an identical token
// sequence.
package analysis

import (
	"fmt"

	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
)

// Token is one unit of analyzed text. BaseForm and PartOfSpeech are optional
// linguistic metadata produced by metadata-bearing tokenizers (the
// morphological tokenizer) for downstream filters to consume.
type Token struct {
	Text         string
	BaseForm     string
	PartOfSpeech []string
}

// CharFilter transforms raw text before tokenization.
type CharFilter func(string) string

// TokenFilter transforms the token sequence after tokenization.
type TokenFilter func([]Token) []Token

// Tokenizer splits filtered text into a token sequence. Implementations must
// be deterministic; a returned error is fatal for the enclosing document.
type Tokenizer interface {
	Tokenize(text string) ([]Token, error)
}

// Analyzer composes character filters, one tokenizer, and token filters into
// a deterministic string → token-sequence function.
type Analyzer struct {
	CharFilters  []CharFilter
	Tokenizer    Tokenizer
	TokenFilters []TokenFilter
}

// Analyze runs text through the full pipeline. Any tokenizer failure aborts
// analysis with no partial result.
func (a *Analyzer) Analyze(text string) ([]Token, error) {
	for _, cf := range a.CharFilters {
		text = cf(text)
	}
	tokens, err := a.Tokenizer.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrAnalysis, err)
	}
	for _, tf := range a.TokenFilters {
		tokens = tf(tokens)
	}
	return tokens, nil
}

// Terms is a convenience that returns just the token texts.
func Terms(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}
