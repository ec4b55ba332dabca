package analysis

import (
	"fmt"
	"sync"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

var (
	morphOnce sync.Once
	morphTok  *tokenizer.Tokenizer
	morphErr  error
)

// MorphTokenizer segments text with a morphological analyzer (kagome, IPA
// dictionary) and carries each morpheme's part of speech and base form as
// token metadata for downstream filters.
//
// The dictionary is large, so the underlying tokenizer is constructed once
// per process and shared; construction failure is reported on first use.
type MorphTokenizer struct{}

func (MorphTokenizer) Tokenize(text string) ([]Token, error) {
	morphOnce.Do(func() {
		morphTok, morphErr = tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	})
	if morphErr != nil {
		return nil, fmt.Errorf("loading morphological dictionary: %w", morphErr)
	}
	morphemes := morphTok.Tokenize(text)
	tokens := make([]Token, 0, len(morphemes))
	for _, m := range morphemes {
		tok := Token{Text: m.Surface}
		if base, ok := m.BaseForm(); ok {
			tok.BaseForm = base
		}
		tok.PartOfSpeech = m.POS()
		tokens = append(tokens, tok)
	}
	return tokens, nil
}
