package analysis

import (
	"html"
	"regexp"
	"strings"

	"github.com/kljensen/snowball"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NormalizeCharFilter applies a Unicode normalization form (NFC, NFD, NFKC,
// NFKD) to the input.
func NormalizeCharFilter(form norm.Form) CharFilter {
	return func(s string) string {
		return form.String(s)
	}
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// HTMLStripCharFilter removes markup tags and unescapes entities.
func HTMLStripCharFilter() CharFilter {
	return func(s string) string {
		return html.UnescapeString(htmlTagPattern.ReplaceAllString(s, " "))
	}
}

// PatternReplaceCharFilter substitutes every match of pattern with
// replacement.
func PatternReplaceCharFilter(pattern *regexp.Regexp, replacement string) CharFilter {
	return func(s string) string {
		return pattern.ReplaceAllString(s, replacement)
	}
}

// LowercaseFilter lowercases every token's text.
func LowercaseFilter() TokenFilter {
	return func(tokens []Token) []Token {
		for i := range tokens {
			tokens[i].Text = strings.ToLower(tokens[i].Text)
		}
		return tokens
	}
}

// WidthFilter folds character widths so full-width alphanumerics and
// half-width katakana normalize to their canonical forms.
func WidthFilter() TokenFilter {
	return func(tokens []Token) []Token {
		for i := range tokens {
			tokens[i].Text = width.Fold.String(tokens[i].Text)
		}
		return tokens
	}
}

// StopWordFilter removes tokens whose text is in the given word set.
func StopWordFilter(stopWords []string) TokenFilter {
	set := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		set[w] = struct{}{}
	}
	return func(tokens []Token) []Token {
		out := tokens[:0]
		for _, t := range tokens {
			if _, stop := set[t.Text]; stop {
				continue
			}
			out = append(out, t)
		}
		return out
	}
}

// BaseFormFilter replaces each token's text with its base form where the
// tokenizer provided one.
func BaseFormFilter() TokenFilter {
	return func(tokens []Token) []Token {
		for i := range tokens {
			if tokens[i].BaseForm != "" && tokens[i].BaseForm != "*" {
				tokens[i].Text = tokens[i].BaseForm
			}
		}
		return tokens
	}
}

// PartOfSpeechFilter removes tokens whose leading part-of-speech tag is in
// the excluded set. Tokens without metadata pass through.
func PartOfSpeechFilter(excluded []string) TokenFilter {
	set := make(map[string]struct{}, len(excluded))
	for _, pos := range excluded {
		set[pos] = struct{}{}
	}
	return func(tokens []Token) []Token {
		out := tokens[:0]
		for _, t := range tokens {
			if len(t.PartOfSpeech) > 0 {
				if _, drop := set[t.PartOfSpeech[0]]; drop {
					continue
				}
			}
			out = append(out, t)
		}
		return out
	}
}

// StemFilter reduces tokens to their stems for the given snowball language.
// A token that cannot be stemmed is kept unmodified.
func StemFilter(language string) TokenFilter {
	if language == "" {
		language = "english"
	}
	return func(tokens []Token) []Token {
		for i := range tokens {
			if stemmed, err := snowball.Stem(tokens[i].Text, language, false); err == nil {
				tokens[i].Text = stemmed
			}
		}
		return tokens
	}
}
