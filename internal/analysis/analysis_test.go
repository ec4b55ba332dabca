package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsearch/streamsearch/pkg/config"
	pkgerrors "github.com/streamsearch/streamsearch/pkg/errors"
)

func TestDelimiterTokenizer(t *testing.T) {
	tests := []struct {
		name      string
		delimiter string
		input     string
		want      []string
	}{
		{"whitespace default", "", "New item!  on sale", []string{"New", "item!", "on", "sale"}},
		{"tabs and newlines", "", "a\tb\nc", []string{"a", "b", "c"}},
		{"fixed delimiter", ",", "a,b,,c", []string{"a", "b", "c"}},
		{"empty input", "", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := DelimiterTokenizer{Delimiter: tt.delimiter}.Tokenize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, terms(tokens))
		})
	}
}

func TestKeywordTokenizer(t *testing.T) {
	tokens, err := KeywordTokenizer{}.Tokenize("New item!")
	require.NoError(t, err)
	assert.Equal(t, []string{"New item!"}, terms(tokens))

	tokens, err = KeywordTokenizer{}.Tokenize("")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestNGramTokenizer(t *testing.T) {
	tokens, err := NGramTokenizer{MinGram: 2, MaxGram: 3}.Tokenize("abcd")
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "abc", "bc", "bcd", "cd"}, terms(tokens))
}

func TestNGramTokenizerMultiByte(t *testing.T) {
	tokens, err := NGramTokenizer{MinGram: 2, MaxGram: 2}.Tokenize("みかん")
	require.NoError(t, err)
	assert.Equal(t, []string{"みか", "かん"}, terms(tokens))
}

func TestNGramTokenizerInvalidBounds(t *testing.T) {
	_, err := NGramTokenizer{MinGram: 3, MaxGram: 2}.Tokenize("abc")
	assert.Error(t, err)
}

func TestPathTokenizer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"absolute path", "/usr/local/bin", []string{"/usr", "/usr/local", "/usr/local/bin"}},
		{"relative path", "a/b/c", []string{"a", "a/b", "a/b/c"}},
		{"no delimiter", "standalone", []string{"standalone"}},
		{"trailing delimiter keeps the exact value", "a/b/", []string{"a", "a/b", "a/b/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := PathTokenizer{}.Tokenize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, terms(tokens))
		})
	}
}

func TestUnicodeTokenizer(t *testing.T) {
	tokens, err := UnicodeTokenizer{}.Tokenize("New item! (50% off)")
	require.NoError(t, err)
	assert.Equal(t, []string{"New", "item", "50", "off"}, terms(tokens))
}

func TestLowercaseFilter(t *testing.T) {
	got := LowercaseFilter()([]Token{{Text: "New"}, {Text: "ITEM"}})
	assert.Equal(t, []string{"new", "item"}, terms(got))
}

func TestStopWordFilter(t *testing.T) {
	filter := StopWordFilter([]string{"the", "a"})
	got := filter([]Token{{Text: "the"}, {Text: "quick"}, {Text: "a"}, {Text: "fox"}})
	assert.Equal(t, []string{"quick", "fox"}, terms(got))
}

func TestStemFilter(t *testing.T) {
	got := StemFilter("english")([]Token{{Text: "running"}, {Text: "searches"}})
	assert.Equal(t, []string{"run", "search"}, terms(got))
}

func TestWidthFilter(t *testing.T) {
	got := WidthFilter()([]Token{{Text: "Ｇｏ"}, {Text: "ｶﾀｶﾅ"}})
	assert.Equal(t, []string{"Go", "カタカナ"}, terms(got))
}

func TestBaseFormFilter(t *testing.T) {
	got := BaseFormFilter()([]Token{
		{Text: "走っ", BaseForm: "走る"},
		{Text: "unknown", BaseForm: "*"},
		{Text: "plain"},
	})
	assert.Equal(t, []string{"走る", "unknown", "plain"}, terms(got))
}

func TestPartOfSpeechFilter(t *testing.T) {
	got := PartOfSpeechFilter([]string{"助詞"})([]Token{
		{Text: "本", PartOfSpeech: []string{"名詞"}},
		{Text: "を", PartOfSpeech: []string{"助詞"}},
		{Text: "bare"},
	})
	assert.Equal(t, []string{"本", "bare"}, terms(got))
}

func TestHTMLStripCharFilter(t *testing.T) {
	got := HTMLStripCharFilter()(`<p>New &amp; improved</p>`)
	assert.Equal(t, " New & improved ", got)
}

func TestAnalyzerPipelineOrder(t *testing.T) {
	// Char filters run before the tokenizer, token filters after.
	a := &Analyzer{
		CharFilters:  []CharFilter{HTMLStripCharFilter()},
		Tokenizer:    DelimiterTokenizer{},
		TokenFilters: []TokenFilter{LowercaseFilter(), StopWordFilter([]string{"the"})},
	}
	tokens, err := a.Analyze("<b>The</b> NEW Item")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "item"}, terms(tokens))
}

func TestAnalyzerDeterminism(t *testing.T) {
	a := &Analyzer{
		Tokenizer:    UnicodeTokenizer{},
		TokenFilters: []TokenFilter{LowercaseFilter(), StemFilter("english")},
	}
	first, err := a.Analyze("Searching distributed indexes efficiently")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := a.Analyze("Searching distributed indexes efficiently")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

type failingTokenizer struct{}

func (failingTokenizer) Tokenize(string) ([]Token, error) {
	return nil, assert.AnError
}

func TestAnalyzerTokenizerError(t *testing.T) {
	a := &Analyzer{Tokenizer: failingTokenizer{}}
	_, err := a.Analyze("anything")
	assert.ErrorIs(t, err, pkgerrors.ErrAnalysis)
}

func TestFromConfig(t *testing.T) {
	a, err := FromConfig(config.AnalyzerConfig{
		CharFilters: []config.CharFilterConfig{{Type: "htmlStrip"}},
		Tokenizer:   config.TokenizerConfig{Type: "delimiter"},
		TokenFilters: []config.TokenFilterConfig{
			{Type: "lowercase"},
			{Type: "stopwords", Words: []string{"of"}},
		},
	})
	require.NoError(t, err)
	tokens, err := a.Analyze("Best <i>OF</i> Breed")
	require.NoError(t, err)
	assert.Equal(t, []string{"best", "breed"}, terms(tokens))
}

func TestFromConfigDefaultsToDelimiter(t *testing.T) {
	a, err := FromConfig(config.AnalyzerConfig{})
	require.NoError(t, err)
	tokens, err := a.Analyze("two words")
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "words"}, terms(tokens))
}

func TestFromConfigUnknownStages(t *testing.T) {
	_, err := FromConfig(config.AnalyzerConfig{Tokenizer: config.TokenizerConfig{Type: "nope"}})
	assert.Error(t, err)

	_, err = FromConfig(config.AnalyzerConfig{CharFilters: []config.CharFilterConfig{{Type: "nope"}}})
	assert.Error(t, err)

	_, err = FromConfig(config.AnalyzerConfig{TokenFilters: []config.TokenFilterConfig{{Type: "nope"}}})
	assert.Error(t, err)
}

func TestCacheReusesAnalyzers(t *testing.T) {
	cache, err := NewCache(4)
	require.NoError(t, err)

	cfg := config.AnalyzerConfig{Tokenizer: config.TokenizerConfig{Type: "unicode"}}
	first, err := cache.Get(cfg)
	require.NoError(t, err)
	second, err := cache.Get(cfg)
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := cache.Get(config.AnalyzerConfig{Tokenizer: config.TokenizerConfig{Type: "keyword"}})
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func terms(tokens []Token) []string {
	if len(tokens) == 0 {
		return nil
	}
	return Terms(tokens)
}

var benchText = "Distributed search engines process queries across multiple shards " +
	"to achieve horizontal scalability, merging results with a global ranking " +
	"algorithm that accounts for term frequency across the entire corpus."

func BenchmarkAnalyze(b *testing.B) {
	a := &Analyzer{
		Tokenizer:    UnicodeTokenizer{},
		TokenFilters: []TokenFilter{LowercaseFilter(), StemFilter("english")},
	}
	b.ReportAllocs()
	b.SetBytes(int64(len(benchText)))
	for i := 0; i < b.N; i++ {
		tokens, err := a.Analyze(benchText)
		if err != nil {
			b.Fatal(err)
		}
		_ = tokens
	}
}

func BenchmarkDelimiterTokenize(b *testing.B) {
	tok := DelimiterTokenizer{}
	b.ReportAllocs()
	b.SetBytes(int64(len(benchText)))
	for i := 0; i < b.N; i++ {
		tokens, _ := tok.Tokenize(benchText)
		_ = tokens
	}
}
