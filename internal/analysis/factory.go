package analysis

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/streamsearch/streamsearch/pkg/config"
)

// FromConfig builds an Analyzer from its YAML configuration. Unknown stage
// types are configuration errors.
func FromConfig(cfg config.AnalyzerConfig) (*Analyzer, error) {
	a := &Analyzer{}
	for _, cf := range cfg.CharFilters {
		filter, err := charFilterFromConfig(cf)
		if err != nil {
			return nil, err
		}
		a.CharFilters = append(a.CharFilters, filter)
	}
	tok, err := tokenizerFromConfig(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	a.Tokenizer = tok
	for _, tf := range cfg.TokenFilters {
		filter, err := tokenFilterFromConfig(tf)
		if err != nil {
			return nil, err
		}
		a.TokenFilters = append(a.TokenFilters, filter)
	}
	return a, nil
}

func charFilterFromConfig(cfg config.CharFilterConfig) (CharFilter, error) {
	switch cfg.Type {
	case "normalize":
		form, err := normForm(cfg.Form)
		if err != nil {
			return nil, err
		}
		return NormalizeCharFilter(form), nil
	case "htmlStrip":
		return HTMLStripCharFilter(), nil
	case "patternReplace":
		pattern, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling char filter pattern %q: %w", cfg.Pattern, err)
		}
		return PatternReplaceCharFilter(pattern, cfg.Replacement), nil
	default:
		return nil, fmt.Errorf("unknown char filter type %q", cfg.Type)
	}
}

func tokenizerFromConfig(cfg config.TokenizerConfig) (Tokenizer, error) {
	switch cfg.Type {
	case "keyword":
		return KeywordTokenizer{}, nil
	case "", "delimiter":
		return DelimiterTokenizer{Delimiter: cfg.Delimiter}, nil
	case "ngram":
		if cfg.MinGram < 1 || cfg.MaxGram < cfg.MinGram {
			return nil, fmt.Errorf("ngram tokenizer requires 1 <= minGram <= maxGram, got min=%d max=%d", cfg.MinGram, cfg.MaxGram)
		}
		return NGramTokenizer{MinGram: cfg.MinGram, MaxGram: cfg.MaxGram}, nil
	case "path":
		return PathTokenizer{Delimiter: cfg.Delimiter}, nil
	case "unicode":
		return UnicodeTokenizer{}, nil
	case "morph":
		return MorphTokenizer{}, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer type %q", cfg.Type)
	}
}

func tokenFilterFromConfig(cfg config.TokenFilterConfig) (TokenFilter, error) {
	switch cfg.Type {
	case "lowercase":
		return LowercaseFilter(), nil
	case "width":
		return WidthFilter(), nil
	case "stopwords":
		return StopWordFilter(cfg.Words), nil
	case "baseform":
		return BaseFormFilter(), nil
	case "partOfSpeech":
		return PartOfSpeechFilter(cfg.PartsOfSpeech), nil
	case "stem":
		return StemFilter(cfg.Language), nil
	default:
		return nil, fmt.Errorf("unknown token filter type %q", cfg.Type)
	}
}

func normForm(name string) (norm.Form, error) {
	switch strings.ToLower(name) {
	case "", "nfkc":
		return norm.NFKC, nil
	case "nfc":
		return norm.NFC, nil
	case "nfd":
		return norm.NFD, nil
	case "nfkd":
		return norm.NFKD, nil
	default:
		return 0, fmt.Errorf("unknown normalization form %q", name)
	}
}

// Cache memoizes built analyzers by configuration signature, so pipelines
// backed by expensive resources (the morphological dictionary) are
// constructed once per process rather than per request.
type Cache struct {
	built *lru.Cache[string, *Analyzer]
}

// NewCache creates an analyzer cache holding up to size entries.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New[string, *Analyzer](size)
	if err != nil {
		return nil, fmt.Errorf("creating analyzer cache: %w", err)
	}
	return &Cache{built: c}, nil
}

// Get returns the analyzer for cfg, building and caching it on first use.
func (c *Cache) Get(cfg config.AnalyzerConfig) (*Analyzer, error) {
	sig := signature(cfg)
	if a, ok := c.built.Get(sig); ok {
		return a, nil
	}
	a, err := FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c.built.Add(sig, a)
	return a, nil
}

func signature(cfg config.AnalyzerConfig) string {
	var sb strings.Builder
	for _, cf := range cfg.CharFilters {
		fmt.Fprintf(&sb, "c:%s:%s:%s:%s;", cf.Type, cf.Form, cf.Pattern, cf.Replacement)
	}
	fmt.Fprintf(&sb, "t:%s:%s:%d:%d;", cfg.Tokenizer.Type, cfg.Tokenizer.Delimiter, cfg.Tokenizer.MinGram, cfg.Tokenizer.MaxGram)
	for _, tf := range cfg.TokenFilters {
		fmt.Fprintf(&sb, "f:%s:%s:%s:%s;", tf.Type, strings.Join(tf.Words, ","), strings.Join(tf.PartsOfSpeech, ","), tf.Language)
	}
	return sb.String()
}
