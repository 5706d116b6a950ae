// Package normtext turns raw message text into the normalized form used
// for lexical indexing, write-time dedup, and temporal-filter recall:
// ASCII folding, stopword pruning, optional lemmatization, and relative
// time-phrase extraction.
package normtext

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed data.yaml
var embeddedData []byte

// Normalized is the Normalizer's output: the cleaned text plus the
// metadata recall and dedup build on.
type Normalized struct {
	Text          string        // cleaned, lemmatized/lowercased, stopword-pruned; used for lexical index + dedup
	Tokens        []string      // the tokens that make up Text
	Folded        string        // ASCII-folded form of the original text (diacritics stripped)
	LanguageGuess string        // "tr" or "en"
	TemporalRefs  []TemporalRef // absolute ranges recovered from relative-time phrases
}

// Lemmatizer reduces a single token to its dictionary form for lang. The
// built-in Normalizer has no real Turkish lemmatizer; callers that need one
// inject their own implementation.
type Lemmatizer interface {
	Lemmatize(token, lang string) string
}

// Normalizer is the capability interface the rest of the core depends on,
// so tests and alternate deployments can swap in NullNormalizer or a
// fuller NLP pipeline without touching call sites.
type Normalizer interface {
	Normalize(text string) (Normalized, error)
}

type catalogData struct {
	Stopwords       map[string][]string `yaml:"stopwords"`
	TemporalPhrases []temporalPhrase    `yaml:"temporal_phrases"`
}

// DefaultNormalizer is the spec's built-in: ASCII-fold + configurable
// stopwords + temporal-phrase catalog + English lowercasing fallback, with
// lemmatization delegated to an optional injected Lemmatizer.
type DefaultNormalizer struct {
	stopwords  map[string]map[string]struct{}
	temporal   []temporalPhrase
	lemmatizer Lemmatizer
	now        func() time.Time
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// NewDefaultNormalizer loads the embedded stopword/temporal-phrase catalog.
// lemmatizer may be nil, in which case every token falls through to the
// lowercased-folded form.
func NewDefaultNormalizer(lemmatizer Lemmatizer) (*DefaultNormalizer, error) {
	var data catalogData
	if err := yaml.Unmarshal(embeddedData, &data); err != nil {
		return nil, fmt.Errorf("normtext: parsing embedded catalog: %w", err)
	}

	stopwords := make(map[string]map[string]struct{}, len(data.Stopwords))
	for lang, words := range data.Stopwords {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		stopwords[lang] = set
	}

	return &DefaultNormalizer{
		stopwords:  stopwords,
		temporal:   data.TemporalPhrases,
		lemmatizer: lemmatizer,
		now:        time.Now,
	}, nil
}

// Normalize implements Normalizer.
func (n *DefaultNormalizer) Normalize(text string) (Normalized, error) {
	folded := foldASCII(text)
	lang := "en"
	if looksTurkish(text) {
		lang = "tr"
	}

	lower := strings.ToLower(folded)
	refs := extractTemporalRefs(lower, n.temporal, n.now())

	rawTokens := tokenPattern.FindAllString(lower, -1)
	stop := n.stopwords[lang]
	tokens := make([]string, 0, len(rawTokens))
	for _, tok := range rawTokens {
		if _, isStop := stop[tok]; isStop {
			continue
		}
		if n.lemmatizer != nil && lang == "tr" {
			tok = n.lemmatizer.Lemmatize(tok, lang)
		}
		tokens = append(tokens, tok)
	}

	return Normalized{
		Text:          strings.Join(tokens, " "),
		Tokens:        tokens,
		Folded:        folded,
		LanguageGuess: lang,
		TemporalRefs:  refs,
	}, nil
}

// NullNormalizer passes text through unchanged except for trimming leading
// and trailing whitespace (inner runs of spaces are kept); used by tests
// that want predictable, no-op normalization.
type NullNormalizer struct{}

// Normalize implements Normalizer with a pure passthrough.
func (NullNormalizer) Normalize(text string) (Normalized, error) {
	trimmed := strings.TrimFunc(text, unicode.IsSpace)
	return Normalized{
		Text:          trimmed,
		Tokens:        strings.Fields(trimmed),
		Folded:        trimmed,
		LanguageGuess: "en",
	}, nil
}

var (
	_ Normalizer = (*DefaultNormalizer)(nil)
	_ Normalizer = NullNormalizer{}
)
