package textprep

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tphakala/spamguard-go/internal/errors"
)

// DefaultFilters are the characters Keras strips from word-level input
const DefaultFilters = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~\t\n"

// DefaultOOVToken is the out-of-vocabulary marker used by all three models
const DefaultOOVToken = "<OOV>"

// Tokenizer maps text to vocabulary indices with the semantics of the
// Keras preprocessing Tokenizer.
type Tokenizer struct {
	// NumWords caps the vocabulary; indices >= NumWords are out of range.
	// Zero means no cap.
	NumWords  int
	Filters   string
	Lower     bool
	Split     string
	CharLevel bool
	OOVToken  string
	WordIndex map[string]int

	oovIndex int
	replacer *strings.Replacer
}

// TokenizerOption configures NewTokenizer
type TokenizerOption func(*Tokenizer)

// WithNumWords caps the vocabulary size
func WithNumWords(n int) TokenizerOption {
	return func(t *Tokenizer) { t.NumWords = n }
}

// WithCharLevel switches to per-character tokens
func WithCharLevel() TokenizerOption {
	return func(t *Tokenizer) { t.CharLevel = true }
}

// WithOOVToken sets the out-of-vocabulary token; "" disables OOV mapping
func WithOOVToken(token string) TokenizerOption {
	return func(t *Tokenizer) { t.OOVToken = token }
}

// NewTokenizer builds a tokenizer over an existing word index using the
// Keras defaults for everything not overridden.
func NewTokenizer(wordIndex map[string]int, opts ...TokenizerOption) *Tokenizer {
	t := &Tokenizer{
		Filters:   DefaultFilters,
		Lower:     true,
		Split:     " ",
		OOVToken:  DefaultOOVToken,
		WordIndex: wordIndex,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.init()
	return t
}

func (t *Tokenizer) init() {
	t.oovIndex = 0
	if t.OOVToken != "" {
		t.oovIndex = t.WordIndex[t.OOVToken]
	}
	pairs := make([]string, 0, 2*len(t.Filters))
	for _, r := range t.Filters {
		pairs = append(pairs, string(r), t.Split)
	}
	t.replacer = strings.NewReplacer(pairs...)
}

// tokenizerConfig mirrors the "config" object written by tokenizer.to_json()
type tokenizerConfig struct {
	NumWords  *int            `json:"num_words"`
	Filters   *string         `json:"filters"`
	Lower     *bool           `json:"lower"`
	Split     *string         `json:"split"`
	CharLevel bool            `json:"char_level"`
	OOVToken  *string         `json:"oov_token"`
	WordIndex json.RawMessage `json:"word_index"`
}

// LoadTokenizer reads a tokenizer JSON export from disk
func LoadTokenizer(path string) (*Tokenizer, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the model directory setting
	if err != nil {
		return nil, errors.New(err).
			Component("textprep").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	t, err := ParseTokenizer(f)
	if err != nil {
		return nil, errors.New(fmt.Errorf("tokenizer %s: %w", path, err)).
			Component("textprep").
			Category(errors.CategoryTokenizer).
			Build()
	}
	return t, nil
}

// ParseTokenizer decodes either the full {"class_name", "config"} export
// or a bare config object. word_index may be an object or, as Keras
// writes it, a string holding JSON.
func ParseTokenizer(r io.Reader) (*Tokenizer, error) {
	var top map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&top); err != nil {
		return nil, fmt.Errorf("decode tokenizer json: %w", err)
	}

	raw := top
	if cfg, ok := top["config"]; ok {
		raw = nil
		if err := json.Unmarshal(cfg, &raw); err != nil {
			return nil, fmt.Errorf("decode tokenizer config: %w", err)
		}
	}

	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var cfg tokenizerConfig
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("decode tokenizer config: %w", err)
	}

	wordIndex, err := decodeWordIndex(cfg.WordIndex)
	if err != nil {
		return nil, err
	}

	t := &Tokenizer{
		Filters:   DefaultFilters,
		Lower:     true,
		Split:     " ",
		CharLevel: cfg.CharLevel,
		WordIndex: wordIndex,
	}
	if cfg.NumWords != nil {
		t.NumWords = *cfg.NumWords
	}
	if cfg.Filters != nil {
		t.Filters = *cfg.Filters
	}
	if cfg.Lower != nil {
		t.Lower = *cfg.Lower
	}
	if cfg.Split != nil {
		t.Split = *cfg.Split
	}
	if cfg.OOVToken != nil {
		t.OOVToken = *cfg.OOVToken
	}
	t.init()
	return t, nil
}

func decodeWordIndex(raw json.RawMessage) (map[string]int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("tokenizer has no word_index")
	}

	payload := []byte(raw)
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		payload = []byte(encoded)
	}

	var wordIndex map[string]int
	if err := json.Unmarshal(payload, &wordIndex); err != nil {
		return nil, fmt.Errorf("decode word_index: %w", err)
	}
	if len(wordIndex) == 0 {
		return nil, fmt.Errorf("tokenizer word_index is empty")
	}
	return wordIndex, nil
}

// VocabularySize is the number of indices the model's embedding covers
func (t *Tokenizer) VocabularySize() int {
	if t.NumWords > 0 && t.NumWords < len(t.WordIndex)+1 {
		return t.NumWords
	}
	return len(t.WordIndex) + 1
}

func (t *Tokenizer) tokens(text string) []string {
	if t.Lower {
		text = strings.ToLower(text)
	}
	if t.CharLevel {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	text = t.replacer.Replace(text)
	parts := strings.Split(text, t.Split)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TextToSequence converts one text to vocabulary indices
func (t *Tokenizer) TextToSequence(text string) []int32 {
	tokens := t.tokens(text)
	seq := make([]int32, 0, len(tokens))
	for _, tok := range tokens {
		idx, ok := t.WordIndex[tok]
		switch {
		case ok && (t.NumWords == 0 || idx < t.NumWords):
			seq = append(seq, int32(idx)) //nolint:gosec // vocabulary indices are small
		case t.oovIndex != 0:
			seq = append(seq, int32(t.oovIndex)) //nolint:gosec // vocabulary indices are small
		}
	}
	return seq
}

// TextsToSequences converts a batch of texts
func (t *Tokenizer) TextsToSequences(texts []string) [][]int32 {
	out := make([][]int32, len(texts))
	for i, text := range texts {
		out[i] = t.TextToSequence(text)
	}
	return out
}
