// Package phonetic matches misheard caller phrases against a business
// vocabulary (business name, street names, service words) using Double
// Metaphone codes and Jaro-Winkler similarity.
//
// A phrase is compared only with vocabulary terms that have the same number of
// words. A term is accepted when either:
//
//   - the phrase and the term share a Double Metaphone code and their
//     Jaro-Winkler similarity reaches the phonetic threshold (default 0.80), or
//   - no phonetic candidate exists and the similarity alone reaches the fuzzy
//     threshold (default 0.90).
//
// Words shorter than MinRunes are never matched so that filler words like
// "ok" or "at" cannot be rewritten into short vocabulary terms.
package phonetic

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90

	// MinRunes is the shortest phrase (spaces removed) the matcher considers.
	MinRunes = 4
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically related term.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term with no
// phonetic overlap.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type term struct {
	text    string
	lower   string
	compact string
	words   int
	codes   map[string]struct{}
}

// Vocabulary is a prepared term list. Preparing once per call avoids
// recomputing Double Metaphone codes for every phrase.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// Prepare builds a Vocabulary from raw terms. Blank terms are dropped.
func Prepare(terms []string) *Vocabulary {
	v := &Vocabulary{}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		lower := strings.ToLower(t)
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			text:    t,
			lower:   strings.Join(tokens, " "),
			compact: strings.Join(tokens, ""),
			words:   len(tokens),
			codes:   codesForTokens(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// MaxWords returns the word count of the longest term.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Len returns the number of terms.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// Match finds the vocabulary term closest to phrase. When matched is false,
// corrected equals phrase and confidence is 0.
func (m *Matcher) Match(phrase string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	tokens := strings.Fields(strings.ToLower(phrase))
	if v.Len() == 0 || len(tokens) == 0 {
		return phrase, 0, false
	}
	compact := strings.Join(tokens, "")
	if utf8.RuneCountInString(compact) < MinRunes {
		return phrase, 0, false
	}
	full := strings.Join(tokens, " ")
	codes := codesForTokens(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range v.terms {
		if t.words != len(tokens) {
			continue
		}
		score := max(
			matchr.JaroWinkler(full, t.lower, false),
			matchr.JaroWinkler(compact, t.compact, false),
		)
		if overlap(codes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.text, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t.text, score
		}
	}
	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
