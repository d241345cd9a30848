package transcript

import (
	"strings"
	"unicode"

	"github.com/MrWong99/testcall/internal/transcript/phonetic"
)

// Correction captures one phrase-level substitution.
type Correction struct {
	// Original is the phrase as produced by the STT provider.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the matcher's similarity score (0.0–1.0).
	Confidence float64
}

// Corrector rewrites misheard vocabulary terms in caller text. The zero value
// is not usable; construct with [NewCorrector].
type Corrector struct {
	matcher *phonetic.Matcher
}

// NewCorrector returns a Corrector backed by m. A nil m uses the default
// phonetic matcher.
func NewCorrector(m *phonetic.Matcher) *Corrector {
	if m == nil {
		m = phonetic.New()
	}
	return &Corrector{matcher: m}
}

// Correct replaces phrases of text that sound like vocabulary terms. Longer
// windows are tried first so multi-word terms win over partial matches.
// Punctuation around a replaced phrase is preserved. Phrases that already
// equal a term are left untouched and not reported.
func (c *Corrector) Correct(text string, vocabulary []string) (string, []Correction) {
	vocab := phonetic.Prepare(vocabulary)
	tokens := strings.Fields(text)
	if vocab.Len() == 0 || len(tokens) == 0 {
		return text, nil
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		n := min(vocab.MaxWords(), len(tokens)-i)
		consumed := 0
		for ; n >= 1; n-- {
			window := tokens[i : i+n]
			lead, phrase, trail := splitPunct(window)
			if phrase == "" {
				continue
			}
			term, conf, ok := c.matcher.Match(phrase, vocab)
			if !ok {
				continue
			}
			if term != phrase {
				corrections = append(corrections, Correction{Original: phrase, Corrected: term, Confidence: conf})
			}
			out = append(out, lead+term+trail)
			consumed = n
			break
		}
		if consumed == 0 {
			out = append(out, tokens[i])
			consumed = 1
		}
		i += consumed
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// splitPunct joins window into a phrase, peeling punctuation off its first
// and last characters.
func splitPunct(window []string) (lead, phrase, trail string) {
	s := strings.Join(window, " ")
	start := strings.IndexFunc(s, isWordRune)
	if start < 0 {
		return "", "", ""
	}
	end := strings.LastIndexFunc(s, isWordRune) + 1
	// LastIndexFunc returns a byte index of the rune start; extend past it.
	for end < len(s) && !isRuneStart(s[end]) {
		end++
	}
	return s[:start], s[start:end], s[end:]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
