// Package phonetic matches misrecognized words against a fixed vocabulary of
// domain terms using Double Metaphone codes and Jaro-Winkler similarity.
//
// A term is a phonetic candidate when any Double Metaphone code of the input
// tokens equals a code of the term's tokens. Candidates are ranked by
// Jaro-Winkler similarity and accepted above the phonetic threshold. Without
// a phonetic candidate, a term may still match on string similarity alone if
// it clears the stricter fuzzy threshold.
//
// A phrase is only compared with terms of the same word count. Multi-word
// terms such as "Kubernetes operator" are scored by the mean similarity of
// their aligned words.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matched term. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term that
// shares no phonetic code with the input. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with opts.
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

// term is a vocabulary entry with its lowercase tokens and phonetic codes
// computed once.
type term struct {
	text   string
	tokens []string
	codes  map[string]struct{}
}

// Vocabulary is a prepared set of terms. Build it once with
// [NewVocabulary] and share it between goroutines.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// NewVocabulary prepares terms for matching. Blank terms are dropped.
func NewVocabulary(terms []string) *Vocabulary {
	v := &Vocabulary{}
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			text:   strings.TrimSpace(t),
			tokens: tokens,
			codes:  codesForTokens(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of usable terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// MaxWords returns the word count of the longest term, or 0 when empty.
func (v *Vocabulary) MaxWords() int { return v.maxWords }

// Match returns the vocabulary term closest to phrase among the terms with
// as many words as phrase. When matched is false, corrected equals phrase and
// confidence is 0.
func (m *Matcher) Match(phrase string, vocab *Vocabulary) (corrected string, confidence float64, matched bool) {
	if vocab == nil || vocab.Len() == 0 || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	tokens := strings.Fields(strings.ToLower(phrase))
	codes := codesForTokens(tokens)

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	for i := range vocab.terms {
		t := &vocab.terms[i]
		if len(t.tokens) != len(tokens) {
			continue
		}
		score := alignedScore(tokens, t.tokens)
		if codesOverlap(codes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t, score
		}
	}
	if best == nil {
		return phrase, 0, false
	}
	return best.text, bestScore, true
}

// codesForTokens returns the union of the non-empty Double Metaphone codes of
// tokens.
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

func codesOverlap(a, b map[string]struct{}) bool {
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

// alignedScore is the mean Jaro-Winkler similarity of the word pairs at equal
// positions. a and b must have the same length.
func alignedScore(a, b []string) float64 {
	var sum float64
	for i := range a {
		sum += matchr.JaroWinkler(a[i], b[i], false)
	}
	return sum / float64(len(a))
}
