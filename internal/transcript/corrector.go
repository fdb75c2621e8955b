package transcript

import (
	"strings"
	"unicode"

	"github.com/MrWong99/voxscribe/internal/transcript/phonetic"
)

// Correction records a single substitution made by a [Corrector].
type Correction struct {
	// Original is the phrase as produced by the recognizer.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the matcher's similarity score (0.0–1.0).
	Confidence float64
}

// Corrector rewrites recognized text. Implementations must be safe for
// concurrent use.
type Corrector interface {
	Correct(text string) (string, []Correction)
}

// VocabularyCorrector replaces words and phrases that sound like a term of a
// fixed vocabulary with that term's canonical spelling.
type VocabularyCorrector struct {
	matcher *phonetic.Matcher
	vocab   *phonetic.Vocabulary
}

var _ Corrector = (*VocabularyCorrector)(nil)

// NewVocabularyCorrector builds a corrector for terms. A nil matcher uses
// [phonetic.New] with default thresholds.
func NewVocabularyCorrector(terms []string, matcher *phonetic.Matcher) *VocabularyCorrector {
	if matcher == nil {
		matcher = phonetic.New()
	}
	return &VocabularyCorrector{matcher: matcher, vocab: phonetic.NewVocabulary(terms)}
}

// Correct scans text left to right. At each word it tries windows from the
// longest vocabulary term's word count down to a single word and keeps the
// first match, so multi-word terms win over partial single-word matches.
// Punctuation around a matched window is preserved. Whitespace is
// normalized to single spaces.
func (c *VocabularyCorrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	maxWords := c.vocab.MaxWords()
	if len(tokens) == 0 || maxWords == 0 {
		return text, nil
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		matched := false
		for n := min(maxWords, len(tokens)-i); n >= 1; n-- {
			prefix, core, suffix := splitPunct(strings.Join(tokens[i:i+n], " "))
			if core == "" {
				continue
			}
			term, conf, ok := c.matcher.Match(core, c.vocab)
			if !ok {
				continue
			}
			out = append(out, prefix+term+suffix)
			if term != core {
				corrections = append(corrections, Correction{Original: core, Corrected: term, Confidence: conf})
			}
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return strings.Join(out, " "), corrections
}

// splitPunct separates leading and trailing punctuation from s.
func splitPunct(s string) (prefix, core, suffix string) {
	core = strings.TrimLeftFunc(s, unicode.IsPunct)
	prefix = s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsPunct)
	suffix = core[len(trimmed):]
	return prefix, trimmed, suffix
}
