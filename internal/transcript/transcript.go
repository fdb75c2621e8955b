// Package transcript turns per-chunk recognition text into the final
// transcript of a job.
//
// [Normalize] cleans the spacing left behind when fragments that each end in
// ". " or carry a bracketed marker are concatenated. [Join] concatenates
// fragments in order and normalizes the result. [VocabularyCorrector]
// optionally replaces misrecognized domain terms before fragments are
// formatted.
package transcript

import "strings"

// Normalize collapses every run of two or more spaces to a single space,
// removes any space directly before a period and trims surrounding
// whitespace. Normalize is idempotent.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := false
	for _, r := range raw {
		if r == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(strings.ReplaceAll(b.String(), " .", "."))
}

// Join concatenates fragment texts in order and normalizes the result.
// Fragments carry their own trailing separators, so no delimiter is added.
func Join(fragments []string) string {
	return Normalize(strings.Join(fragments, ""))
}
