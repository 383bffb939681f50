package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"knowledge/types"
)

// Segment splits page text into sentences, keeping each sentence on the page
// it was read from. Sentences running over a page break stay split.
func Segment(pages []types.PageText) []types.SentenceUnit {
	var units []types.SentenceUnit
	for _, page := range pages {
		for _, s := range SplitSentences(page.Text) {
			units = append(units, types.SentenceUnit{Text: s, PageNumber: page.PageNumber})
		}
	}
	return units
}

// SplitSentences breaks text at whitespace that follows '.', '!' or '?'.
// Results are trimmed and blanks are dropped.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
		prev  rune
	)
	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) && isTerminal(prev) {
			emit(text[start:i])
			j := i
			for j < len(text) {
				r2, s2 := utf8.DecodeRuneInString(text[j:])
				if !unicode.IsSpace(r2) {
					break
				}
				j += s2
			}
			start, i, prev = j, j, 0
			continue
		}
		prev = r
		i += size
	}
	emit(text[start:])
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
