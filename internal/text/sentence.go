package text

import (
	"strings"
	"unicode"
)

// Sentence is a span of the source text. Start and End are character
// (rune) offsets into the text it was cut from.
type Sentence struct {
	Text  string
	Start int
	End   int
}

// IsTerminal reports whether r closes a sentence.
func IsTerminal(r rune) bool {
	switch r {
	case '。', '！', '？', '」', '』', '\n':
		return true
	}
	return false
}

// SplitSentences cuts s after every terminal mark. The pieces concatenate
// back to s exactly.
func SplitSentences(s string) []string {
	var out []string
	for _, sent := range spans([]rune(s)) {
		out = append(out, sent.Text)
	}
	return out
}

// Segment cuts s into sentences and drops the blank ones. Offsets of the
// kept sentences still refer to s.
func Segment(s string) []Sentence {
	all := spans([]rune(s))
	out := all[:0]
	for _, sent := range all {
		if strings.TrimSpace(sent.Text) != "" {
			out = append(out, sent)
		}
	}
	return out
}

func spans(rs []rune) []Sentence {
	var out []Sentence
	start := 0
	for i, r := range rs {
		if IsTerminal(r) {
			out = append(out, Sentence{Text: string(rs[start : i+1]), Start: start, End: i + 1})
			start = i + 1
		}
	}
	if start < len(rs) {
		out = append(out, Sentence{Text: string(rs[start:]), Start: start, End: len(rs)})
	}
	return out
}

// EstimateSize approximates the token count of s as two thirds of its
// non-whitespace characters, rounded down.
func EstimateSize(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n * 2 / 3
}
