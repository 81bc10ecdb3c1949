package text

import (
	"regexp"
	"strings"
)

var (
	// ｜base《reading》 with an explicit base marker.
	rubyMarked = regexp.MustCompile(`[｜|]([^《|｜]+)《[^》]*》`)
	// 漢字《かんじ》 where the base is the preceding ideograph run.
	rubyImplicit = regexp.MustCompile(`([\p{Han}々〆ヶ]+)《[^》]*》`)
	// Any reading left over, e.g. after kana bases.
	rubyOrphan = regexp.MustCompile(`《[^》]*》`)

	editorialNote = regexp.MustCompile(`※?［＃[^］]*］`)

	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// StripRuby removes reading guides and keeps the base text.
func StripRuby(s string) string {
	s = rubyMarked.ReplaceAllString(s, "$1")
	s = rubyImplicit.ReplaceAllString(s, "$1")
	return rubyOrphan.ReplaceAllString(s, "")
}

// StripNotes removes ［＃...］ editorial notes and the ※ that may lead them.
func StripNotes(s string) string {
	return editorialNote.ReplaceAllString(s, "")
}

// NormalizeWhitespace collapses runs of spaces and tabs, limits blank
// lines to one and trims the ends.
func NormalizeWhitespace(s string) string {
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Clean runs the full cleaning chain over decoded text.
func Clean(s string) string {
	s = ExtractBody(s)
	s = StripRuby(s)
	s = StripNotes(s)
	return NormalizeWhitespace(s)
}
