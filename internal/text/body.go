package text

import (
	"regexp"
	"strings"
)

const (
	headerWindow         = 50
	headerFallbackWindow = 20
	footerWindow         = 50
)

var ruleLine = regexp.MustCompile(`^[-－ー―─━]{10,}$`)

var footerMarkers = []string{
	"底本：",
	"底本:",
	"入力：",
	"校正：",
	"このファイルは",
	"青空文庫作成ファイル",
	"-------",
	"━━━━━",
}

var creditKeywords = []string{"作者", "著者", "訳者"}

// ExtractBody returns the literary body of an Aozora text, dropping the
// title block, the notation legend and the colophon.
//
// The body starts after the last horizontal rule found in the first lines
// of the file. Without a rule it starts after the first blank line whose
// preceding header mentions an author or translator, and otherwise at the
// top. It ends before the colophon found near the end. When the bounds
// cross the result is empty.
func ExtractBody(text string) string {
	lines := strings.Split(text, "\n")
	start := bodyStart(lines)
	end := bodyEnd(lines, start)
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

func bodyStart(lines []string) int {
	start := -1
	for i := 0; i < len(lines) && i < headerWindow; i++ {
		if ruleLine.MatchString(strings.TrimSpace(lines[i])) {
			start = i + 1
		}
	}
	if start >= 0 {
		return start
	}

	for i := 1; i < len(lines) && i < headerFallbackWindow; i++ {
		if strings.TrimSpace(lines[i]) != "" || strings.TrimSpace(lines[i-1]) == "" {
			continue
		}
		if containsAny(strings.Join(lines[:i], "\n"), creditKeywords) {
			return i + 1
		}
	}
	return 0
}

// bodyEnd stops at the first colophon line found walking the tail
// backwards, then climbs through the colophon lines directly above it so a
// multi-line colophon is dropped as a whole. The climb stops at the first
// line that is not colophon. It never looks above start, so header rules are
// not mistaken for a colophon separator in short files.
func bodyEnd(lines []string, start int) int {
	floor := max(len(lines)-footerWindow, start, 1)
	for i := len(lines) - 1; i >= floor; i-- {
		if !isColophon(lines[i]) {
			continue
		}
		for i-1 >= floor && isColophon(lines[i-1]) {
			i--
		}
		return i
	}
	return len(lines)
}

func isColophon(line string) bool {
	line = strings.TrimSpace(line)
	return containsAny(line, footerMarkers) || ruleLine.MatchString(line)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
