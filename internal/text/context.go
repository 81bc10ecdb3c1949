package text

// DefaultContextSize is the size budget of a context window, split evenly
// before and after the chunk.
const DefaultContextSize = 2000

// ExpandContext widens the span [start, end) of s to roughly size tokens
// and snaps both ends to sentence boundaries. The returned offsets always
// contain the original span.
func ExpandContext(s string, start, end, size int) (string, int, int) {
	rs := []rune(s)
	start = clamp(start, 0, len(rs))
	end = clamp(end, start, len(rs))

	half := max(size, 0) * 3 / 2 / 2
	from := max(0, start-half)
	to := min(len(rs), end+half)

	if from > 0 {
		snapped := 0
		for i := from - 1; i >= 0; i-- {
			if IsTerminal(rs[i]) {
				snapped = i + 1
				break
			}
		}
		from = snapped
	}
	if to < len(rs) {
		snapped := len(rs)
		for i := to; i < len(rs); i++ {
			if IsTerminal(rs[i]) {
				snapped = i + 1
				break
			}
		}
		to = snapped
	}
	return string(rs[from:to]), from, to
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
