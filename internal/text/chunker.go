package text

import "iter"

const (
	DefaultTargetSize  = 400
	DefaultOverlapSize = 50
)

// Chunk is a run of whole sentences. Offsets are character offsets into
// the text passed to NewChunker.
type Chunk struct {
	Text         string
	OffsetStart  int
	OffsetEnd    int
	SizeEstimate int
}

// Chunker packs sentences into chunks close to a size budget, carrying a
// few trailing sentences into the next chunk. It is single-pass: once
// Next reports false the chunker is spent.
type Chunker struct {
	runes     []rune
	sentences []Sentence
	sizes     []int
	target    int
	overlap   int

	pos     int
	buf     []int
	bufSize int
	done    bool

	// from is where the next chunk starts when nothing was carried over,
	// so blanks dropped between sentences still belong to some chunk.
	from int
}

// NewChunker prepares s for chunking. Non-positive budgets fall back to
// the defaults and a negative overlap is treated as zero.
func NewChunker(s string, target, overlap int) *Chunker {
	if target <= 0 {
		target = DefaultTargetSize
	}
	if overlap < 0 {
		overlap = 0
	}
	sentences := Segment(s)
	sizes := make([]int, len(sentences))
	for i, sent := range sentences {
		sizes[i] = EstimateSize(sent.Text)
	}
	return &Chunker{
		runes:     []rune(s),
		sentences: sentences,
		sizes:     sizes,
		target:    target,
		overlap:   overlap,
		from:      -1,
	}
}

// Next returns the next chunk, or false when the text is exhausted.
func (c *Chunker) Next() (Chunk, bool) {
	if c.done {
		return Chunk{}, false
	}
	for c.pos < len(c.sentences) {
		i := c.pos
		c.pos++
		if c.bufSize+c.sizes[i] > c.target && len(c.buf) > 0 {
			chunk := c.emit()
			c.carryOverlap(chunk.OffsetEnd)
			c.push(i)
			return chunk, true
		}
		c.push(i)
	}
	c.done = true
	if len(c.buf) == 0 {
		return Chunk{}, false
	}
	chunk := c.emit()
	c.buf = nil
	return chunk, true
}

// All yields the remaining chunks in order.
func (c *Chunker) All() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for {
			chunk, ok := c.Next()
			if !ok || !yield(chunk) {
				return
			}
		}
	}
}

func (c *Chunker) push(i int) {
	c.buf = append(c.buf, i)
	c.bufSize += c.sizes[i]
}

func (c *Chunker) emit() Chunk {
	start := c.sentences[c.buf[0]].Start
	if c.from >= 0 && c.from < start {
		start = c.from
	}
	last := c.sentences[c.buf[len(c.buf)-1]]
	return Chunk{
		Text:         string(c.runes[start:last.End]),
		OffsetStart:  start,
		OffsetEnd:    last.End,
		SizeEstimate: c.bufSize,
	}
}

// carryOverlap keeps the longest suffix of the buffer that fits within the
// overlap budget. When no sentence fits, the next chunk starts where the
// previous one ended.
func (c *Chunker) carryOverlap(prevEnd int) {
	keep := 0
	size := 0
	for j := len(c.buf) - 1; j >= 0; j-- {
		s := c.sizes[c.buf[j]]
		if size+s > c.overlap {
			break
		}
		size += s
		keep++
	}
	c.buf = append([]int(nil), c.buf[len(c.buf)-keep:]...)
	c.bufSize = size
	c.from = -1
	if keep == 0 {
		c.from = prevEnd
	}
}
