// Package corpus maps an Aozora Bunko checkout onto works and chunks.
package corpus

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bunko/internal/text"
)

var (
	ErrMalformedPath    = errors.New("malformed work path")
	ErrCardsDirNotFound = errors.New("cards directory not found")
	ErrMalformedChunkID = errors.New("malformed chunk id")
)

// WorkInfo identifies a single literary work.
type WorkInfo struct {
	WorkID     string `json:"work_id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	AuthorID   string `json:"author_id"`
	SourcePath string `json:"source_path"`
}

// ChunkMetadata travels with every indexed chunk.
type ChunkMetadata struct {
	ChunkID     string `json:"chunk_id"`
	WorkID      string `json:"work_id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	SourcePath  string `json:"source_path"`
	ChunkIndex  int    `json:"chunk_index"`
	OffsetStart int    `json:"offset_start"`
	OffsetEnd   int    `json:"offset_end"`
	ChunkTokens int    `json:"chunk_tokens"`
	ContextText string `json:"context_text"`
}

// Chunk is a chunk's text plus its metadata.
type Chunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Params are the size budgets used when chunking a work.
type Params struct {
	TargetSize  int
	OverlapSize int
	ContextSize int
}

func DefaultParams() Params {
	return Params{
		TargetSize:  text.DefaultTargetSize,
		OverlapSize: text.DefaultOverlapSize,
		ContextSize: text.DefaultContextSize,
	}
}

// ChunkID formats the stable id of a chunk.
func ChunkID(workID string, index, offsetStart int) string {
	return fmt.Sprintf("%s:%d:%d", workID, index, offsetStart)
}

// ParseChunkID splits an id produced by ChunkID.
func ParseChunkID(id string) (workID string, index, offsetStart int, err error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrMalformedChunkID, id)
	}
	if index, err = strconv.Atoi(parts[1]); err != nil {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrMalformedChunkID, id)
	}
	if offsetStart, err = strconv.Atoi(parts[2]); err != nil {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrMalformedChunkID, id)
	}
	return parts[0], index, offsetStart, nil
}

// BuildChunks chunks cleaned text and attaches a context window and
// metadata to every chunk.
func BuildChunks(cleaned string, work WorkInfo, p Params) []Chunk {
	var out []Chunk
	chunker := text.NewChunker(cleaned, p.TargetSize, p.OverlapSize)
	idx := 0
	for c := range chunker.All() {
		contextText, _, _ := text.ExpandContext(cleaned, c.OffsetStart, c.OffsetEnd, p.ContextSize)
		out = append(out, Chunk{
			Text: c.Text,
			Metadata: ChunkMetadata{
				ChunkID:     ChunkID(work.WorkID, idx, c.OffsetStart),
				WorkID:      work.WorkID,
				Title:       work.Title,
				Author:      work.Author,
				SourcePath:  work.SourcePath,
				ChunkIndex:  idx,
				OffsetStart: c.OffsetStart,
				OffsetEnd:   c.OffsetEnd,
				ChunkTokens: c.SizeEstimate,
				ContextText: contextText,
			},
		})
		idx++
	}
	return out
}
