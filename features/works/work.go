// Package works serves the catalog of ingested works and single chunks.
package works

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Work is a catalog row.
type Work struct {
	WorkID     string    `json:"work_id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	AuthorID   string    `json:"author_id"`
	SourcePath string    `json:"source_path"`
	ChunkCount int       `json:"chunk_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ChunkView is one chunk as shown in the reader panel.
type ChunkView struct {
	WorkID      string `json:"work_id"`
	ChunkID     string `json:"chunk_id"`
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	Text        string `json:"text"`
	ContextText string `json:"context_text,omitempty"`
	OffsetStart *int   `json:"offset_start,omitempty"`
	OffsetEnd   *int   `json:"offset_end,omitempty"`
}
