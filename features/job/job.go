// Package job exposes documents that failed ingestion and lets an operator
// retry them.
package job

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no failed document has the given id.
var ErrNotFound = errors.New("failed document not found")

// Job is a failed document.
type Job struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows List. Zero values mean no restriction.
type Filter struct {
	Stage string
	Limit int
}
