package retrieval

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// QueryLogEntry is one JSON line of the search log.
type QueryLogEntry struct {
	Time          time.Time `json:"time"`
	CorrelationID string    `json:"correlation_id"`
	Query         string    `json:"query"`
	KInternal     int       `json:"k_internal"`
	KWeb          int       `json:"k_web"`
	IncludeWeb    bool      `json:"include_web"`
	AozoraCount   int       `json:"aozora_count"`
	WebCount      int       `json:"web_count"`
	WorkIDs       []string  `json:"work_ids,omitempty"`
	TimedOut      bool      `json:"timed_out,omitempty"`
	Errors        []string  `json:"errors,omitempty"`
	ElapsedMs     int64     `json:"timing_ms"`
}

// QueryLogger appends search entries as JSON lines. It is safe for
// concurrent use.
type QueryLogger struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	now    func() time.Time
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &QueryLogger{enc: enc, now: time.Now}
}

// NewFileQueryLogger appends to path, creating its directory.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	l := NewQueryLogger(f)
	l.closer = f
	return l, nil
}

func (l *QueryLogger) Log(entry QueryLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.Time.IsZero() {
		entry.Time = l.now().UTC()
	}
	if err := l.enc.Encode(entry); err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}

// Close closes the underlying file, if the logger owns one.
func (l *QueryLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

func logEntry(req Request, res SearchResults, timedOut bool) QueryLogEntry {
	var ids []string
	seen := make(map[string]bool)
	for _, item := range res.Internal {
		if item.WorkID != "" && !seen[item.WorkID] {
			seen[item.WorkID] = true
			ids = append(ids, item.WorkID)
		}
	}
	return QueryLogEntry{
		Query:       req.Query,
		KInternal:   req.InternalCount,
		KWeb:        req.ExternalCount,
		IncludeWeb:  req.IncludeExternal,
		AozoraCount: len(res.Internal),
		WebCount:    len(res.External),
		WorkIDs:     ids,
		TimedOut:    timedOut,
		Errors:      res.Errors,
		ElapsedMs:   res.ElapsedMs,
	}
}
