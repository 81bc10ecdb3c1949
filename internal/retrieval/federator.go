package retrieval

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bunko/internal/middleware"
)

const (
	DefaultTimeout    = 8 * time.Second
	DefaultWebCeiling = 2 * time.Second

	timeoutMessage  = "Search timeout - partial results returned"
	canceledMessage = "Search cancelled"

	maxWebText    = 500
	maxWebSnippet = 200
)

// Request describes one federated search.
type Request struct {
	Query           string
	InternalCount   int
	ExternalCount   int
	IncludeExternal bool
	// Timeout overrides the federator default when positive.
	Timeout time.Duration
}

// Federator queries the archive and the web concurrently under a single
// deadline.
type Federator struct {
	internal      InternalSource
	web           WebSource
	timeout       time.Duration
	webCeiling    time.Duration
	keepOnTimeout bool
	queryLogger   *QueryLogger
	logger        *slog.Logger
}

// Option configures a Federator.
type Option func(*Federator)

// WithTimeout sets the default deadline for a search.
func WithTimeout(d time.Duration) Option {
	return func(f *Federator) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithWebCeiling caps the time given to the web source.
func WithWebCeiling(d time.Duration) Option {
	return func(f *Federator) {
		if d > 0 {
			f.webCeiling = d
		}
	}
}

// WithKeepCompletedOnTimeout keeps the results of sources that finished
// before the deadline instead of discarding everything.
func WithKeepCompletedOnTimeout(keep bool) Option {
	return func(f *Federator) { f.keepOnTimeout = keep }
}

func WithQueryLogger(l *QueryLogger) Option {
	return func(f *Federator) { f.queryLogger = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Federator) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFederator builds a federator. web may be nil when no provider is
// configured, in which case external results are always empty.
func NewFederator(internal InternalSource, web WebSource, opts ...Option) *Federator {
	f := &Federator{
		internal:   internal,
		web:        web,
		timeout:    DefaultTimeout,
		webCeiling: DefaultWebCeiling,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type outcome struct {
	source Source
	items  []SearchResultItem
	err    error
}

// Search runs the request. It never fails as a whole: per-source problems
// and the deadline are reported in SearchResults.Errors.
func (f *Federator) Search(ctx context.Context, req Request) SearchResults {
	start := time.Now()
	timeout := f.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan outcome, 2)
	pending := 1
	go f.runInternal(ctx, req, results)
	if req.IncludeExternal && req.ExternalCount > 0 && f.web != nil {
		pending++
		go f.runExternal(ctx, req, min(timeout, f.webCeiling), results)
	}

	res := SearchResults{
		Internal: []SearchResultItem{},
		External: []SearchResultItem{},
		Errors:   []string{},
	}
	var done []outcome
	var stopped error

	for pending > 0 && stopped == nil {
		select {
		case o := <-results:
			pending--
			// A source that failed because the shared context ended counts as
			// a timeout or cancellation, not as its own failure.
			if o.err != nil && ctx.Err() != nil {
				stopped = ctx.Err()
				break
			}
			done = append(done, o)
		case <-ctx.Done():
			stopped = ctx.Err()
		}
	}

	if stopped != nil {
		if errors.Is(stopped, context.DeadlineExceeded) {
			f.logger.WarnContext(ctx, "search timed out", "timeout", timeout, "error", ErrDeadlineExceeded)
			res.Errors = append(res.Errors, timeoutMessage)
		} else {
			f.logger.WarnContext(ctx, "search canceled by caller", "error", ErrCanceled)
			res.Errors = append(res.Errors, canceledMessage)
		}
		if !f.keepOnTimeout {
			done = nil
		}
	}

	for _, o := range done {
		if o.err != nil {
			msg := sourceErrorMessage(o.source, o.err)
			f.logger.ErrorContext(ctx, msg)
			res.Errors = append(res.Errors, msg)
			continue
		}
		switch o.source {
		case SourceInternal:
			res.Internal = o.items
		case SourceExternal:
			res.External = o.items
		}
	}

	res.ElapsedMs = time.Since(start).Milliseconds()

	if f.queryLogger != nil {
		timedOut := errors.Is(stopped, context.DeadlineExceeded)
		entry := logEntry(req, res, timedOut)
		entry.CorrelationID = middleware.GetCorrelationID(ctx)
		f.queryLogger.Log(entry)
	}
	return res
}

func (f *Federator) runInternal(ctx context.Context, req Request, out chan<- outcome) {
	o := outcome{source: SourceInternal}
	defer func() {
		if r := recover(); r != nil {
			o.items, o.err = nil, fmt.Errorf("panic: %v", r)
		}
		out <- o
	}()

	if f.internal == nil {
		o.err = ErrSourceUnavailable
		return
	}
	hits, err := f.internal.Query(ctx, req.Query, req.InternalCount)
	if err != nil {
		o.err = err
		return
	}
	o.items = make([]SearchResultItem, 0, len(hits))
	for _, h := range hits {
		o.items = append(o.items, internalItem(h))
	}
}

func (f *Federator) runExternal(ctx context.Context, req Request, ceiling time.Duration, out chan<- outcome) {
	o := outcome{source: SourceExternal}
	defer func() {
		if r := recover(); r != nil {
			o.items, o.err = nil, fmt.Errorf("panic: %v", r)
		}
		out <- o
	}()

	webCtx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	hits, err := f.web.Search(webCtx, req.Query, req.ExternalCount)
	if err != nil {
		o.err = err
		return
	}
	o.items = make([]SearchResultItem, 0, len(hits))
	for i, h := range hits {
		o.items = append(o.items, externalItem(i, h))
	}
}

func sourceErrorMessage(s Source, err error) string {
	if s == SourceInternal {
		return fmt.Sprintf("Internal search error: %v", err)
	}
	return fmt.Sprintf("Web search error: %v", err)
}

func internalItem(h IndexHit) SearchResultItem {
	m := h.Metadata
	start, end := m.OffsetStart, m.OffsetEnd
	id := h.ID
	if id == "" {
		id = m.ChunkID
	}
	return SearchResultItem{
		ID:          id,
		Source:      SourceInternal,
		Text:        h.Document,
		Score:       DistanceScore(h.Distance),
		Title:       m.Title,
		Author:      m.Author,
		WorkID:      m.WorkID,
		OffsetStart: &start,
		OffsetEnd:   &end,
		ContextText: m.ContextText,
	}
}

func externalItem(rank int, h WebHit) SearchResultItem {
	score := 0.8 - 0.05*float64(rank)
	if h.Score != nil {
		score = *h.Score
	}
	text := truncateRunes(h.Text, maxWebText)
	return SearchResultItem{
		ID:      WebResultID(rank, h.URL),
		Source:  SourceExternal,
		Text:    text,
		Score:   score,
		Title:   h.Title,
		URL:     h.URL,
		Snippet: truncateRunes(text, maxWebSnippet),
	}
}

// DistanceScore maps a cosine distance in [0, 2] onto a similarity in [0, 1].
func DistanceScore(distance float64) float64 {
	return max(0, 1-distance/2)
}

// WebResultID is web_{rank}_{first 8 hex digits of md5(url)}.
func WebResultID(rank int, url string) string {
	sum := md5.Sum([]byte(url)) // #nosec G401 -- identifier only
	return fmt.Sprintf("web_%d_%s", rank, hex.EncodeToString(sum[:])[:8])
}

func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
