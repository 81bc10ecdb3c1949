package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"bunko/features/works"
	"bunko/internal/httpx"
	"bunko/internal/retrieval"

	"github.com/google/uuid"
)

const (
	sessionBuffer     = 100
	keepaliveInterval = 15 * time.Second
)

type Searcher interface {
	Search(ctx context.Context, req retrieval.Request) retrieval.SearchResults
}

// Catalog lists works and reads single chunks.
type Catalog interface {
	List(ctx context.Context) ([]works.Work, error)
	GetChunk(ctx context.Context, workID, chunkID string) (*works.ChunkView, error)
}

type Handler struct {
	searcher Searcher
	catalog  Catalog
	tools    []registeredTool
	sessions *sessionHub
}

func NewHandler(s Searcher, c Catalog) *Handler {
	h := &Handler{searcher: s, catalog: c, sessions: newSessionHub()}
	h.registerTools()
	return h
}

// sessionHub routes responses to open SSE streams by session id.
type sessionHub struct {
	mu      sync.RWMutex
	streams map[string]chan []byte
}

func newSessionHub() *sessionHub {
	return &sessionHub{streams: make(map[string]chan []byte)}
}

func (s *sessionHub) open() (string, <-chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, sessionBuffer)
	s.mu.Lock()
	s.streams[id] = ch
	s.mu.Unlock()
	return id, ch
}

func (s *sessionHub) close(id string) {
	s.mu.Lock()
	delete(s.streams, id)
	s.mu.Unlock()
}

func (s *sessionHub) stream(id string) (chan<- []byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.streams[id]
	return ch, ok
}

// dispatch returns nil for notifications.
func (h *Handler) dispatch(ctx context.Context, req Request) *Response {
	if strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}
	switch req.Method {
	case "initialize":
		return success(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": serverName, "version": serverVersion},
		})
	case "ping":
		return success(req.ID, map[string]any{})
	case "tools/list":
		return success(req.ID, h.listTools())
	case "tools/call":
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			slog.WarnContext(ctx, "invalid params structure", "error", err)
			return failure(req.ID, rpcError(ErrInvalidParams, "Invalid params"))
		}
		return h.callTool(ctx, req.ID, params)
	}
	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	return failure(req.ID, rpcError(ErrMethodNotFound, "Method not found"))
}

// ServeHTTP answers a single JSON-RPC request synchronously.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSON(ctx, w, http.StatusOK, failure(nil, rpcError(ErrParse, "Parse error")))
		return
	}
	resp := h.dispatch(ctx, req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	httpx.JSON(ctx, w, http.StatusOK, resp)
}

// HandleSSE opens a session and streams its responses until the client
// disconnects.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Error(ctx, w, http.StatusInternalServerError, httpx.CodeInternal, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, messages := h.sessions.open()
	defer h.sessions.close(id)
	slog.InfoContext(ctx, "sse session started", "session_id", id)

	send := func(event, data string) {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}
	send("endpoint", html.EscapeString(messagesURL(r, id)))

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case msg := <-messages:
			send("message", string(msg))
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			slog.InfoContext(ctx, "sse session ended", "session_id", id)
			return
		}
	}
}

func messagesURL(r *http.Request, sessionID string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/mcp/messages?sessionId=%s", scheme, r.Host, sessionID)
}

// HandleMessage accepts a request for an open session and answers it on the
// session's event stream.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		httpx.Error(ctx, w, http.StatusBadRequest, httpx.CodeValidation, "Missing sessionId")
		return
	}
	stream, ok := h.sessions.stream(sessionID)
	if !ok {
		httpx.Error(ctx, w, http.StatusNotFound, httpx.CodeNotFound, "Session not found")
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(ctx, w, http.StatusBadRequest, httpx.CodeValidation, "Invalid JSON")
		return
	}
	w.WriteHeader(http.StatusAccepted)

	// Keep the correlation id but outlive the POST.
	go h.reply(context.WithoutCancel(ctx), sessionID, stream, req)
}

func (h *Handler) reply(ctx context.Context, sessionID string, stream chan<- []byte, req Request) {
	resp := h.dispatch(ctx, req)
	if resp == nil {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal response", "error", err)
		return
	}
	// Streams are never closed; a vanished session just stops draining.
	select {
	case stream <- b:
	default:
		slog.WarnContext(ctx, "session buffer full, dropping message", "session_id", sessionID)
	}
}
