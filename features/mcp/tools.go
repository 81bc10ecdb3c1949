package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bunko/features/works"
	"bunko/internal/retrieval"
)

const (
	toolSearch    = "bunko_search"
	toolListWorks = "bunko_list_works"
	toolReadChunk = "bunko_read_chunk"

	defaultLimit = 5
	maxLimit     = 20
	webLimit     = 3
)

type SearchArgs struct {
	Query      string `json:"query"`
	Limit      *int   `json:"limit,omitempty"`
	IncludeWeb bool   `json:"include_web,omitempty"`
}

type ReadChunkArgs struct {
	WorkID  string `json:"work_id"`
	ChunkID string `json:"chunk_id"`
}

// toolFunc runs a tool. An *RPCError return becomes a JSON-RPC error; any
// other error is reported to the model as an error result.
type toolFunc func(ctx context.Context, args json.RawMessage) (ToolResult, error)

type registeredTool struct {
	Tool
	run toolFunc
}

func property(typ, description string) map[string]any {
	p := map[string]any{"type": typ}
	if description != "" {
		p["description"] = description
	}
	return p
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (h *Handler) registerTools() {
	limit := property("integer", fmt.Sprintf("Max archive results to return (default %d).", defaultLimit))
	limit["minimum"], limit["maximum"] = 1, maxLimit

	h.tools = []registeredTool{
		{
			Tool: Tool{
				Name: toolSearch,
				Description: fmt.Sprintf(`Search the Aozora Bunko archive of Japanese literature, optionally together with the web. Queries may be Japanese or English.

Returns up to %d archive passages (default %d), each with the work_id and chunk_id needed by %s.

Example: %s(query="下人の行方", limit=5)`, maxLimit, defaultLimit, toolReadChunk, toolSearch),
				InputSchema: objectSchema(map[string]any{
					"query":       property("string", "The search query"),
					"limit":       limit,
					"include_web": property("boolean", "Also return web results"),
				}, "query"),
			},
			run: h.search,
		},
		{
			Tool: Tool{
				Name:        toolListWorks,
				Description: "Lists every indexed work with its id, title and author.",
				InputSchema: objectSchema(map[string]any{}),
			},
			run: h.listWorks,
		},
		{
			Tool: Tool{
				Name: toolReadChunk,
				Description: fmt.Sprintf(`Returns a search hit together with its surrounding passage. Use the work_id and chunk_id printed by %s.

Example: %s(work_id="127", chunk_id="127:3:1180")`, toolSearch, toolReadChunk),
				InputSchema: objectSchema(map[string]any{
					"work_id":  property("string", ""),
					"chunk_id": property("string", ""),
				}, "work_id", "chunk_id"),
			},
			run: h.readChunk,
		},
	}
}

func (h *Handler) listTools() ListToolsResult {
	out := make([]Tool, len(h.tools))
	for i, t := range h.tools {
		out[i] = t.Tool
	}
	return ListToolsResult{Tools: out}
}

func (h *Handler) callTool(ctx context.Context, id any, params CallParams) *Response {
	for _, t := range h.tools {
		if t.Name != params.Name {
			continue
		}
		res, err := t.run(ctx, params.Arguments)
		var rpcErr *RPCError
		switch {
		case errors.As(err, &rpcErr):
			return failure(id, rpcErr)
		case err != nil:
			slog.ErrorContext(ctx, "tool failed", "tool", t.Name, "error", err)
			return success(id, errorResult("Error: "+err.Error()))
		}
		return success(id, res)
	}
	slog.WarnContext(ctx, "tool not found", "tool", params.Name)
	return failure(id, rpcError(ErrMethodNotFound, "Method not found: %s", params.Name))
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return rpcError(ErrInvalidParams, "Invalid arguments")
	}
	return nil
}

func (h *Handler) search(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	var args SearchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return ToolResult{}, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return ToolResult{}, rpcError(ErrInvalidParams, "Query is required")
	}
	limit := defaultLimit
	if args.Limit != nil {
		if *args.Limit < 1 || *args.Limit > maxLimit {
			return ToolResult{}, rpcError(ErrInvalidParams, "Limit must be between 1 and %d", maxLimit)
		}
		limit = *args.Limit
	}
	if h.searcher == nil {
		return ToolResult{}, rpcError(ErrInternal, "Search is not configured")
	}

	res := h.searcher.Search(ctx, retrieval.Request{
		Query:           args.Query,
		InternalCount:   limit,
		ExternalCount:   webLimit,
		IncludeExternal: args.IncludeWeb,
	})
	slog.InfoContext(ctx, "tool execution completed", "tool", toolSearch,
		"internal", len(res.Internal), "external", len(res.External))
	return textResult(formatSearch(res)), nil
}

func (h *Handler) listWorks(ctx context.Context, _ json.RawMessage) (ToolResult, error) {
	if h.catalog == nil {
		return ToolResult{}, rpcError(ErrInternal, "Catalog is not configured")
	}
	list, err := h.catalog.List(ctx)
	if err != nil {
		return ToolResult{}, err
	}
	if len(list) == 0 {
		return textResult("No works found."), nil
	}

	type entry struct {
		WorkID string `json:"work_id"`
		Title  string `json:"title"`
		Author string `json:"author"`
	}
	out := make([]entry, len(list))
	for i, w := range list {
		out[i] = entry{WorkID: w.WorkID, Title: w.Title, Author: w.Author}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return ToolResult{}, err
	}
	return textResult(string(b)), nil
}

func (h *Handler) readChunk(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	var args ReadChunkArgs
	if err := decodeArgs(raw, &args); err != nil {
		return ToolResult{}, err
	}
	if args.WorkID == "" || args.ChunkID == "" {
		return ToolResult{}, rpcError(ErrInvalidParams, "work_id and chunk_id are required")
	}
	if h.catalog == nil {
		return ToolResult{}, rpcError(ErrInternal, "Catalog is not configured")
	}

	chunk, err := h.catalog.GetChunk(ctx, args.WorkID, args.ChunkID)
	if errors.Is(err, works.ErrNotFound) {
		return textResult("No chunk found for this work."), nil
	}
	if err != nil {
		return ToolResult{}, err
	}

	body := chunk.ContextText
	if body == "" {
		body = chunk.Text
	}
	return textResult(fmt.Sprintf("%s / %s\nChunk: %s\n\n%s", chunk.Title, chunk.Author, chunk.ChunkID, body)), nil
}

func formatSearch(res retrieval.SearchResults) string {
	var b strings.Builder
	if len(res.Internal) == 0 && len(res.External) == 0 {
		b.WriteString("No results found.\n")
	}
	for i, item := range res.Internal {
		fmt.Fprintf(&b, "Result %d (Score: %.2f):\n", i+1, item.Score)
		fmt.Fprintf(&b, "Title: %s\nAuthor: %s\nWorkID: %s\nChunkID: %s\n", item.Title, item.Author, item.WorkID, item.ID)
		fmt.Fprintf(&b, "Content:\n%s\n\n---\n", item.Text)
	}
	for i, item := range res.External {
		fmt.Fprintf(&b, "Web %d: %s\nURL: %s\n%s\n\n---\n", i+1, item.Title, item.URL, item.Snippet)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(&b, "Warning: %s\n", e)
	}
	if len(res.Internal) > 0 {
		fmt.Fprintf(&b, "\nUse %s(work_id=\"...\", chunk_id=\"...\") to read the surrounding passage.\n", toolReadChunk)
	}
	return b.String()
}
