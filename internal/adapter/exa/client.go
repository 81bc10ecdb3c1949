// Package exa searches the web through the Exa API.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bunko/internal/retrieval"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.exa.ai"

	maxTextCharacters = 500
)

var ErrMissingAPIKey = errors.New("exa api key is required")

type searchRequest struct {
	Query      string         `json:"query"`
	NumResults int            `json:"numResults"`
	Type       string         `json:"type"`
	Contents   searchContents `json:"contents"`
}

type searchContents struct {
	Text textOptions `json:"text"`
}

type textOptions struct {
	MaxCharacters int `json:"maxCharacters"`
}

type searchResponse struct {
	Results []struct {
		URL   string   `json:"url"`
		Title string   `json:"title"`
		Text  string   `json:"text"`
		Score *float64 `json:"score"`
	} `json:"results"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithRateLimit throttles outgoing requests to rps per second. Zero disables
// throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
		logger:     slog.Default().With("component", "exa-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Search returns up to k web results for query.
func (c *Client) Search(ctx context.Context, query string, k int) ([]retrieval.WebHit, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(searchRequest{
		Query:      query,
		NumResults: k,
		Type:       "auto",
		Contents:   searchContents{Text: textOptions{MaxCharacters: maxTextCharacters}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exa request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("exa returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode exa response: %w", err)
	}

	hits := make([]retrieval.WebHit, 0, len(out.Results))
	for _, r := range out.Results {
		hits = append(hits, retrieval.WebHit{URL: r.URL, Title: r.Title, Text: r.Text, Score: r.Score})
	}

	c.logger.DebugContext(ctx, "exa search completed", "results", len(hits), "duration_ms", time.Since(start).Milliseconds())
	return hits, nil
}
