package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/guardian/internal/models"
	"golang.org/x/time/rate"
)

const DefaultEndpoint = "https://google.serper.dev/search"

// Status tags the outcome of a search.
type Status int

const (
	StatusOK Status = iota
	StatusEmpty
	StatusFailed
	StatusNotConfigured
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	case StatusNotConfigured:
		return "not_configured"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

const (
	emptyMessage         = "No relevant information found on the web."
	notConfiguredMessage = "Search functionality is not configured."
	failedMessageFmt     = "An error occurred during web search: %v"
)

// Result is the outcome of one search. Only StatusOK carries usable text.
type Result struct {
	Status  Status
	Text    string
	Results []models.SearchResult
	Err     error
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Message renders the result for display: the formatted results on success,
// a fixed notice otherwise.
func (r Result) Message() string {
	switch r.Status {
	case StatusOK:
		return r.Text
	case StatusEmpty:
		return emptyMessage
	case StatusNotConfigured:
		return notConfiguredMessage
	default:
		return fmt.Sprintf(failedMessageFmt, r.Err)
	}
}

type ClientConfig struct {
	Endpoint   string
	APIKey     string
	NumResults int
	Timeout    time.Duration
	RateLimit  float64 // requests per second
}

// Client queries a Serper compatible web search API.
type Client struct {
	config  ClientConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWithConfig(config ClientConfig) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.NumResults <= 0 {
		config.NumResults = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}

	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  slog.Default(),
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.config.APIKey != ""
}

type searchRequest struct {
	Q string `json:"q"`
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic"`
}

// Search runs query and formats up to numResults hits. numResults <= 0 uses
// the configured default. Search never returns an error; failures are
// reported through the Result status.
func (c *Client) Search(ctx context.Context, query string, numResults int) Result {
	if !c.Configured() {
		return Result{Status: StatusNotConfigured}
	}
	if numResults <= 0 {
		numResults = c.config.NumResults
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	hits, err := c.do(ctx, query)
	if err != nil {
		c.logger.Warn("web search failed", "err", err)
		return Result{Status: StatusFailed, Err: err}
	}
	if len(hits) == 0 {
		return Result{Status: StatusEmpty}
	}
	if len(hits) > numResults {
		hits = hits[:numResults]
	}

	return Result{
		Status:  StatusOK,
		Text:    Format(hits),
		Results: hits,
	}
}

func (c *Client) do(ctx context.Context, query string) ([]models.SearchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(searchRequest{Q: query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("received status code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	hits := make([]models.SearchResult, 0, len(parsed.Organic))
	for _, o := range parsed.Organic {
		hits = append(hits, models.SearchResult{
			Title:   cleanText(o.Title),
			Snippet: cleanText(o.Snippet),
			Link:    strings.TrimSpace(o.Link),
		})
	}
	return hits, nil
}

// Format renders hits as numbered title/snippet/link records.
func Format(hits []models.SearchResult) string {
	records := make([]string, len(hits))
	for i, h := range hits {
		records[i] = fmt.Sprintf("Result %d:\nTitle: %s\nSnippet: %s\nLink: %s\n",
			i+1,
			orDefault(h.Title, "No Title"),
			orDefault(h.Snippet, "No Snippet"),
			orDefault(h.Link, "No Link"))
	}
	return strings.Join(records, "\n")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// cleanText drops markup and entities that search APIs leave in titles and
// snippets.
func cleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
