// Package trendradar is a Go client for the tool server's HTTP
// transport. It posts tool envelopes to /mcp and decodes the responses,
// surfacing tool failures as typed errors.
package trendradar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Client calls named tools on a trendradar server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL, e.g.
// "http://localhost:3333".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetHTTPClient swaps the underlying HTTP client, for custom timeouts or
// transports.
func (c *Client) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

// Error is a failed tool call, carrying the server's wire code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Envelope is one decoded tool response.
type Envelope map[string]any

type callRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Call invokes a tool and returns the decoded envelope. When the server
// reports success:false the envelope is returned together with an *Error
// built from its error object.
func (c *Client) Call(ctx context.Context, tool string, args map[string]any) (Envelope, error) {
	body, err := c.post(ctx, tool, args)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", tool, err)
	}
	if err := envelopeError(body); err != nil {
		return env, err
	}
	return env, nil
}

// callInto invokes a tool and decodes the successful envelope into out.
func (c *Client) callInto(ctx context.Context, tool string, args map[string]any, out any) error {
	body, err := c.post(ctx, tool, args)
	if err != nil {
		return err
	}
	if err := envelopeError(body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", tool, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, tool string, args map[string]any) ([]byte, error) {
	payload, err := json.Marshal(callRequest{ToolName: tool, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", tool, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", tool, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", tool, err)
	}

	// Tool failures still arrive as HTTP 200 envelopes; anything else
	// non-2xx without a decodable envelope is a transport problem.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if !json.Valid(body) {
			return nil, fmt.Errorf("%s: http %d: %s", tool, resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	return body, nil
}

// envelopeError extracts the error object of a success:false envelope.
func envelopeError(body []byte) error {
	var probe struct {
		Success bool   `json:"success"`
		Error   *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}
	if probe.Success {
		return nil
	}
	if probe.Error != nil {
		return probe.Error
	}
	return &Error{Code: "INTERNAL_ERROR", Message: "server reported failure without error detail"}
}

// ---------------------------------------------------------------------------
// Typed tool results
// ---------------------------------------------------------------------------

// DateRange is the server's inclusive date span, both bounds YYYY-MM-DD.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ResolveDateRangeResult is the response of resolve_date_range.
type ResolveDateRangeResult struct {
	Expression  string    `json:"expression"`
	DateRange   DateRange `json:"date_range"`
	CurrentDate string    `json:"current_date"`
	Description string    `json:"description"`
}

// NewsItem is one title in a tool response.
type NewsItem struct {
	Title        string  `json:"title"`
	PlatformID   string  `json:"platform_id"`
	PlatformName string  `json:"platform_name"`
	Date         string  `json:"date,omitempty"`
	Rank         int     `json:"rank"`
	Ranks        []int   `json:"ranks,omitempty"`
	Count        int     `json:"count"`
	FirstTime    string  `json:"first_time,omitempty"`
	LastTime     string  `json:"last_time,omitempty"`
	TimeDisplay  string  `json:"time_display,omitempty"`
	Weight       float64 `json:"weight"`
	URL          string  `json:"url,omitempty"`
	MobileURL    string  `json:"mobile_url,omitempty"`
}

// LatestNewsResult is the response of get_latest_news.
type LatestNewsResult struct {
	Date          string     `json:"date"`
	CrawlTime     string     `json:"crawl_time"`
	Platforms     []string   `json:"platforms"`
	TotalItems    int        `json:"total_items"`
	ReturnedItems int        `json:"returned_items"`
	Items         []NewsItem `json:"items"`
}

// NewsByDateResult is the response of get_news_by_date.
type NewsByDateResult struct {
	DateRange     DateRange  `json:"date_range"`
	DaysWithData  []string   `json:"days_with_data"`
	Platforms     []string   `json:"platforms"`
	TotalItems    int        `json:"total_items"`
	ReturnedItems int        `json:"returned_items"`
	Items         []NewsItem `json:"items"`
}

// TriggerCrawlResult is the response of trigger_crawl. SavedToLocal is
// false when the fetch succeeded but persistence failed; SaveError then
// carries the cause.
type TriggerCrawlResult struct {
	TaskID          string            `json:"task_id"`
	Status          string            `json:"status"`
	CrawlTime       string            `json:"crawl_time"`
	Platforms       []string          `json:"platforms"`
	TotalNews       int               `json:"total_news"`
	FailedPlatforms []string          `json:"failed_platforms"`
	SavedToLocal    bool              `json:"saved_to_local"`
	SavedFiles      map[string]string `json:"saved_files,omitempty"`
	SaveError       string            `json:"save_error,omitempty"`
	Note            string            `json:"note,omitempty"`
}

// ---------------------------------------------------------------------------
// Typed helpers
// ---------------------------------------------------------------------------

// ResolveDateRange parses a natural-language date expression server-side.
func (c *Client) ResolveDateRange(ctx context.Context, expression string) (*ResolveDateRangeResult, error) {
	var out ResolveDateRangeResult
	err := c.callInto(ctx, "resolve_date_range", map[string]any{"expression": expression}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestNews fetches today's most recent board snapshot. Zero limit uses
// the server default.
func (c *Client) LatestNews(ctx context.Context, platforms []string, limit int, includeURL bool) (*LatestNewsResult, error) {
	args := map[string]any{"include_url": includeURL}
	if len(platforms) > 0 {
		args["platforms"] = platforms
	}
	if limit > 0 {
		args["limit"] = limit
	}
	var out LatestNewsResult
	if err := c.callInto(ctx, "get_latest_news", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewsByDate unions the merged data of every day in the range. dateRange
// accepts the same expressions as resolve_date_range; nil means today.
func (c *Client) NewsByDate(ctx context.Context, dateRange any, platforms []string, limit int, includeURL bool) (*NewsByDateResult, error) {
	args := map[string]any{"include_url": includeURL}
	if dateRange != nil {
		args["date_range"] = dateRange
	}
	if len(platforms) > 0 {
		args["platforms"] = platforms
	}
	if limit > 0 {
		args["limit"] = limit
	}
	var out NewsByDateResult
	if err := c.callInto(ctx, "get_news_by_date", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TriggerCrawl runs an immediate crawl of the given platforms (nil means
// all configured) and reports the save outcome.
func (c *Client) TriggerCrawl(ctx context.Context, platforms []string, saveToLocal bool) (*TriggerCrawlResult, error) {
	args := map[string]any{"save_to_local": saveToLocal}
	if len(platforms) > 0 {
		args["platforms"] = platforms
	}
	var out TriggerCrawlResult
	if err := c.callInto(ctx, "trigger_crawl", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchNews searches titles. mode is keyword, fuzzy or entity.
func (c *Client) SearchNews(ctx context.Context, query, mode string, dateRange any, limit int) (Envelope, error) {
	args := map[string]any{"query": query}
	if mode != "" {
		args["search_mode"] = mode
	}
	if dateRange != nil {
		args["date_range"] = dateRange
	}
	if limit > 0 {
		args["limit"] = limit
	}
	return c.Call(ctx, "search_news", args)
}

// TrendingTopics ranks the hottest keyword groups.
func (c *Client) TrendingTopics(ctx context.Context, topN int, mode string) (Envelope, error) {
	args := map[string]any{}
	if topN > 0 {
		args["top_n"] = topN
	}
	if mode != "" {
		args["mode"] = mode
	}
	return c.Call(ctx, "get_trending_topics", args)
}

// SyncFromRemote pulls the last N day databases from the object store.
func (c *Client) SyncFromRemote(ctx context.Context, days int) (Envelope, error) {
	args := map[string]any{}
	if days > 0 {
		args["days"] = days
	}
	return c.Call(ctx, "sync_from_remote", args)
}

// SystemStatus reports server uptime, storage backend and data coverage.
func (c *Client) SystemStatus(ctx context.Context) (Envelope, error) {
	return c.Call(ctx, "get_system_status", nil)
}

// StorageStatus reports day-store paths, sizes and retention settings.
func (c *Client) StorageStatus(ctx context.Context) (Envelope, error) {
	return c.Call(ctx, "get_storage_status", nil)
}

// ListAvailableDates lists days with data. source is local, remote or
// both.
func (c *Client) ListAvailableDates(ctx context.Context, source string) (Envelope, error) {
	args := map[string]any{}
	if source != "" {
		args["source"] = source
	}
	return c.Call(ctx, "list_available_dates", args)
}
