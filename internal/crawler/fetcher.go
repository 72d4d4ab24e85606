// Package crawler fetches current hot boards from a newsnow-compatible
// aggregation API and shapes them for the storage layer.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"trendradar/internal/config"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

// Fetcher pulls the current hot board of each requested platform.
type Fetcher interface {
	// CrawlWebsites fetches every platform in order, pacing requests by
	// requestInterval. A platform that cannot be fetched lands in the
	// returned failed id list and never aborts the batch; the error is
	// non-nil only when the context ends the run early.
	CrawlWebsites(ctx context.Context, platforms []config.Platform, requestInterval time.Duration) (map[string]map[string]storage.TitleData, map[string]string, []string, error)
}

// boardResponse is the wire shape of one hot-board request.
type boardResponse struct {
	Status string      `json:"status"`
	Items  []boardItem `json:"items"`
}

type boardItem struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	MobileURL string `json:"mobileUrl"`
}

// Client is the HTTP implementation of Fetcher.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker[*boardResponse]
	log        zerolog.Logger
}

var _ Fetcher = (*Client)(nil)

// NewClient builds a board API client from the crawler configuration. An
// unparseable proxy URL is logged and skipped rather than failing the
// constructor.
func NewClient(cfg config.Crawler, logger zerolog.Logger) *Client {
	log := logger.With().Str("component", "crawler").Logger()

	transport := http.DefaultTransport
	if cfg.UseProxy && cfg.DefaultProxy != "" {
		proxyURL, err := url.Parse(cfg.DefaultProxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", cfg.DefaultProxy).Msg("ignoring unusable proxy url")
		} else {
			t := http.DefaultTransport.(*http.Transport).Clone()
			t.Proxy = http.ProxyURL(proxyURL)
			transport = t
		}
	}

	breaker := gobreaker.NewCircuitBreaker[*boardResponse](gobreaker.Settings{
		Name:    "board-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second, Transport: transport},
		baseURL:    cfg.BaseURL,
		breaker:    breaker,
		log:        log,
	}
}

// CrawlWebsites implements Fetcher.
func (c *Client) CrawlWebsites(ctx context.Context, platforms []config.Platform, requestInterval time.Duration) (map[string]map[string]storage.TitleData, map[string]string, []string, error) {
	if requestInterval <= 0 {
		requestInterval = time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(requestInterval), 1)

	results := make(map[string]map[string]storage.TitleData, len(platforms))
	idToName := make(map[string]string, len(platforms))
	var failedIDs []string

	for _, p := range platforms {
		if err := limiter.Wait(ctx); err != nil {
			return results, idToName, failedIDs, err
		}

		name := p.Name
		if name == "" {
			name = p.ID
		}
		idToName[p.ID] = name

		board, err := c.fetchBoard(ctx, p.ID)
		if err != nil {
			c.log.Warn().Err(err).Str("platform", p.ID).Msg("board fetch failed")
			failedIDs = append(failedIDs, p.ID)
			continue
		}

		titles := make(map[string]storage.TitleData, len(board.Items))
		for i, item := range board.Items {
			title := strings.TrimSpace(item.Title)
			if title == "" {
				continue
			}
			// A title repeated on the board keeps one entry with every
			// position it occupied.
			if existing, ok := titles[title]; ok {
				existing.Ranks = append(existing.Ranks, i+1)
				titles[title] = existing
				continue
			}
			titles[title] = storage.TitleData{
				Ranks:     []int{i + 1},
				URL:       item.URL,
				MobileURL: item.MobileURL,
			}
		}
		results[p.ID] = titles
		c.log.Debug().Str("platform", p.ID).Int("titles", len(titles)).Msg("board fetched")
	}

	return results, idToName, failedIDs, nil
}

func (c *Client) fetchBoard(ctx context.Context, platformID string) (*boardResponse, error) {
	var board *boardResponse
	err := util.Retry(ctx, 2, time.Second, func() error {
		b, err := c.breaker.Execute(func() (*boardResponse, error) {
			return c.fetchOnce(ctx, platformID)
		})
		if err != nil {
			return err
		}
		board = b
		return nil
	})
	return board, err
}

func (c *Client) fetchOnce(ctx context.Context, platformID string) (*boardResponse, error) {
	u := c.baseURL + "?id=" + url.QueryEscape(platformID) + "&latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("board api status %d", resp.StatusCode)
	}

	var board boardResponse
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		return nil, err
	}
	// The aggregator answers "success" for fresh boards and "cache" for
	// recently cached ones. Both carry usable items.
	if board.Status != "success" && board.Status != "cache" {
		return nil, fmt.Errorf("board api returned status %q", board.Status)
	}
	return &board, nil
}
