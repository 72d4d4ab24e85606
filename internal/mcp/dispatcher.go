// Package mcp exposes the analytics facade, the crawler, and the storage
// engines as named tools behind a JSON envelope, served over stdio or HTTP.
// Every response is a single JSON object with a success flag: handler
// fields are merged on success, failures carry {error:{code, message}}.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"trendradar/internal/config"
	"trendradar/internal/crawler"
	"trendradar/internal/query"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

// Deps carries the shared collaborators the tool handlers close over.
// Remote is nil when no object store is configured; Fetcher must be set
// for trigger_crawl to work.
type Deps struct {
	Config    *config.Config
	Backend   storage.Backend
	Remote    *storage.Remote
	Fetcher   crawler.Fetcher
	Logger    zerolog.Logger
	Location  *time.Location
	LocalRoot string
}

type handler func(ctx context.Context, args map[string]any) (any, error)

// CallRequest is one request frame, shared by both transports:
// a stdio line or an HTTP POST body.
type CallRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// Dispatcher routes tool calls by name. The registry is built on first
// use under a mutex so concurrent HTTP requests cannot double-initialize.
type Dispatcher struct {
	deps    Deps
	query   *query.Service
	started time.Time

	now func() time.Time

	mu    sync.Mutex
	tools map[string]handler
}

// NewDispatcher wires the analytics facade over deps.Backend. The tool
// registry itself is deferred to the first Call.
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Dispatcher{
		deps:    deps,
		query:   query.NewService(deps.Backend, deps.Config, deps.Location, deps.Logger),
		started: time.Now(),
		now:     time.Now,
	}
}

// ToolNames returns the registered tool names, for startup banners.
func (d *Dispatcher) ToolNames() []string {
	reg := d.registry()
	names := make([]string, 0, len(reg))
	for name := range reg {
		names = append(names, name)
	}
	return names
}

func (d *Dispatcher) registry() map[string]handler {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tools == nil {
		d.tools = map[string]handler{
			"resolve_date_range":      d.resolveDateRange,
			"get_latest_news":         d.getLatestNews,
			"get_news_by_date":        d.getNewsByDate,
			"get_trending_topics":     d.getTrendingTopics,
			"search_news":             d.searchNews,
			"find_related_news":       d.findRelatedNews,
			"analyze_topic_trend":     d.analyzeTopicTrend,
			"analyze_data_insights":   d.analyzeDataInsights,
			"analyze_sentiment":       d.analyzeSentiment,
			"aggregate_news":          d.aggregateNews,
			"compare_periods":         d.comparePeriods,
			"generate_summary_report": d.generateSummaryReport,
			"get_current_config":      d.getCurrentConfig,
			"get_system_status":       d.getSystemStatus,
			"trigger_crawl":           d.triggerCrawl,
			"sync_from_remote":        d.syncFromRemote,
			"get_storage_status":      d.getStorageStatus,
			"list_available_dates":    d.listAvailableDates,
		}
	}
	return d.tools
}

// Call runs one tool and always returns a complete envelope, even when the
// handler panics.
func (d *Dispatcher) Call(ctx context.Context, tool string, args map[string]any) (env map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			d.deps.Logger.Error().
				Str("tool", tool).
				Str("stack", stack).
				Msgf("tool panicked: %v", r)
			env = failure(&Error{
				Code:    CodeInternal,
				Message: fmt.Sprintf("tool %s panicked: %v", tool, r),
				Details: stack,
			})
		}
	}()

	h, ok := d.registry()[tool]
	if !ok {
		return failure(Errorf(CodeInvalidArgument, "unknown tool %q", tool))
	}
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	result, err := h(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		e := classify(err)
		observeCall(tool, e.Code, elapsed.Seconds())
		d.deps.Logger.Warn().
			Str("tool", tool).
			Str("code", e.Code).
			Dur("elapsed", elapsed).
			Msg(e.Message)
		return failure(e)
	}

	observeCall(tool, "ok", elapsed.Seconds())
	d.deps.Logger.Debug().
		Str("tool", tool).
		Dur("elapsed", elapsed).
		Msg("tool completed")
	return success(result)
}

// success merges the handler result with the success flag by round-tripping
// it through JSON, so typed results and plain maps render identically.
func success(result any) map[string]any {
	env := map[string]any{}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return failure(Errorf(CodeInternal, "encode result: %v", err))
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return failure(Errorf(CodeInternal, "encode result: %v", err))
		}
	}
	env["success"] = true
	return env
}

func failure(e *Error) map[string]any {
	return map[string]any{"success": false, "error": e}
}

// classify maps lower-layer sentinels onto envelope codes. Unrecognized
// errors are internal by definition.
func classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, query.ErrInvalidArgument), errors.Is(err, util.ErrBadDateExpression):
		return &Error{Code: CodeInvalidArgument, Message: err.Error()}
	case errors.Is(err, query.ErrNoData):
		return &Error{Code: CodeDataNotFound, Message: err.Error()}
	case errors.Is(err, query.ErrFileParse):
		return &Error{Code: CodeFileParse, Message: err.Error()}
	default:
		return &Error{Code: CodeInternal, Message: err.Error()}
	}
}

// Render serializes an envelope: pretty-printed for the HTTP transport,
// compact single-line for stdio frames. A trailing newline is always
// appended so frames stay line-delimited.
func Render(env map[string]any, pretty bool) []byte {
	var (
		raw []byte
		err error
	)
	if pretty {
		raw, err = json.MarshalIndent(env, "", "  ")
	} else {
		raw, err = json.Marshal(env)
	}
	if err != nil {
		// The envelope is built from JSON-safe values; this is unreachable
		// short of a programming error.
		raw = []byte(fmt.Sprintf(`{"success":false,"error":{"code":%q,"message":%q}}`, CodeInternal, err.Error()))
	}
	return append(raw, '\n')
}
