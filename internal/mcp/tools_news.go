package mcp

import (
	"context"
	"fmt"
	"strings"

	"trendradar/internal/util"
)

func (d *Dispatcher) resolveDateRange(ctx context.Context, args map[string]any) (any, error) {
	expr, err := stringArg(args, "expression", "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(expr) == "" {
		return nil, Errorf(CodeInvalidArgument, "expression is required")
	}

	r, err := d.query.ResolveRange(expr)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"expression":   expr,
		"date_range":   r,
		"current_date": util.FormatDateFolder(d.now().In(d.deps.Location)),
		"description":  describeRange(r),
	}, nil
}

// describeRange renders a range the way reports do, so AI callers can echo
// it back to users verbatim.
func describeRange(r util.DateRange) string {
	days, err := r.Days()
	if err != nil || len(days) == 0 {
		return r.Start
	}
	if len(days) == 1 {
		return fmt.Sprintf("%s，共 1 天", r.Start)
	}
	return fmt.Sprintf("%s 至 %s，共 %d 天", r.Start, r.End, len(days))
}

func (d *Dispatcher) getLatestNews(ctx context.Context, args map[string]any) (any, error) {
	platforms, err := stringListArg(args, "platforms")
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", 50)
	if err != nil {
		return nil, err
	}
	includeURL, err := boolArg(args, "include_url", false)
	if err != nil {
		return nil, err
	}
	return d.query.LatestNews(ctx, platforms, limit, includeURL)
}

func (d *Dispatcher) getNewsByDate(ctx context.Context, args map[string]any) (any, error) {
	platforms, err := stringListArg(args, "platforms")
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", 50)
	if err != nil {
		return nil, err
	}
	includeURL, err := boolArg(args, "include_url", false)
	if err != nil {
		return nil, err
	}
	return d.query.NewsByDate(ctx, args["date_range"], platforms, limit, includeURL)
}

func (d *Dispatcher) getTrendingTopics(ctx context.Context, args map[string]any) (any, error) {
	topN, err := intArg(args, "top_n", 10)
	if err != nil {
		return nil, err
	}
	mode, err := stringArg(args, "mode", "current")
	if err != nil {
		return nil, err
	}
	extractMode, err := stringArg(args, "extract_mode", "keywords")
	if err != nil {
		return nil, err
	}
	return d.query.TrendingTopics(ctx, topN, mode, extractMode)
}

func (d *Dispatcher) searchNews(ctx context.Context, args map[string]any) (any, error) {
	queryText, err := stringArg(args, "query", "")
	if err != nil {
		return nil, err
	}
	searchMode, err := stringArg(args, "search_mode", "keyword")
	if err != nil {
		return nil, err
	}
	platforms, err := stringListArg(args, "platforms")
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", 50)
	if err != nil {
		return nil, err
	}
	sortBy, err := stringArg(args, "sort_by", "relevance")
	if err != nil {
		return nil, err
	}
	threshold, err := floatArg(args, "threshold", 0.6)
	if err != nil {
		return nil, err
	}
	includeURL, err := boolArg(args, "include_url", false)
	if err != nil {
		return nil, err
	}
	return d.query.SearchNews(ctx, queryText, searchMode, args["date_range"], platforms, limit, sortBy, threshold, includeURL)
}

func (d *Dispatcher) findRelatedNews(ctx context.Context, args map[string]any) (any, error) {
	refTitle, err := stringArg(args, "reference_title", "")
	if err != nil {
		return nil, err
	}
	threshold, err := floatArg(args, "threshold", 0.5)
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", 50)
	if err != nil {
		return nil, err
	}
	includeURL, err := boolArg(args, "include_url", false)
	if err != nil {
		return nil, err
	}
	return d.query.FindRelatedNews(ctx, refTitle, args["date_range"], threshold, limit, includeURL)
}
