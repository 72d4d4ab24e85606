package query

import (
	"context"
	"sort"

	"trendradar/internal/util"
)

// LatestNewsResult is the response body of get_latest_news.
type LatestNewsResult struct {
	Date          string         `json:"date"`
	CrawlTime     string         `json:"crawl_time"`
	Platforms     []string       `json:"platforms"`
	TotalItems    int            `json:"total_items"`
	ReturnedItems int            `json:"returned_items"`
	Items         []NewsItemView `json:"items"`
}

// LatestNews returns today's most recent board snapshot, optionally
// restricted to a platform set, capped at limit items.
func (s *Service) LatestNews(ctx context.Context, platforms []string, limit int, includeURL bool) (*LatestNewsResult, error) {
	limit = clampLimit(limit, 50, 1000)

	data, err := s.readAllTitles(ctx, "", platforms)
	if err != nil {
		return nil, err
	}

	items := latestOnly(s.flatten([]dayData{{Date: data.Date, Data: data}}))
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SourceID != items[j].SourceID {
			return items[i].SourceID < items[j].SourceID
		}
		return bestRank(items[i].Ranks, items[i].Rank) < bestRank(items[j].Ranks, items[j].Rank)
	})

	total := len(items)
	if len(items) > limit {
		items = items[:limit]
	}

	views := make([]NewsItemView, len(items))
	seen := make(map[string]struct{})
	for i, it := range items {
		views[i] = s.itemView(it, includeURL, false)
		seen[it.SourceID] = struct{}{}
	}

	crawlTime := ""
	for _, it := range items {
		if it.LastTime > crawlTime {
			crawlTime = it.LastTime
		}
	}

	return &LatestNewsResult{
		Date:          data.Date,
		CrawlTime:     util.TimeForDisplay(crawlTime),
		Platforms:     sortedSet(seen),
		TotalItems:    total,
		ReturnedItems: len(views),
		Items:         views,
	}, nil
}

// NewsByDateResult is the response body of get_news_by_date.
type NewsByDateResult struct {
	DateRange     util.DateRange `json:"date_range"`
	DaysWithData  []string       `json:"days_with_data"`
	Platforms     []string       `json:"platforms"`
	TotalItems    int            `json:"total_items"`
	ReturnedItems int            `json:"returned_items"`
	Items         []NewsItemView `json:"items"`
}

// NewsByDate unions the merged data of every day in the range, newest day
// first, capped at limit items.
func (s *Service) NewsByDate(ctx context.Context, expr any, platforms []string, limit int, includeURL bool) (*NewsByDateResult, error) {
	limit = clampLimit(limit, 50, 1000)

	r, err := s.ResolveRange(expr)
	if err != nil {
		return nil, err
	}
	days, err := s.readRange(ctx, r, platforms)
	if err != nil {
		return nil, err
	}

	items := s.flatten(days)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date > items[j].Date
		}
		if items[i].SourceID != items[j].SourceID {
			return items[i].SourceID < items[j].SourceID
		}
		return bestRank(items[i].Ranks, items[i].Rank) < bestRank(items[j].Ranks, items[j].Rank)
	})

	total := len(items)
	if len(items) > limit {
		items = items[:limit]
	}

	views := make([]NewsItemView, len(items))
	seen := make(map[string]struct{})
	for i, it := range items {
		views[i] = s.itemView(it, includeURL, true)
		seen[it.SourceID] = struct{}{}
	}

	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = d.Date
	}

	return &NewsByDateResult{
		DateRange:     r,
		DaysWithData:  dates,
		Platforms:     sortedSet(seen),
		TotalItems:    total,
		ReturnedItems: len(views),
		Items:         views,
	}, nil
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
