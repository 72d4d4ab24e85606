package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"trendradar/internal/util"
)

// Compare types accepted by ComparePeriods.
const (
	CompareOverview         = "overview"
	CompareTopicShift       = "topic_shift"
	ComparePlatformActivity = "platform_activity"
)

// PeriodSummary describes one side of a comparison.
type PeriodSummary struct {
	DateRange    util.DateRange `json:"date_range"`
	DaysWithData int            `json:"days_with_data"`
	TotalItems   int            `json:"total_items"`
	UniqueTitles int            `json:"unique_titles"`
	Platforms    int            `json:"platforms"`
	TopTitles    []NewsItemView `json:"top_titles"`
}

// KeywordShift is one keyword with its per-period counts.
type KeywordShift struct {
	Keyword string `json:"keyword"`
	Count1  int    `json:"count_period1"`
	Count2  int    `json:"count_period2"`
	Delta   int    `json:"delta"`
}

// PlatformShift is one platform with its per-period item counts.
type PlatformShift struct {
	PlatformID   string `json:"platform_id"`
	PlatformName string `json:"platform_name"`
	Count1       int    `json:"count_period1"`
	Count2       int    `json:"count_period2"`
	Delta        int    `json:"delta"`
}

// CompareResult is the response body of compare_periods.
type CompareResult struct {
	CompareType string         `json:"compare_type"`
	Topic       string         `json:"topic,omitempty"`
	Period1     *PeriodSummary `json:"period1"`
	Period2     *PeriodSummary `json:"period2"`

	// overview
	ItemsDelta    int            `json:"items_delta,omitempty"`
	PctChange     float64        `json:"pct_change,omitempty"`
	CommonKeyword []KeywordShift `json:"common_keywords,omitempty"`

	// topic_shift
	Rising  []KeywordShift `json:"rising,omitempty"`
	Falling []KeywordShift `json:"falling,omitempty"`
	NewOnes []KeywordShift `json:"newly_appearing,omitempty"`

	// platform_activity
	PlatformShifts []PlatformShift `json:"platform_shifts,omitempty"`
}

// ComparePeriods contrasts two resolved date ranges. overview reports volume
// and top titles with keyword deltas, topic_shift classifies keywords into
// rising, falling and newly appearing, platform_activity reports per-platform
// item-count deltas.
func (s *Service) ComparePeriods(
	ctx context.Context,
	period1, period2 any,
	topic, compareType string,
	platforms []string,
	topN int,
) (*CompareResult, error) {
	if period1 == nil || period2 == nil {
		return nil, fmt.Errorf("%w: period1 and period2 are required", ErrInvalidArgument)
	}
	if compareType == "" {
		compareType = CompareOverview
	}
	switch compareType {
	case CompareOverview, CompareTopicShift, ComparePlatformActivity:
	default:
		return nil, fmt.Errorf("%w: compare_type %q", ErrInvalidArgument, compareType)
	}
	if topN <= 0 {
		topN = 10
	}

	r1, err := s.ResolveRange(period1)
	if err != nil {
		return nil, fmt.Errorf("period1: %w", err)
	}
	r2, err := s.ResolveRange(period2)
	if err != nil {
		return nil, fmt.Errorf("period2: %w", err)
	}

	days1, err := s.readRange(ctx, r1, platforms)
	if err != nil {
		return nil, fmt.Errorf("period1: %w", err)
	}
	days2, err := s.readRange(ctx, r2, platforms)
	if err != nil {
		return nil, fmt.Errorf("period2: %w", err)
	}

	topic = strings.TrimSpace(topic)
	items1 := filterTopic(s.flatten(days1), topic)
	items2 := filterTopic(s.flatten(days2), topic)

	result := &CompareResult{
		CompareType: compareType,
		Topic:       topic,
		Period1:     s.summarizePeriod(r1, len(days1), items1, topN),
		Period2:     s.summarizePeriod(r2, len(days2), items2, topN),
	}

	switch compareType {
	case CompareOverview:
		result.ItemsDelta = len(items2) - len(items1)
		if len(items1) > 0 {
			result.PctChange = round2(float64(result.ItemsDelta) / float64(len(items1)) * 100)
		}
		shifts := s.keywordShifts(items1, items2)
		sort.SliceStable(shifts, func(i, j int) bool {
			return abs(shifts[i].Delta) > abs(shifts[j].Delta)
		})
		result.CommonKeyword = capShifts(shifts, topN)

	case CompareTopicShift:
		shifts := s.keywordShifts(items1, items2)
		for _, sh := range shifts {
			switch {
			case sh.Count1 == 0 && sh.Count2 > 0:
				result.NewOnes = append(result.NewOnes, sh)
			case sh.Delta > 0:
				result.Rising = append(result.Rising, sh)
			case sh.Delta < 0:
				result.Falling = append(result.Falling, sh)
			}
		}
		sort.SliceStable(result.Rising, func(i, j int) bool { return result.Rising[i].Delta > result.Rising[j].Delta })
		sort.SliceStable(result.Falling, func(i, j int) bool { return result.Falling[i].Delta < result.Falling[j].Delta })
		sort.SliceStable(result.NewOnes, func(i, j int) bool { return result.NewOnes[i].Count2 > result.NewOnes[j].Count2 })
		result.Rising = capShifts(result.Rising, topN)
		result.Falling = capShifts(result.Falling, topN)
		result.NewOnes = capShifts(result.NewOnes, topN)

	case ComparePlatformActivity:
		counts1, names1 := platformCounts(items1)
		counts2, names2 := platformCounts(items2)
		ids := make(map[string]struct{})
		for id := range counts1 {
			ids[id] = struct{}{}
		}
		for id := range counts2 {
			ids[id] = struct{}{}
		}
		for _, id := range sortedSet(ids) {
			name := names2[id]
			if name == "" {
				name = names1[id]
			}
			result.PlatformShifts = append(result.PlatformShifts, PlatformShift{
				PlatformID:   id,
				PlatformName: name,
				Count1:       counts1[id],
				Count2:       counts2[id],
				Delta:        counts2[id] - counts1[id],
			})
		}
		sort.SliceStable(result.PlatformShifts, func(i, j int) bool {
			return abs(result.PlatformShifts[i].Delta) > abs(result.PlatformShifts[j].Delta)
		})
		if len(result.PlatformShifts) > topN {
			result.PlatformShifts = result.PlatformShifts[:topN]
		}
	}

	return result, nil
}

func (s *Service) summarizePeriod(r util.DateRange, daysWithData int, items []flatItem, topN int) *PeriodSummary {
	titles := make(map[string]struct{}, len(items))
	platforms := make(map[string]struct{})
	for _, it := range items {
		titles[it.Title] = struct{}{}
		platforms[it.SourceID] = struct{}{}
	}

	sorted := make([]flatItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })
	if len(sorted) > topN {
		sorted = sorted[:topN]
	}
	top := make([]NewsItemView, len(sorted))
	for i, it := range sorted {
		top[i] = s.itemView(it, false, true)
	}

	return &PeriodSummary{
		DateRange:    r,
		DaysWithData: daysWithData,
		TotalItems:   len(items),
		UniqueTitles: len(titles),
		Platforms:    len(platforms),
		TopTitles:    top,
	}
}

// keywordShifts counts extracted keywords on both sides and joins them.
// Keywords must clear the extraction minimum in at least one period.
func (s *Service) keywordShifts(items1, items2 []flatItem) []KeywordShift {
	counts1 := keywordCounts(s.lexicon, items1)
	counts2 := keywordCounts(s.lexicon, items2)

	keys := make(map[string]struct{}, len(counts1)+len(counts2))
	for k := range counts1 {
		keys[k] = struct{}{}
	}
	for k := range counts2 {
		keys[k] = struct{}{}
	}

	var shifts []KeywordShift
	for k := range keys {
		c1, c2 := counts1[k], counts2[k]
		if c1 < 2 && c2 < 2 {
			continue
		}
		shifts = append(shifts, KeywordShift{Keyword: k, Count1: c1, Count2: c2, Delta: c2 - c1})
	}
	sort.SliceStable(shifts, func(i, j int) bool { return shifts[i].Keyword < shifts[j].Keyword })
	return shifts
}

func keywordCounts(lex Lexicon, items []flatItem) map[string]int {
	titles := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.Title]; ok {
			continue
		}
		seen[it.Title] = struct{}{}
		titles = append(titles, it.Title)
	}
	counts := make(map[string]int)
	for _, kc := range lex.ExtractKeywords(titles, 0, 1) {
		counts[kc.Keyword] = kc.Count
	}
	return counts
}

func platformCounts(items []flatItem) (map[string]int, map[string]string) {
	counts := make(map[string]int)
	names := make(map[string]string)
	for _, it := range items {
		counts[it.SourceID]++
		if it.SourceName != "" {
			names[it.SourceID] = it.SourceName
		}
	}
	return counts, names
}

func filterTopic(items []flatItem, topic string) []flatItem {
	if topic == "" {
		return items
	}
	needle := strings.ToLower(topic)
	var out []flatItem
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Title), needle) {
			out = append(out, it)
		}
	}
	return out
}

func capShifts(shifts []KeywordShift, n int) []KeywordShift {
	if len(shifts) > n {
		return shifts[:n]
	}
	return shifts
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
