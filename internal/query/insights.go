package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"trendradar/internal/util"
)

// Insight types accepted by DataInsights.
const (
	InsightPlatformCompare  = "platform_compare"
	InsightPlatformActivity = "platform_activity"
	InsightKeywordCooccur   = "keyword_cooccur"
)

// PlatformInsight is one platform's contribution to the range.
type PlatformInsight struct {
	PlatformID   string  `json:"platform_id"`
	PlatformName string  `json:"platform_name"`
	TotalItems   int     `json:"total_items"`
	Matched      int     `json:"matched_items,omitempty"`
	Share        float64 `json:"share"`
	AvgWeight    float64 `json:"avg_weight"`
	TopTitle     string  `json:"top_title,omitempty"`
}

// ActivityDay is one day of per-platform volume.
type ActivityDay struct {
	Date   string         `json:"date"`
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

// Cooccurrence is a keyword pair appearing together in titles.
type Cooccurrence struct {
	Keywords [2]string `json:"keywords"`
	Count    int       `json:"count"`
}

// InsightsResult is the response body of analyze_data_insights.
type InsightsResult struct {
	InsightType string         `json:"insight_type"`
	Topic       string         `json:"topic,omitempty"`
	DateRange   util.DateRange `json:"date_range"`
	TotalItems  int            `json:"total_items"`

	Platforms     []PlatformInsight `json:"platforms,omitempty"`
	MostActive    string            `json:"most_active,omitempty"`
	Activity      []ActivityDay     `json:"activity,omitempty"`
	Cooccurrences []Cooccurrence    `json:"cooccurrences,omitempty"`
}

// DataInsights runs cross-cutting statistics over a range.
// platform_compare contrasts platforms by volume and weight,
// platform_activity breaks volume down per day, keyword_cooccur counts
// keyword pairs sharing a title.
func (s *Service) DataInsights(ctx context.Context, insightType, topic string, expr any, minFrequency, topN int) (*InsightsResult, error) {
	if insightType == "" {
		insightType = InsightPlatformCompare
	}
	if minFrequency <= 0 {
		minFrequency = 3
	}
	if topN <= 0 {
		topN = 20
	}

	r, err := s.ResolveRange(expr)
	if err != nil {
		return nil, err
	}
	days, err := s.readRange(ctx, r, nil)
	if err != nil {
		return nil, err
	}

	topic = strings.TrimSpace(topic)
	all := s.flatten(days)
	items := filterTopic(all, topic)

	result := &InsightsResult{
		InsightType: insightType,
		Topic:       topic,
		DateRange:   r,
		TotalItems:  len(items),
	}

	switch insightType {
	case InsightPlatformCompare:
		type agg struct {
			name      string
			total     int
			matched   int
			weightSum float64
			topTitle  string
			topWeight float64
		}
		byID := make(map[string]*agg)
		for _, it := range all {
			a := byID[it.SourceID]
			if a == nil {
				a = &agg{name: it.SourceName}
				byID[it.SourceID] = a
			}
			a.total++
		}
		for _, it := range items {
			a := byID[it.SourceID]
			a.matched++
			a.weightSum += it.Weight
			if it.Weight > a.topWeight || a.topTitle == "" {
				a.topWeight = it.Weight
				a.topTitle = it.Title
			}
		}
		for id, a := range byID {
			p := PlatformInsight{
				PlatformID:   id,
				PlatformName: a.name,
				TotalItems:   a.total,
				Matched:      a.matched,
				TopTitle:     a.topTitle,
			}
			if len(items) > 0 {
				p.Share = round2(float64(a.matched) / float64(len(items)) * 100)
			}
			if a.matched > 0 {
				p.AvgWeight = round2(a.weightSum / float64(a.matched))
			}
			result.Platforms = append(result.Platforms, p)
		}
		sort.SliceStable(result.Platforms, func(i, j int) bool {
			if result.Platforms[i].Matched != result.Platforms[j].Matched {
				return result.Platforms[i].Matched > result.Platforms[j].Matched
			}
			return result.Platforms[i].PlatformID < result.Platforms[j].PlatformID
		})
		if len(result.Platforms) > topN {
			result.Platforms = result.Platforms[:topN]
		}
		if len(result.Platforms) > 0 {
			result.MostActive = result.Platforms[0].PlatformID
		}

	case InsightPlatformActivity:
		for _, d := range days {
			day := ActivityDay{Date: d.Date, Counts: make(map[string]int)}
			for id, list := range d.Data.Items {
				matched := 0
				for _, it := range list {
					if topic == "" || strings.Contains(strings.ToLower(it.Title), strings.ToLower(topic)) {
						matched++
					}
				}
				if matched > 0 {
					day.Counts[id] = matched
					day.Total += matched
				}
			}
			result.Activity = append(result.Activity, day)
		}
		totals := make(map[string]int)
		for _, day := range result.Activity {
			for id, c := range day.Counts {
				totals[id] += c
			}
		}
		most, top := "", 0
		for _, id := range sortedKeysByCount(totals) {
			if totals[id] > top {
				most, top = id, totals[id]
			}
		}
		result.MostActive = most

	case InsightKeywordCooccur:
		pairCounts := make(map[[2]string]int)
		seenTitles := make(map[string]struct{}, len(items))
		for _, it := range items {
			if _, ok := seenTitles[it.Title]; ok {
				continue
			}
			seenTitles[it.Title] = struct{}{}

			tokens := dedupeTokens(s.lexicon.Tokenize(it.Title))
			for i := 0; i < len(tokens); i++ {
				for j := i + 1; j < len(tokens); j++ {
					a, b := tokens[i], tokens[j]
					if b < a {
						a, b = b, a
					}
					pairCounts[[2]string{a, b}]++
				}
			}
		}
		for pair, c := range pairCounts {
			if c < minFrequency {
				continue
			}
			result.Cooccurrences = append(result.Cooccurrences, Cooccurrence{Keywords: pair, Count: c})
		}
		sort.SliceStable(result.Cooccurrences, func(i, j int) bool {
			if result.Cooccurrences[i].Count != result.Cooccurrences[j].Count {
				return result.Cooccurrences[i].Count > result.Cooccurrences[j].Count
			}
			return result.Cooccurrences[i].Keywords[0] < result.Cooccurrences[j].Keywords[0]
		})
		if len(result.Cooccurrences) > topN {
			result.Cooccurrences = result.Cooccurrences[:topN]
		}

	default:
		return nil, fmt.Errorf("%w: insight_type %q", ErrInvalidArgument, insightType)
	}

	return result, nil
}

func dedupeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func sortedKeysByCount(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
