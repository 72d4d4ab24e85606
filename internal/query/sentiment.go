package query

import (
	"context"
	"sort"
	"strings"

	"trendradar/internal/util"
)

// SentimentHit is one classified headline.
type SentimentHit struct {
	NewsItemView
	Sentiment string `json:"sentiment"`
}

// SentimentHistogram counts classified titles per class.
type SentimentHistogram struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// SentimentResult is the response body of analyze_sentiment.
type SentimentResult struct {
	Topic         string             `json:"topic,omitempty"`
	DateRange     util.DateRange     `json:"date_range"`
	TotalAnalyzed int                `json:"total_analyzed"`
	Distribution  SentimentHistogram `json:"sentiment_distribution"`
	Overall       string             `json:"overall"`
	Items         []SentimentHit     `json:"items"`
}

// AnalyzeSentiment classifies stored titles with the sentiment lexicon.
// Titles are deduplicated across platforms keeping the highest-weight
// instance; the histogram covers every analyzed title, the item list only
// the top slice.
func (s *Service) AnalyzeSentiment(
	ctx context.Context,
	topic string,
	platforms []string,
	expr any,
	limit int,
	sortByWeight bool,
	includeURL bool,
) (*SentimentResult, error) {
	limit = clampLimit(limit, 50, 100)

	r, err := s.ResolveRange(expr)
	if err != nil {
		return nil, err
	}
	days, err := s.readRange(ctx, r, platforms)
	if err != nil {
		return nil, err
	}

	topic = strings.TrimSpace(topic)
	needle := strings.ToLower(topic)

	best := make(map[string]flatItem)
	for _, it := range s.flatten(days) {
		if needle != "" && !strings.Contains(strings.ToLower(it.Title), needle) {
			continue
		}
		if prev, ok := best[it.Title]; ok && prev.Weight >= it.Weight {
			continue
		}
		best[it.Title] = it
	}

	items := make([]flatItem, 0, len(best))
	for _, it := range best {
		items = append(items, it)
	}
	if sortByWeight {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Weight > items[j].Weight
		})
	} else {
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Date != items[j].Date {
				return items[i].Date > items[j].Date
			}
			return items[i].LastTime > items[j].LastTime
		})
	}

	var hist SentimentHistogram
	hits := make([]SentimentHit, 0, min(len(items), limit))
	for _, it := range items {
		label := s.lexicon.Sentiment(it.Title)
		switch label {
		case SentimentPositive:
			hist.Positive++
		case SentimentNegative:
			hist.Negative++
		default:
			hist.Neutral++
		}
		if len(hits) < limit {
			hits = append(hits, SentimentHit{
				NewsItemView: s.itemView(it, includeURL, true),
				Sentiment:    label,
			})
		}
	}

	overall := SentimentNeutral
	if hist.Positive > hist.Negative {
		overall = SentimentPositive
	} else if hist.Negative > hist.Positive {
		overall = SentimentNegative
	}

	return &SentimentResult{
		Topic:         topic,
		DateRange:     r,
		TotalAnalyzed: len(items),
		Distribution:  hist,
		Overall:       overall,
		Items:         hits,
	}, nil
}
