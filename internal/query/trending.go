package query

import (
	"context"
	"fmt"

	"trendradar/internal/analyzer"
)

// Extract modes accepted by TrendingTopics.
const (
	ExtractKeywords    = "keywords"
	ExtractAutoExtract = "auto_extract"
)

// Topic is one trending entry: a configured keyword group or an extracted
// phrase, depending on the extract mode.
type Topic struct {
	Topic        string   `json:"topic"`
	Count        int      `json:"count"`
	Percentage   float64  `json:"percentage,omitempty"`
	SampleTitles []string `json:"sample_titles,omitempty"`
}

// TrendingTopicsResult is the response body of get_trending_topics.
type TrendingTopicsResult struct {
	Date        string  `json:"date"`
	Mode        string  `json:"mode"`
	ExtractMode string  `json:"extract_mode"`
	TotalTitles int     `json:"total_titles"`
	Topics      []Topic `json:"topics"`
}

// TrendingTopics reports what is hot today. In keywords mode the configured
// rule groups are ranked by the frequency analyzer; in auto_extract mode
// phrases are mined from the titles themselves.
func (s *Service) TrendingTopics(ctx context.Context, topN int, mode, extractMode string) (*TrendingTopicsResult, error) {
	if topN <= 0 {
		topN = 10
	}
	switch mode {
	case "", analyzer.ModeCurrent:
		mode = analyzer.ModeCurrent
	case analyzer.ModeDaily:
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidArgument, mode)
	}

	data, err := s.readAllTitles(ctx, "", nil)
	if err != nil {
		return nil, err
	}

	result := &TrendingTopicsResult{
		Date:        data.Date,
		Mode:        mode,
		ExtractMode: extractMode,
	}

	switch extractMode {
	case "", ExtractKeywords:
		result.ExtractMode = ExtractKeywords
		groups, filterWords, globalFilters := s.loadRules()
		stats, total := analyzer.CountFrequency(data.Items, groups, filterWords, globalFilters, nil, analyzer.Options{
			Mode:          mode,
			RankThreshold: s.cfg.Report.RankThreshold,
			Weights:       s.cfg.Weights,
			MaxPerGroup:   5,
		})
		result.TotalTitles = total
		for _, st := range stats {
			if len(result.Topics) == topN {
				break
			}
			if st.Count == 0 {
				continue
			}
			samples := make([]string, 0, len(st.Titles))
			for _, t := range st.Titles {
				samples = append(samples, t.Title)
			}
			result.Topics = append(result.Topics, Topic{
				Topic:        st.Word,
				Count:        st.Count,
				Percentage:   st.Percentage,
				SampleTitles: samples,
			})
		}

	case ExtractAutoExtract:
		items := latestOnly(s.flatten([]dayData{{Date: data.Date, Data: data}}))
		if mode == analyzer.ModeDaily {
			items = s.flatten([]dayData{{Date: data.Date, Data: data}})
		}
		titles := make([]string, 0, len(items))
		seen := make(map[string]struct{}, len(items))
		for _, it := range items {
			if _, ok := seen[it.Title]; ok {
				continue
			}
			seen[it.Title] = struct{}{}
			titles = append(titles, it.Title)
		}
		result.TotalTitles = len(titles)
		for _, kc := range s.lexicon.ExtractKeywords(titles, topN, 2) {
			result.Topics = append(result.Topics, Topic{Topic: kc.Keyword, Count: kc.Count})
		}

	default:
		return nil, fmt.Errorf("%w: extract_mode %q", ErrInvalidArgument, extractMode)
	}

	return result, nil
}
