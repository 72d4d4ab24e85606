package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"trendradar/internal/util"
)

// Search modes accepted by SearchNews.
const (
	SearchKeyword = "keyword"
	SearchFuzzy   = "fuzzy"
	SearchEntity  = "entity"
)

// Sort orders accepted by SearchNews.
const (
	SortRelevance = "relevance"
	SortWeight    = "weight"
	SortDate      = "date"
)

// SearchHit is one matched headline with its match score.
type SearchHit struct {
	NewsItemView
	Relevance float64 `json:"relevance"`
}

// SearchNewsResult is the response body of search_news.
type SearchNewsResult struct {
	Query         string         `json:"query"`
	SearchMode    string         `json:"search_mode"`
	SortBy        string         `json:"sort_by"`
	DateRange     util.DateRange `json:"date_range"`
	TotalMatches  int            `json:"total_matches"`
	ReturnedItems int            `json:"returned_items"`
	Items         []SearchHit    `json:"items"`
}

// SearchNews scans stored titles for the query. keyword mode is a
// case-insensitive substring match, fuzzy mode a character-bigram cosine at
// or above threshold, entity mode a substring match through the tokens the
// entity lexicon knows.
func (s *Service) SearchNews(
	ctx context.Context,
	queryText, searchMode string,
	expr any,
	platforms []string,
	limit int,
	sortBy string,
	threshold float64,
	includeURL bool,
) (*SearchNewsResult, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidArgument)
	}
	if searchMode == "" {
		searchMode = SearchKeyword
	}
	if sortBy == "" {
		sortBy = SortRelevance
	}
	switch sortBy {
	case SortRelevance, SortWeight, SortDate:
	default:
		return nil, fmt.Errorf("%w: sort_by %q", ErrInvalidArgument, sortBy)
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
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

	var match func(title string) (float64, bool)
	switch searchMode {
	case SearchKeyword:
		needle := strings.ToLower(queryText)
		match = func(title string) (float64, bool) {
			if strings.Contains(strings.ToLower(title), needle) {
				return 1, true
			}
			return 0, false
		}
	case SearchFuzzy:
		ref := newBigramVec(queryText)
		match = func(title string) (float64, bool) {
			sim := ref.cosine(newBigramVec(title))
			return sim, sim >= threshold
		}
	case SearchEntity:
		entities := s.matchingEntities(queryText)
		if len(entities) == 0 {
			return &SearchNewsResult{
				Query:      queryText,
				SearchMode: searchMode,
				SortBy:     sortBy,
				DateRange:  r,
				Items:      []SearchHit{},
			}, nil
		}
		match = func(title string) (float64, bool) {
			lower := strings.ToLower(title)
			for _, e := range entities {
				if strings.Contains(lower, strings.ToLower(e)) {
					return 1, true
				}
			}
			return 0, false
		}
	default:
		return nil, fmt.Errorf("%w: search_mode %q", ErrInvalidArgument, searchMode)
	}

	var hits []SearchHit
	for _, it := range items {
		score, ok := match(it.Title)
		if !ok {
			continue
		}
		hit := SearchHit{NewsItemView: s.itemView(it, includeURL, true), Relevance: round2(score)}
		hits = append(hits, hit)
	}

	sortHits(hits, sortBy)

	total := len(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []SearchHit{}
	}

	return &SearchNewsResult{
		Query:         queryText,
		SearchMode:    searchMode,
		SortBy:        sortBy,
		DateRange:     r,
		TotalMatches:  total,
		ReturnedItems: len(hits),
		Items:         hits,
	}, nil
}

// matchingEntities returns lexicon entities related to the query: exact or
// substring matches in either direction.
func (s *Service) matchingEntities(queryText string) []string {
	lower := strings.ToLower(queryText)
	var out []string
	for _, e := range s.lexicon.Entities() {
		el := strings.ToLower(e)
		if strings.Contains(el, lower) || strings.Contains(lower, el) {
			out = append(out, e)
		}
	}
	return out
}

func sortHits(hits []SearchHit, sortBy string) {
	switch sortBy {
	case SortWeight:
		sort.SliceStable(hits, func(i, j int) bool {
			return hits[i].Weight > hits[j].Weight
		})
	case SortDate:
		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].Date != hits[j].Date {
				return hits[i].Date > hits[j].Date
			}
			return hits[i].LastTime > hits[j].LastTime
		})
	default: // relevance
		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].Relevance != hits[j].Relevance {
				return hits[i].Relevance > hits[j].Relevance
			}
			return hits[i].Weight > hits[j].Weight
		})
	}
}

// RelatedHit is one candidate title with its similarity to the reference.
type RelatedHit struct {
	NewsItemView
	Similarity float64 `json:"similarity"`
}

// RelatedNewsResult is the response body of find_related_news.
type RelatedNewsResult struct {
	ReferenceTitle string         `json:"reference_title"`
	Threshold      float64        `json:"threshold"`
	DateRange      util.DateRange `json:"date_range"`
	TotalRelated   int            `json:"total_related"`
	Items          []RelatedHit   `json:"items"`
}

// FindRelatedNews ranks stored titles by character-bigram cosine similarity
// against a reference title, keeping those at or above the threshold.
// Duplicate titles keep their highest-weight instance.
func (s *Service) FindRelatedNews(ctx context.Context, refTitle string, expr any, threshold float64, limit int, includeURL bool) (*RelatedNewsResult, error) {
	refTitle = strings.TrimSpace(refTitle)
	if refTitle == "" {
		return nil, fmt.Errorf("%w: reference_title is required", ErrInvalidArgument)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside [0,1]", ErrInvalidArgument, threshold)
	}
	if threshold == 0 {
		threshold = 0.5
	}
	limit = clampLimit(limit, 50, 1000)

	r, err := s.ResolveRange(expr)
	if err != nil {
		return nil, err
	}
	days, err := s.readRange(ctx, r, nil)
	if err != nil {
		return nil, err
	}

	ref := newBigramVec(refTitle)
	best := make(map[string]RelatedHit)
	for _, it := range s.flatten(days) {
		sim := ref.cosine(newBigramVec(it.Title))
		if sim < threshold {
			continue
		}
		if prev, ok := best[it.Title]; ok && prev.Weight >= round2(it.Weight) {
			continue
		}
		best[it.Title] = RelatedHit{
			NewsItemView: s.itemView(it, includeURL, true),
			Similarity:   round2(sim),
		}
	}

	hits := make([]RelatedHit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Weight > hits[j].Weight
	})

	total := len(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return &RelatedNewsResult{
		ReferenceTitle: refTitle,
		Threshold:      threshold,
		DateRange:      r,
		TotalRelated:   total,
		Items:          hits,
	}, nil
}
