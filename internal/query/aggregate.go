package query

import (
	"context"
	"fmt"
	"sort"

	"trendradar/internal/util"
)

// Cluster is one group of near-duplicate stories across platforms.
type Cluster struct {
	Representative  NewsItemView `json:"representative"`
	Size            int          `json:"size"`
	Platforms       []string     `json:"platforms"`
	PlatformCount   int          `json:"platform_count"`
	IsCrossPlatform bool         `json:"is_cross_platform"`
	BestRank        int          `json:"best_rank"`
	TotalWeight     float64      `json:"total_weight"`
	Titles          []string     `json:"titles"`
}

// AggregateResult is the response body of aggregate_news.
type AggregateResult struct {
	DateRange           util.DateRange `json:"date_range"`
	SimilarityThreshold float64        `json:"similarity_threshold"`
	TotalTitles         int            `json:"total_titles"`
	TotalClusters       int            `json:"total_clusters"`
	CrossPlatformCount  int            `json:"cross_platform_clusters"`
	Clusters            []Cluster      `json:"clusters"`
}

// AggregateNews groups near-duplicate titles with greedy single-link
// clustering over character-bigram cosine similarity. Seeds are taken in
// weight order; a candidate joins a cluster when it is similar enough to any
// member. Each cluster reports its highest-weight member as representative.
func (s *Service) AggregateNews(ctx context.Context, expr any, platforms []string, threshold float64, limit int, includeURL bool) (*AggregateResult, error) {
	if threshold == 0 {
		threshold = 0.7
	}
	if threshold < 0.3 || threshold > 1.0 {
		return nil, fmt.Errorf("%w: similarity_threshold %v outside [0.3,1.0]", ErrInvalidArgument, threshold)
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

	// One candidate per distinct title, keeping the highest-weight instance
	// but remembering every platform that carried it.
	type candidate struct {
		item      flatItem
		vec       bigramVec
		platforms map[string]struct{}
	}
	byTitle := make(map[string]*candidate)
	order := make([]*candidate, 0)
	for _, it := range s.flatten(days) {
		if c, ok := byTitle[it.Title]; ok {
			c.platforms[it.SourceID] = struct{}{}
			if it.Weight > c.item.Weight {
				c.item = it
			}
			continue
		}
		c := &candidate{
			item:      it,
			vec:       newBigramVec(it.Title),
			platforms: map[string]struct{}{it.SourceID: {}},
		}
		byTitle[it.Title] = c
		order = append(order, c)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].item.Weight > order[j].item.Weight
	})

	clustered := make([]bool, len(order))
	var clusters []Cluster
	for i, seed := range order {
		if clustered[i] {
			continue
		}
		clustered[i] = true
		members := []*candidate{seed}
		memberVecs := []bigramVec{seed.vec}

		for j := i + 1; j < len(order); j++ {
			if clustered[j] {
				continue
			}
			for _, mv := range memberVecs {
				if mv.cosine(order[j].vec) >= threshold {
					clustered[j] = true
					members = append(members, order[j])
					memberVecs = append(memberVecs, order[j].vec)
					break
				}
			}
		}

		platformSet := make(map[string]struct{})
		bestRankSeen := 0
		totalWeight := 0.0
		titles := make([]string, 0, len(members))
		rep := members[0]
		for _, m := range members {
			for p := range m.platforms {
				platformSet[p] = struct{}{}
			}
			titles = append(titles, m.item.Title)
			totalWeight += m.item.Weight
			br := bestRank(m.item.Ranks, m.item.Rank)
			if bestRankSeen == 0 || br < bestRankSeen {
				bestRankSeen = br
			}
			if m.item.Weight > rep.item.Weight {
				rep = m
			}
		}

		clusters = append(clusters, Cluster{
			Representative:  s.itemView(rep.item, includeURL, true),
			Size:            len(members),
			Platforms:       sortedSet(platformSet),
			PlatformCount:   len(platformSet),
			IsCrossPlatform: len(platformSet) >= 2,
			BestRank:        bestRankSeen,
			TotalWeight:     round2(totalWeight),
			Titles:          titles,
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Size != clusters[j].Size {
			return clusters[i].Size > clusters[j].Size
		}
		return clusters[i].TotalWeight > clusters[j].TotalWeight
	})

	total := len(clusters)
	cross := 0
	for _, c := range clusters {
		if c.IsCrossPlatform {
			cross++
		}
	}
	if len(clusters) > limit {
		clusters = clusters[:limit]
	}

	return &AggregateResult{
		DateRange:           r,
		SimilarityThreshold: threshold,
		TotalTitles:         len(order),
		TotalClusters:       total,
		CrossPlatformCount:  cross,
		Clusters:            clusters,
	}, nil
}
