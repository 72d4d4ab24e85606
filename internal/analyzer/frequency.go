package analyzer

import (
	"math"
	"sort"

	"trendradar/internal/config"
	"trendradar/internal/rules"
	"trendradar/internal/storage"
)

// allNewsGroupKey labels the synthetic catch-all group used when no keyword
// groups are configured.
const allNewsGroupKey = "全部新闻"

// TitleEntry is one ranked title inside a group statistic.
type TitleEntry struct {
	Title         string `json:"title"`
	SourceID      string `json:"source_id"`
	SourceName    string `json:"source_name"`
	FirstTime     string `json:"first_time,omitempty"`
	LastTime      string `json:"last_time,omitempty"`
	TimeDisplay   string `json:"time_display"`
	Count         int    `json:"count"`
	Ranks         []int  `json:"ranks"`
	RankThreshold int    `json:"rank_threshold"`
	URL           string `json:"url,omitempty"`
	MobileURL     string `json:"mobileUrl,omitempty"`
	IsNew         bool   `json:"is_new"`
}

// MinRank returns the best rank the title ever reached.
func (e TitleEntry) MinRank() int { return minRank(e.Ranks) }

// MaxRank returns the worst rank the title ever reached.
func (e TitleEntry) MaxRank() int {
	if len(e.Ranks) == 0 {
		return storage.MissingRank
	}
	m := e.Ranks[0]
	for _, r := range e.Ranks[1:] {
		if r > m {
			m = r
		}
	}
	return m
}

// GroupStat aggregates the titles claimed by one keyword group.
type GroupStat struct {
	Word       string       `json:"word"`
	Count      int          `json:"count"`
	Position   int          `json:"position"`
	Percentage float64      `json:"percentage"`
	Titles     []TitleEntry `json:"titles"`
}

// Options control how CountFrequency selects and ranks its input.
type Options struct {
	// Mode is one of ModeDaily, ModeIncremental or ModeCurrent. Anything
	// else falls back to ModeDaily.
	Mode string
	// IsFirstCrawl marks the first crawl of the day. In incremental mode a
	// first crawl processes the whole input and flags every title as new.
	IsFirstCrawl bool
	// RankThreshold is the worst rank still counted as hot. Non-positive
	// values fall back to 3.
	RankThreshold int
	// Weights blends the score components. A zero value selects the
	// standard 0.4/0.3/0.3 split.
	Weights config.Weights
	// MaxPerGroup caps the titles emitted per group when the group itself
	// does not carry a cap. Zero disables the global cap.
	MaxPerGroup int
	// SortByPosition ranks groups by their position in the rule file before
	// match count instead of the other way round.
	SortByPosition bool
}

// CountFrequency buckets titles into keyword groups and ranks them.
//
// data maps platform id to the merged titles of the day and newTitles holds
// the detector output for the latest crawl. The first matching group claims a
// title, so no title is counted twice, and a title matching no group is
// dropped. The returned total is the number of titles considered before
// matching, which the percentage figures are relative to. Group statistics
// are returned for every configured group, including groups that matched
// nothing.
func CountFrequency(
	data map[string][]storage.NewsItem,
	groups []rules.Group,
	filterWords, globalFilters []string,
	newTitles map[string]map[string]storage.NewsItem,
	opts Options,
) ([]GroupStat, int) {
	w := opts.Weights
	if w.Rank == 0 && w.Frequency == 0 && w.Hotness == 0 {
		w = config.Weights{Rank: 0.4, Frequency: 0.3, Hotness: 0.3}
	}
	threshold := opts.RankThreshold
	if threshold <= 0 {
		threshold = 3
	}

	// Without configured groups every title lands in a single catch-all
	// group. Shared filters are dropped with the groups that declared them,
	// global filters still apply.
	activeGroups := groups
	sharedFilters := filterWords
	if len(activeGroups) == 0 {
		activeGroups = []rules.Group{{GroupKey: allNewsGroupKey}}
		sharedFilters = nil
	}

	toProcess, allNew := selectInput(data, newTitles, opts)

	stats := make([]GroupStat, len(activeGroups))
	for i, g := range activeGroups {
		stats[i] = GroupStat{Word: g.GroupKey, Position: i, Titles: []TitleEntry{}}
	}

	total := 0
	for _, sourceID := range sortedSources(toProcess) {
		items := toProcess[sourceID]
		total += len(items)

		claimed := make(map[string]bool, len(items))
		for _, item := range items {
			if claimed[item.Title] {
				continue
			}
			idx := rules.MatchGroupIndex(item.Title, activeGroups, sharedFilters, globalFilters)
			if idx < 0 {
				continue
			}
			claimed[item.Title] = true
			stats[idx].Count++
			stats[idx].Titles = append(stats[idx].Titles, buildEntry(item, threshold, allNew, newTitles))
		}
	}

	for i := range stats {
		titles := stats[i].Titles
		sort.SliceStable(titles, func(a, b int) bool {
			wa := Weight(titles[a].Ranks, titles[a].Count, threshold, w)
			wb := Weight(titles[b].Ranks, titles[b].Count, threshold, w)
			if wa != wb {
				return wa > wb
			}
			ra, rb := minRank(titles[a].Ranks), minRank(titles[b].Ranks)
			if ra != rb {
				return ra < rb
			}
			return titles[a].Count > titles[b].Count
		})

		limit := activeGroups[i].MaxCount
		if limit == 0 {
			limit = opts.MaxPerGroup
		}
		if limit > 0 && len(titles) > limit {
			titles = titles[:limit]
		}
		stats[i].Titles = titles

		if total > 0 {
			stats[i].Percentage = math.Round(float64(stats[i].Count)/float64(total)*10000) / 100
		}
	}

	if opts.SortByPosition {
		sort.SliceStable(stats, func(a, b int) bool {
			if stats[a].Position != stats[b].Position {
				return stats[a].Position < stats[b].Position
			}
			return stats[a].Count > stats[b].Count
		})
	} else {
		sort.SliceStable(stats, func(a, b int) bool {
			if stats[a].Count != stats[b].Count {
				return stats[a].Count > stats[b].Count
			}
			return stats[a].Position < stats[b].Position
		})
	}

	return stats, total
}

// selectInput shapes the working set for the requested mode and reports
// whether every processed title counts as new.
func selectInput(
	data map[string][]storage.NewsItem,
	newTitles map[string]map[string]storage.NewsItem,
	opts Options,
) (map[string][]storage.NewsItem, bool) {
	switch opts.Mode {
	case ModeIncremental:
		if opts.IsFirstCrawl {
			return data, true
		}
		return flattenNewTitles(newTitles), true
	case ModeCurrent:
		return latestBatchOnly(data), false
	default:
		return data, false
	}
}

// latestBatchOnly keeps the titles whose last observation matches the most
// recent one in the whole day. Days without recorded observation times pass
// through unchanged.
func latestBatchOnly(data map[string][]storage.NewsItem) map[string][]storage.NewsItem {
	latest := ""
	for _, items := range data {
		for _, item := range items {
			if item.LastTime > latest {
				latest = item.LastTime
			}
		}
	}
	if latest == "" {
		return data
	}

	out := make(map[string][]storage.NewsItem, len(data))
	for sourceID, items := range data {
		var kept []storage.NewsItem
		for _, item := range items {
			if item.LastTime == latest {
				kept = append(kept, item)
			}
		}
		if len(kept) > 0 {
			out[sourceID] = kept
		}
	}
	return out
}

func flattenNewTitles(newTitles map[string]map[string]storage.NewsItem) map[string][]storage.NewsItem {
	out := make(map[string][]storage.NewsItem, len(newTitles))
	for sourceID, byTitle := range newTitles {
		items := make([]storage.NewsItem, 0, len(byTitle))
		for _, item := range byTitle {
			items = append(items, item)
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Title < items[j].Title })
		out[sourceID] = items
	}
	return out
}

func buildEntry(item storage.NewsItem, threshold int, allNew bool, newTitles map[string]map[string]storage.NewsItem) TitleEntry {
	ranks := item.Ranks
	if len(ranks) == 0 {
		ranks = []int{storage.MissingRank}
	}
	count := item.Count
	if count <= 0 {
		count = 1
	}
	isNew := allNew
	if !isNew {
		if byTitle, ok := newTitles[item.SourceID]; ok {
			_, isNew = byTitle[item.Title]
		}
	}
	name := item.SourceName
	if name == "" {
		name = item.SourceID
	}
	return TitleEntry{
		Title:         item.Title,
		SourceID:      item.SourceID,
		SourceName:    name,
		FirstTime:     item.FirstTime,
		LastTime:      item.LastTime,
		TimeDisplay:   FormatTimeDisplay(item.FirstTime, item.LastTime),
		Count:         count,
		Ranks:         ranks,
		RankThreshold: threshold,
		URL:           item.URL,
		MobileURL:     item.MobileURL,
		IsNew:         isNew,
	}
}

func minRank(ranks []int) int {
	if len(ranks) == 0 {
		return 999
	}
	m := ranks[0]
	for _, r := range ranks[1:] {
		if r < m {
			m = r
		}
	}
	return m
}

func sortedSources(m map[string][]storage.NewsItem) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
