// Package query is the analytics facade over the day-store: every tool that
// reads news goes through it. Reads are cached per (date, platform set) with
// a shorter TTL for today, fall back to TXT snapshots when a day has no
// database, and fan out over date ranges with bounded concurrency.
package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trendradar/internal/analyzer"
	"trendradar/internal/cache"
	"trendradar/internal/config"
	"trendradar/internal/rules"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

// ErrNoData reports that no stored data exists for a requested date or
// range, after both the database and the TXT fallback came up empty.
var ErrNoData = errors.New("no news data")

// ErrInvalidArgument reports an argument outside its documented domain.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrFileParse reports that a TXT snapshot existed but could not be read
// back.
var ErrFileParse = errors.New("parse txt snapshot")

// readConcurrency bounds parallel day reads during range queries.
const readConcurrency = 4

// Service answers analytical questions over the stored news. All methods are
// safe for concurrent use.
type Service struct {
	backend storage.Backend
	cache   *cache.Cache
	cfg     *config.Config
	loc     *time.Location
	log     zerolog.Logger
	lexicon Lexicon

	now func() time.Time
}

// NewService wires the facade over a storage backend. The process-wide TTL
// cache is shared with trigger_crawl, which clears it after every write.
func NewService(backend storage.Backend, cfg *config.Config, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		backend: backend,
		cache:   cache.Shared(),
		cfg:     cfg,
		loc:     loc,
		log:     logger.With().Str("component", "query").Logger(),
		lexicon: buildLexicon(cfg),
		now:     time.Now,
	}
}

// Lexicon exposes the word lists in use, mostly for status reporting.
func (s *Service) Lexicon() Lexicon { return s.lexicon }

func (s *Service) localNow() time.Time { return s.now().In(s.loc) }

func (s *Service) today() string { return util.FormatDateFolder(s.localNow()) }

// ResolveRange parses a date expression relative to the configured timezone.
// A nil expression means today.
func (s *Service) ResolveRange(expr any) (util.DateRange, error) {
	return util.ResolveDateRange(expr, s.localNow())
}

func (s *Service) weight(item storage.NewsItem) float64 {
	ranks := item.Ranks
	if len(ranks) == 0 {
		ranks = []int{storage.MissingRank}
	}
	return analyzer.Weight(ranks, item.Count, s.cfg.Report.RankThreshold, s.cfg.Weights)
}

// loadRules reads the keyword rule file. A missing or unreadable file
// degrades to the catch-all group instead of failing the query.
func (s *Service) loadRules() (groups []rules.Group, filterWords, globalFilters []string) {
	path := s.cfg.Keywords.FrequencyWordsPath
	if path == "" {
		return nil, nil, nil
	}
	groups, filterWords, globalFilters, err := rules.Load(path)
	if err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("keyword rules unavailable")
		return nil, nil, nil
	}
	return groups, filterWords, globalFilters
}

// ---------------------------------------------------------------------------
// Cached day reads
// ---------------------------------------------------------------------------

// platformKey renders a platform filter as a stable cache-key component.
func platformKey(platformIDs []string) string {
	if len(platformIDs) == 0 {
		return "all"
	}
	ids := make([]string, len(platformIDs))
	copy(ids, platformIDs)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// readAllTitles returns the merged data of one day restricted to the given
// platforms. Results are cached under read_all_titles:<date>:<platform-key>;
// today's entries expire after cache.DefaultTTL, historical days after
// cache.HistoricalTTL. When the day has no database the TXT snapshots of the
// folder are merged instead. A day with nothing at all yields ErrNoData.
func (s *Service) readAllTitles(ctx context.Context, date string, platformIDs []string) (*storage.NewsData, error) {
	if date == "" {
		date = s.today()
	}
	key := fmt.Sprintf("read_all_titles:%s:%s", date, platformKey(platformIDs))
	ttl := cache.HistoricalTTL
	if date == s.today() {
		ttl = cache.DefaultTTL
	}
	if v, ok := s.cache.Get(key, ttl); ok {
		if data, ok := v.(*storage.NewsData); ok {
			return data, nil
		}
	}

	data, err := s.backend.GetTodayAllData(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("read day %s: %w", date, err)
	}
	if data == nil || data.TotalItems() == 0 {
		data, err = s.readTXTFallback(date)
		if err != nil {
			return nil, err
		}
	}
	if data == nil || data.TotalItems() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, date)
	}

	data = filterPlatforms(data, platformIDs)
	if data.TotalItems() == 0 {
		return nil, fmt.Errorf("%w: %s (platforms %s)", ErrNoData, date, platformKey(platformIDs))
	}

	s.cache.Set(key, data)
	return data, nil
}

// readTXTFallback reconstructs a day from its TXT snapshots, merging the
// batches in filename (time) order the same way the database write path
// merges crawls. Returns nil when the backend has no snapshots to offer.
func (s *Service) readTXTFallback(date string) (*storage.NewsData, error) {
	src, ok := s.backend.(storage.TXTSource)
	if !ok {
		return nil, nil
	}
	paths, err := src.ListTXTSnapshots(date)
	if err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("list txt snapshots")
		return nil, nil
	}
	if len(paths) == 0 {
		return nil, nil
	}

	merged := make(map[string]map[string]*storage.NewsItem)
	idToName := make(map[string]string)
	lastStamp := ""

	for _, path := range paths {
		stamp := strings.TrimSuffix(filepath.Base(path), ".txt")
		results, names, err := storage.ParseTXTFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFileParse, path, err)
		}
		lastStamp = stamp
		for id, name := range names {
			if name != "" {
				idToName[id] = name
			}
		}
		for id, titles := range results {
			byTitle := merged[id]
			if byTitle == nil {
				byTitle = make(map[string]*storage.NewsItem, len(titles))
				merged[id] = byTitle
			}
			for title, td := range titles {
				if item, ok := byTitle[title]; ok {
					item.Ranks = append(item.Ranks, td.Ranks...)
					item.LastTime = stamp
					item.Count++
					if item.URL == "" {
						item.URL = td.URL
					}
					if item.MobileURL == "" {
						item.MobileURL = td.MobileURL
					}
					continue
				}
				rank := storage.MissingRank
				if len(td.Ranks) > 0 {
					rank = td.Ranks[0]
				}
				byTitle[title] = &storage.NewsItem{
					Title:      title,
					SourceID:   id,
					SourceName: idToName[id],
					Rank:       rank,
					URL:        td.URL,
					MobileURL:  td.MobileURL,
					CrawlTime:  stamp,
					Ranks:      append([]int(nil), td.Ranks...),
					FirstTime:  stamp,
					LastTime:   stamp,
					Count:      1,
				}
			}
		}
	}

	items := make(map[string][]storage.NewsItem, len(merged))
	for id, byTitle := range merged {
		list := make([]storage.NewsItem, 0, len(byTitle))
		for _, item := range byTitle {
			item.SourceName = idToName[id]
			list = append(list, *item)
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Rank != list[j].Rank {
				return list[i].Rank < list[j].Rank
			}
			return list[i].Title < list[j].Title
		})
		items[id] = list
	}

	return &storage.NewsData{
		Date:      date,
		CrawlTime: lastStamp,
		Items:     items,
		IDToName:  idToName,
	}, nil
}

// filterPlatforms narrows a day to the requested platform ids without
// mutating the input, which may be shared through the cache.
func filterPlatforms(data *storage.NewsData, platformIDs []string) *storage.NewsData {
	if len(platformIDs) == 0 {
		return data
	}
	want := make(map[string]struct{}, len(platformIDs))
	for _, id := range platformIDs {
		want[id] = struct{}{}
	}
	items := make(map[string][]storage.NewsItem, len(platformIDs))
	idToName := make(map[string]string, len(platformIDs))
	for id, list := range data.Items {
		if _, ok := want[id]; ok {
			items[id] = list
			idToName[id] = data.IDToName[id]
		}
	}
	return &storage.NewsData{
		Date:      data.Date,
		CrawlTime: data.CrawlTime,
		Items:     items,
		IDToName:  idToName,
		FailedIDs: data.FailedIDs,
	}
}

// dayData pairs a day's data with its normalized date string.
type dayData struct {
	Date string
	Data *storage.NewsData
}

// readRange reads every day of the range concurrently. Days without data are
// skipped; only a completely empty range is an error. Results come back
// oldest first.
func (s *Service) readRange(ctx context.Context, r util.DateRange, platformIDs []string) ([]dayData, error) {
	days, err := r.Days()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrBadDateExpression, err)
	}

	results := make([]*storage.NewsData, len(days))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, readConcurrency)
	for i, day := range days {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			data, err := s.readAllTitles(gctx, util.FormatDateFolder(day), platformIDs)
			if err != nil {
				if errors.Is(err, ErrNoData) {
					return nil
				}
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]dayData, 0, len(days))
	for i, data := range results {
		if data != nil {
			out = append(out, dayData{Date: util.FormatDateFolder(days[i]), Data: data})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoData, r.Start, r.End)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Flattened item views
// ---------------------------------------------------------------------------

// NewsItemView is the external shape of one stored headline.
type NewsItemView struct {
	Title        string  `json:"title"`
	PlatformID   string  `json:"platform_id"`
	PlatformName string  `json:"platform_name"`
	Date         string  `json:"date,omitempty"`
	Rank         int     `json:"rank"`
	Ranks        []int   `json:"ranks,omitempty"`
	Count        int     `json:"count"`
	FirstTime    string  `json:"first_time,omitempty"`
	LastTime     string  `json:"last_time,omitempty"`
	TimeDisplay  string  `json:"time_display,omitempty"`
	Weight       float64 `json:"weight"`
	URL          string  `json:"url,omitempty"`
	MobileURL    string  `json:"mobile_url,omitempty"`
}

// flatItem carries a stored item plus derived fields used by the analytics
// operations.
type flatItem struct {
	storage.NewsItem
	Date   string
	Weight float64
}

func (s *Service) itemView(it flatItem, includeURL, includeDate bool) NewsItemView {
	name := it.SourceName
	if name == "" {
		name = it.SourceID
	}
	v := NewsItemView{
		Title:        it.Title,
		PlatformID:   it.SourceID,
		PlatformName: name,
		Rank:         bestRank(it.Ranks, it.Rank),
		Ranks:        it.Ranks,
		Count:        it.Count,
		FirstTime:    it.FirstTime,
		LastTime:     it.LastTime,
		TimeDisplay:  analyzer.FormatTimeDisplay(it.FirstTime, it.LastTime),
		Weight:       round2(it.Weight),
	}
	if v.Count < 1 {
		v.Count = 1
	}
	if includeDate {
		v.Date = it.Date
	}
	if includeURL {
		v.URL = it.URL
		v.MobileURL = it.MobileURL
	}
	return v
}

// flatten turns day reads into one weighted slice ordered by date, platform
// and rank. The underlying item values are copied, so callers may sort
// freely.
func (s *Service) flatten(days []dayData) []flatItem {
	var out []flatItem
	for _, day := range days {
		for _, id := range day.Data.PlatformIDs() {
			for _, item := range day.Data.Items[id] {
				out = append(out, flatItem{
					NewsItem: item,
					Date:     day.Date,
					Weight:   s.weight(item),
				})
			}
		}
	}
	return out
}

// latestOnly keeps the items whose last observation matches the newest one
// present, reproducing the "current board" view of the analyzer.
func latestOnly(items []flatItem) []flatItem {
	latest := ""
	for _, it := range items {
		if it.LastTime > latest {
			latest = it.LastTime
		}
	}
	if latest == "" {
		return items
	}
	var out []flatItem
	for _, it := range items {
		if it.LastTime == latest {
			out = append(out, it)
		}
	}
	return out
}

func bestRank(ranks []int, fallback int) int {
	if len(ranks) == 0 {
		if fallback > 0 {
			return fallback
		}
		return storage.MissingRank
	}
	m := ranks[0]
	for _, r := range ranks[1:] {
		if r < m {
			m = r
		}
	}
	return m
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
