package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trendradar/internal/cache"
	"trendradar/internal/config"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

var testNow = time.Date(2025, 11, 26, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *storage.Local) {
	t.Helper()
	backend := storage.NewLocal(t.TempDir(), true, false, time.UTC, zerolog.Nop())
	t.Cleanup(func() { backend.Cleanup() })

	cfg := config.Default()
	cfg.Keywords.FrequencyWordsPath = ""

	svc := NewService(backend, cfg, time.UTC, zerolog.Nop())
	svc.cache = cache.New()
	svc.now = func() time.Time { return testNow }
	return svc, backend
}

func seedDay(t *testing.T, backend *storage.Local, date, crawlTime string, items map[string][]storage.NewsItem) {
	t.Helper()
	idToName := make(map[string]string, len(items))
	for id, list := range items {
		idToName[id] = id
		for i := range list {
			list[i].SourceID = id
			list[i].CrawlTime = crawlTime
			if list[i].FirstTime == "" {
				list[i].FirstTime = crawlTime
			}
			list[i].LastTime = crawlTime
			if list[i].Count == 0 {
				list[i].Count = 1
			}
			if len(list[i].Ranks) == 0 && list[i].Rank > 0 {
				list[i].Ranks = []int{list[i].Rank}
			}
		}
	}
	data := &storage.NewsData{Date: date, CrawlTime: crawlTime, Items: items, IDToName: idToName}
	if err := backend.SaveNewsData(context.Background(), data); err != nil {
		t.Fatalf("seed %s %s: %v", date, crawlTime, err)
	}
}

func TestReadAllTitlesFiltersAndCaches(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo":  {{Title: "甲", Rank: 1}},
		"zhihu":  {{Title: "乙", Rank: 2}},
		"douyin": {{Title: "丙", Rank: 3}},
	})

	all, err := svc.readAllTitles(ctx, "2025-11-26", nil)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if all.TotalItems() != 3 {
		t.Fatalf("total = %d, want 3", all.TotalItems())
	}

	filtered, err := svc.readAllTitles(ctx, "2025-11-26", []string{"weibo"})
	if err != nil {
		t.Fatalf("read filtered: %v", err)
	}
	if filtered.TotalItems() != 1 {
		t.Fatalf("filtered total = %d, want 1", filtered.TotalItems())
	}
	if _, ok := filtered.Items["zhihu"]; ok {
		t.Fatal("platform filter leaked zhihu")
	}

	// A repeat read must come from the cache.
	before := svc.cache.Stats().Hits
	if _, err := svc.readAllTitles(ctx, "2025-11-26", []string{"weibo"}); err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if svc.cache.Stats().Hits != before+1 {
		t.Fatalf("hits = %d, want %d", svc.cache.Stats().Hits, before+1)
	}
}

func TestReadAllTitlesMissingDay(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.readAllTitles(context.Background(), "2025-01-01", nil)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestReadAllTitlesTXTFallback(t *testing.T) {
	svc, backend := newTestService(t)

	// Two snapshots, no database: the second observation of the same title
	// must merge into one item with both ranks.
	first := &storage.NewsData{
		Date:      "2025-11-26",
		CrawlTime: "09-00",
		Items: map[string][]storage.NewsItem{
			"weibo": {{Title: "快照标题", SourceID: "weibo", Rank: 2, Ranks: []int{2}}},
		},
		IDToName: map[string]string{"weibo": "微博"},
	}
	if _, err := backend.SaveTXTSnapshot(first); err != nil {
		t.Fatalf("save first snapshot: %v", err)
	}
	second := &storage.NewsData{
		Date:      "2025-11-26",
		CrawlTime: "10-00",
		Items: map[string][]storage.NewsItem{
			"weibo": {
				{Title: "快照标题", SourceID: "weibo", Rank: 1, Ranks: []int{1}},
				{Title: "新标题", SourceID: "weibo", Rank: 5, Ranks: []int{5}},
			},
		},
		IDToName: map[string]string{"weibo": "微博"},
	}
	if _, err := backend.SaveTXTSnapshot(second); err != nil {
		t.Fatalf("save second snapshot: %v", err)
	}

	data, err := svc.readAllTitles(context.Background(), "2025-11-26", nil)
	if err != nil {
		t.Fatalf("fallback read: %v", err)
	}
	if data.TotalItems() != 2 {
		t.Fatalf("total = %d, want 2", data.TotalItems())
	}
	var merged storage.NewsItem
	for _, item := range data.Items["weibo"] {
		if item.Title == "快照标题" {
			merged = item
		}
	}
	if merged.Count != 2 || len(merged.Ranks) != 2 {
		t.Fatalf("merged = %+v, want count 2 with 2 ranks", merged)
	}
	if merged.FirstTime != "09-00" || merged.LastTime != "10-00" {
		t.Fatalf("merged window = %s..%s", merged.FirstTime, merged.LastTime)
	}
}

func TestReadRangeSkipsMissingDays(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	seedDay(t, backend, "2025-11-24", "10-00", map[string][]storage.NewsItem{
		"weibo": {{Title: "第一天", Rank: 1}},
	})
	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo": {{Title: "第三天", Rank: 1}},
	})

	days, err := svc.readRange(ctx, mustRange(t, svc, "last 3 days"), nil)
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("days = %d, want 2 (middle day skipped)", len(days))
	}
	if days[0].Date != "2025-11-24" || days[1].Date != "2025-11-26" {
		t.Fatalf("day order = %s, %s", days[0].Date, days[1].Date)
	}

	_, err = svc.readRange(ctx, mustRange(t, svc, "2025-01-01"), nil)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("empty range err = %v, want ErrNoData", err)
	}
}

func mustRange(t *testing.T, svc *Service, expr any) util.DateRange {
	t.Helper()
	dr, err := svc.ResolveRange(expr)
	if err != nil {
		t.Fatalf("resolve %v: %v", expr, err)
	}
	return dr
}

func TestRulesFileDrivesTrendingTopics(t *testing.T) {
	svc, backend := newTestService(t)

	rulesPath := filepath.Join(t.TempDir(), "frequency_words.txt")
	content := "AI\n人工智能\n\n比亚迪\n"
	if err := os.WriteFile(rulesPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	svc.cfg.Keywords.FrequencyWordsPath = rulesPath

	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo": {
			{Title: "AI大模型发布", Rank: 1},
			{Title: "人工智能新进展", Rank: 2},
			{Title: "比亚迪销量创新高", Rank: 3},
			{Title: "不相关的标题", Rank: 4},
		},
	})

	res, err := svc.TrendingTopics(context.Background(), 10, "daily", ExtractKeywords)
	if err != nil {
		t.Fatalf("trending: %v", err)
	}
	if len(res.Topics) != 2 {
		t.Fatalf("topics = %d, want 2", len(res.Topics))
	}
	if res.Topics[0].Topic != "AI 人工智能" || res.Topics[0].Count != 2 {
		t.Fatalf("top topic = %+v, want 'AI 人工智能' with 2", res.Topics[0])
	}
	if res.TotalTitles != 4 {
		t.Fatalf("total titles = %d, want 4", res.TotalTitles)
	}
}
