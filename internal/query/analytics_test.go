package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"trendradar/internal/storage"
)

func TestLatestNewsKeepsNewestBatch(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	seedDay(t, backend, "2025-11-26", "09-00", map[string][]storage.NewsItem{
		"weibo": {{Title: "早间新闻", Rank: 1}},
	})
	seedDay(t, backend, "2025-11-26", "11-00", map[string][]storage.NewsItem{
		"weibo": {{Title: "午间新闻", Rank: 1}},
		"zhihu": {{Title: "知乎热议", Rank: 2}},
	})

	res, err := svc.LatestNews(ctx, nil, 0, false)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if res.CrawlTime != "11:00" {
		t.Fatalf("crawl_time = %q, want 11:00", res.CrawlTime)
	}
	for _, item := range res.Items {
		if item.Title == "早间新闻" {
			t.Fatal("stale batch item leaked into latest view")
		}
		if item.URL != "" {
			t.Fatal("url included without include_url")
		}
	}
	if res.TotalItems != 2 || len(res.Items) != 2 {
		t.Fatalf("totals = %d/%d, want 2/2", res.TotalItems, len(res.Items))
	}

	limited, err := svc.LatestNews(ctx, []string{"zhihu"}, 1, true)
	if err != nil {
		t.Fatalf("filtered latest: %v", err)
	}
	if len(limited.Items) != 1 || limited.Items[0].PlatformID != "zhihu" {
		t.Fatalf("items = %+v, want single zhihu item", limited.Items)
	}
}

func TestNewsByDateUnionsRange(t *testing.T) {
	svc, backend := newTestService(t)

	seedDay(t, backend, "2025-11-25", "10-00", map[string][]storage.NewsItem{
		"weibo": {{Title: "昨天的新闻", Rank: 1}},
	})
	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo": {{Title: "今天的新闻", Rank: 1}},
	})

	res, err := svc.NewsByDate(context.Background(), map[string]any{
		"start": "2025-11-25", "end": "2025-11-26",
	}, nil, 50, false)
	if err != nil {
		t.Fatalf("by date: %v", err)
	}
	if len(res.DaysWithData) != 2 {
		t.Fatalf("days = %v, want 2 entries", res.DaysWithData)
	}
	if res.TotalItems != 2 {
		t.Fatalf("total = %d, want 2", res.TotalItems)
	}
	// Newest day first.
	if res.Items[0].Date != "2025-11-26" {
		t.Fatalf("first item date = %s, want 2025-11-26", res.Items[0].Date)
	}
}

func TestSearchNewsModes(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo": {
			{Title: "华为发布新手机", Rank: 1},
			{Title: "新能源汽车销量上涨", Rank: 2},
			{Title: "Apple Releases New iPhone", Rank: 3},
		},
	})

	keyword, err := svc.SearchNews(ctx, "apple", SearchKeyword, nil, nil, 50, SortRelevance, 0, false)
	if err != nil {
		t.Fatalf("keyword search: %v", err)
	}
	if keyword.TotalMatches != 1 || keyword.Items[0].Title != "Apple Releases New iPhone" {
		t.Fatalf("keyword hits = %+v", keyword.Items)
	}

	fuzzy, err := svc.SearchNews(ctx, "华为发布手机", SearchFuzzy, nil, nil, 50, SortRelevance, 0.4, false)
	if err != nil {
		t.Fatalf("fuzzy search: %v", err)
	}
	if fuzzy.TotalMatches == 0 || fuzzy.Items[0].Title != "华为发布新手机" {
		t.Fatalf("fuzzy hits = %+v", fuzzy.Items)
	}
	if fuzzy.Items[0].Relevance <= 0 || fuzzy.Items[0].Relevance > 1 {
		t.Fatalf("fuzzy relevance = %v", fuzzy.Items[0].Relevance)
	}

	entity, err := svc.SearchNews(ctx, "华为", SearchEntity, nil, nil, 50, SortRelevance, 0, false)
	if err != nil {
		t.Fatalf("entity search: %v", err)
	}
	if entity.TotalMatches != 1 || entity.Items[0].Title != "华为发布新手机" {
		t.Fatalf("entity hits = %+v", entity.Items)
	}

	unknownEntity, err := svc.SearchNews(ctx, "不存在的实体词", SearchEntity, nil, nil, 50, SortRelevance, 0, false)
	if err != nil {
		t.Fatalf("unknown entity search: %v", err)
	}
	if unknownEntity.TotalMatches != 0 {
		t.Fatalf("unknown entity matched %d", unknownEntity.TotalMatches)
	}

	if _, err := svc.SearchNews(ctx, "x", "regex", nil, nil, 50, SortRelevance, 0, false); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad mode err = %v, want ErrInvalidArgument", err)
	}
	if _, err := svc.SearchNews(ctx, "  ", SearchKeyword, nil, nil, 50, SortRelevance, 0, false); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty query err = %v, want ErrInvalidArgument", err)
	}
}

func TestFindRelatedNewsDedupes(t *testing.T) {
	svc, backend := newTestService(t)

	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo": {{Title: "台风登陆广东沿海", Rank: 1, Ranks: []int{1, 1}, Count: 2}},
		"zhihu": {{Title: "台风登陆广东沿海", Rank: 8}},
		"baidu": {{Title: "完全无关的财经新闻", Rank: 2}},
	})

	res, err := svc.FindRelatedNews(context.Background(), "台风登陆广东", nil, 0.5, 50, false)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if res.TotalRelated != 1 {
		t.Fatalf("related = %d, want 1 (duplicate titles collapse)", res.TotalRelated)
	}
	hit := res.Items[0]
	if hit.Similarity < 0.5 {
		t.Fatalf("similarity = %v, want >= threshold", hit.Similarity)
	}
	// The weibo instance has the better rank history, so it must win the
	// dedupe.
	if hit.PlatformID != "weibo" {
		t.Fatalf("kept platform = %s, want weibo", hit.PlatformID)
	}
}

func TestAnalyzeSentiment(t *testing.T) {
	svc, backend := newTestService(t)

	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo": {
			{Title: "股市暴跌引发恐慌", Rank: 1},
			{Title: "科研团队取得重大突破", Rank: 2},
			{Title: "城市公园今日开放", Rank: 3},
		},
		"zhihu": {
			{Title: "股市暴跌引发恐慌", Rank: 4},
		},
	})

	res, err := svc.AnalyzeSentiment(context.Background(), "", nil, nil, 50, true, false)
	if err != nil {
		t.Fatalf("sentiment: %v", err)
	}
	// Duplicate title across platforms counts once.
	if res.TotalAnalyzed != 3 {
		t.Fatalf("analyzed = %d, want 3", res.TotalAnalyzed)
	}
	if res.Distribution.Negative != 1 || res.Distribution.Positive != 1 || res.Distribution.Neutral != 1 {
		t.Fatalf("distribution = %+v", res.Distribution)
	}
	if res.Overall != SentimentNeutral {
		t.Fatalf("overall = %s, want neutral", res.Overall)
	}

	topical, err := svc.AnalyzeSentiment(context.Background(), "股市", nil, nil, 50, true, false)
	if err != nil {
		t.Fatalf("topic sentiment: %v", err)
	}
	if topical.TotalAnalyzed != 1 || topical.Items[0].Sentiment != SentimentNegative {
		t.Fatalf("topical = %+v", topical)
	}
}

func TestAggregateNewsClusters(t *testing.T) {
	svc, backend := newTestService(t)

	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo": {
			{Title: "某地突发山火已扑灭", Rank: 1, Ranks: []int{1, 1}, Count: 2},
			{Title: "无关的体育新闻", Rank: 9},
		},
		"zhihu": {
			{Title: "某地突发山火扑灭了", Rank: 3},
		},
	})

	res, err := svc.AggregateNews(context.Background(), nil, nil, 0.6, 50, false)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if res.TotalClusters != 2 {
		t.Fatalf("clusters = %d, want 2", res.TotalClusters)
	}
	top := res.Clusters[0]
	if top.Size != 2 || !top.IsCrossPlatform || top.PlatformCount != 2 {
		t.Fatalf("top cluster = %+v, want cross-platform pair", top)
	}
	if top.BestRank != 1 {
		t.Fatalf("best rank = %d, want 1", top.BestRank)
	}
	if top.Representative.PlatformID != "weibo" {
		t.Fatalf("representative = %+v, want the weibo instance", top.Representative)
	}
	if res.CrossPlatformCount != 1 {
		t.Fatalf("cross-platform count = %d, want 1", res.CrossPlatformCount)
	}

	if _, err := svc.AggregateNews(context.Background(), nil, nil, 0.1, 50, false); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("threshold err = %v, want ErrInvalidArgument", err)
	}
}

func TestComparePeriods(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	seedDay(t, backend, "2025-11-25", "10-00", map[string][]storage.NewsItem{
		"weibo": {{Title: "人工智能峰会开幕", Rank: 1}},
	})
	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo": {
			{Title: "人工智能峰会闭幕", Rank: 1},
			{Title: "人工智能成果展示", Rank: 2},
		},
		"zhihu": {{Title: "新晋话题讨论", Rank: 3}},
	})

	res, err := svc.ComparePeriods(ctx, "2025-11-25", "2025-11-26", "", CompareOverview, nil, 10)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if res.Period1.TotalItems != 1 || res.Period2.TotalItems != 3 {
		t.Fatalf("period totals = %d/%d", res.Period1.TotalItems, res.Period2.TotalItems)
	}
	if res.ItemsDelta != 2 {
		t.Fatalf("delta = %d, want 2", res.ItemsDelta)
	}
	if res.PctChange != 200 {
		t.Fatalf("pct = %v, want 200", res.PctChange)
	}

	activity, err := svc.ComparePeriods(ctx, "2025-11-25", "2025-11-26", "", ComparePlatformActivity, nil, 10)
	if err != nil {
		t.Fatalf("activity compare: %v", err)
	}
	shifts := make(map[string]int)
	for _, sh := range activity.PlatformShifts {
		shifts[sh.PlatformID] = sh.Delta
	}
	if shifts["weibo"] != 1 || shifts["zhihu"] != 1 {
		t.Fatalf("shifts = %+v", shifts)
	}

	if _, err := svc.ComparePeriods(ctx, nil, "2025-11-26", "", CompareOverview, nil, 10); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing period err = %v", err)
	}
}

func TestTopicTrendAnalyses(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	// Volume ramps up towards today with a clear spike on the 25th.
	days := map[string]int{
		"2025-11-22": 1,
		"2025-11-23": 1,
		"2025-11-24": 1,
		"2025-11-25": 6,
		"2025-11-26": 7,
	}
	for date, n := range days {
		items := make([]storage.NewsItem, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, storage.NewsItem{
				Title: "地震救援进展 " + date + " " + strings.Repeat("x", i+1),
				Rank:  i + 1,
			})
		}
		seedDay(t, backend, date, "10-00", map[string][]storage.NewsItem{"weibo": items})
	}

	trend, err := svc.TopicTrend(ctx, "地震", TrendAnalysis, "last 5 days", "day", 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(trend.Series) != 5 {
		t.Fatalf("series = %d points, want 5", len(trend.Series))
	}
	if trend.Direction != "rising" {
		t.Fatalf("direction = %s, want rising", trend.Direction)
	}
	if trend.Peak == nil || trend.Peak.Date != "2025-11-26" {
		t.Fatalf("peak = %+v", trend.Peak)
	}
	if trend.TotalMatches != 16 {
		t.Fatalf("total = %d, want 16", trend.TotalMatches)
	}

	viral, err := svc.TopicTrend(ctx, "地震", ViralAnalysis, "last 5 days", "day", 3.0, 24, 0, 0)
	if err != nil {
		t.Fatalf("viral: %v", err)
	}
	if !viral.IsViral || len(viral.Spikes) == 0 {
		t.Fatalf("viral = %+v, want a spike", viral)
	}
	if viral.Spikes[0].Date != "2025-11-25" {
		t.Fatalf("spike date = %s, want 2025-11-25", viral.Spikes[0].Date)
	}

	lifecycle, err := svc.TopicTrend(ctx, "地震", LifecycleAnalysis, "last 5 days", "day", 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("lifecycle: %v", err)
	}
	if lifecycle.Stage != StageGrowing {
		t.Fatalf("stage = %s, want growing", lifecycle.Stage)
	}
	if lifecycle.FirstSeen != "2025-11-22" || lifecycle.ActiveDays != 5 {
		t.Fatalf("lifecycle = %+v", lifecycle)
	}

	predict, err := svc.TopicTrend(ctx, "地震", PredictAnalysis, "last 5 days", "day", 0, 0, 48, 0.5)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(predict.Predictions) != 2 {
		t.Fatalf("predictions = %d, want 2", len(predict.Predictions))
	}
	if predict.Predictions[0].Date != "2025-11-27" {
		t.Fatalf("first prediction date = %s", predict.Predictions[0].Date)
	}
	if predict.Confidence <= 0 {
		t.Fatalf("confidence = %v, want > 0", predict.Confidence)
	}

	if _, err := svc.TopicTrend(ctx, "", TrendAnalysis, nil, "day", 0, 0, 0, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty topic err = %v", err)
	}
}

func TestDataInsights(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo": {
			{Title: "新能源汽车出口增长", Rank: 1},
			{Title: "新能源电池技术突破", Rank: 2},
			{Title: "新能源汽车补贴政策", Rank: 3},
		},
		"zhihu": {
			{Title: "新能源汽车值得买吗", Rank: 1},
		},
	})

	compare, err := svc.DataInsights(ctx, InsightPlatformCompare, "新能源", nil, 1, 20)
	if err != nil {
		t.Fatalf("platform compare: %v", err)
	}
	if compare.MostActive != "weibo" {
		t.Fatalf("most active = %s, want weibo", compare.MostActive)
	}
	if len(compare.Platforms) != 2 || compare.Platforms[0].Matched != 3 {
		t.Fatalf("platforms = %+v", compare.Platforms)
	}

	activity, err := svc.DataInsights(ctx, InsightPlatformActivity, "", nil, 1, 20)
	if err != nil {
		t.Fatalf("platform activity: %v", err)
	}
	if len(activity.Activity) != 1 || activity.Activity[0].Total != 4 {
		t.Fatalf("activity = %+v", activity.Activity)
	}

	cooccur, err := svc.DataInsights(ctx, InsightKeywordCooccur, "", nil, 2, 20)
	if err != nil {
		t.Fatalf("cooccur: %v", err)
	}
	found := false
	for _, c := range cooccur.Cooccurrences {
		if (c.Keywords[0] == "新能" && c.Keywords[1] == "能源") && c.Count >= 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 新能/能源 pair, got %+v", cooccur.Cooccurrences)
	}

	if _, err := svc.DataInsights(ctx, "bogus", "", nil, 1, 20); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad insight err = %v", err)
	}
}

func TestSummaryReport(t *testing.T) {
	svc, backend := newTestService(t)

	seedDay(t, backend, "2025-11-26", "10-00", map[string][]storage.NewsItem{
		"weibo": {
			{Title: "今日头条新闻", Rank: 1},
			{Title: "次要新闻", Rank: 5},
		},
	})

	res, err := svc.SummaryReport(context.Background(), ReportDaily, nil)
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if res.TotalTitles != 2 {
		t.Fatalf("total = %d, want 2", res.TotalTitles)
	}
	// Without configured groups everything lands in the catch-all group.
	if len(res.Groups) != 1 || res.Groups[0].GroupKey != "全部新闻" {
		t.Fatalf("groups = %+v", res.Groups)
	}
	if !strings.Contains(res.Markdown, "热点日报 2025-11-26") {
		t.Fatalf("markdown header missing:\n%s", res.Markdown)
	}
	if !strings.Contains(res.Markdown, "今日头条新闻") {
		t.Fatalf("markdown titles missing:\n%s", res.Markdown)
	}

	if _, err := svc.SummaryReport(context.Background(), "monthly", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad type err = %v", err)
	}
}
