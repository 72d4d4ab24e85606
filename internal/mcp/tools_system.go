package mcp

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"trendradar/internal/cache"
	"trendradar/internal/config"
	"trendradar/internal/rules"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

// ---------------------------------------------------------------------------
// Configuration & system status
// ---------------------------------------------------------------------------

func (d *Dispatcher) getCurrentConfig(ctx context.Context, args map[string]any) (any, error) {
	section, err := stringArg(args, "section", "all")
	if err != nil {
		return nil, err
	}
	switch section {
	case "all", "crawler", "push", "keywords", "weights":
	default:
		return nil, Errorf(CodeInvalidArgument, "unknown section %q (use all, crawler, push, keywords or weights)", section)
	}

	cfg := d.deps.Config
	out := map[string]any{}
	if section == "all" || section == "crawler" {
		out["crawler"] = crawlerSection(cfg)
	}
	if section == "all" || section == "push" {
		out["push"] = pushSection(cfg)
	}
	if section == "all" || section == "keywords" {
		out["keywords"] = keywordsSection(cfg)
	}
	if section == "all" || section == "weights" {
		out["weights"] = map[string]any{
			"rank_weight":      cfg.Weights.Rank,
			"frequency_weight": cfg.Weights.Frequency,
			"hotness_weight":   cfg.Weights.Hotness,
			"rank_threshold":   cfg.Report.RankThreshold,
		}
	}

	return map[string]any{"section": section, "config": out}, nil
}

func crawlerSection(cfg *config.Config) map[string]any {
	platforms := make([]map[string]string, 0, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		platforms = append(platforms, map[string]string{"id": p.ID, "name": p.Name})
	}
	return map[string]any{
		"enable_crawler":      cfg.Crawler.EnableCrawler,
		"base_url":            cfg.Crawler.BaseURL,
		"request_interval_ms": cfg.Crawler.RequestInterval,
		"use_proxy":           cfg.Crawler.UseProxy,
		"platforms":           platforms,
	}
}

// pushSection reports which channels are configured without echoing webhook
// URLs or tokens back to the caller.
func pushSection(cfg *config.Config) map[string]any {
	n := cfg.Notification
	return map[string]any{
		"enable":              n.Enable,
		"once_per_day":        n.OncePerDay,
		"max_accounts":        n.MaxAccounts,
		"push_window":         map[string]string{"start": n.PushWindow.Start, "end": n.PushWindow.End},
		"message_batch_size":  n.MessageBatchSize,
		"batch_send_interval": n.BatchSendInterval,
		"channels_configured": map[string]bool{
			"feishu":   n.Channels.FeishuURL != "",
			"dingtalk": n.Channels.DingtalkURL != "",
			"wework":   n.Channels.WeworkURL != "",
			"telegram": n.Channels.TelegramBotToken != "" && n.Channels.TelegramChatID != "",
			"ntfy":     n.Channels.NtfyTopic != "",
		},
	}
}

func keywordsSection(cfg *config.Config) map[string]any {
	out := map[string]any{
		"frequency_words_path": cfg.Keywords.FrequencyWordsPath,
		"stop_words_extra":     len(cfg.Keywords.StopWords),
	}
	groups, filterWords, globalFilters, err := rules.Load(cfg.Keywords.FrequencyWordsPath)
	if err != nil {
		out["rule_file_error"] = err.Error()
		return out
	}
	out["group_count"] = len(groups)
	out["filter_word_count"] = len(filterWords)
	out["global_filter_count"] = len(globalFilters)
	keys := make([]string, 0, len(groups))
	for _, g := range groups {
		keys = append(keys, g.GroupKey)
	}
	out["group_keys"] = keys
	return out
}

func (d *Dispatcher) getSystemStatus(ctx context.Context, args map[string]any) (any, error) {
	cfg := d.deps.Config
	now := d.now().In(d.deps.Location)
	today := util.FormatDateFolder(now)

	todayStatus := map[string]any{"date": today, "crawl_count": 0}
	if times, err := d.deps.Backend.GetCrawlTimes(ctx, today); err == nil && len(times) > 0 {
		todayStatus["crawl_count"] = len(times)
		todayStatus["first_crawl"] = util.TimeForDisplay(times[0])
		todayStatus["latest_crawl"] = util.TimeForDisplay(times[len(times)-1])
	}

	stats := cache.Shared().Stats()
	ids := make([]string, 0, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		ids = append(ids, p.ID)
	}

	return map[string]any{
		"system": map[string]any{
			"version":        config.Version,
			"server_time":    util.FormatTimestamp(now),
			"timezone":       cfg.App.Timezone,
			"uptime_seconds": int64(time.Since(d.started).Seconds()),
		},
		"storage": map[string]any{
			"backend":  d.deps.Backend.BackendName(),
			"data_dir": d.deps.LocalRoot,
		},
		"today": todayStatus,
		"cache": map[string]any{
			"total_entries": stats.Entries,
			"hits":          stats.Hits,
			"misses":        stats.Misses,
		},
		"platforms": map[string]any{
			"count": len(ids),
			"ids":   ids,
		},
		"report": map[string]any{
			"mode":           cfg.Report.Mode,
			"rank_threshold": cfg.Report.RankThreshold,
		},
	}, nil
}

// ---------------------------------------------------------------------------
// Crawl trigger
// ---------------------------------------------------------------------------

func (d *Dispatcher) triggerCrawl(ctx context.Context, args map[string]any) (any, error) {
	requested, err := stringListArg(args, "platforms")
	if err != nil {
		return nil, err
	}
	saveToLocal, err := boolArg(args, "save_to_local", false)
	if err != nil {
		return nil, err
	}
	includeURL, err := boolArg(args, "include_url", false)
	if err != nil {
		return nil, err
	}

	if d.deps.Fetcher == nil {
		return nil, Errorf(CodeCrawlTask, "crawler is not configured on this server")
	}
	targets, err := selectPlatforms(d.deps.Config.Platforms, requested)
	if err != nil {
		return nil, err
	}

	interval := time.Duration(d.deps.Config.Crawler.RequestInterval) * time.Millisecond
	results, idToName, failedIDs, err := d.deps.Fetcher.CrawlWebsites(ctx, targets, interval)
	if err != nil {
		return nil, Errorf(CodeCrawlTask, "crawl failed: %v", err)
	}
	observeCrawl(len(results), len(failedIDs))

	now := d.now().In(d.deps.Location)
	data := storage.ConvertCrawlResults(results, idToName, failedIDs,
		util.FormatTimeFilename(now), util.FormatDateFolder(now))

	// Persist first, report honestly after: a read-only filesystem must not
	// mask a successful fetch.
	saved := true
	saveErr := ""
	savedFiles := map[string]string{}
	if err := d.deps.Backend.SaveNewsData(ctx, data); err != nil {
		saved = false
		saveErr = err.Error()
	} else if saveToLocal {
		if path, err := d.deps.Backend.SaveTXTSnapshot(data); err != nil {
			saved = false
			saveErr = err.Error()
		} else {
			savedFiles["txt"] = path
			htmlName := data.CrawlTime + ".html"
			if path, err := d.deps.Backend.SaveHTMLReport(simpleCrawlHTML(data, now), htmlName); err != nil {
				saved = false
				saveErr = err.Error()
			} else {
				savedFiles["html"] = path
			}
		}
	}

	// Later reads must observe the new batch even if persistence failed.
	cache.Shared().Clear()

	if failedIDs == nil {
		failedIDs = []string{}
	}
	items := crawlResponseItems(data, includeURL)
	resp := map[string]any{
		"task_id":          fmt.Sprintf("crawl_%d", now.Unix()),
		"status":           "completed",
		"crawl_time":       util.FormatTimestamp(now),
		"platforms":        data.PlatformIDs(),
		"total_news":       len(items),
		"failed_platforms": failedIDs,
		"data":             items,
		"saved_to_local":   saved && saveToLocal,
	}
	switch {
	case saved && saveToLocal:
		resp["saved_files"] = savedFiles
		resp["note"] = "数据已保存到 SQLite 数据库及 TXT/HTML 快照"
	case saved:
		resp["note"] = "数据已保存到 SQLite 数据库（未生成 TXT/HTML 快照）"
	default:
		resp["saved_to_local"] = false
		resp["save_error"] = saveErr
		if strings.Contains(saveErr, "read-only") || strings.Contains(saveErr, "permission denied") {
			resp["note"] = "爬取成功，但存储不可写，数据仅在本次返回中有效"
		} else {
			resp["note"] = "爬取成功但保存失败: " + saveErr
		}
	}
	return resp, nil
}

// selectPlatforms resolves requested ids against the configured platform
// list; nil means everything configured.
func selectPlatforms(configured []config.Platform, requested []string) ([]config.Platform, error) {
	if len(requested) == 0 {
		if len(configured) == 0 {
			return nil, Errorf(CodeCrawlTask, "no platforms configured")
		}
		return configured, nil
	}

	byID := make(map[string]config.Platform, len(configured))
	for _, p := range configured {
		byID[p.ID] = p
	}
	targets := make([]config.Platform, 0, len(requested))
	var unknown []string
	for _, id := range requested {
		if p, ok := byID[id]; ok {
			targets = append(targets, p)
		} else {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		available := make([]string, 0, len(configured))
		for _, p := range configured {
			available = append(available, p.ID)
		}
		return nil, &Error{
			Code:    CodeCrawlTask,
			Message: fmt.Sprintf("unknown platforms: %s", strings.Join(unknown, ", ")),
			Details: "available: " + strings.Join(available, ", "),
		}
	}
	return targets, nil
}

func crawlResponseItems(data *storage.NewsData, includeURL bool) []map[string]any {
	items := make([]map[string]any, 0, data.TotalItems())
	for _, id := range data.PlatformIDs() {
		for _, it := range data.Items[id] {
			entry := map[string]any{
				"platform_id":   id,
				"platform_name": it.SourceName,
				"title":         it.Title,
				"ranks":         it.Ranks,
			}
			if includeURL {
				entry["url"] = it.URL
				entry["mobile_url"] = it.MobileURL
			}
			items = append(items, entry)
		}
	}
	return items
}

// simpleCrawlHTML renders the one-page snapshot stored next to the TXT file
// when trigger_crawl is asked to persist artifacts.
func simpleCrawlHTML(data *storage.NewsData, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\">\n")
	b.WriteString("<title>爬取结果</title>\n")
	b.WriteString("<style>body{font-family:sans-serif;margin:20px}h2{background:#4CAF50;color:#fff;padding:8px;border-radius:4px}li{padding:4px 0;border-bottom:1px solid #eee}.failed{color:#c62828}.ts{color:#666}</style>\n")
	b.WriteString("</head>\n<body>\n<h1>爬取结果</h1>\n")
	fmt.Fprintf(&b, "<p class=\"ts\">爬取时间: %s</p>\n", util.FormatTimestamp(now))

	for _, id := range data.PlatformIDs() {
		name := data.IDToName[id]
		if name == "" {
			name = id
		}
		fmt.Fprintf(&b, "<h2>%s</h2>\n<ol>\n", html.EscapeString(name))
		for _, it := range data.Items[id] {
			fmt.Fprintf(&b, "<li>%s", html.EscapeString(it.Title))
			if it.URL != "" {
				fmt.Fprintf(&b, " <a href=\"%s\">链接</a>", html.EscapeString(it.URL))
			}
			b.WriteString("</li>\n")
		}
		b.WriteString("</ol>\n")
	}

	if len(data.FailedIDs) > 0 {
		b.WriteString("<h2 class=\"failed\">请求失败的平台</h2>\n<ul>\n")
		for _, id := range data.FailedIDs {
			fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(id))
		}
		b.WriteString("</ul>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return []byte(b.String())
}

// ---------------------------------------------------------------------------
// Storage tools
// ---------------------------------------------------------------------------

func (d *Dispatcher) syncFromRemote(ctx context.Context, args map[string]any) (any, error) {
	days, err := intArg(args, "days", 7)
	if err != nil {
		return nil, err
	}
	if days < 0 || days > 30 {
		return nil, Errorf(CodeInvalidArgument, "days must be between 0 and 30, got %d", days)
	}
	if d.deps.Remote == nil {
		return nil, Errorf(CodeInvalidArgument, "remote storage is not configured (set remote.endpoint_url or S3_* environment variables)")
	}

	report := &storage.PullReport{}
	if days > 0 {
		report, err = d.deps.Remote.PullRecentDays(ctx, days, d.deps.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("pull from remote: %w", err)
		}
		// Pulled databases supersede anything cached from older local state.
		cache.Shared().Clear()
	}

	msg := fmt.Sprintf("synced %d, skipped %d, failed %d", len(report.Synced), len(report.Skipped), len(report.Failed))
	if days == 0 {
		msg = "pull disabled (days=0)"
	}
	return map[string]any{
		"days":    days,
		"synced":  emptyIfNil(report.Synced),
		"skipped": emptyIfNil(report.Skipped),
		"failed":  emptyIfNil(report.Failed),
		"message": msg,
	}, nil
}

func (d *Dispatcher) getStorageStatus(ctx context.Context, args map[string]any) (any, error) {
	cfg := d.deps.Config

	local := map[string]any{
		"data_dir":       d.deps.LocalRoot,
		"retention_days": cfg.Storage.RetentionDays,
	}
	dates, err := storage.ListLocalDates(d.deps.LocalRoot)
	if err != nil {
		return nil, err
	}
	local["date_count"] = len(dates)
	local["total_size_bytes"] = storage.LocalDiskUsage(d.deps.LocalRoot)
	if len(dates) > 0 {
		local["earliest_date"] = dates[0]
		local["latest_date"] = dates[len(dates)-1]
	}

	remote := map[string]any{"configured": d.deps.Remote != nil}
	if d.deps.Remote != nil {
		remote["endpoint_url"] = cfg.Remote.EndpointURL
		remote["bucket_name"] = cfg.Remote.Bucket
		if remoteDates, err := d.deps.Remote.ListRemoteDates(ctx); err == nil {
			remote["date_count"] = len(remoteDates)
		} else {
			remote["error"] = err.Error()
		}
	}

	return map[string]any{
		"backend": d.deps.Backend.BackendName(),
		"local":   local,
		"remote":  remote,
		"pull": map[string]any{
			"enabled": cfg.Remote.PullOnStart,
			"days":    cfg.Remote.PullDays,
		},
	}, nil
}

func (d *Dispatcher) listAvailableDates(ctx context.Context, args map[string]any) (any, error) {
	source, err := stringArg(args, "source", "both")
	if err != nil {
		return nil, err
	}
	switch source {
	case "local", "remote", "both":
	default:
		return nil, Errorf(CodeInvalidArgument, "unknown source %q (use local, remote or both)", source)
	}

	out := map[string]any{"source": source}

	var localDates, remoteDates []string
	if source == "local" || source == "both" {
		localDates, err = storage.ListLocalDates(d.deps.LocalRoot)
		if err != nil {
			return nil, err
		}
		// Newest first, matching the remote listing.
		sort.Sort(sort.Reverse(sort.StringSlice(localDates)))
		out["local"] = dateSummary(localDates)
	}

	if source == "remote" || source == "both" {
		summary := map[string]any{"configured": d.deps.Remote != nil}
		if d.deps.Remote != nil {
			remoteDates, err = d.deps.Remote.ListRemoteDates(ctx)
			if err != nil {
				return nil, fmt.Errorf("list remote dates: %w", err)
			}
			for k, v := range dateSummary(remoteDates) {
				summary[k] = v
			}
		}
		out["remote"] = summary
	}

	if source == "both" && d.deps.Remote != nil {
		out["comparison"] = compareDates(localDates, remoteDates)
	}
	return out, nil
}

// dateSummary assumes dates are sorted newest first.
func dateSummary(dates []string) map[string]any {
	summary := map[string]any{
		"dates": emptyIfNil(dates),
		"count": len(dates),
	}
	if len(dates) > 0 {
		summary["latest"] = dates[0]
		summary["earliest"] = dates[len(dates)-1]
	}
	return summary
}

func compareDates(local, remote []string) map[string]any {
	localSet := make(map[string]struct{}, len(local))
	for _, d := range local {
		localSet[d] = struct{}{}
	}
	remoteSet := make(map[string]struct{}, len(remote))
	for _, d := range remote {
		remoteSet[d] = struct{}{}
	}

	var onlyLocal, onlyRemote, both []string
	for _, d := range local {
		if _, ok := remoteSet[d]; ok {
			both = append(both, d)
		} else {
			onlyLocal = append(onlyLocal, d)
		}
	}
	for _, d := range remote {
		if _, ok := localSet[d]; !ok {
			onlyRemote = append(onlyRemote, d)
		}
	}
	return map[string]any{
		"only_local":  emptyIfNil(onlyLocal),
		"only_remote": emptyIfNil(onlyRemote),
		"both":        emptyIfNil(both),
	}
}

// emptyIfNil keeps list fields as [] instead of null in the envelope.
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
