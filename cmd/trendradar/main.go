// Command trendradar runs one crawl cycle: fetch every configured hot
// board, persist the batch into the day store, detect titles that are new
// since the previous crawl, rank the day's titles per the configured
// report mode and write the TXT/HTML artifacts. Push notifications are
// gated by the push window and the once-per-day record.
//
// Usage:
//
//	go build -o bin/trendradar ./cmd/trendradar/
//	bin/trendradar [-config config/config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"html"
	"io/fs"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trendradar/internal/analyzer"
	"trendradar/internal/config"
	"trendradar/internal/crawler"
	"trendradar/internal/notify"
	"trendradar/internal/rules"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "config file not found: %s\n\n", *configPath)
			fmt.Fprintln(os.Stderr, "expected files:")
			fmt.Fprintln(os.Stderr, "  - config/config.yaml")
			fmt.Fprintln(os.Stderr, "  - config/frequency_words.txt")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	loc, err := util.LoadLocation(cfg.App.Timezone)
	if err != nil {
		logger.Warn().Err(err).Msg("timezone fallback")
	}
	util.SetURLParamDrops(cfg.Crawler.URLParamDrops)

	app, err := newApp(cfg, logger, loc)
	if err != nil {
		logger.Fatal().Err(err).Msg("init failed")
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("crawl cycle failed")
	}
}

// modeStrategy captures what each report mode pushes and summarizes.
type modeStrategy struct {
	realtimeReportType string
	summaryReportType  string
	sendRealtime       bool
	summaryMode        string
}

func strategyFor(mode string) modeStrategy {
	switch mode {
	case analyzer.ModeIncremental:
		return modeStrategy{
			realtimeReportType: "实时增量",
			summaryReportType:  "当日汇总",
			sendRealtime:       true,
			summaryMode:        analyzer.ModeDaily,
		}
	case analyzer.ModeCurrent:
		return modeStrategy{
			realtimeReportType: "实时当前榜单",
			summaryReportType:  "当前榜单汇总",
			sendRealtime:       true,
			summaryMode:        analyzer.ModeCurrent,
		}
	default:
		return modeStrategy{
			summaryReportType: "当日汇总",
			summaryMode:       analyzer.ModeDaily,
		}
	}
}

type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	loc      *time.Location
	backend  storage.Backend
	fetcher  *crawler.Client
	notifier *notify.Dispatcher
	isCI     bool
	isDocker bool
}

func newApp(cfg *config.Config, logger zerolog.Logger, loc *time.Location) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      logger,
		loc:      loc,
		fetcher:  crawler.NewClient(cfg.Crawler, logger),
		notifier: notify.NewDispatcher(cfg.Notification, logger),
		isCI:     os.Getenv("GITHUB_ACTIONS") == "true",
		isDocker: detectDocker(),
	}

	if cfg.Storage.Backend == "remote" {
		remote, err := storage.NewRemote(storage.RemoteOptions{
			EndpointURL:     cfg.Remote.EndpointURL,
			Bucket:          cfg.Remote.Bucket,
			AccessKeyID:     cfg.Remote.AccessKeyID,
			SecretAccessKey: cfg.Remote.SecretAccessKey,
			Region:          cfg.Remote.Region,
			EnableTXT:       cfg.Storage.EnableTXT,
			EnableHTML:      cfg.Storage.EnableHTML,
			Location:        loc,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("remote storage: %w", err)
		}
		a.backend = remote
	} else {
		a.backend = storage.NewLocal(cfg.Storage.DataDir, cfg.Storage.EnableTXT, cfg.Storage.EnableHTML, loc, logger)
	}
	return a, nil
}

func (a *app) close() {
	if err := a.backend.Cleanup(); err != nil {
		a.log.Warn().Err(err).Msg("storage cleanup")
	}
}

func (a *app) run(ctx context.Context) error {
	now := util.Now(a.loc)
	a.log.Info().
		Str("version", config.Version).
		Str("mode", a.cfg.Report.Mode).
		Str("backend", a.backend.BackendName()).
		Int("platforms", len(a.cfg.Platforms)).
		Str("time", util.FormatTimestamp(now)).
		Msg("trendradar starting")

	if !a.cfg.Crawler.EnableCrawler {
		a.log.Warn().Msg("crawler disabled in config, nothing to do")
		return nil
	}
	if a.cfg.Notification.Enable && !a.notifier.Configured() {
		a.log.Warn().Msg("notifications enabled but no channel configured")
	}

	// Fetch and persist.
	interval := time.Duration(a.cfg.Crawler.RequestInterval) * time.Millisecond
	results, idToName, failedIDs, err := a.fetcher.CrawlWebsites(ctx, a.cfg.Platforms, interval)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	data := storage.ConvertCrawlResults(results, idToName, failedIDs,
		util.FormatTimeFilename(now), util.FormatDateFolder(now))
	if err := a.backend.SaveNewsData(ctx, data); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	a.log.Info().
		Int("items", data.TotalItems()).
		Int("failed_platforms", len(failedIDs)).
		Msg("batch saved")

	if path, err := a.backend.SaveTXTSnapshot(data); err != nil {
		a.log.Warn().Err(err).Msg("txt snapshot failed")
	} else if path != "" {
		a.log.Info().Str("path", path).Msg("txt snapshot saved")
	}

	newTitles, err := a.backend.DetectNewTitles(ctx, data)
	if err != nil {
		a.log.Warn().Err(err).Msg("new-title detection failed")
		newTitles = nil
	}

	firstCrawl, err := a.backend.IsFirstCrawlToday(ctx, data.Date)
	if err != nil {
		a.log.Warn().Err(err).Msg("first-crawl check failed")
	}

	groups, filterWords, globalFilters := a.loadRules()
	strategy := strategyFor(a.cfg.Report.Mode)

	// Realtime phase: incremental ranks only the new titles of this
	// batch, current ranks the latest state of the full merged day.
	var realtimeHTML string
	if strategy.sendRealtime {
		input := data.Items
		if a.cfg.Report.Mode == analyzer.ModeCurrent {
			merged, err := a.backend.GetTodayAllData(ctx, data.Date)
			if err != nil {
				return fmt.Errorf("reading back today's data: %w", err)
			}
			if merged == nil {
				return errors.New("day store unreadable immediately after save")
			}
			input = merged.Items
		}

		stats, total := analyzer.CountFrequency(input, groups, filterWords, globalFilters, newTitles, analyzer.Options{
			Mode:          a.cfg.Report.Mode,
			IsFirstCrawl:  firstCrawl,
			RankThreshold: a.cfg.Report.RankThreshold,
			Weights:       a.cfg.Weights,
		})
		realtimeHTML = a.writeHTML(stats, total, strategy.realtimeReportType, failedIDs, data.CrawlTime+".html", now)
		a.notifyIfNeeded(ctx, stats, newTitles, strategy.realtimeReportType, a.cfg.Report.Mode, data.Date, now)
	}

	// Summary phase over the whole day. Realtime modes only refresh the
	// summary artifact; daily mode also pushes it.
	var summaryHTML string
	merged, err := a.backend.GetTodayAllData(ctx, data.Date)
	if err != nil {
		return fmt.Errorf("reading day for summary: %w", err)
	}
	if merged != nil {
		stats, total := analyzer.CountFrequency(merged.Items, groups, filterWords, globalFilters, newTitles, analyzer.Options{
			Mode:          strategy.summaryMode,
			IsFirstCrawl:  firstCrawl,
			RankThreshold: a.cfg.Report.RankThreshold,
			Weights:       a.cfg.Weights,
		})
		summaryHTML = a.writeHTML(stats, total, strategy.summaryReportType, failedIDs, "summary.html", now)
		if !strategy.sendRealtime {
			a.notifyIfNeeded(ctx, stats, newTitles, strategy.summaryReportType, strategy.summaryMode, data.Date, now)
		}
	}

	if a.cfg.Storage.RetentionDays > 0 {
		if removed, err := a.backend.CleanupOldData(a.cfg.Storage.RetentionDays); err != nil {
			a.log.Warn().Err(err).Msg("retention cleanup failed")
		} else if removed > 0 {
			a.log.Info().Int("removed_days", removed).Msg("old data pruned")
		}
	}

	a.maybeOpenBrowser(summaryHTML, realtimeHTML)
	return nil
}

func (a *app) loadRules() (groups []rules.Group, filterWords, globalFilters []string) {
	path := a.cfg.Keywords.FrequencyWordsPath
	if path == "" {
		return nil, nil, nil
	}
	groups, filterWords, globalFilters, err := rules.Load(path)
	if err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("keyword rules unavailable")
		return nil, nil, nil
	}
	a.log.Info().Int("groups", len(groups)).Int("global_filters", len(globalFilters)).Msg("keyword rules loaded")
	return groups, filterWords, globalFilters
}

// writeHTML renders and stores one report artifact, returning its path.
func (a *app) writeHTML(stats []analyzer.GroupStat, total int, reportType string, failedIDs []string, filename string, now time.Time) string {
	content := renderReportHTML(stats, total, reportType, failedIDs, now)
	path, err := a.backend.SaveHTMLReport(content, filename)
	if err != nil {
		a.log.Warn().Err(err).Str("file", filename).Msg("html report failed")
		return ""
	}
	if path != "" {
		a.log.Info().Str("path", path).Str("report", reportType).Msg("html report saved")
	}
	return path
}

// notifyIfNeeded applies the delivery gates in order: channel presence,
// content, push window, once-per-day. A successful dispatch records the
// push so later cycles skip.
func (a *app) notifyIfNeeded(ctx context.Context, stats []analyzer.GroupStat, newTitles map[string]map[string]storage.NewsItem, reportType, mode, date string, now time.Time) bool {
	n := a.cfg.Notification
	if !n.Enable {
		a.log.Debug().Str("report", reportType).Msg("notifications disabled, push skipped")
		return false
	}
	if !a.notifier.Configured() {
		return false
	}
	if !hasValidContent(stats, newTitles, mode) {
		a.log.Info().Str("report", reportType).Str("mode", mode).Msg("no matching content, push skipped")
		return false
	}

	window := notify.WindowFromConfig(n.PushWindow)
	if !window.InRange(now) {
		a.log.Info().
			Str("now", now.Format("15:04")).
			Str("window", n.PushWindow.Start+"-"+n.PushWindow.End).
			Msg("outside push window, push skipped")
		return false
	}
	if n.OncePerDay {
		pushed, err := a.backend.HasPushedToday(ctx, date)
		if err != nil {
			a.log.Warn().Err(err).Msg("push record check failed")
		}
		if pushed {
			a.log.Info().Msg("already pushed today, push skipped")
			return false
		}
	}

	body := renderNotifyBody(stats, reportType, now)
	results := a.notifier.DispatchAll(ctx, body)
	if len(results) == 0 {
		return false
	}

	anyOK := false
	for _, ok := range results {
		if ok {
			anyOK = true
			break
		}
	}
	a.log.Info().Interface("results", results).Str("report", reportType).Msg("notifications dispatched")

	if anyOK && n.OncePerDay {
		if err := a.backend.RecordPush(ctx, reportType, date); err != nil {
			a.log.Warn().Err(err).Msg("recording push failed")
		}
	}
	return anyOK
}

// hasValidContent decides whether a report is worth pushing. Incremental
// pushes need new titles that also matched a group; current needs any
// match; daily pushes on either.
func hasValidContent(stats []analyzer.GroupStat, newTitles map[string]map[string]storage.NewsItem, mode string) bool {
	hasMatched := false
	for _, s := range stats {
		if s.Count > 0 {
			hasMatched = true
			break
		}
	}
	hasNew := false
	for _, titles := range newTitles {
		if len(titles) > 0 {
			hasNew = true
			break
		}
	}

	switch mode {
	case analyzer.ModeIncremental:
		return hasNew && hasMatched
	case analyzer.ModeCurrent:
		return hasMatched
	default:
		return hasMatched || hasNew
	}
}

// renderReportHTML writes the ranked groups as a self-contained page.
func renderReportHTML(stats []analyzer.GroupStat, total int, reportType string, failedIDs []string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(reportType))
	b.WriteString("<style>body{font-family:sans-serif;margin:20px}h2{background:#1976D2;color:#fff;padding:8px;border-radius:4px}li{padding:4px 0;border-bottom:1px solid #eee}.meta{color:#666}.new{color:#E53935;font-weight:bold}.failed{color:#c62828}</style>\n")
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(reportType))
	fmt.Fprintf(&b, "<p class=\"meta\">生成时间: %s · 处理标题: %d</p>\n", util.FormatTimestamp(now), total)

	for _, g := range stats {
		if g.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "<h2>%s (%d 条 · %.2f%%)</h2>\n<ol>\n", html.EscapeString(g.Word), g.Count, g.Percentage)
		for _, t := range g.Titles {
			b.WriteString("<li>")
			if t.IsNew {
				b.WriteString("<span class=\"new\">[新]</span> ")
			}
			fmt.Fprintf(&b, "[%s] %s", html.EscapeString(t.SourceName), html.EscapeString(t.Title))
			if t.TimeDisplay != "" {
				fmt.Fprintf(&b, " <span class=\"meta\">%s</span>", html.EscapeString(t.TimeDisplay))
			}
			if t.Count > 1 {
				fmt.Fprintf(&b, " <span class=\"meta\">(%d 次)</span>", t.Count)
			}
			if t.URL != "" {
				fmt.Fprintf(&b, " <a href=\"%s\">链接</a>", html.EscapeString(t.URL))
			}
			b.WriteString("</li>\n")
		}
		b.WriteString("</ol>\n")
	}

	if len(failedIDs) > 0 {
		b.WriteString("<h2 class=\"failed\">请求失败的平台</h2>\n<ul>\n")
		for _, id := range failedIDs {
			fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(id))
		}
		b.WriteString("</ul>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return []byte(b.String())
}

// renderNotifyBody builds the plain-text push body. Channel senders split
// it into batches themselves.
func renderNotifyBody(stats []analyzer.GroupStat, reportType string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "【%s】 %s\n", reportType, util.FormatTimestamp(now))

	for _, g := range stats {
		if g.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n🔥 %s (%d 条)\n", g.Word, g.Count)
		for i, t := range g.Titles {
			fmt.Fprintf(&b, "%d. [%s] %s", i+1, t.SourceName, t.Title)
			if t.IsNew {
				b.WriteString(" 🆕")
			}
			if t.TimeDisplay != "" {
				fmt.Fprintf(&b, " %s", t.TimeDisplay)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// detectDocker mirrors the container checks of the original launcher.
func detectDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

// maybeOpenBrowser shows the freshest report locally. CI and container
// runs only log the path.
func (a *app) maybeOpenBrowser(summaryPath, realtimePath string) {
	path := summaryPath
	if path == "" {
		path = realtimePath
	}
	if path == "" {
		return
	}

	if a.isCI || a.isDocker {
		a.log.Info().Str("path", path).Msg("report ready")
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	url := "file://" + abs
	if err := openBrowser(url); err != nil {
		a.log.Debug().Err(err).Str("url", url).Msg("browser not opened")
	}
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
