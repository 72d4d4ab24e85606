// One-shot tool: archive day stores as Parquet files.
//
// For each day in the requested range, reads the merged day data from the
// configured storage backend, flattens it to one row per title with rank
// extremes, crawl counts and the blended weight, and writes
// <out>/<date>.parquet with snappy compression. Days already archived are
// skipped unless -force is given; days without data are skipped always.
//
// Usage:
//
//	go build -o bin/trendradar-export ./cmd/trendradar-export/
//	bin/trendradar-export [-range "last 7 days"] [-out output/parquet] [-force]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"trendradar/internal/config"
	"trendradar/internal/export"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	rangeExpr := flag.String("range", "today", `date expression ("today", "last 7 days", "2025-11-26", "本周")`)
	start := flag.String("start", "", "explicit range start YYYY-MM-DD (overrides -range, needs -end)")
	end := flag.String("end", "", "explicit range end YYYY-MM-DD")
	outDir := flag.String("out", "", "output directory (default <data_dir>/parquet)")
	force := flag.Bool("force", false, "rewrite archive files that already exist")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	loc, err := util.LoadLocation(cfg.App.Timezone)
	if err != nil {
		logger.Warn().Err(err).Msg("timezone fallback")
	}
	now := util.Now(loc)

	var dateRange util.DateRange
	if *start != "" || *end != "" {
		dateRange, err = util.ResolveDateRange(map[string]any{"start": *start, "end": *end}, now)
	} else {
		dateRange, err = util.ResolveDateRange(*rangeExpr, now)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("bad date range")
	}

	var backend storage.Backend
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
			logger.Fatal().Err(err).Msg("remote storage init failed")
		}
		backend = remote
	} else {
		backend = storage.NewLocal(cfg.Storage.DataDir, cfg.Storage.EnableTXT, cfg.Storage.EnableHTML, loc, logger)
	}
	defer func() {
		if err := backend.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("storage cleanup")
		}
	}()

	dir := *outDir
	if dir == "" {
		dir = filepath.Join(cfg.Storage.DataDir, "parquet")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	days, err := dateRange.Days()
	if err != nil {
		logger.Fatal().Err(err).Msg("bad date range")
	}

	// Filter out days that already have archive files (unless -force).
	var todo []string
	var existing int
	for _, d := range days {
		date := util.FormatDateFolder(d)
		if !*force {
			if _, err := os.Stat(filepath.Join(dir, date+".parquet")); err == nil {
				existing++
				continue
			}
		}
		todo = append(todo, date)
	}

	logger.Info().
		Str("range", dateRange.Start+" ~ "+dateRange.End).
		Str("backend", backend.BackendName()).
		Str("out", dir).
		Int("days", len(days)).
		Int("already_archived", existing).
		Msg("parquet export")

	if len(todo) == 0 {
		logger.Info().Msg("nothing to do")
		return
	}

	exporter := export.NewExporter(backend, dir, cfg, logger)

	var files, rows, empty int
	for i, date := range todo {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("export interrupted")
			break
		}
		path, n, err := exporter.ExportDay(ctx, date)
		if err != nil {
			logger.Error().Err(err).Str("date", date).Msg("export failed")
			continue
		}
		if path == "" {
			empty++
			logger.Debug().Str("date", date).Msg("no data, skipped")
			continue
		}
		files++
		rows += n
		logger.Info().
			Str("date", date).
			Str("progress", fmt.Sprintf("%d/%d", i+1, len(todo))).
			Int("rows", n).
			Msg("archived")
	}

	logger.Info().
		Int("files", files).
		Int("rows", rows).
		Int("empty_days", empty).
		Msg("export done")
}
