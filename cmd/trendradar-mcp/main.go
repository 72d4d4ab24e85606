// Command trendradar-mcp serves the trendradar tool surface to AI agents.
//
// The stdio transport exchanges newline-delimited JSON envelopes on
// stdin/stdout; the http transport listens for POST /mcp and additionally
// exposes /healthz and /metrics. All logging goes to stderr so the stdio
// protocol channel stays clean.
//
// Usage:
//
//	go build -o bin/trendradar-mcp ./cmd/trendradar-mcp/
//	bin/trendradar-mcp [--transport stdio|http] [--host 0.0.0.0] [--port 3333]
//	                   [--project-root DIR] [--config FILE]
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"trendradar/internal/config"
	"trendradar/internal/crawler"
	"trendradar/internal/mcp"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

func main() {
	transport := flag.String("transport", "stdio", "transport mode: stdio or http")
	host := flag.String("host", "0.0.0.0", "listen address in http mode")
	port := flag.Int("port", 3333, "listen port in http mode")
	projectRoot := flag.String("project-root", ".", "directory holding config/ and the data dir")
	configPath := flag.String("config", "", "config file (default <project-root>/config/config.yaml)")
	flag.Parse()

	if *transport != "stdio" && *transport != "http" {
		fmt.Fprintf(os.Stderr, "unsupported transport %q (want stdio or http)\n", *transport)
		os.Exit(2)
	}

	root, err := filepath.Abs(*projectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving project root: %v\n", err)
		os.Exit(1)
	}

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(root, "config", "config.yaml")
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	// Relative config paths resolve against the project root, so the
	// server can be started from anywhere.
	if !filepath.IsAbs(cfg.Storage.DataDir) {
		cfg.Storage.DataDir = filepath.Join(root, cfg.Storage.DataDir)
	}
	if p := cfg.Keywords.FrequencyWordsPath; p != "" && !filepath.IsAbs(p) {
		cfg.Keywords.FrequencyWordsPath = filepath.Join(root, p)
	}

	logger := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	loc, err := util.LoadLocation(cfg.App.Timezone)
	if err != nil {
		logger.Warn().Err(err).Msg("timezone fallback")
	}
	util.SetURLParamDrops(cfg.Crawler.URLParamDrops)

	// Storage backend: remote when S3 credentials are complete, local
	// otherwise. The remote engine still needs the local root for pulls.
	var (
		backend storage.Backend
		remote  *storage.Remote
	)
	if cfg.Storage.Backend == "remote" {
		remote, err = storage.NewRemote(storage.RemoteOptions{
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
	defer backend.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if remote != nil && cfg.Remote.PullOnStart {
		days := cfg.Remote.PullDays
		if days <= 0 {
			days = 7
		}
		report, err := remote.PullRecentDays(ctx, days, cfg.Storage.DataDir)
		if err != nil {
			logger.Warn().Err(err).Msg("pull on start failed, serving without pre-seeded local data")
		} else {
			logger.Info().
				Int("synced", len(report.Synced)).
				Int("skipped", len(report.Skipped)).
				Int("failed", len(report.Failed)).
				Msg("pulled recent days from remote")
		}
	}

	var fetcher crawler.Fetcher
	if cfg.Crawler.EnableCrawler {
		fetcher = crawler.NewClient(cfg.Crawler, logger)
	}

	dispatcher := mcp.NewDispatcher(mcp.Deps{
		Config:    cfg,
		Backend:   backend,
		Remote:    remote,
		Fetcher:   fetcher,
		Logger:    logger,
		Location:  loc,
		LocalRoot: cfg.Storage.DataDir,
	})

	tools := dispatcher.ToolNames()
	sort.Strings(tools)
	logger.Info().
		Str("version", config.Version).
		Str("transport", *transport).
		Str("backend", backend.BackendName()).
		Str("data_dir", cfg.Storage.DataDir).
		Int("tools", len(tools)).
		Msg("trendradar-mcp starting")

	switch *transport {
	case "stdio":
		err = dispatcher.ServeStdio(ctx, os.Stdin, os.Stdout)
	case "http":
		addr := net.JoinHostPort(*host, strconv.Itoa(*port))
		err = mcp.NewHTTPServer(dispatcher, logger).ListenAndServe(ctx, addr)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server shut down")
}
