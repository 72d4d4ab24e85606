package mcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendradar_tool_calls_total",
			Help: "Tool invocations by name and outcome (ok or error code).",
		},
		[]string{"tool", "outcome"},
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendradar_tool_duration_seconds",
			Help:    "Tool execution time in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	crawlPlatforms = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendradar_crawl_platforms_total",
			Help: "Platforms crawled via trigger_crawl, by outcome.",
		},
		[]string{"outcome"},
	)
)

// observeCall records one dispatched tool call. outcome is "ok" or the
// envelope error code.
func observeCall(tool, outcome string, seconds float64) {
	toolCalls.WithLabelValues(tool, outcome).Inc()
	toolDuration.WithLabelValues(tool).Observe(seconds)
}

// observeCrawl records per-platform crawl outcomes of one trigger_crawl.
func observeCrawl(fetched, failed int) {
	crawlPlatforms.WithLabelValues("ok").Add(float64(fetched))
	crawlPlatforms.WithLabelValues("failed").Add(float64(failed))
}
