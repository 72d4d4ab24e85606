// Package storage persists crawled news into per-day SQLite databases,
// either on the local filesystem or in an S3-compatible bucket via a
// download-mutate-upload cycle. Identity within a day is the pair
// (platform id, canonical url); repeated observations of the same story
// merge into one row with rank history and title-change tracking.
package storage

import (
	"context"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// Backend is the storage engine surface shared by the local and remote
// implementations. An empty date string means today in the configured
// timezone.
type Backend interface {
	BackendName() string

	SaveNewsData(ctx context.Context, data *NewsData) error
	GetTodayAllData(ctx context.Context, date string) (*NewsData, error)
	GetLatestCrawlData(ctx context.Context, date string) (*NewsData, error)
	GetCrawlTimes(ctx context.Context, date string) ([]string, error)
	DetectNewTitles(ctx context.Context, current *NewsData) (map[string]map[string]NewsItem, error)
	IsFirstCrawlToday(ctx context.Context, date string) (bool, error)

	SaveTXTSnapshot(data *NewsData) (string, error)
	SaveHTMLReport(content []byte, filename string) (string, error)

	HasPushedToday(ctx context.Context, date string) (bool, error)
	RecordPush(ctx context.Context, reportType, date string) error

	CleanupOldData(retentionDays int) (int, error)
	Cleanup() error
}

// TXTSource is implemented by backends whose day folders carry TXT
// snapshots readable as a fallback data source.
type TXTSource interface {
	ListTXTSnapshots(date string) ([]string, error)
}
