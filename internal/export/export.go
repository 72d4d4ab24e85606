// Package export archives day-store contents as Parquet files for
// offline analytics. Archives survive retention pruning of the sqlite
// day stores.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"trendradar/internal/analyzer"
	"trendradar/internal/config"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

// Row is one archived title, flattened from the merged day store.
type Row struct {
	Date         string  `parquet:"date"`
	PlatformID   string  `parquet:"platform_id"`
	PlatformName string  `parquet:"platform_name"`
	Title        string  `parquet:"title"`
	URL          string  `parquet:"url"`
	MobileURL    string  `parquet:"mobile_url"`
	RankMin      int32   `parquet:"rank_min"`
	RankMax      int32   `parquet:"rank_max"`
	CrawlCount   int32   `parquet:"crawl_count"`
	FirstSeen    string  `parquet:"first_seen"`
	LastSeen     string  `parquet:"last_seen"`
	Weight       float64 `parquet:"weight"`
}

// BuildRows flattens one day's merged data into archive rows, ordered by
// platform id then best rank then title.
func BuildRows(data *storage.NewsData, rankThreshold int, w config.Weights) []Row {
	if data == nil {
		return nil
	}

	var rows []Row
	for platformID, items := range data.Items {
		name := data.IDToName[platformID]
		for _, item := range items {
			rows = append(rows, Row{
				Date:         data.Date,
				PlatformID:   platformID,
				PlatformName: name,
				Title:        item.Title,
				URL:          item.URL,
				MobileURL:    item.MobileURL,
				RankMin:      int32(minRank(item.Ranks)),
				RankMax:      int32(maxRank(item.Ranks)),
				CrawlCount:   int32(item.Count),
				FirstSeen:    item.FirstTime,
				LastSeen:     item.LastTime,
				Weight:       analyzer.Weight(item.Ranks, item.Count, rankThreshold, w),
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PlatformID != rows[j].PlatformID {
			return rows[i].PlatformID < rows[j].PlatformID
		}
		if rows[i].RankMin != rows[j].RankMin {
			return rows[i].RankMin < rows[j].RankMin
		}
		return rows[i].Title < rows[j].Title
	})
	return rows
}

// WriteDay writes rows as one snappy-compressed Parquet file at
// <dir>/<date>.parquet.
func WriteDay(dir, date string, rows []Row) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, date+".parquet")

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	w := parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("closing writer for %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// ReadDay loads an archive file back into rows.
func ReadDay(path string) ([]Row, error) {
	return parquet.ReadFile[Row](path)
}

func minRank(ranks []int) int {
	if len(ranks) == 0 {
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

func maxRank(ranks []int) int {
	if len(ranks) == 0 {
		return storage.MissingRank
	}
	m := ranks[0]
	for _, r := range ranks[1:] {
		if r > m {
			m = r
		}
	}
	return m
}

// Exporter pulls merged day data from a storage backend and writes the
// archive files.
type Exporter struct {
	backend       storage.Backend
	outDir        string
	rankThreshold int
	weights       config.Weights
	log           zerolog.Logger
}

// NewExporter builds an exporter writing to outDir.
func NewExporter(backend storage.Backend, outDir string, cfg *config.Config, logger zerolog.Logger) *Exporter {
	return &Exporter{
		backend:       backend,
		outDir:        outDir,
		rankThreshold: cfg.Report.RankThreshold,
		weights:       cfg.Weights,
		log:           logger.With().Str("component", "export").Logger(),
	}
}

// ExportDay archives one day. Days without data return an empty path and
// no error so range exports can skip them.
func (e *Exporter) ExportDay(ctx context.Context, date string) (string, int, error) {
	data, err := e.backend.GetTodayAllData(ctx, date)
	if err != nil {
		return "", 0, fmt.Errorf("reading %s: %w", date, err)
	}
	rows := BuildRows(data, e.rankThreshold, e.weights)
	if len(rows) == 0 {
		return "", 0, nil
	}

	path, err := WriteDay(e.outDir, date, rows)
	if err != nil {
		return "", 0, err
	}
	e.log.Info().Str("date", date).Int("rows", len(rows)).Str("path", path).Msg("day archived")
	return path, len(rows), nil
}

// Summary lists the outcome of a multi-day export.
type Summary struct {
	Files   []string
	Rows    int
	Skipped []string
}

// ExportRange archives every day in the range, skipping days without
// data.
func (e *Exporter) ExportRange(ctx context.Context, r util.DateRange) (*Summary, error) {
	days, err := r.Days()
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		date := util.FormatDateFolder(day)
		path, n, err := e.ExportDay(ctx, date)
		if err != nil {
			return sum, err
		}
		if path == "" {
			sum.Skipped = append(sum.Skipped, date)
			continue
		}
		sum.Files = append(sum.Files, path)
		sum.Rows += n
	}
	return sum, nil
}
