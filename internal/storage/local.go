package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trendradar/internal/util"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ Backend = (*Local)(nil)
var _ TXTSource = (*Local)(nil)

// Local stores each day under <dataDir>/<YYYY-MM-DD>/ with a news.db
// database plus optional txt/ snapshots and html/ reports. Connections are
// opened lazily and cached per day. Writes for the same day must be
// serialized by the caller.
type Local struct {
	dataDir    string
	enableTXT  bool
	enableHTML bool
	loc        *time.Location
	log        zerolog.Logger

	now func() time.Time

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewLocal returns a local backend rooted at dataDir.
func NewLocal(dataDir string, enableTXT, enableHTML bool, loc *time.Location, logger zerolog.Logger) *Local {
	return &Local{
		dataDir:    dataDir,
		enableTXT:  enableTXT,
		enableHTML: enableHTML,
		loc:        loc,
		log:        logger.With().Str("component", "storage.local").Logger(),
		now:        time.Now,
		dbs:        make(map[string]*sql.DB),
	}
}

// BackendName identifies the engine in status responses.
func (l *Local) BackendName() string { return "local" }

// Root returns the data directory.
func (l *Local) Root() string { return l.dataDir }

func (l *Local) configuredNow() time.Time {
	return l.now().In(l.loc)
}

// dateFolder resolves an optional YYYY-MM-DD string, defaulting to today.
func (l *Local) dateFolder(date string) string {
	if date == "" {
		return util.FormatDateFolder(l.configuredNow())
	}
	return date
}

func (l *Local) dbPath(date string) string {
	return filepath.Join(l.dataDir, l.dateFolder(date), "news.db")
}

// db returns the cached connection for a day, opening and migrating the
// database on first use.
func (l *Local) db(date string) (*sql.DB, error) {
	path := l.dbPath(date)

	l.mu.Lock()
	defer l.mu.Unlock()

	if db, ok := l.dbs[path]; ok {
		return db, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create day folder: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema to %s: %w", path, err)
	}

	l.dbs[path] = db
	return db, nil
}

// closeDay closes and forgets the cached connection for a day, if any.
func (l *Local) closeDay(date string) {
	path := l.dbPath(date)

	l.mu.Lock()
	defer l.mu.Unlock()

	if db, ok := l.dbs[path]; ok {
		if err := db.Close(); err != nil {
			l.log.Warn().Err(err).Str("db", path).Msg("close connection")
		}
		delete(l.dbs, path)
	}
}

// SaveNewsData merges one crawl batch into the day's database in a single
// transaction. Items are keyed by (platform, canonical url); empty-url
// items always insert fresh rows.
func (l *Local) SaveNewsData(ctx context.Context, data *NewsData) error {
	db, err := l.db(data.Date)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	nowStr := util.FormatTimestamp(l.configuredNow())

	for _, sourceID := range sortedKeys(data.IDToName) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO platforms (id, name, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				updated_at = excluded.updated_at`,
			sourceID, data.IDToName[sourceID], nowStr); err != nil {
			return fmt.Errorf("upsert platform %s: %w", sourceID, err)
		}
	}

	var newCount, updatedCount, titleChanged int
	successSources := make([]string, 0, len(data.Items))

	for _, sourceID := range sortedKeys(data.Items) {
		successSources = append(successSources, sourceID)

		for _, item := range data.Items[sourceID] {
			canonical := ""
			if item.URL != "" {
				canonical = util.CanonicalizeURL(item.URL, sourceID)
			}

			var (
				existingID    int64
				existingTitle string
				exists        bool
			)
			if canonical != "" {
				err := tx.QueryRowContext(ctx, `
					SELECT id, title FROM news_items
					WHERE url = ? AND platform_id = ?`,
					canonical, sourceID).Scan(&existingID, &existingTitle)
				switch err {
				case nil:
					exists = true
				case sql.ErrNoRows:
				default:
					return fmt.Errorf("lookup %s/%s: %w", sourceID, canonical, err)
				}
			}

			if exists {
				if existingTitle != item.Title {
					if _, err := tx.ExecContext(ctx, `
						INSERT INTO title_changes (news_item_id, old_title, new_title, changed_at)
						VALUES (?, ?, ?, ?)`,
						existingID, existingTitle, item.Title, nowStr); err != nil {
						return fmt.Errorf("record title change: %w", err)
					}
					titleChanged++
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO rank_history (news_item_id, rank, crawl_time, created_at)
					VALUES (?, ?, ?, ?)`,
					existingID, item.Rank, data.CrawlTime, nowStr); err != nil {
					return fmt.Errorf("append rank history: %w", err)
				}
				if _, err := tx.ExecContext(ctx, `
					UPDATE news_items SET
						title = ?,
						rank = ?,
						mobile_url = ?,
						last_crawl_time = ?,
						crawl_count = crawl_count + 1,
						updated_at = ?
					WHERE id = ?`,
					item.Title, item.Rank, item.MobileURL, data.CrawlTime, nowStr, existingID); err != nil {
					return fmt.Errorf("update item: %w", err)
				}
				updatedCount++
			} else {
				res, err := tx.ExecContext(ctx, `
					INSERT INTO news_items
						(title, platform_id, rank, url, mobile_url,
						 first_crawl_time, last_crawl_time, crawl_count, created_at, updated_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
					item.Title, sourceID, item.Rank, canonical, item.MobileURL,
					data.CrawlTime, data.CrawlTime, nowStr, nowStr)
				if err != nil {
					return fmt.Errorf("insert item: %w", err)
				}
				newID, err := res.LastInsertId()
				if err != nil {
					return fmt.Errorf("new item id: %w", err)
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO rank_history (news_item_id, rank, crawl_time, created_at)
					VALUES (?, ?, ?, ?)`,
					newID, item.Rank, data.CrawlTime, nowStr); err != nil {
					return fmt.Errorf("append rank history: %w", err)
				}
				newCount++
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crawl_records (crawl_time, total_items, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(crawl_time) DO UPDATE SET
			total_items = excluded.total_items`,
		data.CrawlTime, newCount+updatedCount, nowStr); err != nil {
		return fmt.Errorf("upsert crawl record: %w", err)
	}

	var recordID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM crawl_records WHERE crawl_time = ?`,
		data.CrawlTime).Scan(&recordID); err != nil {
		return fmt.Errorf("crawl record id: %w", err)
	}

	for _, sourceID := range successSources {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO crawl_source_status (crawl_record_id, platform_id, status)
			VALUES (?, ?, 'success')`,
			recordID, sourceID); err != nil {
			return fmt.Errorf("record source status: %w", err)
		}
	}
	for _, failedID := range data.FailedIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO platforms (id, name, updated_at)
			VALUES (?, ?, ?)`,
			failedID, failedID, nowStr); err != nil {
			return fmt.Errorf("register failed platform: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO crawl_source_status (crawl_record_id, platform_id, status)
			VALUES (?, ?, 'failed')`,
			recordID, failedID); err != nil {
			return fmt.Errorf("record failed status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}

	l.log.Info().
		Str("date", l.dateFolder(data.Date)).
		Str("crawl_time", data.CrawlTime).
		Int("new", newCount).
		Int("updated", updatedCount).
		Int("title_changes", titleChanged).
		Msg("batch saved")

	return nil
}

// GetTodayAllData returns the merged view of a whole day, or nil when the
// day has no database or no items.
func (l *Local) GetTodayAllData(ctx context.Context, date string) (*NewsData, error) {
	if _, err := os.Stat(l.dbPath(date)); err != nil {
		return nil, nil
	}
	db, err := l.db(date)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT n.id, n.title, n.platform_id, p.name, n.rank, n.url, n.mobile_url,
		       n.first_crawl_time, n.last_crawl_time, n.crawl_count
		FROM news_items n
		LEFT JOIN platforms p ON n.platform_id = p.id
		ORDER BY n.platform_id, n.last_crawl_time`)
	if err != nil {
		return nil, fmt.Errorf("read day: %w", err)
	}
	items, idToName, ids, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := attachRankHistory(ctx, db, items, ids); err != nil {
		return nil, err
	}

	failedIDs, err := l.failedSources(ctx, db, "")
	if err != nil {
		return nil, err
	}

	crawlTime := util.FormatTimeFilename(l.configuredNow())
	var latest sql.NullString
	if err := db.QueryRowContext(ctx,
		`SELECT crawl_time FROM crawl_records ORDER BY crawl_time DESC LIMIT 1`).
		Scan(&latest); err == nil && latest.Valid {
		crawlTime = latest.String
	}

	return &NewsData{
		Date:      l.dateFolder(date),
		CrawlTime: crawlTime,
		Items:     items,
		IDToName:  idToName,
		FailedIDs: failedIDs,
	}, nil
}

// GetLatestCrawlData returns only the items last seen by the most recent
// crawl of the day, or nil when the day is empty.
func (l *Local) GetLatestCrawlData(ctx context.Context, date string) (*NewsData, error) {
	if _, err := os.Stat(l.dbPath(date)); err != nil {
		return nil, nil
	}
	db, err := l.db(date)
	if err != nil {
		return nil, err
	}

	var latest string
	err = db.QueryRowContext(ctx,
		`SELECT crawl_time FROM crawl_records ORDER BY crawl_time DESC LIMIT 1`).Scan(&latest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest crawl time: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT n.id, n.title, n.platform_id, p.name, n.rank, n.url, n.mobile_url,
		       n.first_crawl_time, n.last_crawl_time, n.crawl_count
		FROM news_items n
		LEFT JOIN platforms p ON n.platform_id = p.id
		WHERE n.last_crawl_time = ?`, latest)
	if err != nil {
		return nil, fmt.Errorf("read latest batch: %w", err)
	}
	items, idToName, ids, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := attachRankHistory(ctx, db, items, ids); err != nil {
		return nil, err
	}

	failedIDs, err := l.failedSources(ctx, db, latest)
	if err != nil {
		return nil, err
	}

	return &NewsData{
		Date:      l.dateFolder(date),
		CrawlTime: latest,
		Items:     items,
		IDToName:  idToName,
		FailedIDs: failedIDs,
	}, nil
}

// GetCrawlTimes lists the day's crawl timestamps in ascending order.
func (l *Local) GetCrawlTimes(ctx context.Context, date string) ([]string, error) {
	if _, err := os.Stat(l.dbPath(date)); err != nil {
		return nil, nil
	}
	db, err := l.db(date)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT crawl_time FROM crawl_records ORDER BY crawl_time`)
	if err != nil {
		return nil, fmt.Errorf("read crawl times: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// IsFirstCrawlToday reports whether at most one crawl record exists for
// the day. A missing database counts as a first crawl.
func (l *Local) IsFirstCrawlToday(ctx context.Context, date string) (bool, error) {
	if _, err := os.Stat(l.dbPath(date)); err != nil {
		return true, nil
	}
	db, err := l.db(date)
	if err != nil {
		return true, err
	}

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crawl_records`).Scan(&count); err != nil {
		return true, fmt.Errorf("count crawl records: %w", err)
	}
	return count <= 1, nil
}

// DetectNewTitles returns the items of the current batch whose title was
// never seen by an earlier crawl of the same day. On the first crawl of a
// day there is no "new" concept and the result is empty.
func (l *Local) DetectNewTitles(ctx context.Context, current *NewsData) (map[string]map[string]NewsItem, error) {
	return detectNewTitles(ctx, l, current)
}

// detectNewTitles is shared by both backends; b supplies the day view.
func detectNewTitles(ctx context.Context, b Backend, current *NewsData) (map[string]map[string]NewsItem, error) {
	historical, err := b.GetTodayAllData(ctx, current.Date)
	if err != nil {
		return nil, err
	}

	if historical == nil {
		newTitles := make(map[string]map[string]NewsItem, len(current.Items))
		for sourceID, list := range current.Items {
			m := make(map[string]NewsItem, len(list))
			for _, item := range list {
				m[item.Title] = item
			}
			newTitles[sourceID] = m
		}
		return newTitles, nil
	}

	// Only titles first seen strictly before the current batch count as
	// history; a title whose sole occurrence is this batch must not
	// exclude itself.
	historicalTitles := make(map[string]map[string]struct{}, len(historical.Items))
	hasHistory := false
	for sourceID, list := range historical.Items {
		set := make(map[string]struct{})
		for _, item := range list {
			first := item.FirstTime
			if first == "" {
				first = item.CrawlTime
			}
			if first < current.CrawlTime {
				set[item.Title] = struct{}{}
				hasHistory = true
			}
		}
		historicalTitles[sourceID] = set
	}

	if !hasHistory {
		return map[string]map[string]NewsItem{}, nil
	}

	newTitles := make(map[string]map[string]NewsItem)
	for sourceID, list := range current.Items {
		hist := historicalTitles[sourceID]
		for _, item := range list {
			if _, seen := hist[item.Title]; seen {
				continue
			}
			if newTitles[sourceID] == nil {
				newTitles[sourceID] = make(map[string]NewsItem)
			}
			newTitles[sourceID][item.Title] = item
		}
	}
	return newTitles, nil
}

// HasPushedToday reads the day's push record.
func (l *Local) HasPushedToday(ctx context.Context, date string) (bool, error) {
	if _, err := os.Stat(l.dbPath(date)); err != nil {
		return false, nil
	}
	db, err := l.db(date)
	if err != nil {
		return false, err
	}

	var pushed int
	err = db.QueryRowContext(ctx,
		`SELECT pushed FROM push_records WHERE date = ?`,
		l.dateFolder(date)).Scan(&pushed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read push record: %w", err)
	}
	return pushed != 0, nil
}

// RecordPush marks the day as pushed with the report type and time.
func (l *Local) RecordPush(ctx context.Context, reportType, date string) error {
	db, err := l.db(date)
	if err != nil {
		return err
	}

	nowStr := util.FormatTimestamp(l.configuredNow())
	if _, err := db.ExecContext(ctx, `
		INSERT INTO push_records (date, pushed, push_time, report_type, created_at)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			pushed = 1,
			push_time = excluded.push_time,
			report_type = excluded.report_type`,
		l.dateFolder(date), nowStr, reportType, nowStr); err != nil {
		return fmt.Errorf("record push: %w", err)
	}

	l.log.Info().Str("report_type", reportType).Str("push_time", nowStr).Msg("push recorded")
	return nil
}

// CleanupOldData removes day folders older than retentionDays. Zero or
// negative retention disables pruning.
func (l *Local) CleanupOldData(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(l.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan data dir: %w", err)
	}

	y, m, d := l.configuredNow().AddDate(0, 0, -retentionDays).Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	deleted := 0
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		folderDate, ok := util.ParseDateFolder(entry.Name())
		if !ok {
			continue
		}
		if !folderDate.Before(cutoff) {
			continue
		}

		l.closeDay(entry.Name())
		if err := os.RemoveAll(filepath.Join(l.dataDir, entry.Name())); err != nil {
			l.log.Warn().Err(err).Str("folder", entry.Name()).Msg("delete day folder")
			continue
		}
		deleted++
		l.log.Info().Str("folder", entry.Name()).Msg("pruned expired day")
	}

	return deleted, nil
}

// ListDates returns every day folder in the data directory, normalized to
// YYYY-MM-DD and sorted ascending.
func (l *Local) ListDates() ([]string, error) {
	return ListLocalDates(l.dataDir)
}

// ListLocalDates scans a data directory for day folders, including
// legacy-named ones, without opening any database. A missing directory is
// an empty result, not an error.
func ListLocalDates(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan data dir: %w", err)
	}

	var dates []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		folderDate, ok := util.ParseDateFolder(entry.Name())
		if !ok {
			continue
		}
		dates = append(dates, util.FormatDateFolder(folderDate))
	}
	sort.Strings(dates)
	return dates, nil
}

// LocalDiskUsage sums the size of every regular file under dataDir.
// Unreadable entries are skipped rather than failing the walk.
func LocalDiskUsage(dataDir string) int64 {
	var total int64
	filepath.WalkDir(dataDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Cleanup closes every cached connection.
func (l *Local) Cleanup() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for path, db := range l.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", path, err)
		}
	}
	l.dbs = make(map[string]*sql.DB)
	return firstErr
}

// ---------------------------------------------------------------------------
// Row assembly helpers
// ---------------------------------------------------------------------------

type scannedItem struct {
	id       int64
	sourceID string
}

// scanItems drains an item query into per-platform NewsItem lists,
// remembering row ids for the rank-history join.
func scanItems(rows *sql.Rows) (map[string][]NewsItem, map[string]string, []scannedItem, error) {
	defer rows.Close()

	items := make(map[string][]NewsItem)
	idToName := make(map[string]string)
	var ids []scannedItem

	for rows.Next() {
		var (
			id                  int64
			title, platformID   string
			name                sql.NullString
			rank, count         int
			url, mobileURL      sql.NullString
			firstTime, lastTime string
		)
		if err := rows.Scan(&id, &title, &platformID, &name, &rank, &url, &mobileURL,
			&firstTime, &lastTime, &count); err != nil {
			return nil, nil, nil, fmt.Errorf("scan item: %w", err)
		}

		displayName := platformID
		if name.Valid && name.String != "" {
			displayName = name.String
		}
		idToName[platformID] = displayName

		items[platformID] = append(items[platformID], NewsItem{
			Title:      title,
			SourceID:   platformID,
			SourceName: displayName,
			Rank:       rank,
			URL:        url.String,
			MobileURL:  mobileURL.String,
			CrawlTime:  lastTime,
			Ranks:      []int{rank},
			FirstTime:  firstTime,
			LastTime:   lastTime,
			Count:      count,
		})
		ids = append(ids, scannedItem{id: id, sourceID: platformID})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}
	return items, idToName, ids, nil
}

// attachRankHistory batch-loads rank_history for the scanned rows and
// replaces each item's single-rank placeholder with the full temporal
// sequence. History length always matches crawl_count.
func attachRankHistory(ctx context.Context, db *sql.DB, items map[string][]NewsItem, ids []scannedItem) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, s := range ids {
		args[i] = s.id
	}

	rows, err := db.QueryContext(ctx, `
		SELECT news_item_id, rank FROM rank_history
		WHERE news_item_id IN (`+placeholders+`)
		ORDER BY news_item_id, crawl_time`, args...)
	if err != nil {
		return fmt.Errorf("read rank history: %w", err)
	}
	defer rows.Close()

	history := make(map[int64][]int, len(ids))
	for rows.Next() {
		var itemID int64
		var rank int
		if err := rows.Scan(&itemID, &rank); err != nil {
			return err
		}
		history[itemID] = append(history[itemID], rank)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Row ids arrive in the same order items were appended per platform.
	offsets := make(map[string]int, len(items))
	for _, s := range ids {
		idx := offsets[s.sourceID]
		offsets[s.sourceID] = idx + 1
		if ranks, ok := history[s.id]; ok {
			items[s.sourceID][idx].Ranks = ranks
		}
	}
	return nil
}

// failedSources lists platforms recorded as failed, either across the
// whole day (crawlTime == "") or for one crawl.
func (l *Local) failedSources(ctx context.Context, db *sql.DB, crawlTime string) ([]string, error) {
	query := `
		SELECT DISTINCT css.platform_id
		FROM crawl_source_status css
		JOIN crawl_records cr ON css.crawl_record_id = cr.id
		WHERE css.status = 'failed'`
	args := []any{}
	if crawlTime != "" {
		query += ` AND cr.crawl_time = ?`
		args = append(args, crawlTime)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read failed sources: %w", err)
	}
	defer rows.Close()

	var failed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		failed = append(failed, id)
	}
	return failed, rows.Err()
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
