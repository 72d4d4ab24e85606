package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trendradar/internal/util"
)

// Compile-time interface check.
var _ Backend = (*Remote)(nil)

const (
	remoteKeyPrefix = "news/"
	sqliteMIME      = "application/x-sqlite3"
	downloadChunk   = 1 << 20
)

// RemoteOptions configures the S3-compatible backend.
type RemoteOptions struct {
	EndpointURL     string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	EnableTXT       bool
	EnableHTML      bool
	Location        *time.Location
	Logger          zerolog.Logger
}

// Remote keeps each day's database at object key news/<YYYY-MM-DD>.db and
// runs every mutation as a download, merge, upload cycle against a local
// temp copy. The temp copy reuses the Local engine over a scoped temp dir.
type Remote struct {
	client  *minio.Client
	bucket  string
	local   *Local
	tempDir string
	loc     *time.Location
	log     zerolog.Logger

	now func() time.Time

	mu      sync.Mutex
	ensured map[string]bool

	cleanupOnce sync.Once
}

// NewRemote connects to the bucket and prepares the temp working dir.
// Endpoints on myqcloud.com are signed with legacy signature v2; chunked
// v4 payload signing is not accepted there. Everything else uses v4.
func NewRemote(opts RemoteOptions) (*Remote, error) {
	endpoint, secure, err := splitEndpoint(opts.EndpointURL)
	if err != nil {
		return nil, err
	}

	creds := credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, "")
	sigVersion := "v4"
	if strings.Contains(strings.ToLower(opts.EndpointURL), "myqcloud.com") {
		creds = credentials.NewStaticV2(opts.AccessKeyID, opts.SecretAccessKey, "")
		sigVersion = "v2"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        creds,
		Secure:       secure,
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupDNS,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client for %s: %w", endpoint, err)
	}

	tempDir, err := os.MkdirTemp("", "trendradar_")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	logger := opts.Logger.With().Str("component", "storage.remote").Logger()
	logger.Info().
		Str("bucket", opts.Bucket).
		Str("signature", sigVersion).
		Msg("remote storage ready")

	return &Remote{
		client:  client,
		bucket:  opts.Bucket,
		local:   NewLocal(tempDir, opts.EnableTXT, opts.EnableHTML, opts.Location, opts.Logger),
		tempDir: tempDir,
		loc:     opts.Location,
		log:     logger,
		now:     time.Now,
		ensured: make(map[string]bool),
	}, nil
}

// splitEndpoint turns an endpoint URL into the host expected by the client
// plus the TLS flag. A bare host defaults to TLS.
func splitEndpoint(endpointURL string) (string, bool, error) {
	if endpointURL == "" {
		return "", false, fmt.Errorf("empty endpoint url")
	}
	if !strings.Contains(endpointURL, "://") {
		return endpointURL, true, nil
	}
	u, err := url.Parse(endpointURL)
	if err != nil || u.Host == "" {
		return "", false, fmt.Errorf("parse endpoint %q: %w", endpointURL, err)
	}
	return u.Host, u.Scheme != "http", nil
}

// BackendName identifies the engine in status responses.
func (r *Remote) BackendName() string { return "remote" }

func (r *Remote) configuredNow() time.Time {
	return r.now().In(r.loc)
}

func (r *Remote) remoteKey(date string) string {
	return remoteKeyPrefix + r.local.dateFolder(date) + ".db"
}

// objectExists HEADs the key. Errors other than not-found are reported as
// absent with a warning, so one flaky HEAD never fails a save cycle.
func (r *Remote) objectExists(ctx context.Context, key string) bool {
	_, err := r.client.StatObject(ctx, r.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true
	}
	if !isNotFound(err) {
		r.log.Warn().Err(err).Str("key", key).Msg("stat object")
	}
	return false
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == 404 || resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

// downloadObject GETs a key into dest using an explicit chunk-copy loop.
// Some vendors emit chunked transfer encoding on GET; reading in fixed
// slices tolerates that where whole-body helpers do not.
func (r *Remote) downloadObject(ctx context.Context, key, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	obj, err := r.client.GetObject(ctx, r.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()

	buf := make([]byte, downloadChunk)
	for {
		n, readErr := obj.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return fmt.Errorf("write %s: %w", dest, err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read %s: %w", key, readErr)
		}
	}

	r.log.Info().Str("key", key).Str("dest", dest).Msg("downloaded")
	return nil
}

// ensureDay makes sure the temp copy for a date reflects the remote object
// before the local engine touches it. Each date is fetched at most once
// per process; a remote miss means the day starts fresh.
func (r *Remote) ensureDay(ctx context.Context, date string) error {
	folder := r.local.dateFolder(date)

	r.mu.Lock()
	done := r.ensured[folder]
	r.mu.Unlock()
	if done {
		return nil
	}

	dest := r.local.dbPath(date)
	if _, err := os.Stat(dest); err == nil {
		r.markEnsured(folder)
		return nil
	}

	key := r.remoteKey(date)
	if !r.objectExists(ctx, key) {
		r.log.Info().Str("key", key).Msg("no remote copy, starting fresh")
		r.markEnsured(folder)
		return nil
	}

	if err := r.downloadObject(ctx, key, dest); err != nil {
		return err
	}
	r.markEnsured(folder)
	return nil
}

func (r *Remote) markEnsured(folder string) {
	r.mu.Lock()
	r.ensured[folder] = true
	r.mu.Unlock()
}

// upload reads the temp copy fully into memory and PUTs it with explicit
// length and content type. Streaming would switch the client to chunked
// encoding, which some vendors reject. A HEAD verifies the object landed.
func (r *Remote) upload(ctx context.Context, date string) error {
	path := r.local.dbPath(date)
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s for upload: %w", path, err)
	}

	key := r.remoteKey(date)
	_, err = r.client.PutObject(ctx, r.bucket, key,
		bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{
			ContentType:      sqliteMIME,
			DisableMultipart: true,
		})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	if !r.objectExists(ctx, key) {
		return fmt.Errorf("upload verification failed for %s", key)
	}

	r.log.Info().Str("key", key).Int("bytes", len(content)).Msg("uploaded")
	return nil
}

// SaveNewsData merges the batch into the day's remote database.
func (r *Remote) SaveNewsData(ctx context.Context, data *NewsData) error {
	if err := r.ensureDay(ctx, data.Date); err != nil {
		return err
	}
	if err := r.local.SaveNewsData(ctx, data); err != nil {
		return err
	}
	return r.upload(ctx, data.Date)
}

// GetTodayAllData returns the merged day view from the remote copy.
func (r *Remote) GetTodayAllData(ctx context.Context, date string) (*NewsData, error) {
	if err := r.ensureDay(ctx, date); err != nil {
		return nil, err
	}
	return r.local.GetTodayAllData(ctx, date)
}

// GetLatestCrawlData returns the most recent batch from the remote copy.
func (r *Remote) GetLatestCrawlData(ctx context.Context, date string) (*NewsData, error) {
	if err := r.ensureDay(ctx, date); err != nil {
		return nil, err
	}
	return r.local.GetLatestCrawlData(ctx, date)
}

// GetCrawlTimes lists the day's crawl timestamps.
func (r *Remote) GetCrawlTimes(ctx context.Context, date string) ([]string, error) {
	if err := r.ensureDay(ctx, date); err != nil {
		return nil, err
	}
	return r.local.GetCrawlTimes(ctx, date)
}

// IsFirstCrawlToday reports whether the day has at most one crawl record.
func (r *Remote) IsFirstCrawlToday(ctx context.Context, date string) (bool, error) {
	if err := r.ensureDay(ctx, date); err != nil {
		return true, err
	}
	return r.local.IsFirstCrawlToday(ctx, date)
}

// DetectNewTitles compares the current batch with the remote day history.
func (r *Remote) DetectNewTitles(ctx context.Context, current *NewsData) (map[string]map[string]NewsItem, error) {
	if err := r.ensureDay(ctx, current.Date); err != nil {
		return nil, err
	}
	return detectNewTitles(ctx, r, current)
}

// SaveTXTSnapshot writes a snapshot into the temp working dir.
func (r *Remote) SaveTXTSnapshot(data *NewsData) (string, error) {
	return r.local.SaveTXTSnapshot(data)
}

// SaveHTMLReport writes a report into the temp working dir.
func (r *Remote) SaveHTMLReport(content []byte, filename string) (string, error) {
	return r.local.SaveHTMLReport(content, filename)
}

// HasPushedToday reads the push record from the remote copy.
func (r *Remote) HasPushedToday(ctx context.Context, date string) (bool, error) {
	if err := r.ensureDay(ctx, date); err != nil {
		return false, err
	}
	return r.local.HasPushedToday(ctx, date)
}

// RecordPush marks the day pushed and syncs the database back out.
func (r *Remote) RecordPush(ctx context.Context, reportType, date string) error {
	if err := r.ensureDay(ctx, date); err != nil {
		return err
	}
	if err := r.local.RecordPush(ctx, reportType, date); err != nil {
		return err
	}
	return r.upload(ctx, date)
}

// CleanupOldData prunes remote day databases older than retentionDays and
// returns the count of distinct dates removed.
func (r *Remote) CleanupOldData(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	y, m, d := r.configuredNow().AddDate(0, 0, -retentionDays).Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var expired []string
	pruned := make(map[string]bool)

	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{
		Prefix:    remoteKeyPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return 0, fmt.Errorf("list objects: %w", obj.Err)
		}
		date, iso, ok := parseRemoteKey(obj.Key)
		if !ok || !date.Before(cutoff) {
			continue
		}
		expired = append(expired, obj.Key)
		pruned[iso] = true
	}

	// Multi-object delete takes at most 1000 keys per request.
	for start := 0; start < len(expired); start += 1000 {
		end := start + 1000
		if end > len(expired) {
			end = len(expired)
		}

		objectsCh := make(chan minio.ObjectInfo, end-start)
		for _, key := range expired[start:end] {
			objectsCh <- minio.ObjectInfo{Key: key}
		}
		close(objectsCh)

		for rmErr := range r.client.RemoveObjects(ctx, r.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
			if rmErr.Err != nil {
				return len(pruned), fmt.Errorf("remove %s: %w", rmErr.ObjectName, rmErr.Err)
			}
		}
	}

	if len(pruned) > 0 {
		r.log.Info().Int("dates", len(pruned)).Int("objects", len(expired)).Msg("pruned expired remote data")
	}
	return len(pruned), nil
}

// PullReport lists per-date outcomes of a PullRecentDays run.
type PullReport struct {
	Synced  []string `json:"synced"`
	Skipped []string `json:"skipped"`
	Failed  []string `json:"failed"`
}

type pullOutcome int

const (
	pullSkipped pullOutcome = iota
	pullSynced
	pullFailed
)

// pullConcurrency bounds parallel day downloads during a pull.
const pullConcurrency = 4

// assemblePullReport orders per-date outcomes into the report, preserving
// the (newest first) date order.
func assemblePullReport(dates []string, outcomes []pullOutcome) *PullReport {
	report := &PullReport{}
	for i, date := range dates {
		switch outcomes[i] {
		case pullSynced:
			report.Synced = append(report.Synced, date)
		case pullFailed:
			report.Failed = append(report.Failed, date)
		default:
			report.Skipped = append(report.Skipped, date)
		}
	}
	return report
}

// PullRecentDays downloads the last N day databases into localRoot. Days
// already present locally and days absent remotely are skipped; download
// errors are collected per date rather than aborting. The report lists
// dates newest first regardless of download completion order.
func (r *Remote) PullRecentDays(ctx context.Context, days int, localRoot string) (*PullReport, error) {
	report := &PullReport{}
	if days <= 0 {
		return report, nil
	}

	if err := os.MkdirAll(localRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create local root: %w", err)
	}

	now := r.configuredNow()
	dates := make([]string, days)
	for i := 0; i < days; i++ {
		dates[i] = util.FormatDateFolder(now.AddDate(0, 0, -i))
	}

	outcomes := make([]pullOutcome, days)
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, pullConcurrency)
	for i, date := range dates {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := gctx.Err(); err != nil {
				return err
			}

			dest := filepath.Join(localRoot, date, "news.db")
			if _, err := os.Stat(dest); err == nil {
				return nil // already local, outcome stays skipped
			}

			key := remoteKeyPrefix + date + ".db"
			if !r.objectExists(gctx, key) {
				return nil
			}

			if err := r.downloadObject(gctx, key, dest); err != nil {
				r.log.Warn().Err(err).Str("date", date).Msg("pull failed")
				outcomes[i] = pullFailed
				return nil
			}
			outcomes[i] = pullSynced
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	report = assemblePullReport(dates, outcomes)

	r.log.Info().
		Int("synced", len(report.Synced)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failed)).
		Msg("pull finished")
	return report, nil
}

// ListRemoteDates returns every available date in the bucket, newest
// first. Legacy-form keys are normalized to YYYY-MM-DD.
func (r *Remote) ListRemoteDates(ctx context.Context) ([]string, error) {
	var dates []string
	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{
		Prefix:    remoteKeyPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		if _, iso, ok := parseRemoteKey(obj.Key); ok {
			dates = append(dates, iso)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// parseRemoteKey extracts the date from news/<date>.db, accepting both the
// ISO and the legacy folder form.
func parseRemoteKey(key string) (time.Time, string, bool) {
	stem, found := strings.CutPrefix(key, remoteKeyPrefix)
	if !found {
		return time.Time{}, "", false
	}
	stem, found = strings.CutSuffix(stem, ".db")
	if !found || strings.Contains(stem, "/") {
		return time.Time{}, "", false
	}
	t, ok := util.ParseDateFolder(stem)
	if !ok {
		return time.Time{}, "", false
	}
	return t, util.FormatDateFolder(t), true
}

// Cleanup closes the temp copies and removes the temp dir. Safe to call
// more than once.
func (r *Remote) Cleanup() error {
	var err error
	r.cleanupOnce.Do(func() {
		err = r.local.Cleanup()
		if rmErr := os.RemoveAll(r.tempDir); rmErr != nil && err == nil {
			err = rmErr
		}
		r.log.Info().Str("temp_dir", r.tempDir).Msg("temp workspace removed")
	})
	return err
}
