package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// failedSectionHeader marks the trailing snapshot section listing platform
// ids whose fetch failed. The wording is part of the snapshot format.
const failedSectionHeader = "==== 以下ID请求失败 ===="

var whitespaceRe = regexp.MustCompile(`\s+`)

// SaveTXTSnapshot writes the batch as a plain-text snapshot under
// <day>/txt/<HH-MM>.txt and returns the file path. Disabled snapshots
// return an empty path and no error.
func (l *Local) SaveTXTSnapshot(data *NewsData) (string, error) {
	if !l.enableTXT {
		return "", nil
	}

	folder := l.dateFolder(data.Date)
	dir := filepath.Join(l.dataDir, folder, "txt")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create txt dir: %w", err)
	}

	var b strings.Builder
	for _, sourceID := range sortedKeys(data.Items) {
		sourceName := data.IDToName[sourceID]
		if sourceName != "" && sourceName != sourceID {
			fmt.Fprintf(&b, "%s | %s\n", sourceID, sourceName)
		} else {
			b.WriteString(sourceID + "\n")
		}

		list := append([]NewsItem(nil), data.Items[sourceID]...)
		sort.SliceStable(list, func(i, j int) bool { return list[i].Rank < list[j].Rank })

		for _, item := range list {
			fmt.Fprintf(&b, "%d. %s", item.Rank, item.Title)
			if item.URL != "" {
				fmt.Fprintf(&b, " [URL:%s]", item.URL)
			}
			if item.MobileURL != "" {
				fmt.Fprintf(&b, " [MOBILE:%s]", item.MobileURL)
			}
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	if len(data.FailedIDs) > 0 {
		b.WriteString(failedSectionHeader + "\n")
		for _, id := range data.FailedIDs {
			b.WriteString(id + "\n")
		}
	}

	path := filepath.Join(dir, data.CrawlTime+".txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	l.log.Info().Str("path", path).Msg("txt snapshot saved")
	return path, nil
}

// SaveHTMLReport persists report bytes under <today>/html/<filename>.
// Disabled reports return an empty path and no error.
func (l *Local) SaveHTMLReport(content []byte, filename string) (string, error) {
	if !l.enableHTML {
		return "", nil
	}

	dir := filepath.Join(l.dataDir, l.dateFolder(""), "html")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create html dir: %w", err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	l.log.Info().Str("path", path).Msg("html report saved")
	return path, nil
}

// ListTXTSnapshots returns the day's snapshot paths sorted by filename,
// which is chronological because names are HH-MM stamps.
func (l *Local) ListTXTSnapshots(date string) ([]string, error) {
	dir := filepath.Join(l.dataDir, l.dateFolder(date), "txt")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan txt dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// ParseTXTFile reads one snapshot back into fetcher shape. Sections are
// separated by blank lines; the failed-ids section is skipped; malformed
// item lines are skipped rather than failing the file.
func ParseTXTFile(path string) (map[string]map[string]TitleData, map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	titlesByID := make(map[string]map[string]TitleData)
	idToName := make(map[string]string)

	for _, section := range strings.Split(string(content), "\n\n") {
		if strings.TrimSpace(section) == "" || strings.Contains(section, failedSectionHeader) {
			continue
		}

		lines := strings.Split(strings.TrimSpace(section), "\n")
		if len(lines) < 2 {
			continue
		}

		header := strings.TrimSpace(lines[0])
		var sourceID string
		if before, after, found := strings.Cut(header, " | "); found {
			sourceID = strings.TrimSpace(before)
			idToName[sourceID] = strings.TrimSpace(after)
		} else {
			sourceID = header
			idToName[sourceID] = sourceID
		}
		titlesByID[sourceID] = make(map[string]TitleData)

		for _, line := range lines[1:] {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			rank := 0
			hasRank := false
			if prefix, rest, found := strings.Cut(line, ". "); found {
				if n, err := strconv.Atoi(prefix); err == nil {
					rank = n
					hasRank = true
					line = rest
				}
			}

			mobileURL := ""
			if idx := strings.LastIndex(line, " [MOBILE:"); idx >= 0 {
				suffix := line[idx+len(" [MOBILE:"):]
				if strings.HasSuffix(suffix, "]") {
					mobileURL = strings.TrimSuffix(suffix, "]")
					line = line[:idx]
				}
			}

			url := ""
			if idx := strings.LastIndex(line, " [URL:"); idx >= 0 {
				suffix := line[idx+len(" [URL:"):]
				if strings.HasSuffix(suffix, "]") {
					url = strings.TrimSuffix(suffix, "]")
					line = line[:idx]
				}
			}

			title := cleanTitle(line)
			if title == "" {
				continue
			}

			ranks := []int{1}
			if hasRank {
				ranks = []int{rank}
			}
			titlesByID[sourceID][title] = TitleData{Ranks: ranks, URL: url, MobileURL: mobileURL}
		}
	}

	return titlesByID, idToName, nil
}

func cleanTitle(title string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(title, " "))
}
