package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTXTSnapshotRoundTrip(t *testing.T) {
	l := newTestLocal(t)

	data := batch("2025-11-26", "10-30", map[string][]NewsItem{
		"baidu": {
			{Title: "第二条", Rank: 2, URL: "https://baidu.com/2"},
			{Title: "第一条", Rank: 1, URL: "https://baidu.com/1", MobileURL: "https://m.baidu.com/1"},
		},
		"zhihu": {
			{Title: "知乎热榜条目", Rank: 1},
		},
	})
	data.IDToName = map[string]string{"baidu": "百度热搜", "zhihu": "zhihu"}
	data.FailedIDs = []string{"douyin"}

	path, err := l.SaveTXTSnapshot(data)
	if err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if filepath.Base(path) != "10-30.txt" {
		t.Errorf("snapshot name = %s, want 10-30.txt", filepath.Base(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(raw)
	if !strings.Contains(content, "baidu | 百度热搜\n") {
		t.Error("named platform should use the id | name header")
	}
	if !strings.Contains(content, "\nzhihu\n") {
		t.Error("platform without distinct name should use the bare id header")
	}
	if !strings.Contains(content, "1. 第一条 [URL:https://baidu.com/1] [MOBILE:https://m.baidu.com/1]\n") {
		t.Error("item line with both suffixes malformed")
	}
	if !strings.Contains(content, failedSectionHeader) {
		t.Error("failed section missing")
	}

	titles, idToName, err := ParseTXTFile(path)
	if err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	if idToName["baidu"] != "百度热搜" {
		t.Errorf("parsed name = %q", idToName["baidu"])
	}
	if _, ok := titles["douyin"]; ok {
		t.Error("failed section must not become a platform")
	}

	td, ok := titles["baidu"]["第一条"]
	if !ok {
		t.Fatal("第一条 missing from parse")
	}
	if td.URL != "https://baidu.com/1" || td.MobileURL != "https://m.baidu.com/1" {
		t.Errorf("urls = %q / %q", td.URL, td.MobileURL)
	}
	if len(td.Ranks) != 1 || td.Ranks[0] != 1 {
		t.Errorf("ranks = %v, want [1]", td.Ranks)
	}

	if _, ok := titles["zhihu"]["知乎热榜条目"]; !ok {
		t.Error("zhihu item missing")
	}
}

func TestTXTSnapshotDisabled(t *testing.T) {
	l := NewLocal(t.TempDir(), false, false, time.UTC, zerolog.Nop())

	data := batch("2025-11-26", "10-30", map[string][]NewsItem{
		"baidu": {{Title: "x", Rank: 1}},
	})
	path, err := l.SaveTXTSnapshot(data)
	if err != nil {
		t.Fatalf("disabled snapshot errored: %v", err)
	}
	if path != "" {
		t.Errorf("disabled snapshot wrote %s", path)
	}

	path, err = l.SaveHTMLReport([]byte("<html></html>"), "report.html")
	if err != nil || path != "" {
		t.Errorf("disabled report = %q, %v", path, err)
	}
}

func TestParseTXTFileSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "10-00.txt")
	content := "baidu | 百度热搜\n1. 正常  标题\nnot a ranked line\n2. 带链接 [URL:https://e.com/1]\n\n" +
		failedSectionHeader + "\ndouyin\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	titles, _, err := ParseTXTFile(path)
	if err != nil {
		t.Fatal(err)
	}

	baidu := titles["baidu"]
	if _, ok := baidu["正常 标题"]; !ok {
		t.Errorf("whitespace should collapse in titles, got %v", baidu)
	}
	td, ok := baidu["not a ranked line"]
	if !ok {
		t.Fatal("unranked line should still parse")
	}
	if len(td.Ranks) != 1 || td.Ranks[0] != 1 {
		t.Errorf("unranked line ranks = %v, want [1]", td.Ranks)
	}
	if baidu["带链接"].URL != "https://e.com/1" {
		t.Errorf("url = %q", baidu["带链接"].URL)
	}
}

func TestParseTXTFileMissing(t *testing.T) {
	if _, _, err := ParseTXTFile(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("missing file should error")
	}
}

func TestListTXTSnapshots(t *testing.T) {
	l := newTestLocal(t)

	if paths, err := l.ListTXTSnapshots("2025-11-26"); err != nil || paths != nil {
		t.Errorf("missing dir should list nothing, got %v, %v", paths, err)
	}

	for _, ct := range []string{"10-30", "09-00"} {
		data := batch("2025-11-26", ct, map[string][]NewsItem{
			"baidu": {{Title: "x", Rank: 1}},
		})
		if _, err := l.SaveTXTSnapshot(data); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := l.ListTXTSnapshots("2025-11-26")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(paths))
	}
	if filepath.Base(paths[0]) != "09-00.txt" || filepath.Base(paths[1]) != "10-30.txt" {
		t.Errorf("snapshots not chronological: %v", paths)
	}
}
