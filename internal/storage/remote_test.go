package storage

import (
	"testing"
	"time"
)

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		host   string
		secure bool
		ok     bool
	}{
		{"https://cos.ap-guangzhou.myqcloud.com", "cos.ap-guangzhou.myqcloud.com", true, true},
		{"http://127.0.0.1:9000", "127.0.0.1:9000", false, true},
		{"https://account.r2.cloudflarestorage.com", "account.r2.cloudflarestorage.com", true, true},
		{"minio.internal:9000", "minio.internal:9000", true, true},
		{"", "", false, false},
	}

	for _, tt := range tests {
		host, secure, err := splitEndpoint(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("splitEndpoint(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if !tt.ok {
			continue
		}
		if host != tt.host || secure != tt.secure {
			t.Errorf("splitEndpoint(%q) = %q/%v, want %q/%v", tt.in, host, secure, tt.host, tt.secure)
		}
	}
}

func TestAssemblePullReport(t *testing.T) {
	dates := []string{"2025-11-26", "2025-11-25", "2025-11-24", "2025-11-23"}
	outcomes := []pullOutcome{pullSynced, pullSkipped, pullFailed, pullSynced}

	report := assemblePullReport(dates, outcomes)

	if len(report.Synced) != 2 || report.Synced[0] != "2025-11-26" || report.Synced[1] != "2025-11-23" {
		t.Errorf("Synced = %v, want [2025-11-26 2025-11-23]", report.Synced)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "2025-11-25" {
		t.Errorf("Skipped = %v, want [2025-11-25]", report.Skipped)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "2025-11-24" {
		t.Errorf("Failed = %v, want [2025-11-24]", report.Failed)
	}
}

func TestParseRemoteKey(t *testing.T) {
	tests := []struct {
		key  string
		iso  string
		ok   bool
		date time.Time
	}{
		{"news/2025-11-26.db", "2025-11-26", true, time.Date(2025, 11, 26, 0, 0, 0, 0, time.UTC)},
		{"news/2024年02月29日.db", "2024-02-29", true, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"news/2025-13-40.db", "", false, time.Time{}},
		{"news/readme.txt", "", false, time.Time{}},
		{"other/2025-11-26.db", "", false, time.Time{}},
		{"news/nested/2025-11-26.db", "", false, time.Time{}},
	}

	for _, tt := range tests {
		date, iso, ok := parseRemoteKey(tt.key)
		if ok != tt.ok {
			t.Errorf("parseRemoteKey(%q) ok = %v, want %v", tt.key, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if iso != tt.iso {
			t.Errorf("parseRemoteKey(%q) iso = %q, want %q", tt.key, iso, tt.iso)
		}
		if !date.Equal(tt.date) {
			t.Errorf("parseRemoteKey(%q) date = %v, want %v", tt.key, date, tt.date)
		}
	}
}
