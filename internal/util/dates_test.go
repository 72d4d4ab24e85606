package util

import (
	"errors"
	"testing"
	"time"
)

// fixedNow is Wednesday 2025-11-26 in Asia/Shanghai.
func fixedNow(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(2025, 11, 26, 10, 30, 0, 0, loc)
}

func TestResolveDateRangeExpressions(t *testing.T) {
	now := fixedNow(t)

	tests := []struct {
		expr  string
		start string
		end   string
	}{
		{"today", "2025-11-26", "2025-11-26"},
		{"今天", "2025-11-26", "2025-11-26"},
		{"Today", "2025-11-26", "2025-11-26"},
		{"  today  ", "2025-11-26", "2025-11-26"},
		{"yesterday", "2025-11-25", "2025-11-25"},
		{"昨天", "2025-11-25", "2025-11-25"},
		{"this week", "2025-11-24", "2025-11-30"},
		{"本周", "2025-11-24", "2025-11-30"},
		{"last week", "2025-11-17", "2025-11-23"},
		{"上周", "2025-11-17", "2025-11-23"},
		{"this month", "2025-11-01", "2025-11-30"},
		{"本月", "2025-11-01", "2025-11-30"},
		{"last month", "2025-10-01", "2025-10-31"},
		{"上月", "2025-10-01", "2025-10-31"},
		{"last 7 days", "2025-11-20", "2025-11-26"},
		{"最近7天", "2025-11-20", "2025-11-26"},
		{"last 1 day", "2025-11-26", "2025-11-26"},
		{"最近1天", "2025-11-26", "2025-11-26"},
		{"last 30 days", "2025-10-28", "2025-11-26"},
		{"2025-11-20", "2025-11-20", "2025-11-20"},
	}

	for _, tt := range tests {
		got, err := ResolveDateRange(tt.expr, now)
		if err != nil {
			t.Errorf("ResolveDateRange(%q) error: %v", tt.expr, err)
			continue
		}
		if got.Start != tt.start || got.End != tt.end {
			t.Errorf("ResolveDateRange(%q) = {%s %s}, want {%s %s}",
				tt.expr, got.Start, got.End, tt.start, tt.end)
		}
	}
}

func TestResolveDateRangeAcrossYearBoundary(t *testing.T) {
	loc := time.UTC
	// Thursday 2026-01-01: this week started Monday 2025-12-29.
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, loc)

	got, err := ResolveDateRange("this week", now)
	if err != nil {
		t.Fatalf("ResolveDateRange error: %v", err)
	}
	if got.Start != "2025-12-29" || got.End != "2026-01-04" {
		t.Errorf("this week = {%s %s}, want {2025-12-29 2026-01-04}", got.Start, got.End)
	}

	got, err = ResolveDateRange("last month", now)
	if err != nil {
		t.Fatalf("ResolveDateRange error: %v", err)
	}
	if got.Start != "2025-12-01" || got.End != "2025-12-31" {
		t.Errorf("last month = {%s %s}, want {2025-12-01 2025-12-31}", got.Start, got.End)
	}
}

func TestResolveDateRangeObject(t *testing.T) {
	now := fixedNow(t)

	got, err := ResolveDateRange(map[string]any{"start": "2025-11-01", "end": "2025-11-10"}, now)
	if err != nil {
		t.Fatalf("ResolveDateRange(object) error: %v", err)
	}
	if got.Start != "2025-11-01" || got.End != "2025-11-10" {
		t.Errorf("object range = {%s %s}, want {2025-11-01 2025-11-10}", got.Start, got.End)
	}

	got, err = ResolveDateRange(DateRange{Start: "2025-11-05", End: "2025-11-05"}, now)
	if err != nil {
		t.Fatalf("ResolveDateRange(DateRange) error: %v", err)
	}
	if got.Start != "2025-11-05" {
		t.Errorf("DateRange passthrough start = %s, want 2025-11-05", got.Start)
	}
}

func TestResolveDateRangeNilIsToday(t *testing.T) {
	now := fixedNow(t)
	got, err := ResolveDateRange(nil, now)
	if err != nil {
		t.Fatalf("ResolveDateRange(nil) error: %v", err)
	}
	if got.Start != "2025-11-26" || got.End != "2025-11-26" {
		t.Errorf("nil range = {%s %s}, want today", got.Start, got.End)
	}
}

func TestResolveDateRangeInvalid(t *testing.T) {
	now := fixedNow(t)

	invalid := []any{
		"sometime soon",
		"last -3 days",
		"last 0 days",
		"2025-13-40",
		map[string]any{"start": "2025-11-10", "end": "2025-11-01"},
		map[string]any{"start": "2025-11-10"},
		42,
	}
	for _, expr := range invalid {
		if _, err := ResolveDateRange(expr, now); !errors.Is(err, ErrBadDateExpression) {
			t.Errorf("ResolveDateRange(%v) error = %v, want ErrBadDateExpression", expr, err)
		}
	}
}

func TestDateRangeDays(t *testing.T) {
	r := DateRange{Start: "2025-11-24", End: "2025-11-26"}
	days, err := r.Days()
	if err != nil {
		t.Fatalf("Days error: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("Days returned %d entries, want 3", len(days))
	}
	if FormatDateFolder(days[0]) != "2025-11-24" || FormatDateFolder(days[2]) != "2025-11-26" {
		t.Errorf("Days span = %s..%s, want 2025-11-24..2025-11-26",
			FormatDateFolder(days[0]), FormatDateFolder(days[2]))
	}
}
