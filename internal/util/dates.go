package util

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrBadDateExpression marks a date expression the resolver does not
// understand. Callers translate it into their own invalid-argument surface.
var ErrBadDateExpression = errors.New("unrecognized date expression")

// DateRange is an inclusive span of days, both bounds YYYY-MM-DD.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Days returns every date in the range, oldest first.
func (r DateRange) Days() ([]time.Time, error) {
	start, err := time.Parse(dateFolderLayout, r.Start)
	if err != nil {
		return nil, fmt.Errorf("bad range start %q: %w", r.Start, err)
	}
	end, err := time.Parse(dateFolderLayout, r.End)
	if err != nil {
		return nil, fmt.Errorf("bad range end %q: %w", r.End, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s before start %s", r.End, r.Start)
	}
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

var (
	lastNDaysEnRe = regexp.MustCompile(`^last\s+(\d+)\s+days?$`)
	lastNDaysZhRe = regexp.MustCompile(`^最近(\d+)天$`)
	singleDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ResolveDateRange parses a natural-language date expression into an
// inclusive range, relative to now. The expression may be a string
// ("today", "昨天", "this week", "上月", "last 7 days", "最近3天",
// "2025-11-26") or an object/DateRange with explicit start and end, which is
// validated and returned unchanged. A nil expression resolves to today.
func ResolveDateRange(expr any, now time.Time) (DateRange, error) {
	switch v := expr.(type) {
	case nil:
		d := FormatDateFolder(now)
		return DateRange{Start: d, End: d}, nil
	case DateRange:
		return validateRange(v)
	case map[string]any:
		return rangeFromObject(v)
	case string:
		return resolveExpression(v, now)
	default:
		return DateRange{}, fmt.Errorf("%w: %T", ErrBadDateExpression, expr)
	}
}

func rangeFromObject(obj map[string]any) (DateRange, error) {
	start, okStart := obj["start"].(string)
	end, okEnd := obj["end"].(string)
	if !okStart || !okEnd {
		return DateRange{}, fmt.Errorf("%w: object needs string start and end", ErrBadDateExpression)
	}
	return validateRange(DateRange{Start: start, End: end})
}

func validateRange(r DateRange) (DateRange, error) {
	start, err := time.Parse(dateFolderLayout, r.Start)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q", ErrBadDateExpression, r.Start)
	}
	end, err := time.Parse(dateFolderLayout, r.End)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end %q", ErrBadDateExpression, r.End)
	}
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: end %s before start %s", ErrBadDateExpression, r.End, r.Start)
	}
	return r, nil
}

func resolveExpression(raw string, now time.Time) (DateRange, error) {
	expr := strings.ToLower(strings.TrimSpace(raw))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	singleDay := func(t time.Time) DateRange {
		d := FormatDateFolder(t)
		return DateRange{Start: d, End: d}
	}

	switch expr {
	case "today", "今天":
		return singleDay(today), nil
	case "yesterday", "昨天":
		return singleDay(today.AddDate(0, 0, -1)), nil
	case "this week", "本周":
		return weekOf(today), nil
	case "last week", "上周":
		return weekOf(today.AddDate(0, 0, -7)), nil
	case "this month", "本月":
		return monthOf(today), nil
	case "last month", "上月":
		return monthOf(time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()).AddDate(0, 0, -1)), nil
	}

	if m := lastNDaysEnRe.FindStringSubmatch(expr); m != nil {
		return lastNDays(today, m[1])
	}
	if m := lastNDaysZhRe.FindStringSubmatch(expr); m != nil {
		return lastNDays(today, m[1])
	}
	if singleDateRe.MatchString(expr) {
		if _, err := time.Parse(dateFolderLayout, expr); err != nil {
			return DateRange{}, fmt.Errorf("%w: %q", ErrBadDateExpression, raw)
		}
		return DateRange{Start: expr, End: expr}, nil
	}

	return DateRange{}, fmt.Errorf("%w: %q", ErrBadDateExpression, raw)
}

// weekOf returns the ISO week (Monday through Sunday) containing day.
func weekOf(day time.Time) DateRange {
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	monday := day.AddDate(0, 0, -offset)
	sunday := monday.AddDate(0, 0, 6)
	return DateRange{Start: FormatDateFolder(monday), End: FormatDateFolder(sunday)}
}

// monthOf returns the calendar month containing day.
func monthOf(day time.Time) DateRange {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	last := first.AddDate(0, 1, -1)
	return DateRange{Start: FormatDateFolder(first), End: FormatDateFolder(last)}
}

func lastNDays(today time.Time, digits string) (DateRange, error) {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return DateRange{}, fmt.Errorf("%w: day count %q", ErrBadDateExpression, digits)
	}
	start := today.AddDate(0, 0, -(n - 1))
	return DateRange{Start: FormatDateFolder(start), End: FormatDateFolder(today)}, nil
}
