package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is used when the configured timezone cannot be loaded.
const DefaultTimezone = "Asia/Shanghai"

const (
	dateFolderLayout   = "2006-01-02"
	timeFilenameLayout = "15-04"
	timeDisplayLayout  = "15:04"
	timestampLayout    = "2006-01-02 15:04:05"
)

var legacyFolderRe = regexp.MustCompile(`^(\d{4})年(\d{2})月(\d{2})日$`)

// LoadLocation resolves a timezone name, falling back to Asia/Shanghai when
// the name is unknown. The returned error reports the fallback; the location
// is always usable.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	fallback, ferr := time.LoadLocation(DefaultTimezone)
	if ferr != nil {
		// No tzdata at all; fixed offset keeps timestamps sane.
		fallback = time.FixedZone("CST", 8*60*60)
	}
	return fallback, fmt.Errorf("unknown timezone %q, using %s: %w", name, DefaultTimezone, err)
}

// Now returns the current time in loc. A nil loc means local time.
func Now(loc *time.Location) time.Time {
	if loc == nil {
		return time.Now()
	}
	return time.Now().In(loc)
}

// FormatDateFolder renders t as the canonical day-folder name YYYY-MM-DD.
func FormatDateFolder(t time.Time) string {
	return t.Format(dateFolderLayout)
}

// FormatTimeFilename renders t as the HH-MM form used for snapshot
// filenames and crawl-time keys.
func FormatTimeFilename(t time.Time) string {
	return t.Format(timeFilenameLayout)
}

// FormatTimestamp renders t as a full YYYY-MM-DD HH:MM:SS timestamp.
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// TimeForDisplay converts a stored HH-MM value to HH:MM. Values that are not
// exactly in the stored form pass through unchanged.
func TimeForDisplay(s string) string {
	if len(s) == 5 && strings.Contains(s, "-") {
		return strings.ReplaceAll(s, "-", ":")
	}
	return s
}

// ParseDateFolder parses a day-folder name. It accepts the canonical
// YYYY-MM-DD form and the legacy YYYY年MM月DD日 form, which is recognised on
// read but never produced. The returned time is midnight UTC of that date.
func ParseDateFolder(name string) (time.Time, bool) {
	if t, err := time.Parse(dateFolderLayout, name); err == nil {
		return t, true
	}
	if m := legacyFolderRe.FindStringSubmatch(name); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
