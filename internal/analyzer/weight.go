// Package analyzer ranks crawled titles. It scores each title with a
// composite weight built from rank, persistence and hotness, buckets titles
// into the configured keyword groups and emits ordered per-group statistics
// under the daily, incremental and current report modes.
package analyzer

import (
	"fmt"

	"trendradar/internal/config"
	"trendradar/internal/util"
)

// Report modes accepted by CountFrequency.
const (
	ModeDaily       = "daily"
	ModeIncremental = "incremental"
	ModeCurrent     = "current"
)

// Weight computes the composite score of one title from its rank history.
//
// rank score is the mean of 11-min(r,10) over all observed ranks, frequency
// score is min(count,10)*10 and hotness score is the share of ranks at or
// better than the threshold scaled to 100. The three parts are blended with the
// configured weights. A title with no observed ranks weighs zero, and a
// non-positive count falls back to the number of ranks.
func Weight(ranks []int, count, rankThreshold int, w config.Weights) float64 {
	if len(ranks) == 0 {
		return 0
	}
	if count <= 0 {
		count = len(ranks)
	}

	rankSum := 0
	highRank := 0
	for _, r := range ranks {
		capped := r
		if capped > 10 {
			capped = 10
		}
		rankSum += 11 - capped
		if r <= rankThreshold {
			highRank++
		}
	}
	rankScore := float64(rankSum) / float64(len(ranks))

	freq := count
	if freq > 10 {
		freq = 10
	}
	frequencyScore := float64(freq * 10)

	hotnessScore := float64(highRank) / float64(len(ranks)) * 100

	return rankScore*w.Rank + frequencyScore*w.Frequency + hotnessScore*w.Hotness
}

// FormatTimeDisplay renders the observation window of a title. A title seen
// in a single batch shows one clock time, a longer run shows the span as
// "[first ~ last]". Stored HH-MM values are rendered as HH:MM.
func FormatTimeDisplay(first, last string) string {
	if first == "" {
		return ""
	}
	firstDisplay := util.TimeForDisplay(first)
	lastDisplay := util.TimeForDisplay(last)
	if lastDisplay == "" || firstDisplay == lastDisplay {
		return firstDisplay
	}
	return fmt.Sprintf("[%s ~ %s]", firstDisplay, lastDisplay)
}
