package query

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"trendradar/internal/util"
)

// Analysis types accepted by TopicTrend.
const (
	TrendAnalysis     = "trend"
	LifecycleAnalysis = "lifecycle"
	ViralAnalysis     = "viral"
	PredictAnalysis   = "predict"
)

// Lifecycle stages reported by the lifecycle analysis.
const (
	StageDormant   = "dormant"
	StageEmerging  = "emerging"
	StageGrowing   = "growing"
	StagePeak      = "peak"
	StageDeclining = "declining"
)

// TrendPoint is one day of the topic series.
type TrendPoint struct {
	Date   string  `json:"date"`
	Count  int     `json:"count"`
	Weight float64 `json:"weight"`
}

// Spike is one day whose volume cleared the spike threshold against its
// trailing baseline.
type Spike struct {
	Date     string  `json:"date"`
	Count    int     `json:"count"`
	Baseline float64 `json:"baseline"`
	Ratio    float64 `json:"ratio"`
}

// Prediction is one extrapolated day.
type Prediction struct {
	Date           string  `json:"date"`
	PredictedCount float64 `json:"predicted_count"`
}

// TopicTrendResult is the response body of analyze_topic_trend.
type TopicTrendResult struct {
	Topic        string         `json:"topic"`
	AnalysisType string         `json:"analysis_type"`
	Granularity  string         `json:"granularity"`
	DateRange    util.DateRange `json:"date_range"`
	TotalMatches int            `json:"total_matches"`
	Series       []TrendPoint   `json:"series"`

	// trend
	Direction  string      `json:"direction,omitempty"`
	ChangeRate float64     `json:"change_rate,omitempty"`
	Peak       *TrendPoint `json:"peak,omitempty"`

	// lifecycle
	Stage      string `json:"stage,omitempty"`
	FirstSeen  string `json:"first_seen,omitempty"`
	LastSeen   string `json:"last_seen,omitempty"`
	ActiveDays int    `json:"active_days,omitempty"`

	// viral
	IsViral  bool    `json:"is_viral,omitempty"`
	Spikes   []Spike `json:"spikes,omitempty"`
	MaxRatio float64 `json:"max_ratio,omitempty"`

	// predict
	Predictions     []Prediction `json:"predictions,omitempty"`
	Confidence      float64      `json:"confidence,omitempty"`
	MeetsConfidence bool         `json:"meets_confidence,omitempty"`
}

// TopicTrend tracks how much a topic shows up per day over a range and runs
// the requested analysis on the series. Granularity other than day is
// accepted and resolved to day. A nil date range defaults to the last seven
// days, since a single-point series carries no trend signal.
func (s *Service) TopicTrend(
	ctx context.Context,
	topic, analysisType string,
	expr any,
	granularity string,
	spikeThreshold float64,
	timeWindow int,
	lookaheadHours int,
	confidenceThreshold float64,
) (*TopicTrendResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidArgument)
	}
	if analysisType == "" {
		analysisType = TrendAnalysis
	}
	switch analysisType {
	case TrendAnalysis, LifecycleAnalysis, ViralAnalysis, PredictAnalysis:
	default:
		return nil, fmt.Errorf("%w: analysis_type %q", ErrInvalidArgument, analysisType)
	}
	if spikeThreshold <= 0 {
		spikeThreshold = 3.0
	}
	if timeWindow <= 0 {
		timeWindow = 24
	}
	if lookaheadHours <= 0 {
		lookaheadHours = 6
	}
	if confidenceThreshold <= 0 || confidenceThreshold > 1 {
		confidenceThreshold = 0.7
	}
	if expr == nil {
		expr = "last 7 days"
	}

	r, err := s.ResolveRange(expr)
	if err != nil {
		return nil, err
	}
	rangeDays, err := r.Days()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrBadDateExpression, err)
	}

	days, err := s.readRange(ctx, r, nil)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]dayData, len(days))
	for _, d := range days {
		byDate[d.Date] = d
	}

	needle := strings.ToLower(topic)
	series := make([]TrendPoint, 0, len(rangeDays))
	total := 0
	for _, day := range rangeDays {
		date := util.FormatDateFolder(day)
		point := TrendPoint{Date: date}
		if d, ok := byDate[date]; ok {
			for _, it := range s.flatten([]dayData{d}) {
				if !strings.Contains(strings.ToLower(it.Title), needle) {
					continue
				}
				point.Count++
				point.Weight += it.Weight
			}
		}
		point.Weight = round2(point.Weight)
		total += point.Count
		series = append(series, point)
	}

	result := &TopicTrendResult{
		Topic:        topic,
		AnalysisType: analysisType,
		Granularity:  "day",
		DateRange:    r,
		TotalMatches: total,
		Series:       series,
	}

	switch analysisType {
	case TrendAnalysis:
		applyTrend(result, series)
	case LifecycleAnalysis:
		applyLifecycle(result, series)
	case ViralAnalysis:
		applyViral(result, series, spikeThreshold, timeWindow)
	case PredictAnalysis:
		applyPredict(result, series, rangeDays, lookaheadHours, confidenceThreshold)
	}
	return result, nil
}

// applyTrend compares the second half of the series against the first.
func applyTrend(result *TopicTrendResult, series []TrendPoint) {
	peak := TrendPoint{}
	for _, p := range series {
		if p.Count > peak.Count {
			peak = p
		}
	}
	if peak.Count > 0 {
		result.Peak = &peak
	}

	if len(series) < 2 {
		result.Direction = "stable"
		return
	}
	mid := len(series) / 2
	first := meanCount(series[:mid])
	second := meanCount(series[mid:])

	base := first
	if base == 0 {
		base = 1
	}
	result.ChangeRate = round2((second - first) / base)
	switch {
	case second > first*1.2:
		result.Direction = "rising"
	case second < first*0.8:
		result.Direction = "falling"
	default:
		result.Direction = "stable"
	}
}

// applyLifecycle places the topic on an emergence/decline curve. The rules
// read the series back to front: silence at the tail means decline or
// dormancy, activity near the head of the range means emergence.
func applyLifecycle(result *TopicTrendResult, series []TrendPoint) {
	firstIdx, lastIdx, peakIdx := -1, -1, 0
	active := 0
	for i, p := range series {
		if p.Count == 0 {
			continue
		}
		if firstIdx == -1 {
			firstIdx = i
		}
		lastIdx = i
		active++
		if p.Count > series[peakIdx].Count {
			peakIdx = i
		}
	}
	if firstIdx == -1 {
		result.Stage = StageDormant
		return
	}

	result.FirstSeen = series[firstIdx].Date
	result.LastSeen = series[lastIdx].Date
	result.ActiveDays = active

	n := len(series)
	silentTail := n - 1 - lastIdx
	switch {
	case silentTail > n/2:
		result.Stage = StageDormant
	case silentTail > 0:
		result.Stage = StageDeclining
	case firstIdx >= n-2:
		result.Stage = StageEmerging
	case peakIdx == n-1:
		result.Stage = StageGrowing
	case peakIdx >= n-3 && series[n-1].Count >= series[peakIdx].Count/2:
		result.Stage = StagePeak
	default:
		result.Stage = StageDeclining
	}
}

// applyViral flags days whose count clears spikeThreshold times the mean of
// the preceding window. timeWindow is given in hours and rounded up to whole
// days.
func applyViral(result *TopicTrendResult, series []TrendPoint, spikeThreshold float64, timeWindow int) {
	windowDays := (timeWindow + 23) / 24

	for i := 1; i < len(series); i++ {
		start := i - windowDays
		if start < 0 {
			start = 0
		}
		baseline := meanCount(series[start:i])
		if baseline < 1 {
			baseline = 1
		}
		ratio := float64(series[i].Count) / baseline
		if ratio >= spikeThreshold && series[i].Count >= 3 {
			result.Spikes = append(result.Spikes, Spike{
				Date:     series[i].Date,
				Count:    series[i].Count,
				Baseline: round2(baseline),
				Ratio:    round2(ratio),
			})
		}
	}
	result.IsViral = len(result.Spikes) > 0
	for _, sp := range result.Spikes {
		if sp.Ratio > result.MaxRatio {
			result.MaxRatio = sp.Ratio
		}
	}
}

// applyPredict fits a least-squares line over the series and extrapolates.
// Confidence is the r² of the fit.
func applyPredict(result *TopicTrendResult, series []TrendPoint, rangeDays []time.Time, lookaheadHours int, confidenceThreshold float64) {
	n := len(series)
	if n == 0 {
		return
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range series {
		x, y := float64(i), float64(p.Count)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	slope, intercept := 0.0, sumY/fn
	if denom != 0 {
		slope = (fn*sumXY - sumX*sumY) / denom
		intercept = (sumY - slope*sumX) / fn
	}

	// r² against the mean model.
	meanY := sumY / fn
	var ssTot, ssRes float64
	for i, p := range series {
		predicted := slope*float64(i) + intercept
		ssTot += (float64(p.Count) - meanY) * (float64(p.Count) - meanY)
		ssRes += (float64(p.Count) - predicted) * (float64(p.Count) - predicted)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	if r2 < 0 {
		r2 = 0
	}

	lookaheadDays := (lookaheadHours + 23) / 24
	last := rangeDays[len(rangeDays)-1]
	for d := 1; d <= lookaheadDays; d++ {
		predicted := slope*float64(n-1+d) + intercept
		if predicted < 0 {
			predicted = 0
		}
		result.Predictions = append(result.Predictions, Prediction{
			Date:           util.FormatDateFolder(last.AddDate(0, 0, d)),
			PredictedCount: math.Round(predicted*10) / 10,
		})
	}
	result.Confidence = round2(r2)
	result.MeetsConfidence = r2 >= confidenceThreshold
}

func meanCount(points []TrendPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0
	for _, p := range points {
		sum += p.Count
	}
	return float64(sum) / float64(len(points))
}
