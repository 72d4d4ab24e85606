package mcp

import "context"

func (d *Dispatcher) analyzeTopicTrend(ctx context.Context, args map[string]any) (any, error) {
	topic, err := stringArg(args, "topic", "")
	if err != nil {
		return nil, err
	}
	analysisType, err := stringArg(args, "analysis_type", "trend")
	if err != nil {
		return nil, err
	}
	granularity, err := stringArg(args, "granularity", "day")
	if err != nil {
		return nil, err
	}
	spikeThreshold, err := floatArg(args, "spike_threshold", 3.0)
	if err != nil {
		return nil, err
	}
	timeWindow, err := intArg(args, "time_window", 24)
	if err != nil {
		return nil, err
	}
	lookaheadHours, err := intArg(args, "lookahead_hours", 6)
	if err != nil {
		return nil, err
	}
	confidence, err := floatArg(args, "confidence_threshold", 0.7)
	if err != nil {
		return nil, err
	}
	return d.query.TopicTrend(ctx, topic, analysisType, args["date_range"], granularity, spikeThreshold, timeWindow, lookaheadHours, confidence)
}

func (d *Dispatcher) analyzeDataInsights(ctx context.Context, args map[string]any) (any, error) {
	insightType, err := stringArg(args, "insight_type", "platform_compare")
	if err != nil {
		return nil, err
	}
	topic, err := stringArg(args, "topic", "")
	if err != nil {
		return nil, err
	}
	minFrequency, err := intArg(args, "min_frequency", 3)
	if err != nil {
		return nil, err
	}
	topN, err := intArg(args, "top_n", 20)
	if err != nil {
		return nil, err
	}
	return d.query.DataInsights(ctx, insightType, topic, args["date_range"], minFrequency, topN)
}

func (d *Dispatcher) analyzeSentiment(ctx context.Context, args map[string]any) (any, error) {
	topic, err := stringArg(args, "topic", "")
	if err != nil {
		return nil, err
	}
	platforms, err := stringListArg(args, "platforms")
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", 50)
	if err != nil {
		return nil, err
	}
	sortByWeight, err := boolArg(args, "sort_by_weight", true)
	if err != nil {
		return nil, err
	}
	includeURL, err := boolArg(args, "include_url", false)
	if err != nil {
		return nil, err
	}
	return d.query.AnalyzeSentiment(ctx, topic, platforms, args["date_range"], limit, sortByWeight, includeURL)
}

func (d *Dispatcher) aggregateNews(ctx context.Context, args map[string]any) (any, error) {
	platforms, err := stringListArg(args, "platforms")
	if err != nil {
		return nil, err
	}
	threshold, err := floatArg(args, "similarity_threshold", 0.7)
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", 50)
	if err != nil {
		return nil, err
	}
	includeURL, err := boolArg(args, "include_url", false)
	if err != nil {
		return nil, err
	}
	return d.query.AggregateNews(ctx, args["date_range"], platforms, threshold, limit, includeURL)
}

func (d *Dispatcher) comparePeriods(ctx context.Context, args map[string]any) (any, error) {
	topic, err := stringArg(args, "topic", "")
	if err != nil {
		return nil, err
	}
	compareType, err := stringArg(args, "compare_type", "overview")
	if err != nil {
		return nil, err
	}
	platforms, err := stringListArg(args, "platforms")
	if err != nil {
		return nil, err
	}
	topN, err := intArg(args, "top_n", 10)
	if err != nil {
		return nil, err
	}
	return d.query.ComparePeriods(ctx, args["period1"], args["period2"], topic, compareType, platforms, topN)
}

func (d *Dispatcher) generateSummaryReport(ctx context.Context, args map[string]any) (any, error) {
	reportType, err := stringArg(args, "report_type", "daily")
	if err != nil {
		return nil, err
	}
	return d.query.SummaryReport(ctx, reportType, args["date_range"])
}
