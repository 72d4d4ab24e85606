package query

import (
	"context"
	"fmt"
	"strings"

	"trendradar/internal/analyzer"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

// Report types accepted by SummaryReport.
const (
	ReportDaily  = "daily"
	ReportWeekly = "weekly"
)

// ReportGroup is one keyword group inside the summary.
type ReportGroup struct {
	GroupKey   string                `json:"group_key"`
	Count      int                   `json:"count"`
	Percentage float64               `json:"percentage"`
	Titles     []analyzer.TitleEntry `json:"titles"`
}

// DayVolume is one day's item count inside a weekly report.
type DayVolume struct {
	Date  string `json:"date"`
	Items int    `json:"items"`
}

// SummaryReportResult is the response body of generate_summary_report: the
// structured statistics plus a rendered Markdown document.
type SummaryReportResult struct {
	ReportType  string         `json:"report_type"`
	DateRange   util.DateRange `json:"date_range"`
	GeneratedAt string         `json:"generated_at"`
	TotalTitles int            `json:"total_titles"`
	Platforms   []string       `json:"platforms"`
	DailyVolume []DayVolume    `json:"daily_volume,omitempty"`
	Groups      []ReportGroup  `json:"groups"`
	Markdown    string         `json:"markdown"`
}

// SummaryReport aggregates the frequency analysis into a shareable bundle.
// daily covers one day (the end of the range), weekly the whole range, which
// defaults to the last seven days.
func (s *Service) SummaryReport(ctx context.Context, reportType string, expr any) (*SummaryReportResult, error) {
	if reportType == "" {
		reportType = ReportDaily
	}
	switch reportType {
	case ReportDaily, ReportWeekly:
	default:
		return nil, fmt.Errorf("%w: report_type %q", ErrInvalidArgument, reportType)
	}
	if expr == nil && reportType == ReportWeekly {
		expr = "last 7 days"
	}

	r, err := s.ResolveRange(expr)
	if err != nil {
		return nil, err
	}
	if reportType == ReportDaily {
		r = util.DateRange{Start: r.End, End: r.End}
	}

	days, err := s.readRange(ctx, r, nil)
	if err != nil {
		return nil, err
	}

	// Union the days into one platform-keyed map before analysis, so a
	// weekly report ranks across the whole span.
	combined := make(map[string][]storage.NewsItem)
	var volumes []DayVolume
	for _, d := range days {
		n := 0
		for id, list := range d.Data.Items {
			combined[id] = append(combined[id], list...)
			n += len(list)
		}
		volumes = append(volumes, DayVolume{Date: d.Date, Items: n})
	}

	groups, filterWords, globalFilters := s.loadRules()
	stats, total := analyzer.CountFrequency(combined, groups, filterWords, globalFilters, nil, analyzer.Options{
		Mode:          analyzer.ModeDaily,
		RankThreshold: s.cfg.Report.RankThreshold,
		Weights:       s.cfg.Weights,
		MaxPerGroup:   10,
	})

	platformSet := make(map[string]struct{})
	for _, d := range days {
		for id := range d.Data.Items {
			platformSet[id] = struct{}{}
		}
	}

	result := &SummaryReportResult{
		ReportType:  reportType,
		DateRange:   r,
		GeneratedAt: util.FormatTimestamp(s.localNow()),
		TotalTitles: total,
		Platforms:   sortedSet(platformSet),
	}
	if reportType == ReportWeekly {
		result.DailyVolume = volumes
	}
	for _, st := range stats {
		if st.Count == 0 {
			continue
		}
		result.Groups = append(result.Groups, ReportGroup{
			GroupKey:   st.Word,
			Count:      st.Count,
			Percentage: st.Percentage,
			Titles:     st.Titles,
		})
	}

	result.Markdown = renderMarkdown(result)
	return result, nil
}

func renderMarkdown(r *SummaryReportResult) string {
	var b strings.Builder

	switch r.ReportType {
	case ReportWeekly:
		fmt.Fprintf(&b, "# 热点周报 %s ~ %s\n\n", r.DateRange.Start, r.DateRange.End)
	default:
		fmt.Fprintf(&b, "# 热点日报 %s\n\n", r.DateRange.End)
	}
	fmt.Fprintf(&b, "生成时间：%s  \n", r.GeneratedAt)
	fmt.Fprintf(&b, "标题总数：%d  \n", r.TotalTitles)
	fmt.Fprintf(&b, "平台：%s\n\n", strings.Join(r.Platforms, ", "))

	if len(r.DailyVolume) > 0 {
		b.WriteString("## 每日数量\n\n")
		for _, v := range r.DailyVolume {
			fmt.Fprintf(&b, "- %s：%d 条\n", v.Date, v.Items)
		}
		b.WriteString("\n")
	}

	if len(r.Groups) == 0 {
		b.WriteString("无匹配的关键词分组。\n")
		return b.String()
	}

	for _, g := range r.Groups {
		fmt.Fprintf(&b, "## %s（%d 条，%.1f%%）\n\n", g.GroupKey, g.Count, g.Percentage)
		for i, t := range g.Titles {
			line := fmt.Sprintf("%d. [%s] %s", i+1, t.SourceName, t.Title)
			if t.TimeDisplay != "" {
				line += " " + t.TimeDisplay
			}
			if t.Count > 1 {
				line += fmt.Sprintf(" (%d次)", t.Count)
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
