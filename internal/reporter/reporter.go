package reporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/keytally/keytally/internal/config"
	"github.com/keytally/keytally/internal/database"
	"github.com/keytally/keytally/internal/models"
	"github.com/keytally/keytally/pkg/utils"

	"github.com/benbjohnson/clock"
)

// DefaultTopKeys is how many scan codes a report lists.
const DefaultTopKeys = 10

// Reporter handles report generation
type Reporter struct {
	config *config.Config
	repo   *database.Repository
	clock  clock.Clock
}

// New creates a new reporter
func New(cfg *config.Config, repo *database.Repository) *Reporter {
	return &Reporter{
		config: cfg,
		repo:   repo,
		clock:  clock.New(),
	}
}

// SetClock replaces the clock periods are computed from.
func (r *Reporter) SetClock(c clock.Clock) {
	r.clock = c
}

// GenerateReport generates a report for the specified period
func (r *Reporter) GenerateReport(periodType string) (*models.Report, error) {
	period, err := Period(periodType, r.clock.Now())
	if err != nil {
		return nil, err
	}
	start, end := DateBounds(period)

	totals, err := r.repo.StatsRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get totals: %w", err)
	}

	apps, err := r.repo.AppStatsSummary(0, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get app summary: %w", err)
	}

	// Percentages are shares of keys typed across all apps in the period.
	var appKeys int64
	for _, app := range apps {
		appKeys += app.Keys
	}
	for i := range apps {
		apps[i].Percentage = utils.Percent(apps[i].Keys, appKeys)
	}

	heatmap, err := r.repo.HeatmapRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get key heatmap: %w", err)
	}

	if apps == nil {
		apps = []models.AppSummary{}
	}

	return &models.Report{
		Period:      period,
		Totals:      totals,
		Apps:        apps,
		TopKeys:     TopKeys(heatmap, DefaultTopKeys),
		GeneratedAt: r.clock.Now(),
	}, nil
}

// Period calculates the time range for a report relative to now. Weeks start
// on Monday. "all" yields an unbounded period.
func Period(periodType string, now time.Time) (models.ReportPeriod, error) {
	var start, end time.Time
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch periodType {
	case "day", "today":
		periodType = "day"
		start = today
		end = start.AddDate(0, 0, 1)

	case "week":
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		start = today.AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	case "year":
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(1, 0, 0)

	case "all":

	default:
		return models.ReportPeriod{}, fmt.Errorf("invalid period type: %s (valid: day, week, month, year, all)", periodType)
	}

	return models.ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// DateBounds converts a period into inclusive date keys for range queries.
// End is exclusive in the period, so the last included day is End-1.
func DateBounds(p models.ReportPeriod) (start, end string) {
	if p.Zero() {
		return "", ""
	}
	return models.DateKey(p.Start), models.DateKey(p.End.AddDate(0, 0, -1))
}

// TopKeys returns the n most pressed scan codes, ties broken by scan code.
func TopKeys(heatmap map[uint32]int64, n int) []models.KeyCount {
	keys := make([]models.KeyCount, 0, len(heatmap))
	for code, count := range heatmap {
		keys = append(keys, models.KeyCount{ScanCode: code, Count: count})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Count != keys[j].Count {
			return keys[i].Count > keys[j].Count
		}
		return keys[i].ScanCode < keys[j].ScanCode
	})
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// FormatReportText formats the report as human-readable text
func (r *Reporter) FormatReportText(report *models.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Input Report - %s\n", report.Period.Type)
	if report.Period.Zero() {
		b.WriteString("Period: all time\n")
	} else {
		fmt.Fprintf(&b, "Period: %s to %s\n",
			report.Period.Start.Format("2006-01-02"),
			report.Period.End.AddDate(0, 0, -1).Format("2006-01-02"))
	}
	b.WriteString("\n")

	t := report.Totals
	fmt.Fprintf(&b, "Keystrokes:     %s\n", utils.FormatCount(t.Keys))
	fmt.Fprintf(&b, "Mouse clicks:   %s\n", utils.FormatCount(t.Clicks))
	fmt.Fprintf(&b, "Mouse distance: %s\n", utils.FormatDistance(t.Distance))
	fmt.Fprintf(&b, "Scroll notches: %.0f\n", t.Scroll)
	if t.DaysTracked > 0 {
		fmt.Fprintf(&b, "Days tracked:   %d\n", t.DaysTracked)
	}
	b.WriteString("\n")

	if len(report.Apps) == 0 {
		b.WriteString("No activity recorded for this period.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-30s %12s %10s %12s %9s\n", "Application", "Keys", "Clicks", "Distance", "Percent")
	b.WriteString(strings.Repeat("-", 77) + "\n")

	for _, app := range report.Apps {
		name := app.FriendlyName
		if name == "" {
			name = app.AppName
		}
		fmt.Fprintf(&b, "%-30s %12s %10s %12s %8.1f%%\n",
			truncate(name, 30),
			utils.FormatCount(app.Keys),
			utils.FormatCount(app.Clicks),
			utils.FormatDistance(app.Distance),
			app.Percentage)
	}

	if len(report.TopKeys) > 0 {
		b.WriteString("\nTop keys (scan code: presses)\n")
		for _, key := range report.TopKeys {
			fmt.Fprintf(&b, "  %3d: %s\n", key.ScanCode, utils.FormatCount(key.Count))
		}
	}

	return b.String()
}

// FormatReportJSON formats the report as JSON
func (r *Reporter) FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
