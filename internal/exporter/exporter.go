// Package exporter writes stored statistics to CSV and JSON files.
package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/keytally/keytally/internal/database"
	"github.com/keytally/keytally/internal/models"
	"github.com/keytally/keytally/internal/reporter"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
)

// FormatVersion is written into every JSON export.
const FormatVersion = "1.0"

// Range resolves a rolling export range ending today: today, week (7 days),
// month (30 days), year (365 days) or all. Bounds are inclusive date keys and
// both are empty for all.
func Range(rangeType string, now time.Time) (start, end string, err error) {
	days := 0
	switch rangeType {
	case "today":
		days = 1
	case "week":
		days = 7
	case "month":
		days = 30
	case "year":
		days = 365
	case "all":
		return "", "", nil
	default:
		return "", "", fmt.Errorf("invalid range: %s (valid: today, week, month, year, all)", rangeType)
	}
	return models.DateKey(now.AddDate(0, 0, -(days - 1))), models.DateKey(now), nil
}

type Exporter struct {
	repo  *database.Repository
	clock clock.Clock
}

func New(repo *database.Repository) *Exporter {
	return &Exporter{repo: repo, clock: clock.New()}
}

// SetClock replaces the clock used for export timestamps.
func (e *Exporter) SetClock(c clock.Clock) {
	e.clock = c
}

// DailyStatsCSV writes one row per tracked date.
func (e *Exporter) DailyStatsCSV(w io.Writer, start, end string) error {
	points, err := e.repo.DailyHistory(start, end, "")
	if err != nil {
		return err
	}

	rows := [][]string{{"Date", "Keystrokes", "Mouse Clicks", "Mouse Distance (m)", "Scroll Distance"}}
	for _, p := range points {
		rows = append(rows, []string{
			p.Date,
			strconv.FormatInt(p.Keys, 10),
			strconv.FormatInt(p.Clicks, 10),
			formatFloat(p.Distance),
			formatFloat(p.Scroll),
		})
	}
	return writeCSV(w, rows)
}

// AppStatsCSV writes per-application totals, most keys first.
func (e *Exporter) AppStatsCSV(w io.Writer, start, end string) error {
	apps, err := e.repo.AppStatsSummary(0, start, end)
	if err != nil {
		return err
	}

	rows := [][]string{{"Application", "Friendly Name", "Keystrokes", "Clicks", "Scrolls", "Distance (m)"}}
	for _, app := range apps {
		rows = append(rows, []string{
			app.AppName,
			app.FriendlyName,
			strconv.FormatInt(app.Keys, 10),
			strconv.FormatInt(app.Clicks, 10),
			formatFloat(app.Scrolls),
			formatFloat(app.Distance),
		})
	}
	return writeCSV(w, rows)
}

// HeatmapCSV writes key presses per scan code, most pressed first.
func (e *Exporter) HeatmapCSV(w io.Writer, start, end string) error {
	heatmap, err := e.repo.HeatmapRange(start, end)
	if err != nil {
		return err
	}

	rows := [][]string{{"Key Code (Scan Code)", "Press Count"}}
	for _, key := range reporter.TopKeys(heatmap, 0) {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(key.ScanCode), 10),
			strconv.FormatInt(key.Count, 10),
		})
	}
	return writeCSV(w, rows)
}

// MouseHeatmapCSV writes clicks per screen bucket, most clicked first.
func (e *Exporter) MouseHeatmapCSV(w io.Writer, start, end string) error {
	buckets, err := e.mouseBuckets(start, end)
	if err != nil {
		return err
	}

	rows := [][]string{{"X", "Y", "Clicks"}}
	for _, b := range buckets {
		rows = append(rows, []string{
			strconv.FormatInt(int64(b.X), 10),
			strconv.FormatInt(int64(b.Y), 10),
			strconv.FormatInt(b.Count, 10),
		})
	}
	return writeCSV(w, rows)
}

// ExportAllCSV writes every CSV export into dir with a shared timestamp
// suffix. It returns the paths written; a failed export does not stop the
// others and its error is combined into the result.
func (e *Exporter) ExportAllCSV(dir, start, end string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	stamp := e.clock.Now().Format("20060102_150405")
	exports := []struct {
		name  string
		write func(io.Writer, string, string) error
	}{
		{"daily_stats", e.DailyStatsCSV},
		{"app_stats", e.AppStatsCSV},
		{"heatmap", e.HeatmapCSV},
		{"mouse_heatmap", e.MouseHeatmapCSV},
	}

	var (
		written []string
		errs    error
	)
	for _, export := range exports {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", export.name, stamp))
		if err := writeFile(path, func(w io.Writer) error { return export.write(w, start, end) }); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("export %s: %w", export.name, err))
			continue
		}
		written = append(written, path)
	}
	return written, errs
}

// Document is the JSON export layout.
type Document struct {
	ExportInfo   ExportInfo           `json:"export_info"`
	DailyStats   []models.DailyPoint  `json:"daily_stats"`
	AppStats     []AppExport          `json:"app_stats"`
	KeyboardHeat []models.KeyCount    `json:"keyboard_heatmap"`
	MouseHeat    []models.BucketCount `json:"mouse_heatmap"`
	Totals       models.Totals        `json:"totals"`
}

type ExportInfo struct {
	ExportedAt time.Time `json:"exported_at"`
	StartDate  *string   `json:"start_date"`
	EndDate    *string   `json:"end_date"`
	Version    string    `json:"version"`
}

type AppExport struct {
	models.AppSummary
	ExePath string `json:"exe_path"`
}

// Collect gathers everything a JSON export contains.
func (e *Exporter) Collect(start, end string) (*Document, error) {
	doc := &Document{
		ExportInfo: ExportInfo{
			ExportedAt: e.clock.Now(),
			StartDate:  optional(start),
			EndDate:    optional(end),
			Version:    FormatVersion,
		},
	}

	var err error
	if doc.DailyStats, err = e.repo.DailyHistory(start, end, ""); err != nil {
		return nil, err
	}
	if doc.Totals, err = e.repo.StatsRange(start, end); err != nil {
		return nil, err
	}

	apps, err := e.repo.AppStatsSummary(0, start, end)
	if err != nil {
		return nil, err
	}
	meta, err := e.repo.AppMetadata()
	if err != nil {
		return nil, err
	}
	doc.AppStats = make([]AppExport, 0, len(apps))
	for _, app := range apps {
		doc.AppStats = append(doc.AppStats, AppExport{AppSummary: app, ExePath: meta[app.AppName].ExePath})
	}

	heatmap, err := e.repo.HeatmapRange(start, end)
	if err != nil {
		return nil, err
	}
	doc.KeyboardHeat = reporter.TopKeys(heatmap, 0)

	if doc.MouseHeat, err = e.mouseBuckets(start, end); err != nil {
		return nil, err
	}

	if doc.DailyStats == nil {
		doc.DailyStats = []models.DailyPoint{}
	}
	return doc, nil
}

// JSON writes the whole export as one indented JSON document.
func (e *Exporter) JSON(w io.Writer, start, end string) error {
	doc, err := e.Collect(start, end)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// ExportJSON writes the JSON export to path.
func (e *Exporter) ExportJSON(path, start, end string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	return writeFile(path, func(w io.Writer) error { return e.JSON(w, start, end) })
}

func (e *Exporter) mouseBuckets(start, end string) ([]models.BucketCount, error) {
	heatmap, err := e.repo.MouseHeatmapRange(start, end)
	if err != nil {
		return nil, err
	}
	return models.BucketCounts(heatmap), nil
}

func writeCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return write(f)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
