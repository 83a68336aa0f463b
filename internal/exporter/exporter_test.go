package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keytally/keytally/internal/database"
	"github.com/keytally/keytally/internal/models"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.May, 15, 9, 0, 0, 0, time.Local)

func newTestExporter(t *testing.T) *Exporter {
	t.Helper()

	db, err := database.Connect(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { _ = db.Close() })

	repo := database.NewRepository(db)
	require.NoError(t, repo.ApplyFlush(&models.FlushBatch{
		Date:     "2024-05-15",
		Hour:     9,
		Keys:     3,
		Clicks:   2,
		Distance: 0.05,
		Scroll:   1.5,
		Apps: map[string]models.AppDelta{
			"code": {Keys: 3, Clicks: 2, Scrolls: 1.5, Distance: 0.05},
		},
		KeyCodes: map[uint32]int64{30: 2, 31: 1},
		Buckets:  map[models.Bucket]int64{{X: 10, Y: 20}: 1, {X: 5, Y: 5}: 1},
		Metadata: []models.AppMetadata{{AppName: "code", FriendlyName: "Visual Studio Code", ExePath: `C:\code.exe`}},
	}))
	require.NoError(t, repo.UpsertDaily("2024-01-01", 9, 0, 0, 0))

	e := New(repo)
	mock := clock.NewMock()
	mock.Set(fixedNow)
	e.SetClock(mock)
	return e
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRange(t *testing.T) {
	tests := []struct {
		name      string
		wantStart string
	}{
		{"today", "2024-05-15"},
		{"week", "2024-05-09"},
		{"month", "2024-04-16"},
		{"year", "2023-05-17"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := Range(tt.name, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, "2024-05-15", end)
		})
	}

	start, end, err := Range("all", fixedNow)
	require.NoError(t, err)
	assert.Empty(t, start)
	assert.Empty(t, end)

	_, _, err = Range("decade", fixedNow)
	assert.Error(t, err)
}

func TestDailyStatsCSV(t *testing.T) {
	e := newTestExporter(t)

	var buf bytes.Buffer
	require.NoError(t, e.DailyStatsCSV(&buf, "2024-05-01", "2024-05-31"))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, []string{"2024-05-15", "3", "2", "0.05", "1.5"}, rows[1])
}

func TestAppStatsCSV(t *testing.T) {
	e := newTestExporter(t)

	var buf bytes.Buffer
	require.NoError(t, e.AppStatsCSV(&buf, "", ""))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"code", "Visual Studio Code", "3", "2", "1.5", "0.05"}, rows[1])
}

func TestHeatmapCSVs(t *testing.T) {
	e := newTestExporter(t)

	var keys bytes.Buffer
	require.NoError(t, e.HeatmapCSV(&keys, "", ""))
	assert.Equal(t, [][]string{
		{"Key Code (Scan Code)", "Press Count"},
		{"30", "2"},
		{"31", "1"},
	}, readCSV(t, keys.Bytes()))

	var mouse bytes.Buffer
	require.NoError(t, e.MouseHeatmapCSV(&mouse, "", ""))
	assert.Equal(t, [][]string{
		{"X", "Y", "Clicks"},
		{"5", "5", "1"},
		{"10", "20", "1"},
	}, readCSV(t, mouse.Bytes()))
}

func TestExportAllCSV(t *testing.T) {
	e := newTestExporter(t)
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := e.ExportAllCSV(dir, "", "")
	require.NoError(t, err)
	require.Len(t, paths, 4)
	assert.Equal(t, filepath.Join(dir, "daily_stats_20240515_090000.csv"), paths[0])

	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestExportJSON(t *testing.T) {
	e := newTestExporter(t)
	path := filepath.Join(t.TempDir(), "export.json")

	require.NoError(t, e.ExportJSON(path, "2024-05-01", "2024-05-31"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, FormatVersion, doc.ExportInfo.Version)
	require.NotNil(t, doc.ExportInfo.StartDate)
	assert.Equal(t, "2024-05-01", *doc.ExportInfo.StartDate)
	assert.Len(t, doc.DailyStats, 1)
	assert.Equal(t, int64(3), doc.Totals.Keys)
	require.Len(t, doc.AppStats, 1)
	assert.Equal(t, `C:\code.exe`, doc.AppStats[0].ExePath)
	assert.Len(t, doc.KeyboardHeat, 2)
	assert.Len(t, doc.MouseHeat, 2)
}

func TestCollectAllTime(t *testing.T) {
	e := newTestExporter(t)

	doc, err := e.Collect("", "")
	require.NoError(t, err)
	assert.Nil(t, doc.ExportInfo.StartDate)
	assert.Len(t, doc.DailyStats, 2)
	assert.Equal(t, int64(12), doc.Totals.Keys)
}
