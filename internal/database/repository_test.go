package database

import (
	"path/filepath"
	"testing"

	"github.com/keytally/keytally/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := Connect(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(db)
}

func TestUpsertDailyAccumulates(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertDaily("2024-05-01", 3, 2, 0.05, 1))
	require.NoError(t, repo.UpsertDaily("2024-05-01", 4, 1, 0.10, 2))

	row, err := repo.DailyTotals("2024-05-01")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(7), row.KeyCount)
	assert.Equal(t, int64(3), row.MouseClickCount)
	assert.InDelta(t, 0.15, row.MouseDistance, 1e-9)
	assert.InDelta(t, 3.0, row.ScrollDistance, 1e-9)
}

func TestDailyTotalsMissing(t *testing.T) {
	repo := newTestRepo(t)

	row, err := repo.DailyTotals("1999-01-01")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestApplyFlush(t *testing.T) {
	repo := newTestRepo(t)

	batch := &models.FlushBatch{
		Date:     "2024-05-01",
		Hour:     14,
		Keys:     3,
		Clicks:   2,
		Distance: 0.05,
		Apps: map[string]models.AppDelta{
			"code": {Keys: 3, Clicks: 2, Distance: 0.05},
		},
		KeyCodes: map[uint32]int64{30: 2, 31: 1},
		Buckets:  map[models.Bucket]int64{{X: 100, Y: 200}: 2},
		Metadata: []models.AppMetadata{{AppName: "code", FriendlyName: "Visual Studio Code"}},
	}
	require.NoError(t, repo.ApplyFlush(batch))
	require.NoError(t, repo.ApplyFlush(batch))

	totals, err := repo.StatsRange("2024-05-01", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, int64(6), totals.Keys)
	assert.Equal(t, int64(4), totals.Clicks)
	assert.InDelta(t, 0.10, totals.Distance, 1e-9)
	assert.Equal(t, int64(1), totals.DaysTracked)

	keys, err := repo.HeatmapRange("", "")
	require.NoError(t, err)
	assert.Equal(t, map[uint32]int64{30: 4, 31: 2}, keys)

	buckets, err := repo.MouseHeatmapRange("2024-05-01", "")
	require.NoError(t, err)
	assert.Equal(t, map[models.Bucket]int64{{X: 100, Y: 200}: 4}, buckets)

	apps, err := repo.TopApps(5, "", "")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "code", apps[0].AppName)
	assert.Equal(t, "Visual Studio Code", apps[0].FriendlyName)
	assert.Equal(t, int64(6), apps[0].Keys)

	hours, err := repo.HourlyStats("2024-05-01", "code")
	require.NoError(t, err)
	require.Len(t, hours, 1)
	assert.Equal(t, 14, hours[0].Hour)
	assert.Equal(t, int64(6), hours[0].Keys)
}

func TestApplyFlushSkipsZeroDaily(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.ApplyFlush(&models.FlushBatch{
		Date:     "2024-05-01",
		KeyCodes: map[uint32]int64{},
	}))

	row, err := repo.DailyTotals("2024-05-01")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestDailyHistoryPerApp(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertDaily("2024-05-01", 10, 0, 0, 0))
	require.NoError(t, repo.UpsertDaily("2024-05-02", 20, 0, 0, 0))
	require.NoError(t, repo.UpsertApp("2024-05-01", "code", models.AppDelta{Keys: 7}))
	require.NoError(t, repo.UpsertApp("2024-05-01", "firefox", models.AppDelta{Keys: 3}))
	require.NoError(t, repo.UpsertApp("2024-05-02", "code", models.AppDelta{Keys: 20}))

	all, err := repo.DailyHistory("", "", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2024-05-01", all[0].Date)
	assert.Equal(t, int64(20), all[1].Keys)

	firefox, err := repo.DailyHistory("", "", "firefox")
	require.NoError(t, err)
	require.Len(t, firefox, 1)
	assert.Equal(t, int64(3), firefox[0].Keys)

	names, err := repo.AllApps()
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "firefox"}, names)
}

func TestDayOfWeekAverages(t *testing.T) {
	repo := newTestRepo(t)

	// 2024-05-01 and 2024-05-08 are Wednesdays, 2024-05-05 a Sunday.
	require.NoError(t, repo.UpsertDaily("2024-05-01", 10, 2, 0, 0))
	require.NoError(t, repo.UpsertDaily("2024-05-08", 20, 4, 0, 0))
	require.NoError(t, repo.UpsertDaily("2024-05-05", 6, 0, 0, 0))
	require.NoError(t, repo.UpsertApp("2024-05-01", "code", models.AppDelta{Keys: 4}))
	require.NoError(t, repo.UpsertApp("2024-05-08", "code", models.AppDelta{Keys: 8, Clicks: 2}))

	all, err := repo.DayOfWeekAverages("")
	require.NoError(t, err)
	assert.Equal(t, []models.WeekdayAverage{
		{Weekday: 0, Keys: 6, Clicks: 0},
		{Weekday: 3, Keys: 15, Clicks: 3},
	}, all)

	code, err := repo.DayOfWeekAverages("code")
	require.NoError(t, err)
	assert.Equal(t, []models.WeekdayAverage{{Weekday: 3, Keys: 6, Clicks: 1}}, code)
}

func TestHourOfDayAverages(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertHourlyApp("2024-05-01", 9, "code", models.AppDelta{Keys: 4, Clicks: 1}))
	require.NoError(t, repo.UpsertHourlyApp("2024-05-01", 9, "firefox", models.AppDelta{Keys: 6, Clicks: 1}))
	require.NoError(t, repo.UpsertHourlyApp("2024-05-02", 9, "code", models.AppDelta{Keys: 20}))
	require.NoError(t, repo.UpsertHourlyApp("2024-05-01", 14, "code", models.AppDelta{Keys: 2}))

	// Hour 9 sums both apps on 2024-05-01 before averaging: (10 + 20) / 2.
	all, err := repo.HourOfDayAverages("")
	require.NoError(t, err)
	assert.Equal(t, []models.HourAverage{
		{Hour: 9, Keys: 15, Clicks: 1},
		{Hour: 14, Keys: 2, Clicks: 0},
	}, all)

	code, err := repo.HourOfDayAverages("code")
	require.NoError(t, err)
	require.Len(t, code, 2)
	assert.Equal(t, models.HourAverage{Hour: 9, Keys: 12, Clicks: 0.5}, code[0])
}

func TestPurgeBefore(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertDaily("2023-01-01", 1, 0, 0, 0))
	require.NoError(t, repo.UpsertHeatmap("2023-01-01", 30, 1))
	require.NoError(t, repo.UpsertDaily("2024-01-01", 1, 0, 0, 0))

	removed, err := repo.PurgeBefore("2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	totals, err := repo.AllTimeStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Keys)
	assert.Equal(t, "2024-01-01", totals.FirstDate)
}

func TestAllTimeStatsEmpty(t *testing.T) {
	repo := newTestRepo(t)

	totals, err := repo.AllTimeStats()
	require.NoError(t, err)
	assert.Zero(t, totals.Keys)
	assert.Zero(t, totals.DaysTracked)
}

func TestClear(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertDaily("2024-05-01", 5, 5, 1, 1))
	require.NoError(t, repo.UpsertMouseHeatmap("2024-05-01", 0, 0, 3))
	require.NoError(t, repo.Clear())

	totals, err := repo.AllTimeStats()
	require.NoError(t, err)
	assert.Zero(t, totals.Keys)

	buckets, err := repo.MouseHeatmapRange("", "")
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestCreateErrorLog(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.CreateErrorLog(&models.ErrorLog{Component: "flush", ErrorMsg: "disk full"}))
}
