package tracker

import (
	"testing"
	"time"

	"github.com/keytally/keytally/internal/models"
	"github.com/keytally/keytally/pkg/hook"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 14, 30, 0, 0, time.Local))
	return clk
}

func TestFlushScenario(t *testing.T) {
	repo := newRepo(t)
	clk := newMockClock()

	agg := newTestAggregator("X")
	f := NewFlushScheduler(agg, repo, nil, 5*time.Second, clk, zap.NewNop())

	for i := 0; i < 3; i++ {
		agg.RecordKey(30)
	}
	agg.RecordClick(12, 7)
	agg.RecordClick(10, 5)
	agg.RecordMove(60, 80) // 100 px at 2 px/mm

	require.NoError(t, f.FlushOnce())

	daily, err := repo.DailyTotals("2024-05-01")
	require.NoError(t, err)
	require.NotNil(t, daily)
	assert.Equal(t, int64(3), daily.KeyCount)
	assert.Equal(t, int64(2), daily.MouseClickCount)
	assert.InDelta(t, 0.05, daily.MouseDistance, 1e-9)

	apps, err := repo.TopApps(10, "2024-05-01", "2024-05-01")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "X", apps[0].AppName)
	assert.Equal(t, int64(3), apps[0].Keys)

	hours, err := repo.HourlyStats("2024-05-01", "X")
	require.NoError(t, err)
	require.Len(t, hours, 1)
	assert.Equal(t, 14, hours[0].Hour)

	buckets, err := repo.MouseHeatmapRange("2024-05-01", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, map[models.Bucket]int64{{X: 10, Y: 5}: 2}, buckets)

	assert.True(t, agg.Buffered().Empty())
}

func TestFlushIsConvergent(t *testing.T) {
	store := &flakyStore{Repository: newRepo(t)}
	agg := newTestAggregator("X")
	f := NewFlushScheduler(agg, store, nil, time.Second, newMockClock(), nil)

	agg.RecordKey(1)
	require.NoError(t, f.FlushOnce())
	require.NoError(t, f.FlushOnce())
	require.NoError(t, f.FlushOnce())

	assert.Equal(t, 1, store.applyCount(), "empty cycles must not touch storage")

	daily, err := store.DailyTotals("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), daily.KeyCount)
}

func TestFlushDatesBatchAtFlushTime(t *testing.T) {
	store := &flakyStore{Repository: newRepo(t)}
	clk := newMockClock()
	clk.Set(time.Date(2024, 5, 1, 23, 59, 58, 0, time.Local))

	agg := newTestAggregator("X")
	f := NewFlushScheduler(agg, store, nil, 5*time.Second, clk, nil)

	agg.RecordKey(30)
	store.setFailing(true)
	require.Error(t, f.FlushOnce())

	agg.RecordKey(31)
	clk.Set(time.Date(2024, 5, 2, 0, 0, 3, 0, time.Local))
	store.setFailing(false)
	require.NoError(t, f.FlushOnce())

	before, err := store.DailyTotals("2024-05-01")
	require.NoError(t, err)
	assert.Nil(t, before)

	after, err := store.DailyTotals("2024-05-02")
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, int64(2), after.KeyCount)
}

func TestFlushFailureKeepsBuffer(t *testing.T) {
	store := &flakyStore{Repository: newRepo(t), failing: true}
	agg := newTestAggregator("X")
	f := NewFlushScheduler(agg, store, nil, time.Second, newMockClock(), nil)

	agg.RecordKey(1)
	agg.RecordKey(2)
	require.Error(t, f.FlushOnce())
	assert.Equal(t, int64(2), agg.BufferedKeys())

	agg.RecordKey(3)
	require.Error(t, f.FlushOnce())
	assert.Equal(t, int64(3), agg.BufferedKeys())

	store.setFailing(false)
	require.NoError(t, f.FlushOnce())
	assert.Zero(t, agg.BufferedKeys())

	daily, err := store.DailyTotals("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, int64(3), daily.KeyCount)

	heat, err := store.HeatmapRange("", "")
	require.NoError(t, err)
	assert.Equal(t, map[uint32]int64{1: 1, 2: 1, 3: 1}, heat)
}

func TestFlushRequeuesMetadataOnFailure(t *testing.T) {
	store := &flakyStore{Repository: newRepo(t), failing: true}
	det := newFakeDetector("code.exe")
	clk := newMockClock()
	res := NewResolver(det, time.Second, clk)
	agg := NewAggregator(ScreenMetrics{PxPerMm: 2}, res, hook.WheelDelta, 5)
	f := NewFlushScheduler(agg, store, res, time.Second, clk, nil)

	agg.RecordKey(1)
	require.Error(t, f.FlushOnce())

	store.setFailing(false)
	require.NoError(t, f.FlushOnce())

	meta, err := store.AppMetadata()
	require.NoError(t, err)
	require.Contains(t, meta, "code.exe")
	assert.Equal(t, "Code", meta["code.exe"].FriendlyName)
}

func TestFlushOnTicker(t *testing.T) {
	repo := newRepo(t)
	clk := newMockClock()
	agg := newTestAggregator("X")
	f := NewFlushScheduler(agg, repo, nil, 5*time.Second, clk, nil)

	f.Start()
	defer f.Stop()

	agg.RecordKey(1)
	clk.Add(5 * time.Second)

	require.Eventually(t, func() bool {
		daily, err := repo.DailyTotals("2024-05-01")
		return err == nil && daily != nil && daily.KeyCount == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRetentionPurgeOnRollover(t *testing.T) {
	repo := newRepo(t)
	require.NoError(t, repo.UpsertDaily("2024-04-01", 5, 0, 0, 0))
	require.NoError(t, repo.UpsertDaily("2024-04-30", 5, 0, 0, 0))

	clk := newMockClock()
	agg := newTestAggregator("X")
	f := NewFlushScheduler(agg, repo, nil, time.Second, clk, nil)
	f.SetRetention(func(now time.Time) string {
		return now.AddDate(0, 0, -10).Format(models.DateLayout)
	})
	f.lastDate = models.DateKey(clk.Now())

	require.NoError(t, f.FlushOnce())
	totals, err := repo.AllTimeStats()
	require.NoError(t, err)
	assert.Equal(t, int64(10), totals.Keys, "no purge before the date changes")

	clk.Add(12 * time.Hour)
	require.NoError(t, f.FlushOnce())

	totals, err = repo.AllTimeStats()
	require.NoError(t, err)
	assert.Equal(t, int64(5), totals.Keys)
	assert.Equal(t, "2024-04-30", totals.FirstDate)
}

type recordingObserver struct {
	ok, skipped, failed int
	rows                int
}

func (o *recordingObserver) FlushSucceeded(_ time.Duration, rows int) { o.ok++; o.rows += rows }
func (o *recordingObserver) FlushSkipped()                            { o.skipped++ }
func (o *recordingObserver) FlushFailed(time.Duration)                { o.failed++ }
func (o *recordingObserver) SetBufferedKeys(int64)                    {}

func TestFlushObserver(t *testing.T) {
	store := &flakyStore{Repository: newRepo(t)}
	agg := newTestAggregator("X")
	f := NewFlushScheduler(agg, store, nil, time.Second, newMockClock(), nil)
	obs := &recordingObserver{}
	f.SetObserver(obs)

	require.NoError(t, f.FlushOnce())
	agg.RecordKey(1)
	require.NoError(t, f.FlushOnce())
	store.setFailing(true)
	agg.RecordKey(1)
	require.Error(t, f.FlushOnce())

	assert.Equal(t, 1, obs.skipped)
	assert.Equal(t, 1, obs.ok)
	assert.Equal(t, 1, obs.failed)
	// daily + app + hourly app + one key code
	assert.Equal(t, 4, obs.rows)
}
