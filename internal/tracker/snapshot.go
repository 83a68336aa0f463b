package tracker

import (
	"time"

	"github.com/keytally/keytally/internal/models"

	"go.uber.org/zap"
)

// StatsReader is the read side of storage used to build snapshots.
type StatsReader interface {
	DailyTotals(date string) (*models.DailyStats, error)
	HeatmapRange(start, end string) (map[uint32]int64, error)
	MouseHeatmapRange(start, end string) (map[models.Bucket]int64, error)
}

// Live is the buffered, not yet persisted part of a snapshot.
type Live struct {
	Keys         int64                      `json:"keys"`
	Clicks       int64                      `json:"clicks"`
	Distance     float64                    `json:"distance"`
	Scroll       float64                    `json:"scroll"`
	Heatmap      map[uint32]int64           `json:"heatmap"`
	MouseHeatmap map[models.Bucket]int64    `json:"-"`
	MouseBuckets []models.BucketCount       `json:"mouse_heatmap"`
	Apps         map[string]models.AppDelta `json:"apps"`
}

// Snapshot is today's statistics: persisted rows plus the live buffer.
type Snapshot struct {
	Date         string                  `json:"date"`
	Keys         int64                   `json:"keys"`
	Clicks       int64                   `json:"clicks"`
	Distance     float64                 `json:"distance"`
	Scroll       float64                 `json:"scroll"`
	Heatmap      map[uint32]int64        `json:"heatmap"`
	MouseHeatmap map[models.Bucket]int64 `json:"-"`
	Live         Live                    `json:"live"`
	Persisted    bool                    `json:"persisted"` // false when storage could not be read
	TakenAt      time.Time               `json:"taken_at"`
}

// MouseBuckets flattens MouseHeatmap, ordered by count descending.
func (s *Snapshot) MouseBuckets() []models.BucketCount {
	return models.BucketCounts(s.MouseHeatmap)
}

// snapshot copies the buffer under the lock, then merges it with today's
// persisted rows without holding the lock. reader may be nil.
func (a *Aggregator) snapshot(reader StatsReader, now time.Time, logger *zap.Logger) *Snapshot {
	buf := a.Buffered()

	live := Live{
		Keys:         buf.Keys,
		Clicks:       buf.Clicks,
		Distance:     buf.Distance,
		Scroll:       buf.Scroll,
		Heatmap:      buf.KeyCodes,
		MouseHeatmap: buf.Buckets,
		MouseBuckets: models.BucketCounts(buf.Buckets),
		Apps:         buf.Apps,
	}

	snap := &Snapshot{
		Date:         models.DateKey(now),
		Keys:         live.Keys,
		Clicks:       live.Clicks,
		Distance:     live.Distance,
		Scroll:       live.Scroll,
		Heatmap:      make(map[uint32]int64, len(live.Heatmap)),
		MouseHeatmap: make(map[models.Bucket]int64, len(live.MouseHeatmap)),
		Live:         live,
		TakenAt:      now,
	}
	for k, v := range live.Heatmap {
		snap.Heatmap[k] = v
	}
	for k, v := range live.MouseHeatmap {
		snap.MouseHeatmap[k] = v
	}

	if reader == nil {
		return snap
	}

	daily, err := reader.DailyTotals(snap.Date)
	if err != nil {
		logger.Warn("snapshot falls back to buffered stats", zap.Error(err))
		return snap
	}
	keys, err := reader.HeatmapRange(snap.Date, snap.Date)
	if err != nil {
		logger.Warn("snapshot falls back to buffered stats", zap.Error(err))
		return snap
	}
	buckets, err := reader.MouseHeatmapRange(snap.Date, snap.Date)
	if err != nil {
		logger.Warn("snapshot falls back to buffered stats", zap.Error(err))
		return snap
	}

	if daily != nil {
		snap.Keys += daily.KeyCount
		snap.Clicks += daily.MouseClickCount
		snap.Distance += daily.MouseDistance
		snap.Scroll += daily.ScrollDistance
	}
	for k, v := range keys {
		snap.Heatmap[k] += v
	}
	for k, v := range buckets {
		snap.MouseHeatmap[k] += v
	}
	snap.Persisted = true
	return snap
}
