package models

import (
	"sort"
	"time"
)

// Totals is an aggregate of daily rows over some date range.
type Totals struct {
	Keys        int64   `json:"keys"`
	Clicks      int64   `json:"clicks"`
	Distance    float64 `json:"distance"` // meters
	Scroll      float64 `json:"scroll"`
	FirstDate   string  `json:"first_date,omitempty"`
	LastDate    string  `json:"last_date,omitempty"`
	DaysTracked int64   `json:"days_tracked,omitempty"`
}

type AppSummary struct {
	AppName      string  `json:"app_name"`
	FriendlyName string  `json:"friendly_name,omitempty"`
	Keys         int64   `json:"keys"`
	Clicks       int64   `json:"clicks"`
	Scrolls      float64 `json:"scrolls"`
	Distance     float64 `json:"distance"`
	Percentage   float64 `json:"percentage,omitempty"`
}

type DailyPoint struct {
	Date     string  `json:"date"`
	Keys     int64   `json:"keys"`
	Clicks   int64   `json:"clicks"`
	Distance float64 `json:"distance"`
	Scroll   float64 `json:"scroll"`
}

type HourlyPoint struct {
	Hour   int   `json:"hour"`
	Keys   int64 `json:"keys"`
	Clicks int64 `json:"clicks"`
}

// WeekdayAverage is the mean per-day activity for one weekday, 0 = Sunday.
type WeekdayAverage struct {
	Weekday int     `json:"weekday"`
	Keys    float64 `json:"keys"`
	Clicks  float64 `json:"clicks"`
}

// HourAverage is the mean activity within one local hour over all recorded days.
type HourAverage struct {
	Hour   int     `json:"hour"`
	Keys   float64 `json:"keys"`
	Clicks float64 `json:"clicks"`
}

type KeyCount struct {
	ScanCode uint32 `json:"key_code"`
	Count    int64  `json:"count"`
}

type BucketCount struct {
	X     int32 `json:"x"`
	Y     int32 `json:"y"`
	Count int64 `json:"count"`
}

// BucketCounts flattens a mouse heatmap, most clicks first, then by row and column.
func BucketCounts(m map[Bucket]int64) []BucketCount {
	out := make([]BucketCount, 0, len(m))
	for b, c := range m {
		out = append(out, BucketCount{X: b.X, Y: b.Y, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month", "year", "all"
}

// Zero reports whether the period is unbounded.
func (p ReportPeriod) Zero() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

type Report struct {
	Period      ReportPeriod `json:"period"`
	Totals      Totals       `json:"totals"`
	Apps        []AppSummary `json:"apps"`
	TopKeys     []KeyCount   `json:"top_keys"`
	GeneratedAt time.Time    `json:"generated_at"`
}
