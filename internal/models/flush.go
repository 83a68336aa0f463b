package models

// Bucket is the top-left corner of a mouse heatmap grid cell, in pixels.
type Bucket struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// AppDelta is the per-application increment carried by a flush.
type AppDelta struct {
	Keys     int64   `json:"keys"`
	Clicks   int64   `json:"clicks"`
	Scrolls  float64 `json:"scrolls"`
	Distance float64 `json:"distance"`
}

// IsZero reports whether the delta would not change any row.
func (d AppDelta) IsZero() bool {
	return d.Keys == 0 && d.Clicks == 0 && d.Scrolls == 0 && d.Distance == 0
}

// FlushBatch is every increment drained in one flush cycle. Storage applies
// it as a unit: either every row is incremented or none is.
type FlushBatch struct {
	Date     string
	Hour     int
	Keys     int64
	Clicks   int64
	Distance float64
	Scroll   float64
	Apps     map[string]AppDelta
	KeyCodes map[uint32]int64
	Buckets  map[Bucket]int64
	Metadata []AppMetadata
}

// RowCount is the number of upserts the batch translates into.
func (b *FlushBatch) RowCount() int {
	n := len(b.Apps)*2 + len(b.KeyCodes) + len(b.Buckets) + len(b.Metadata)
	if b.Keys != 0 || b.Clicks != 0 || b.Distance != 0 || b.Scroll != 0 {
		n++
	}
	return n
}
