package tracker

import (
	"github.com/keytally/keytally/internal/models"
)

// Buffer is the in-memory, not yet persisted part of the statistics. All
// counters only grow between flushes.
type Buffer struct {
	Keys     int64
	Clicks   int64
	Distance float64 // meters
	Scroll   float64 // notches
	Apps     map[string]models.AppDelta
	KeyCodes map[uint32]int64
	Buckets  map[models.Bucket]int64
}

func newBuffer() *Buffer {
	return &Buffer{
		Apps:     make(map[string]models.AppDelta),
		KeyCodes: make(map[uint32]int64),
		Buckets:  make(map[models.Bucket]int64),
	}
}

// Empty reports whether nothing was recorded into b.
func (b *Buffer) Empty() bool {
	return b.Keys == 0 && b.Clicks == 0 && b.Distance == 0 && b.Scroll == 0 &&
		len(b.Apps) == 0 && len(b.KeyCodes) == 0 && len(b.Buckets) == 0
}

func (b *Buffer) clone() *Buffer {
	c := &Buffer{
		Keys:     b.Keys,
		Clicks:   b.Clicks,
		Distance: b.Distance,
		Scroll:   b.Scroll,
		Apps:     make(map[string]models.AppDelta, len(b.Apps)),
		KeyCodes: make(map[uint32]int64, len(b.KeyCodes)),
		Buckets:  make(map[models.Bucket]int64, len(b.Buckets)),
	}
	for k, v := range b.Apps {
		c.Apps[k] = v
	}
	for k, v := range b.KeyCodes {
		c.KeyCodes[k] = v
	}
	for k, v := range b.Buckets {
		c.Buckets[k] = v
	}
	return c
}

// merge adds every counter of o into b.
func (b *Buffer) merge(o *Buffer) {
	b.Keys += o.Keys
	b.Clicks += o.Clicks
	b.Distance += o.Distance
	b.Scroll += o.Scroll
	for k, v := range o.Apps {
		cur := b.Apps[k]
		cur.Keys += v.Keys
		cur.Clicks += v.Clicks
		cur.Scrolls += v.Scrolls
		cur.Distance += v.Distance
		b.Apps[k] = cur
	}
	for k, v := range o.KeyCodes {
		b.KeyCodes[k] += v
	}
	for k, v := range o.Buckets {
		b.Buckets[k] += v
	}
}

// Batch converts b into the storage increment for the given date and hour.
func (b *Buffer) Batch(date string, hour int) *models.FlushBatch {
	return &models.FlushBatch{
		Date:     date,
		Hour:     hour,
		Keys:     b.Keys,
		Clicks:   b.Clicks,
		Distance: b.Distance,
		Scroll:   b.Scroll,
		Apps:     b.Apps,
		KeyCodes: b.KeyCodes,
		Buckets:  b.Buckets,
	}
}
