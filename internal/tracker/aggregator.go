package tracker

import (
	"math"
	"sync"

	"github.com/keytally/keytally/internal/models"
	"github.com/keytally/keytally/pkg/hook"
)

// AppResolver names the application that input should be attributed to.
type AppResolver interface {
	ActiveAppName() string
	CachedAppName() string
}

// Aggregator is the single owner of the live statistics buffer. Every read
// and write goes through one mutex that is only ever held for map and
// arithmetic work; application lookups happen before it is taken.
type Aggregator struct {
	screen ScreenMetrics
	apps   AppResolver
	notch  float64
	bucket int32

	mu    sync.Mutex
	buf   *Buffer
	onKey func()
}

// NewAggregator creates an empty aggregator. notch is the wheel delta of one
// scroll step and bucketSize the mouse heatmap cell size in pixels.
func NewAggregator(screen ScreenMetrics, apps AppResolver, notch, bucketSize int) *Aggregator {
	if notch <= 0 {
		notch = hook.WheelDelta
	}
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &Aggregator{
		screen: screen,
		apps:   apps,
		notch:  float64(notch),
		bucket: int32(bucketSize),
		buf:    newBuffer(),
	}
}

// SetKeyObserver registers fn to run after every counted key press. It runs
// on the input thread outside the lock; a panic in fn is swallowed.
func (a *Aggregator) SetKeyObserver(fn func()) {
	a.mu.Lock()
	a.onKey = fn
	a.mu.Unlock()
}

// HandleEvent folds one input event into the buffer.
func (a *Aggregator) HandleEvent(ev hook.Event) {
	switch e := ev.(type) {
	case hook.KeyPress:
		if !e.Injected {
			a.RecordKey(e.ScanCode)
		}
	case hook.MouseMove:
		a.RecordMove(e.DX, e.DY)
	case hook.MouseClick:
		a.RecordClick(e.X, e.Y)
	case hook.MouseScroll:
		a.RecordScroll(e.Delta)
	}
}

// RecordKey counts one key press for the active application.
func (a *Aggregator) RecordKey(scanCode uint32) {
	app := a.apps.ActiveAppName()

	a.mu.Lock()
	a.buf.Keys++
	a.buf.KeyCodes[scanCode]++
	d := a.buf.Apps[app]
	d.Keys++
	a.buf.Apps[app] = d
	observer := a.onKey
	a.mu.Unlock()

	if observer != nil {
		notify(observer)
	}
}

func notify(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

// RecordMove adds the length of the (dx, dy) displacement.
func (a *Aggregator) RecordMove(dx, dy int32) {
	if dx == 0 && dy == 0 {
		return
	}
	meters := a.screen.ToMeters(math.Hypot(float64(dx), float64(dy)))
	app := a.apps.CachedAppName()

	a.mu.Lock()
	a.buf.Distance += meters
	d := a.buf.Apps[app]
	d.Distance += meters
	a.buf.Apps[app] = d
	a.mu.Unlock()
}

// RecordClick counts a click and bins (x, y) into the mouse heatmap.
func (a *Aggregator) RecordClick(x, y int32) {
	app := a.apps.ActiveAppName()
	b := models.Bucket{X: bucketOf(x, a.bucket), Y: bucketOf(y, a.bucket)}

	a.mu.Lock()
	a.buf.Clicks++
	a.buf.Buckets[b]++
	d := a.buf.Apps[app]
	d.Clicks++
	a.buf.Apps[app] = d
	a.mu.Unlock()
}

// RecordScroll adds abs(delta) in notches.
func (a *Aggregator) RecordScroll(delta int32) {
	if delta == 0 {
		return
	}
	notches := math.Abs(float64(delta)) / a.notch
	app := a.apps.ActiveAppName()

	a.mu.Lock()
	a.buf.Scroll += notches
	d := a.buf.Apps[app]
	d.Scrolls += notches
	a.buf.Apps[app] = d
	a.mu.Unlock()
}

// bucketOf rounds v down to a multiple of size, towards negative infinity so
// that coordinates on monitors left of or above the primary bin correctly.
func bucketOf(v, size int32) int32 {
	q := v / size
	if v%size != 0 && v < 0 {
		q--
	}
	return q * size
}

// Buffered returns a copy of the live buffer.
func (a *Aggregator) Buffered() *Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.clone()
}

// BufferedKeys returns the unflushed key count.
func (a *Aggregator) BufferedKeys() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Keys
}

// Drain hands the live buffer to the caller and starts a fresh one.
func (a *Aggregator) Drain() *Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	drained := a.buf
	a.buf = newBuffer()
	return drained
}

// Restore merges a drained buffer whose flush failed back into the live one.
func (a *Aggregator) Restore(b *Buffer) {
	if b == nil {
		return
	}
	a.mu.Lock()
	a.buf.merge(b)
	a.mu.Unlock()
}
