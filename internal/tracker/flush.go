package tracker

import (
	"sync"
	"time"

	"github.com/keytally/keytally/internal/models"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Store is the write side of storage used by the flush worker.
type Store interface {
	ApplyFlush(batch *models.FlushBatch) error
	CreateErrorLog(errorLog *models.ErrorLog) error
	PurgeBefore(date string) (int64, error)
}

// FlushObserver is told about every flush cycle. metrics.Metrics satisfies it.
type FlushObserver interface {
	FlushSucceeded(d time.Duration, rows int)
	FlushSkipped()
	FlushFailed(d time.Duration)
	SetBufferedKeys(n int64)
}

type nopObserver struct{}

func (nopObserver) FlushSucceeded(time.Duration, int) {}
func (nopObserver) FlushSkipped()                     {}
func (nopObserver) FlushFailed(time.Duration)         {}
func (nopObserver) SetBufferedKeys(int64)             {}

// MetadataSource hands out app metadata that still has to be persisted.
type MetadataSource interface {
	TakeDiscovered() []models.AppMetadata
	Requeue(meta []models.AppMetadata)
}

// FlushScheduler periodically moves the aggregator's buffer into storage.
//
// A cycle drains the buffer and writes it as one transaction. If the write
// fails the drained copy is merged back into the aggregator and retried on
// the next cycle, so a storage outage delays statistics but never loses them.
type FlushScheduler struct {
	agg      *Aggregator
	store    Store
	meta     MetadataSource
	clock    clock.Clock
	interval time.Duration
	log      *zap.Logger
	observer FlushObserver

	// cutoff returns the oldest date to keep, or "" to keep everything.
	cutoff func(now time.Time) string
	// panics reports callback panics recovered by the hook; logged on change.
	panics func() uint64

	mu         sync.Mutex // serialises cycles
	lastDate   string
	lastPanics uint64

	stop chan struct{}
	done chan struct{}
}

// NewFlushScheduler creates a scheduler. meta, observer, cutoff and panics
// may be nil.
func NewFlushScheduler(agg *Aggregator, store Store, meta MetadataSource, interval time.Duration,
	clk clock.Clock, logger *zap.Logger) *FlushScheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlushScheduler{
		agg:      agg,
		store:    store,
		meta:     meta,
		clock:    clk,
		interval: interval,
		log:      logger.Named("flush"),
		observer: nopObserver{},
	}
}

// SetObserver installs o. Call before Start.
func (f *FlushScheduler) SetObserver(o FlushObserver) {
	if o != nil {
		f.observer = o
	}
}

// SetRetention makes the scheduler purge rows older than cutoff(now) when
// the local date changes. Call before Start.
func (f *FlushScheduler) SetRetention(cutoff func(now time.Time) string) {
	f.cutoff = cutoff
}

// SetPanicSource lets the scheduler report hook callback panics.
func (f *FlushScheduler) SetPanicSource(panics func() uint64) {
	f.panics = panics
}

// Start launches the timer loop.
func (f *FlushScheduler) Start() {
	f.mu.Lock()
	f.lastDate = models.DateKey(f.clock.Now())
	f.mu.Unlock()

	f.stop = make(chan struct{})
	f.done = make(chan struct{})

	ticker := f.clock.Ticker(f.interval)
	go func() {
		defer close(f.done)
		defer ticker.Stop()

		for {
			select {
			case <-f.stop:
				return
			case <-ticker.C:
				_ = f.FlushOnce()
			}
		}
	}()

	f.log.Info("flush worker started", zap.Duration("interval", f.interval))
}

// Stop ends the timer loop and waits for an in-progress cycle to finish. It
// does not flush; the caller does that once every producer has stopped.
func (f *FlushScheduler) Stop() {
	if f.stop == nil {
		return
	}
	close(f.stop)
	<-f.done
	f.stop = nil
	f.log.Info("flush worker stopped")
}

// FlushOnce runs a single cycle. An empty buffer issues no storage calls.
func (f *FlushScheduler) FlushOnce() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	f.reportPanics()

	buf := f.agg.Drain()
	var meta []models.AppMetadata
	if f.meta != nil {
		meta = f.meta.TakeDiscovered()
	}

	if buf.Empty() && len(meta) == 0 {
		f.observer.FlushSkipped()
		f.rollover(now)
		return nil
	}

	batch := buf.Batch(models.DateKey(now), now.Hour())
	batch.Metadata = meta

	started := f.clock.Now()
	err := f.store.ApplyFlush(batch)
	elapsed := f.clock.Since(started)

	if err != nil {
		f.agg.Restore(buf)
		if f.meta != nil {
			f.meta.Requeue(meta)
		}
		f.observer.FlushFailed(elapsed)
		f.observer.SetBufferedKeys(f.agg.BufferedKeys())
		f.log.Warn("flush failed, keeping buffer for next cycle", zap.Error(err))
		f.storeError(err)
		return err
	}

	f.observer.FlushSucceeded(elapsed, batch.RowCount())
	f.observer.SetBufferedKeys(f.agg.BufferedKeys())
	f.log.Debug("flushed",
		zap.String("date", batch.Date),
		zap.Int64("keys", batch.Keys),
		zap.Int64("clicks", batch.Clicks),
		zap.Int("rows", batch.RowCount()),
	)

	f.rollover(now)
	return nil
}

// rollover purges expired rows the first time a new local date is seen.
// Caller holds f.mu.
func (f *FlushScheduler) rollover(now time.Time) {
	today := models.DateKey(now)
	if today == f.lastDate {
		return
	}
	f.lastDate = today
	f.purge(now)
}

// Purge deletes rows older than the retention cutoff.
func (f *FlushScheduler) Purge() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purge(f.clock.Now())
}

func (f *FlushScheduler) purge(now time.Time) {
	if f.cutoff == nil {
		return
	}
	cutoff := f.cutoff(now)
	if cutoff == "" {
		return
	}

	removed, err := f.store.PurgeBefore(cutoff)
	if err != nil {
		f.log.Warn("retention purge failed", zap.Error(err))
		f.storeError(err)
		return
	}
	if removed > 0 {
		f.log.Info("purged expired stats", zap.String("before", cutoff), zap.Int64("rows", removed))
	}
}

func (f *FlushScheduler) reportPanics() {
	if f.panics == nil {
		return
	}
	if n := f.panics(); n != f.lastPanics {
		f.log.Warn("input callback recovered from panics", zap.Uint64("total", n))
		f.lastPanics = n
	}
}

func (f *FlushScheduler) storeError(err error) {
	errorLog := &models.ErrorLog{
		Timestamp: f.clock.Now(),
		Component: "flush",
		ErrorMsg:  err.Error(),
	}

	if dbErr := f.store.CreateErrorLog(errorLog); dbErr != nil {
		f.log.Debug("failed to store error in database", zap.Error(dbErr))
	}
}
