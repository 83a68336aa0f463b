package tracker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keytally/keytally/internal/config"
	"github.com/keytally/keytally/internal/metrics"
	"github.com/keytally/keytally/pkg/hook"
	"github.com/keytally/keytally/pkg/window"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// InputHook delivers input events to a sink between Start and Stop.
// hook.Bridge is the production implementation.
type InputHook interface {
	Start(sink hook.Sink) error
	Stop() error
}

// Storage is everything the service needs from the database.
type Storage interface {
	Store
	StatsReader
}

// Service ties the input hook, aggregator and flush worker together.
//
//	Stopped --Start--> Starting --hooks installed--> Running
//	Starting --hook install failed--> Stopped (inert)
//	Running --Stop--> Stopping --threads joined, final flush--> Stopped
//
// Snapshot and ActiveAppName are safe to call in every state.
type Service struct {
	config   *config.Config
	store    Storage
	detector window.Detector
	input    InputHook
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics

	screen     ScreenMetrics
	resolver   *Resolver
	aggregator *Aggregator
	flusher    *FlushScheduler

	lifecycle sync.Mutex
	state     atomic.Int32
	startedAt time.Time
	hookErr   error
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics exports flush and hook health to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithScreen skips querying the detector for display metrics.
func WithScreen(m ScreenMetrics) Option {
	return func(s *Service) { s.screen = m }
}

// NewService builds a stopped service. The display is measured once here.
func NewService(cfg *config.Config, store Storage, detector window.Detector, input InputHook, opts ...Option) *Service {
	s := &Service{
		config:   cfg,
		store:    store,
		detector: detector,
		input:    input,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("tracker")

	if s.screen.PxPerMm == 0 {
		s.screen = MeasureScreen(detector, s.log)
	}

	s.resolver = NewResolver(detector, cfg.Tracker.AppCheckInterval, s.clock)
	s.aggregator = NewAggregator(s.screen, s.resolver, cfg.Tracker.ScrollNotch, cfg.Tracker.BucketSize)

	s.flusher = NewFlushScheduler(s.aggregator, store, s.resolver, cfg.Tracker.FlushInterval, s.clock, s.log)
	s.flusher.SetRetention(cfg.RetentionCutoff)
	if s.metrics != nil {
		s.flusher.SetObserver(s.metrics)
	}
	if counted, ok := input.(interface{ Counters() *hook.Counters }); ok {
		counters := counted.Counters()
		s.flusher.SetPanicSource(counters.Panics)
		if s.metrics != nil {
			s.metrics.RegisterHook(counters)
		}
	}

	return s
}

// SetKeyObserver registers fn to run after every counted key press.
func (s *Service) SetKeyObserver(fn func()) {
	s.aggregator.SetKeyObserver(fn)
}

// Start installs the input hooks and starts the flush worker. If the hooks
// cannot be installed the service stays stopped and inert, and the error is
// returned; every read API keeps working on persisted data.
func (s *Service) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrAlreadyRunning
	}

	s.log.Info("starting tracker",
		zap.Duration("flush_interval", s.config.Tracker.FlushInterval),
		zap.Float64("px_per_mm", s.screen.PxPerMm),
		zap.String("platform", s.detector.GetPlatform()),
	)

	s.flusher.Purge()

	if err := s.input.Start(s.aggregator); err != nil {
		s.hookErr = err
		s.setHookInstalled(false)
		s.state.Store(int32(StateStopped))
		s.log.Warn("input capture unavailable, tracker is inert", zap.Error(err))
		return fmt.Errorf("failed to start input capture: %w", err)
	}

	s.hookErr = nil
	s.setHookInstalled(true)
	s.flusher.Start()
	s.startedAt = s.clock.Now()
	s.state.Store(int32(StateRunning))

	s.log.Info("tracker running")
	return nil
}

// Stop removes the hooks, waits for the hook thread and the flush worker to
// exit, then flushes whatever is still buffered.
func (s *Service) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrNotRunning
	}
	s.log.Info("stopping tracker")

	var errs error
	if err := s.input.Stop(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to stop input capture: %w", err))
	}
	s.setHookInstalled(false)

	s.flusher.Stop()

	if err := s.flusher.FlushOnce(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("final flush: %w", err))
	}

	s.state.Store(int32(StateStopped))
	s.log.Info("tracker stopped", zap.Error(errs))
	return errs
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// IsRunning reports whether input is being captured.
func (s *Service) IsRunning() bool {
	return s.State() == StateRunning
}

// HookError returns why the last Start left the service inert, if it did.
func (s *Service) HookError() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.hookErr
}

// StartedAt is when the service last entered Running.
func (s *Service) StartedAt() time.Time {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.startedAt
}

// Snapshot returns today's persisted totals merged with the live buffer.
func (s *Service) Snapshot() *Snapshot {
	return s.aggregator.snapshot(s.store, s.clock.Now(), s.log)
}

// ActiveAppName resolves the foreground application now.
func (s *Service) ActiveAppName() string {
	return s.resolver.ActiveAppName()
}

// ActiveApp resolves the foreground application with its friendly name.
func (s *Service) ActiveApp() (window.AppInfo, string) {
	app := s.resolver.ActiveApp()
	return app, s.resolver.FriendlyName(app.Name, app.ExePath)
}

// Flush writes the buffer now instead of waiting for the next tick.
func (s *Service) Flush() error {
	return s.flusher.FlushOnce()
}

// Screen returns the display metrics used for distance conversion.
func (s *Service) Screen() ScreenMetrics {
	return s.screen
}

// Aggregator exposes the live buffer, mainly for tests.
func (s *Service) Aggregator() *Aggregator {
	return s.aggregator
}

func (s *Service) setHookInstalled(ok bool) {
	if s.metrics != nil {
		s.metrics.SetHookInstalled(ok)
	}
}

