package hook

import (
	"sync"

	"go.uber.org/zap"
)

// Bridge owns the global keyboard and mouse hooks. The hooks live on a
// dedicated OS thread that is created by Start and joined by Stop; hook
// handles are never touched from any other thread.
type Bridge struct {
	log      *zap.Logger
	counters Counters

	mu      sync.Mutex
	running bool
	state   bridgeState

	// install and remove default to the platform start and stop.
	install func(*Dispatcher) error
	remove  func() error
}

// NewBridge returns an idle bridge.
func NewBridge(logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{log: logger.Named("hook")}
	b.install = b.start
	b.remove = b.stop
	return b
}

// Start installs both hooks and begins delivering events to sink. It returns
// once the hooks are installed, or with an error wrapping ErrInstallFailed or
// ErrUnsupported when they cannot be.
func (b *Bridge) Start(sink Sink) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return ErrAlreadyRunning
	}
	if err := b.install(NewDispatcher(sink, &b.counters)); err != nil {
		b.log.Warn("input hooks not installed", zap.Error(err))
		return err
	}
	b.running = true
	b.log.Info("input hooks installed")
	return nil
}

// Stop signals the hook thread to leave its message loop and waits until it
// has removed the hooks and exited. Stopping an idle bridge is a no-op.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}
	if err := b.remove(); err != nil {
		// The hook thread did not get the quit signal and still owns the hooks.
		b.log.Warn("input hooks still installed", zap.Error(err))
		return err
	}
	b.running = false
	b.log.Info("input hooks removed")
	return nil
}

// Running reports whether the hooks are installed.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Counters returns the callback health counters, valid across restarts.
func (b *Bridge) Counters() *Counters {
	return &b.counters
}
