package tracker

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/keytally/keytally/internal/database"
	"github.com/keytally/keytally/internal/models"
	"github.com/keytally/keytally/pkg/hook"
	"github.com/keytally/keytally/pkg/window"

	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	mu           sync.Mutex
	pid          uint32
	pidErr       error
	apps         map[uint32]window.AppInfo
	descriptions map[string]string
	display      *window.DisplayInfo
	pidCalls     int
	infoCalls    int
}

func newFakeDetector(app string) *fakeDetector {
	return &fakeDetector{
		pid: 100,
		apps: map[uint32]window.AppInfo{
			100: {Name: app, ExePath: `C:\Program Files\` + app, PID: 100},
		},
		descriptions: map[string]string{},
		display:      &window.DisplayInfo{WidthMM: 500, HeightMM: 300, WidthPx: 1000, HeightPx: 600},
	}
}

func (f *fakeDetector) setForeground(pid uint32, app window.AppInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pid = pid
	f.apps[pid] = app
}

func (f *fakeDetector) ForegroundPID() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pidCalls++
	return f.pid, f.pidErr
}

func (f *fakeDetector) ProcessInfo(pid uint32) (*window.AppInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++
	app, ok := f.apps[pid]
	if !ok {
		return nil, errors.New("access denied")
	}
	return &app, nil
}

func (f *fakeDetector) DescribeExecutable(exePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.descriptions[exePath]; ok {
		return d, nil
	}
	return "", errors.New("no version resource")
}

func (f *fakeDetector) GetDisplayInfo() (*window.DisplayInfo, error) {
	return f.display, nil
}

func (f *fakeDetector) GetPlatform() string { return "fake" }

func (f *fakeDetector) Close() error { return nil }

func (f *fakeDetector) calls() (pid, info int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pidCalls, f.infoCalls
}

// fakeHook stands in for hook.Bridge. Fire feeds raw callbacks through a
// real dispatcher.
type fakeHook struct {
	startErr   error
	dispatcher *hook.Dispatcher
	counters   hook.Counters
	stopped    bool
}

func (h *fakeHook) Start(sink hook.Sink) error {
	if h.startErr != nil {
		return h.startErr
	}
	h.dispatcher = hook.NewDispatcher(sink, &h.counters)
	h.stopped = false
	return nil
}

func (h *fakeHook) Stop() error {
	h.stopped = true
	return nil
}

func (h *fakeHook) Counters() *hook.Counters { return &h.counters }

func (h *fakeHook) key(scanCode uint32) {
	h.dispatcher.Keyboard(hook.HCAction, hook.WMKeyDown, &hook.KeyboardInfo{ScanCode: scanCode})
}

func (h *fakeHook) mouse(msg uintptr, x, y int32) {
	h.dispatcher.Mouse(hook.HCAction, msg, &hook.MouseInfo{Pt: hook.Point{X: x, Y: y}})
}

// flakyStore fails ApplyFlush while failing is set.
type flakyStore struct {
	*database.Repository
	mu          sync.Mutex
	failing     bool
	readFailing bool
	applies     int
}

func (s *flakyStore) ApplyFlush(batch *models.FlushBatch) error {
	s.mu.Lock()
	s.applies++
	failing := s.failing
	s.mu.Unlock()

	if failing {
		return errors.New("database is locked")
	}
	return s.Repository.ApplyFlush(batch)
}

func (s *flakyStore) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func (s *flakyStore) DailyTotals(date string) (*models.DailyStats, error) {
	s.mu.Lock()
	failing := s.readFailing
	s.mu.Unlock()

	if failing {
		return nil, errors.New("disk I/O error")
	}
	return s.Repository.DailyTotals(date)
}

func (s *flakyStore) setReadFailing(v bool) {
	s.mu.Lock()
	s.readFailing = v
	s.mu.Unlock()
}

func (s *flakyStore) applyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applies
}

func newRepo(t *testing.T) *database.Repository {
	t.Helper()

	db, err := database.Connect(filepath.Join(t.TempDir(), "keytally.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { _ = db.Close() })

	return database.NewRepository(db)
}

// staticApps attributes everything to one application.
type staticApps string

func (s staticApps) ActiveAppName() string { return string(s) }
func (s staticApps) CachedAppName() string { return string(s) }
