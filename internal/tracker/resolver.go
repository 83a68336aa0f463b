package tracker

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/keytally/keytally/internal/models"
	"github.com/keytally/keytally/pkg/window"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	pidCacheSize      = 256
	pidCacheTTL       = 10 * time.Second
	friendlyCacheSize = 512
)

type pidEntry struct {
	app window.AppInfo
	at  time.Time
}

// Resolver finds the application that owns the foreground window. Lookups
// never fail: anything that goes wrong yields window.UnknownApp.
//
// ActiveApp is cheap enough to call on every key press: the foreground pid is
// queried each time but pid to process resolution is cached briefly.
// CachedAppName is for mouse moves and re-resolves at most once per interval.
type Resolver struct {
	detector window.Detector
	clock    clock.Clock
	interval time.Duration

	pids     *lru.Cache[uint32, pidEntry]
	friendly *lru.Cache[string, string]
	failures atomic.Uint64

	mu       sync.Mutex
	current  window.AppInfo
	checked  time.Time
	hasCheck bool
	known    map[string]bool
	pending  map[string]string // app name -> exe path, not yet persisted
}

// NewResolver creates a resolver backed by detector.
func NewResolver(detector window.Detector, interval time.Duration, clk clock.Clock) *Resolver {
	if clk == nil {
		clk = clock.New()
	}
	pids, _ := lru.New[uint32, pidEntry](pidCacheSize)
	friendly, _ := lru.New[string, string](friendlyCacheSize)

	return &Resolver{
		detector: detector,
		clock:    clk,
		interval: interval,
		pids:     pids,
		friendly: friendly,
		current:  window.AppInfo{Name: window.UnknownApp},
		known:    make(map[string]bool),
		pending:  make(map[string]string),
	}
}

// ActiveApp resolves the foreground application now and refreshes the
// throttled cache with the result.
func (r *Resolver) ActiveApp() window.AppInfo {
	app := r.lookup()

	r.mu.Lock()
	r.current, r.checked, r.hasCheck = app, r.clock.Now(), true
	r.remember(app)
	r.mu.Unlock()

	return app
}

// ActiveAppName is the name part of ActiveApp.
func (r *Resolver) ActiveAppName() string {
	return r.ActiveApp().Name
}

// CachedAppName returns the last resolved application, resolving again only
// if the previous answer is older than the check interval.
func (r *Resolver) CachedAppName() string {
	r.mu.Lock()
	fresh := r.hasCheck && r.clock.Since(r.checked) < r.interval
	name := r.current.Name
	r.mu.Unlock()

	if fresh {
		return name
	}
	return r.ActiveAppName()
}

// Failures counts lookups that were mapped to window.UnknownApp.
func (r *Resolver) Failures() uint64 {
	return r.failures.Load()
}

func (r *Resolver) lookup() window.AppInfo {
	pid, err := r.detector.ForegroundPID()
	if err != nil || pid == 0 {
		r.failures.Add(1)
		return window.AppInfo{Name: window.UnknownApp}
	}

	now := r.clock.Now()
	if e, ok := r.pids.Get(pid); ok && now.Sub(e.at) < pidCacheTTL {
		return e.app
	}

	app := window.AppInfo{Name: window.UnknownApp, PID: pid}
	info, err := r.detector.ProcessInfo(pid)
	if err != nil || info == nil || info.Name == "" {
		r.failures.Add(1)
	} else {
		app = *info
	}

	r.pids.Add(pid, pidEntry{app: app, at: now})
	return app
}

// remember queues app for metadata persistence the first time it is seen.
// Caller holds r.mu.
func (r *Resolver) remember(app window.AppInfo) {
	if app.Name == window.UnknownApp || r.known[app.Name] {
		return
	}
	r.known[app.Name] = true
	r.pending[app.Name] = app.ExePath
}

// TakeDiscovered returns metadata for every application first seen since the
// previous call, with friendly names resolved. It may read executable files
// and must not be called on the input path.
func (r *Resolver) TakeDiscovered() []models.AppMetadata {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]string)
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	meta := make([]models.AppMetadata, 0, len(pending))
	for name, exe := range pending {
		meta = append(meta, models.AppMetadata{
			AppName:      name,
			FriendlyName: r.FriendlyName(name, exe),
			ExePath:      exe,
		})
	}
	return meta
}

// Requeue puts metadata back after a failed flush.
func (r *Resolver) Requeue(meta []models.AppMetadata) {
	if len(meta) == 0 {
		return
	}
	r.mu.Lock()
	for _, m := range meta {
		if _, ok := r.pending[m.AppName]; !ok {
			r.pending[m.AppName] = m.ExePath
		}
	}
	r.mu.Unlock()
}

// FriendlyName returns the executable's description, or a name derived from
// the file name when it has none.
func (r *Resolver) FriendlyName(name, exePath string) string {
	key := exePath
	if key == "" {
		key = name
	}
	if cached, ok := r.friendly.Get(key); ok {
		return cached
	}

	friendly := ""
	if exePath != "" {
		if desc, err := r.detector.DescribeExecutable(exePath); err == nil {
			friendly = desc
		}
	}
	if friendly == "" {
		friendly = FallbackFriendlyName(name)
	}

	r.friendly.Add(key, friendly)
	return friendly
}

// FallbackFriendlyName strips a trailing ".exe" and capitalises the first
// letter: "chrome.exe" -> "Chrome".
func FallbackFriendlyName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if strings.EqualFold(filepath.Ext(base), ".exe") {
		base = base[:len(base)-4]
	}
	if base == "" || base == "." || base == "/" {
		return window.UnknownApp
	}

	first, size := utf8.DecodeRuneInString(base)
	return string(unicode.ToUpper(first)) + strings.ToLower(base[size:])
}
