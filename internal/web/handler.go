package web

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/keytally/keytally/internal/config"
	"github.com/keytally/keytally/internal/database"
	"github.com/keytally/keytally/internal/models"
	"github.com/keytally/keytally/internal/reporter"
	"github.com/keytally/keytally/internal/tracker"
	"github.com/keytally/keytally/pkg/utils"
	"github.com/keytally/keytally/pkg/window"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Tracker is the part of tracker.Service the API reads from.
type Tracker interface {
	Snapshot() *tracker.Snapshot
	ActiveApp() (window.AppInfo, string)
	State() tracker.State
	HookError() error
	StartedAt() time.Time
	Screen() tracker.ScreenMetrics
}

type Handler struct {
	config   *config.Config
	repo     *database.Repository
	reporter *reporter.Reporter
	tracker  Tracker
	metrics  http.Handler
	shutdown func()
	log      *zap.Logger
	clock    clock.Clock
}

func NewHandler(cfg *config.Config, repo *database.Repository, t Tracker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		config:   cfg,
		repo:     repo,
		reporter: reporter.New(cfg, repo),
		tracker:  t,
		log:      logger,
		clock:    clock.New(),
	}
}

// SetClock replaces the clock used to resolve periods.
func (h *Handler) SetClock(c clock.Clock) {
	h.clock = c
	h.reporter.SetClock(c)
}

// SetMetrics serves h at /metrics.
func (h *Handler) SetMetrics(m http.Handler) {
	h.metrics = m
}

// SetShutdown enables POST /api/shutdown. fn runs after the response is sent.
func (h *Handler) SetShutdown(fn func()) {
	h.shutdown = fn
}

func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/active-app", h.handleActiveApp)
	mux.HandleFunc("/api/report", h.handleReport)
	mux.HandleFunc("/api/heatmap", h.handleHeatmap)
	mux.HandleFunc("/api/mouse-heatmap", h.handleMouseHeatmap)
	mux.HandleFunc("/api/apps", h.handleApps)
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/hourly", h.handleHourly)
	mux.HandleFunc("/api/averages", h.handleAverages)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/shutdown", h.handleShutdown)

	mux.HandleFunc("/health", h.handleHealth)

	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
}

// snapshotResponse adds the flattened mouse heatmap, which has no JSON form
// as a map keyed by bucket.
type snapshotResponse struct {
	*tracker.Snapshot
	MouseHeatmap []models.BucketCount `json:"mouse_heatmap"`
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	snap := h.tracker.Snapshot()
	h.respondJSON(w, snapshotResponse{Snapshot: snap, MouseHeatmap: snap.MouseBuckets()})
}

func (h *Handler) handleActiveApp(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	app, friendly := h.tracker.ActiveApp()
	h.respondJSON(w, map[string]interface{}{
		"app_name":      app.Name,
		"friendly_name": friendly,
		"exe_path":      app.ExePath,
		"pid":           app.PID,
	})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	periodType := r.URL.Query().Get("period")
	if periodType == "" {
		periodType = "day"
	}
	if _, err := reporter.Period(periodType, h.clock.Now()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.reporter.GenerateReport(periodType)
	if err != nil {
		h.serverError(w, "failed to generate report", err)
		return
	}

	h.respondJSON(w, report)
}

func (h *Handler) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	start, end, ok := h.dateBounds(w, r)
	if !ok {
		return
	}

	heatmap, err := h.repo.HeatmapRange(start, end)
	if err != nil {
		h.serverError(w, "failed to query key heatmap", err)
		return
	}

	h.respondJSON(w, reporter.TopKeys(heatmap, queryInt(r, "limit", 0)))
}

func (h *Handler) handleMouseHeatmap(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	start, end, ok := h.dateBounds(w, r)
	if !ok {
		return
	}

	heatmap, err := h.repo.MouseHeatmapRange(start, end)
	if err != nil {
		h.serverError(w, "failed to query mouse heatmap", err)
		return
	}

	buckets := models.BucketCounts(heatmap)
	if limit := queryInt(r, "limit", 0); limit > 0 && len(buckets) > limit {
		buckets = buckets[:limit]
	}
	h.respondJSON(w, buckets)
}

func (h *Handler) handleApps(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	start, end, ok := h.dateBounds(w, r)
	if !ok {
		return
	}

	apps, err := h.repo.TopApps(queryInt(r, "limit", 10), start, end)
	if err != nil {
		h.serverError(w, "failed to query apps", err)
		return
	}

	var total int64
	for _, app := range apps {
		total += app.Keys
	}
	for i := range apps {
		apps[i].Percentage = utils.Percent(apps[i].Keys, total)
	}
	if apps == nil {
		apps = []models.AppSummary{}
	}

	h.respondJSON(w, apps)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	start, end, ok := h.dateBounds(w, r)
	if !ok {
		return
	}

	points, err := h.repo.DailyHistory(start, end, r.URL.Query().Get("app"))
	if err != nil {
		h.serverError(w, "failed to query history", err)
		return
	}
	if points == nil {
		points = []models.DailyPoint{}
	}

	h.respondJSON(w, points)
}

func (h *Handler) handleHourly(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = models.DateKey(h.clock.Now())
	} else if _, err := time.Parse(models.DateLayout, date); err != nil {
		http.Error(w, fmt.Sprintf("invalid date %q, want YYYY-MM-DD", date), http.StatusBadRequest)
		return
	}

	points, err := h.repo.HourlyStats(date, r.URL.Query().Get("app"))
	if err != nil {
		h.serverError(w, "failed to query hourly stats", err)
		return
	}
	if points == nil {
		points = []models.HourlyPoint{}
	}

	h.respondJSON(w, points)
}

func (h *Handler) handleAverages(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	app := r.URL.Query().Get("app")

	weekdays, err := h.repo.DayOfWeekAverages(app)
	if err != nil {
		h.serverError(w, "failed to query day of week averages", err)
		return
	}
	hours, err := h.repo.HourOfDayAverages(app)
	if err != nil {
		h.serverError(w, "failed to query hour of day averages", err)
		return
	}
	if weekdays == nil {
		weekdays = []models.WeekdayAverage{}
	}
	if hours == nil {
		hours = []models.HourAverage{}
	}

	h.respondJSON(w, map[string]interface{}{
		"day_of_week": weekdays,
		"hour_of_day": hours,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	state := h.tracker.State()
	screen := h.tracker.Screen()
	status := map[string]interface{}{
		"state":          state.String(),
		"running":        state == tracker.StateRunning,
		"flush_interval": h.config.Tracker.FlushInterval.String(),
		"database_path":  h.config.Database.Path,
		"retention_days": h.config.Retention.Days,
	}
	status["screen"] = map[string]interface{}{
		"width_px":  screen.WidthPx,
		"height_px": screen.HeightPx,
		"width_mm":  screen.WidthMM,
		"height_mm": screen.HeightMM,
		"px_per_mm": screen.PxPerMm,
		"estimated": screen.Fallback,
	}

	if err := h.tracker.HookError(); err != nil {
		status["hook_error"] = err.Error()
	}
	if started := h.tracker.StartedAt(); state == tracker.StateRunning && !started.IsZero() {
		status["started_at"] = started
		status["uptime"] = utils.FormatRoundedUnit(int64(h.clock.Now().Sub(started).Seconds()))
	}

	h.respondJSON(w, status)
}

func (h *Handler) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if !loopbackOrigin(r.Header.Get("Origin")) {
		h.log.Warn("rejected cross-origin shutdown", zap.String("origin", r.Header.Get("Origin")))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if h.shutdown == nil {
		http.Error(w, "shutdown not available", http.StatusNotImplemented)
		return
	}

	h.log.Info("shutdown requested over HTTP", zap.String("remote", r.RemoteAddr))
	h.respondJSONStatus(w, http.StatusAccepted, map[string]string{"status": "stopping"})
	go h.shutdown()
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, map[string]string{
		"status": "healthy",
		"time":   h.clock.Now().Format(time.RFC3339),
	})
}

// dateBounds reads ?period= (day, week, month, year, all; default day) or an
// explicit ?start=&end= pair of dates.
func (h *Handler) dateBounds(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	query := r.URL.Query()

	start, end := query.Get("start"), query.Get("end")
	if start != "" || end != "" {
		for _, d := range []string{start, end} {
			if d == "" {
				continue
			}
			if _, err := time.Parse(models.DateLayout, d); err != nil {
				http.Error(w, fmt.Sprintf("invalid date %q, want YYYY-MM-DD", d), http.StatusBadRequest)
				return "", "", false
			}
		}
		return start, end, true
	}

	periodType := query.Get("period")
	if periodType == "" {
		periodType = "day"
	}
	period, err := reporter.Period(periodType, h.clock.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}

	start, end = reporter.DateBounds(period)
	return start, end, true
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.log.Error(msg, zap.Error(err))
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), http.StatusInternalServerError)
}

func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}) {
	h.respondJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) respondJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// loopbackOrigin accepts requests without an Origin header (the CLI) and
// browser requests from pages served by this machine.
func loopbackOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
