package database

import (
	"time"

	"github.com/keytally/keytally/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles all database operations for usage statistics.
// Every upsert is additive: calling it twice with the same key adds both deltas.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// accumulate builds an ON CONFLICT clause that adds the incoming value of each
// column to the stored one.
func accumulate(keys []string, columns ...string) clause.OnConflict {
	conflict := clause.OnConflict{}
	for _, key := range keys {
		conflict.Columns = append(conflict.Columns, clause.Column{Name: key})
	}
	set := make(map[string]interface{}, len(columns))
	for _, col := range columns {
		set[col] = gorm.Expr(col + " + excluded." + col)
	}
	conflict.DoUpdates = clause.Assignments(set)
	return conflict
}

// UpsertDaily adds the given deltas to the daily totals row for date.
func (r *Repository) UpsertDaily(date string, keys, clicks int64, distance, scroll float64) error {
	row := models.DailyStats{
		Date:            date,
		KeyCount:        keys,
		MouseClickCount: clicks,
		MouseDistance:   distance,
		ScrollDistance:  scroll,
	}
	result := r.db.Clauses(accumulate([]string{"date"},
		"key_count", "mouse_click_count", "mouse_distance", "scroll_distance",
	)).Create(&row)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert daily stats")
	}
	return nil
}

// UpsertApp adds the given deltas to the (date, app) row.
func (r *Repository) UpsertApp(date, app string, delta models.AppDelta) error {
	row := models.AppStats{
		Date:     date,
		AppName:  app,
		KeyCount: delta.Keys,
		Clicks:   delta.Clicks,
		Scrolls:  delta.Scrolls,
		Distance: delta.Distance,
	}
	result := r.db.Clauses(accumulate([]string{"date", "app_name"},
		"key_count", "clicks", "scrolls", "distance",
	)).Create(&row)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert app stats")
	}
	return nil
}

// UpsertHourlyApp adds the given deltas to the (date, hour, app) row.
func (r *Repository) UpsertHourlyApp(date string, hour int, app string, delta models.AppDelta) error {
	row := models.HourlyAppStats{
		Date:     date,
		Hour:     hour,
		AppName:  app,
		KeyCount: delta.Keys,
		Clicks:   delta.Clicks,
		Scrolls:  delta.Scrolls,
		Distance: delta.Distance,
	}
	result := r.db.Clauses(accumulate([]string{"date", "hour", "app_name"},
		"key_count", "clicks", "scrolls", "distance",
	)).Create(&row)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert hourly app stats")
	}
	return nil
}

// UpsertHeatmap adds count presses of scanCode on date.
func (r *Repository) UpsertHeatmap(date string, scanCode uint32, count int64) error {
	row := models.KeyHeatmap{Date: date, ScanCode: scanCode, Count: count}
	result := r.db.Clauses(accumulate([]string{"date", "key_code"}, "count")).Create(&row)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert key heatmap")
	}
	return nil
}

// UpsertMouseHeatmap adds count clicks in bucket (x, y) on date.
func (r *Repository) UpsertMouseHeatmap(date string, x, y int32, count int64) error {
	row := models.MouseHeatmap{Date: date, X: x, Y: y, Count: count}
	result := r.db.Clauses(accumulate([]string{"date", "x", "y"}, "count")).Create(&row)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert mouse heatmap")
	}
	return nil
}

// UpsertAppMetadata inserts or replaces the display metadata of an app.
func (r *Repository) UpsertAppMetadata(meta models.AppMetadata) error {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "app_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"friendly_name", "exe_path", "updated_at"}),
	}).Create(&meta)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert app metadata")
	}
	return nil
}

// ApplyFlush writes one flush cycle inside a single transaction, so a failure
// leaves storage exactly as it was before the call.
func (r *Repository) ApplyFlush(batch *models.FlushBatch) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		txRepo := &Repository{db: &DB{tx}}

		if batch.Keys != 0 || batch.Clicks != 0 || batch.Distance != 0 || batch.Scroll != 0 {
			if err := txRepo.UpsertDaily(batch.Date, batch.Keys, batch.Clicks, batch.Distance, batch.Scroll); err != nil {
				return err
			}
		}

		for app, delta := range batch.Apps {
			if delta.IsZero() {
				continue
			}
			if err := txRepo.UpsertApp(batch.Date, app, delta); err != nil {
				return err
			}
			if err := txRepo.UpsertHourlyApp(batch.Date, batch.Hour, app, delta); err != nil {
				return err
			}
		}

		for code, count := range batch.KeyCodes {
			if err := txRepo.UpsertHeatmap(batch.Date, code, count); err != nil {
				return err
			}
		}

		for bucket, count := range batch.Buckets {
			if err := txRepo.UpsertMouseHeatmap(batch.Date, bucket.X, bucket.Y, count); err != nil {
				return err
			}
		}

		for _, meta := range batch.Metadata {
			if err := txRepo.UpsertAppMetadata(meta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to apply flush batch")
	}
	return nil
}

// DailyTotals returns the persisted totals row for date, or nil if none exists.
func (r *Repository) DailyTotals(date string) (*models.DailyStats, error) {
	var row models.DailyStats
	result := r.db.Where("date = ?", date).Limit(1).Find(&row)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query daily stats")
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &row, nil
}

// TodayTotals returns today's persisted totals row, or nil if none exists.
func (r *Repository) TodayTotals() (*models.DailyStats, error) {
	return r.DailyTotals(models.DateKey(time.Now()))
}

// withDateRange restricts q to start <= column <= end. An empty bound is open.
func withDateRange(q *gorm.DB, column, start, end string) *gorm.DB {
	if start != "" {
		q = q.Where(column+" >= ?", start)
	}
	if end != "" {
		q = q.Where(column+" <= ?", end)
	}
	return q
}

// HeatmapRange sums key presses per scan code over [start, end].
func (r *Repository) HeatmapRange(start, end string) (map[uint32]int64, error) {
	var rows []models.KeyCount
	q := r.db.Model(&models.KeyHeatmap{}).Select("key_code AS scan_code, SUM(count) AS count")
	result := withDateRange(q, "date", start, end).Group("key_code").Scan(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query key heatmap")
	}

	heatmap := make(map[uint32]int64, len(rows))
	for _, row := range rows {
		heatmap[row.ScanCode] = row.Count
	}
	return heatmap, nil
}

// MouseHeatmapRange sums clicks per bucket over [start, end].
func (r *Repository) MouseHeatmapRange(start, end string) (map[models.Bucket]int64, error) {
	var rows []models.BucketCount
	q := r.db.Model(&models.MouseHeatmap{}).Select("x, y, SUM(count) AS count")
	result := withDateRange(q, "date", start, end).Group("x, y").Scan(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query mouse heatmap")
	}

	heatmap := make(map[models.Bucket]int64, len(rows))
	for _, row := range rows {
		heatmap[models.Bucket{X: row.X, Y: row.Y}] = row.Count
	}
	return heatmap, nil
}

// StatsRange sums daily totals over [start, end]. Empty bounds select all time.
func (r *Repository) StatsRange(start, end string) (models.Totals, error) {
	var totals models.Totals
	q := r.db.Model(&models.DailyStats{}).Select(`
		COALESCE(SUM(key_count), 0) AS keys,
		COALESCE(SUM(mouse_click_count), 0) AS clicks,
		COALESCE(SUM(mouse_distance), 0) AS distance,
		COALESCE(SUM(scroll_distance), 0) AS scroll,
		COALESCE(MIN(date), '') AS first_date,
		COALESCE(MAX(date), '') AS last_date,
		COUNT(DISTINCT date) AS days_tracked`)
	result := withDateRange(q, "date", start, end).Scan(&totals)
	if result.Error != nil {
		return models.Totals{}, errors.Wrap(result.Error, "failed to query stats range")
	}
	return totals, nil
}

// AllTimeStats sums every daily row.
func (r *Repository) AllTimeStats() (models.Totals, error) {
	return r.StatsRange("", "")
}

// AppStatsSummary returns per-app totals over [start, end], most keys first.
func (r *Repository) AppStatsSummary(limit int, start, end string) ([]models.AppSummary, error) {
	var summaries []models.AppSummary

	q := r.db.Table("app_stats AS s").
		Select(`s.app_name AS app_name,
			COALESCE(m.friendly_name, '') AS friendly_name,
			SUM(s.key_count) AS keys,
			SUM(s.clicks) AS clicks,
			SUM(s.scrolls) AS scrolls,
			SUM(s.distance) AS distance`).
		Joins("LEFT JOIN app_metadata m ON m.app_name = s.app_name")
	q = withDateRange(q, "s.date", start, end).
		Group("s.app_name, m.friendly_name").
		Order("keys DESC, s.app_name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if result := q.Scan(&summaries); result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query app summary")
	}
	return summaries, nil
}

// TopApps returns the limit apps with the most key presses over [start, end].
func (r *Repository) TopApps(limit int, start, end string) ([]models.AppSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.AppStatsSummary(limit, start, end)
}

// DailyHistory returns one point per date over [start, end]. When app is not
// empty the points come from that app's rows only.
func (r *Repository) DailyHistory(start, end, app string) ([]models.DailyPoint, error) {
	var points []models.DailyPoint

	var q *gorm.DB
	if app != "" {
		q = r.db.Model(&models.AppStats{}).
			Select(`date,
				SUM(key_count) AS keys,
				SUM(clicks) AS clicks,
				SUM(distance) AS distance,
				SUM(scrolls) AS scroll`).
			Where("app_name = ?", app).
			Group("date")
	} else {
		q = r.db.Model(&models.DailyStats{}).
			Select(`date,
				key_count AS keys,
				mouse_click_count AS clicks,
				mouse_distance AS distance,
				scroll_distance AS scroll`)
	}

	result := withDateRange(q, "date", start, end).Order("date ASC").Scan(&points)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query daily history")
	}
	return points, nil
}

// HourlyStats returns per-hour key and click sums for date, optionally for one app.
func (r *Repository) HourlyStats(date, app string) ([]models.HourlyPoint, error) {
	var points []models.HourlyPoint

	q := r.db.Model(&models.HourlyAppStats{}).
		Select("hour, SUM(key_count) AS keys, SUM(clicks) AS clicks").
		Where("date = ?", date)
	if app != "" {
		q = q.Where("app_name = ?", app)
	}

	if result := q.Group("hour").Order("hour ASC").Scan(&points); result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query hourly stats")
	}
	return points, nil
}

// DayOfWeekAverages averages each weekday's recorded days. Days without a row
// are not counted as zero.
func (r *Repository) DayOfWeekAverages(app string) ([]models.WeekdayAverage, error) {
	var points []models.WeekdayAverage

	var q *gorm.DB
	if app != "" {
		q = r.db.Model(&models.AppStats{}).
			Select("CAST(strftime('%w', date) AS INTEGER) AS weekday, AVG(key_count) AS keys, AVG(clicks) AS clicks").
			Where("app_name = ?", app)
	} else {
		q = r.db.Model(&models.DailyStats{}).
			Select("CAST(strftime('%w', date) AS INTEGER) AS weekday, AVG(key_count) AS keys, AVG(mouse_click_count) AS clicks")
	}

	if result := q.Group("weekday").Order("weekday ASC").Scan(&points); result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query day of week averages")
	}
	return points, nil
}

// HourOfDayAverages averages each hour of day over the dates that have
// activity in that hour. Across all apps the hour's rows are summed per date
// before averaging.
func (r *Repository) HourOfDayAverages(app string) ([]models.HourAverage, error) {
	var points []models.HourAverage

	var result *gorm.DB
	if app != "" {
		result = r.db.Model(&models.HourlyAppStats{}).
			Select("hour, AVG(key_count) AS keys, AVG(clicks) AS clicks").
			Where("app_name = ?", app).
			Group("hour").
			Order("hour ASC").
			Scan(&points)
	} else {
		sums := r.db.Model(&models.HourlyAppStats{}).
			Select("date, hour, SUM(key_count) AS total_keys, SUM(clicks) AS total_clicks").
			Group("date, hour")
		result = r.db.Table("(?) AS hourly_sums", sums).
			Select("hour, AVG(total_keys) AS keys, AVG(total_clicks) AS clicks").
			Group("hour").
			Order("hour ASC").
			Scan(&points)
	}

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query hour of day averages")
	}
	return points, nil
}

// AllApps lists every app name that has ever been recorded.
func (r *Repository) AllApps() ([]string, error) {
	var names []string
	result := r.db.Model(&models.AppStats{}).Distinct("app_name").Order("app_name").Pluck("app_name", &names)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to list apps")
	}
	return names, nil
}

// AppMetadata returns the stored metadata keyed by app name.
func (r *Repository) AppMetadata() (map[string]models.AppMetadata, error) {
	var rows []models.AppMetadata
	if result := r.db.Find(&rows); result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query app metadata")
	}

	meta := make(map[string]models.AppMetadata, len(rows))
	for _, row := range rows {
		meta[row.AppName] = row
	}
	return meta, nil
}

// PurgeBefore deletes every per-day row dated strictly before date.
func (r *Repository) PurgeBefore(date string) (int64, error) {
	var removed int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&models.DailyStats{},
			&models.AppStats{},
			&models.HourlyAppStats{},
			&models.KeyHeatmap{},
			&models.MouseHeatmap{},
		} {
			result := tx.Where("date < ?", date).Delete(model)
			if result.Error != nil {
				return result.Error
			}
			removed += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge old stats")
	}
	return removed, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// Clear removes all usage statistics from the database
func (r *Repository) Clear() error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{
			"daily_stats", "app_stats", "hourly_app_stats", "heatmap_data", "mouse_heatmap_data",
		} {
			if result := tx.Exec("DELETE FROM " + table); result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to clear usage stats")
	}
	return nil
}
