package models

import "time"

// DateLayout is the calendar-date key used by every per-day table.
const DateLayout = "2006-01-02"

// DateKey formats t as a per-day row key in t's own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// DailyStats holds the monotonically accumulating totals for one calendar date.
type DailyStats struct {
	Date            string  `gorm:"primaryKey;size:10" json:"date"`
	KeyCount        int64   `gorm:"not null;default:0" json:"key_count"`
	MouseClickCount int64   `gorm:"not null;default:0" json:"mouse_click_count"`
	MouseDistance   float64 `gorm:"not null;default:0" json:"mouse_distance"` // meters
	ScrollDistance  float64 `gorm:"not null;default:0" json:"scroll_distance"`
}

func (DailyStats) TableName() string { return "daily_stats" }

// AppStats holds per-application totals for one calendar date.
type AppStats struct {
	Date     string  `gorm:"primaryKey;size:10" json:"date"`
	AppName  string  `gorm:"primaryKey" json:"app_name"`
	KeyCount int64   `gorm:"not null;default:0" json:"key_count"`
	Clicks   int64   `gorm:"not null;default:0" json:"clicks"`
	Scrolls  float64 `gorm:"not null;default:0" json:"scrolls"`
	Distance float64 `gorm:"not null;default:0" json:"distance"`
}

func (AppStats) TableName() string { return "app_stats" }

// HourlyAppStats breaks AppStats down by local hour of day.
type HourlyAppStats struct {
	Date     string  `gorm:"primaryKey;size:10" json:"date"`
	Hour     int     `gorm:"primaryKey;autoIncrement:false" json:"hour"`
	AppName  string  `gorm:"primaryKey" json:"app_name"`
	KeyCount int64   `gorm:"not null;default:0" json:"key_count"`
	Clicks   int64   `gorm:"not null;default:0" json:"clicks"`
	Scrolls  float64 `gorm:"not null;default:0" json:"scrolls"`
	Distance float64 `gorm:"not null;default:0" json:"distance"`
}

func (HourlyAppStats) TableName() string { return "hourly_app_stats" }

// KeyHeatmap counts presses of one scan code on one date.
type KeyHeatmap struct {
	Date     string `gorm:"primaryKey;size:10" json:"date"`
	ScanCode uint32 `gorm:"primaryKey;autoIncrement:false;column:key_code" json:"key_code"`
	Count    int64  `gorm:"not null;default:0" json:"count"`
}

func (KeyHeatmap) TableName() string { return "heatmap_data" }

// MouseHeatmap counts clicks inside one pixel bucket on one date.
type MouseHeatmap struct {
	Date  string `gorm:"primaryKey;size:10" json:"date"`
	X     int32  `gorm:"primaryKey;autoIncrement:false" json:"x"`
	Y     int32  `gorm:"primaryKey;autoIncrement:false" json:"y"`
	Count int64  `gorm:"not null;default:0" json:"count"`
}

func (MouseHeatmap) TableName() string { return "mouse_heatmap_data" }

// AppMetadata maps a process short name to its display name and executable.
type AppMetadata struct {
	AppName      string    `gorm:"primaryKey" json:"app_name"`
	FriendlyName string    `gorm:"not null;default:''" json:"friendly_name"`
	ExePath      string    `gorm:"not null;default:''" json:"exe_path"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AppMetadata) TableName() string { return "app_metadata" }
