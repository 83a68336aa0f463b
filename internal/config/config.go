package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig `toml:"database"`

	// Tracker configuration
	Tracker TrackerConfig `toml:"tracker"`

	// Retention configuration
	Retention RetentionConfig `toml:"retention"`

	// Daemon configuration
	Daemon DaemonConfig `toml:"daemon"`

	// Web server configuration
	Web WebConfig `toml:"web"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string `toml:"path"` // Path to SQLite database file
}

// TrackerConfig holds input aggregation configuration
type TrackerConfig struct {
	FlushInterval    time.Duration `toml:"flush_interval"`     // How often buffered stats are persisted
	MinFlushInterval time.Duration `toml:"-"`                  // Minimum allowed flush interval
	MaxFlushInterval time.Duration `toml:"-"`                  // Maximum allowed flush interval
	AppCheckInterval time.Duration `toml:"app_check_interval"` // Foreground app cache lifetime for mouse moves
	ScrollNotch      int           `toml:"scroll_notch"`       // Wheel delta of one logical notch
	BucketSize       int           `toml:"bucket_size"`        // Mouse heatmap grid cell, in pixels
}

// RetentionConfig controls how long per-day rows are kept
type RetentionConfig struct {
	Days int `toml:"days"` // -1 keeps everything
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string `toml:"pid_file"` // Path to PID file for daemon management
}

// WebConfig holds web server configuration
type WebConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"` // Host to bind web server to
	Port    int    `toml:"port"` // Port for web server
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // console or json
	Path   string `toml:"path"`   // Empty logs to stderr
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "", // Empty means use default <config dir>/keytally/keytally.db
		},
		Tracker: TrackerConfig{
			FlushInterval:    5 * time.Second,
			MinFlushInterval: 1 * time.Second,
			MaxFlushInterval: 300 * time.Second,
			AppCheckInterval: 500 * time.Millisecond,
			ScrollNotch:      120,
			BucketSize:       5,
		},
		Retention: RetentionConfig{
			Days: 365,
		},
		Daemon: DaemonConfig{
			PIDFile: filepath.Join(os.TempDir(), fmt.Sprintf("keytally-%d.pid", os.Getuid())),
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    7878,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Tracker.FlushInterval < c.Tracker.MinFlushInterval {
		return fmt.Errorf("flush interval (%v) cannot be less than minimum (%v)",
			c.Tracker.FlushInterval, c.Tracker.MinFlushInterval)
	}

	if c.Tracker.FlushInterval > c.Tracker.MaxFlushInterval {
		return fmt.Errorf("flush interval (%v) cannot be greater than maximum (%v)",
			c.Tracker.FlushInterval, c.Tracker.MaxFlushInterval)
	}

	if c.Tracker.AppCheckInterval <= 0 {
		return fmt.Errorf("app check interval must be positive")
	}

	if c.Tracker.ScrollNotch <= 0 {
		return fmt.Errorf("scroll notch must be positive, got %d", c.Tracker.ScrollNotch)
	}

	if c.Tracker.BucketSize <= 0 {
		return fmt.Errorf("bucket size must be positive, got %d", c.Tracker.BucketSize)
	}

	if c.Retention.Days == 0 || c.Retention.Days < -1 {
		return fmt.Errorf("retention days must be positive or -1, got %d", c.Retention.Days)
	}

	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	return nil
}

// SetFlushInterval sets the flush interval with validation
func (c *Config) SetFlushInterval(interval time.Duration) error {
	if interval < c.Tracker.MinFlushInterval {
		return fmt.Errorf("flush interval cannot be less than %v", c.Tracker.MinFlushInterval)
	}
	if interval > c.Tracker.MaxFlushInterval {
		return fmt.Errorf("flush interval cannot be greater than %v", c.Tracker.MaxFlushInterval)
	}
	c.Tracker.FlushInterval = interval
	return nil
}

// SetWebPort sets the web server port with validation
func (c *Config) SetWebPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c.Web.Port = port
	return nil
}

// SetRetentionDays sets how many days of history are kept. -1 disables purging.
func (c *Config) SetRetentionDays(days int) error {
	if days == 0 || days < -1 {
		return fmt.Errorf("retention days must be positive or -1, got %d", days)
	}
	c.Retention.Days = days
	return nil
}

// RetentionCutoff returns the first date key that is kept relative to now,
// or "" when retention is disabled.
func (c *Config) RetentionCutoff(now time.Time) string {
	if c.Retention.Days < 0 {
		return ""
	}
	y, m, d := now.Date()
	return time.Date(y, m, d-c.Retention.Days+1, 0, 0, 0, 0, now.Location()).Format("2006-01-02")
}

// WebAddr returns host:port for the HTTP listener.
func (c *Config) WebAddr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Database:
    Path: %s
  Tracker:
    Flush Interval: %v
    App Check Interval: %v
    Scroll Notch: %d
    Bucket Size: %d
  Retention:
    Days: %d
  Daemon:
    PID File: %s
  Web:
    Enabled: %v
    Host: %s
    Port: %d
  Logging:
    Level: %s
    Format: %s
    Path: %s`,
		c.Database.Path,
		c.Tracker.FlushInterval,
		c.Tracker.AppCheckInterval,
		c.Tracker.ScrollNotch,
		c.Tracker.BucketSize,
		c.Retention.Days,
		c.Daemon.PIDFile,
		c.Web.Enabled,
		c.Web.Host,
		c.Web.Port,
		c.Logging.Level,
		c.Logging.Format,
		c.Logging.Path,
	)
}
