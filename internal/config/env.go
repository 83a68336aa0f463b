package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables
// Environment variables override default and file values
func LoadFromEnv(cfg *Config) {
	// Database configuration
	if dbPath := os.Getenv("KEYTALLY_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	// Tracker configuration
	if flushInterval := os.Getenv("KEYTALLY_FLUSH_INTERVAL"); flushInterval != "" {
		if seconds, err := strconv.Atoi(flushInterval); err == nil && seconds > 0 {
			interval := time.Duration(seconds) * time.Second
			if interval >= cfg.Tracker.MinFlushInterval && interval <= cfg.Tracker.MaxFlushInterval {
				cfg.Tracker.FlushInterval = interval
			}
		}
	}

	if appCheck := os.Getenv("KEYTALLY_APP_CHECK_INTERVAL_MS"); appCheck != "" {
		if ms, err := strconv.Atoi(appCheck); err == nil && ms > 0 {
			cfg.Tracker.AppCheckInterval = time.Duration(ms) * time.Millisecond
		}
	}

	// Retention configuration
	if days := os.Getenv("KEYTALLY_RETENTION_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil && (n > 0 || n == -1) {
			cfg.Retention.Days = n
		}
	}

	// Daemon configuration
	if pidFile := os.Getenv("KEYTALLY_PID_FILE"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}

	// Web configuration
	if enabled := os.Getenv("KEYTALLY_WEB_ENABLED"); enabled != "" {
		if val, err := strconv.ParseBool(enabled); err == nil {
			cfg.Web.Enabled = val
		}
	}

	if webHost := os.Getenv("KEYTALLY_WEB_HOST"); webHost != "" {
		cfg.Web.Host = webHost
	}

	if webPort := os.Getenv("KEYTALLY_WEB_PORT"); webPort != "" {
		if port, err := strconv.Atoi(webPort); err == nil && port > 0 && port <= 65535 {
			cfg.Web.Port = port
		}
	}

	// Logging configuration
	if level := os.Getenv("KEYTALLY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if format := os.Getenv("KEYTALLY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if path := os.Getenv("KEYTALLY_LOG_PATH"); path != "" {
		cfg.Logging.Path = path
	}
}

// New creates a new Config with default values and loads from environment
func New() *Config {
	cfg := Default()
	LoadFromEnv(cfg)
	return cfg
}

// Load builds a Config from defaults, the TOML file at path (if it exists) and
// the environment, in that order of precedence. An empty path selects
// DefaultFilePath.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultFilePath()
	}
	if err := LoadFile(path, cfg); err != nil {
		return nil, err
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
