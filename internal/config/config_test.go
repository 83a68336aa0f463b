package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"flush too fast", func(c *Config) { c.Tracker.FlushInterval = time.Millisecond }, true},
		{"flush too slow", func(c *Config) { c.Tracker.FlushInterval = time.Hour }, true},
		{"zero notch", func(c *Config) { c.Tracker.ScrollNotch = 0 }, true},
		{"zero bucket", func(c *Config) { c.Tracker.BucketSize = 0 }, true},
		{"zero retention", func(c *Config) { c.Retention.Days = 0 }, true},
		{"keep forever", func(c *Config) { c.Retention.Days = -1 }, false},
		{"bad port", func(c *Config) { c.Web.Port = 70000 }, true},
		{"empty host", func(c *Config) { c.Web.Host = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"json format", func(c *Config) { c.Logging.Format = "json" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KEYTALLY_DB_PATH", "/tmp/x.db")
	t.Setenv("KEYTALLY_FLUSH_INTERVAL", "10")
	t.Setenv("KEYTALLY_APP_CHECK_INTERVAL_MS", "250")
	t.Setenv("KEYTALLY_RETENTION_DAYS", "-1")
	t.Setenv("KEYTALLY_WEB_ENABLED", "false")
	t.Setenv("KEYTALLY_WEB_PORT", "9000")
	t.Setenv("KEYTALLY_LOG_LEVEL", "debug")

	cfg := New()
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.Tracker.FlushInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Tracker.AppCheckInterval)
	assert.Equal(t, -1, cfg.Retention.Days)
	assert.False(t, cfg.Web.Enabled)
	assert.Equal(t, 9000, cfg.Web.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresOutOfRange(t *testing.T) {
	t.Setenv("KEYTALLY_FLUSH_INTERVAL", "9999")
	t.Setenv("KEYTALLY_WEB_PORT", "-4")

	cfg := New()
	assert.Equal(t, 5*time.Second, cfg.Tracker.FlushInterval)
	assert.Equal(t, 7878, cfg.Web.Port)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[tracker]
flush_interval = "15s"
bucket_size = 10

[web]
port = 8123
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Tracker.FlushInterval)
	assert.Equal(t, 10, cfg.Tracker.BucketSize)
	assert.Equal(t, 8123, cfg.Web.Port)
	assert.Equal(t, 120, cfg.Tracker.ScrollNotch)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Tracker, cfg.Tracker)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[tracker]\npoll_interval = 3\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	require.NoError(t, cfg.SetWebPort(9100))
	require.NoError(t, WriteFile(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, loaded.Web.Port)
	assert.Equal(t, cfg.Tracker.FlushInterval, loaded.Tracker.FlushInterval)
}
