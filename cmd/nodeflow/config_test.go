package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir and clears every NODEFLOW_ variable.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"NODEFLOW_DB_PATH", "NODEFLOW_LOG_LEVEL", "NODEFLOW_SESSION_TTL",
		"NODEFLOW_SWEEP_SCHEDULE", "NODEFLOW_REDIS_URL", "NODEFLOW_CACHE_TTL",
		"NODEFLOW_COMPACT_THRESHOLD", "NODEFLOW_REDACTION_MARKER",
	} {
		t.Setenv(key, "")
	}
	return home
}

func writeSettings(t *testing.T, home string, body string) {
	t.Helper()
	dir := filepath.Join(home, ".nodeflow")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(body), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".nodeflow", "nodeflow.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 40*time.Minute, cfg.SessionTTL.Duration)
	assert.Equal(t, "@every 5m", cfg.SweepSchedule)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 2, cfg.CompactThreshold)
	assert.NoError(t, cfg.validate())
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	home := isolate(t)
	writeSettings(t, home, `{"log_level":"debug","session_ttl":"10m","redis_url":"redis://cache:6379/0"}`)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL.Duration)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	// Untouched keys keep their defaults.
	assert.Equal(t, "@every 5m", cfg.SweepSchedule)
}

func TestLoadConfig_EnvOverridesSettings(t *testing.T) {
	home := isolate(t)
	writeSettings(t, home, `{"log_level":"debug","compact_threshold":5}`)
	t.Setenv("NODEFLOW_LOG_LEVEL", "warn")
	t.Setenv("NODEFLOW_COMPACT_THRESHOLD", "3")
	t.Setenv("NODEFLOW_SESSION_TTL", "1h")
	t.Setenv("NODEFLOW_METRICS_ADDR", "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 3, cfg.CompactThreshold)
	assert.Equal(t, time.Hour, cfg.SessionTTL.Duration)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadConfig_BadValues(t *testing.T) {
	t.Run("settings file", func(t *testing.T) {
		home := isolate(t)
		writeSettings(t, home, `{"session_ttl":"forever"}`)
		_, err := loadConfig()
		assert.Error(t, err)
	})

	t.Run("env duration", func(t *testing.T) {
		isolate(t)
		t.Setenv("NODEFLOW_SESSION_TTL", "soon")
		_, err := loadConfig()
		assert.ErrorContains(t, err, "NODEFLOW_SESSION_TTL")
	})

	t.Run("env threshold", func(t *testing.T) {
		isolate(t)
		t.Setenv("NODEFLOW_COMPACT_THRESHOLD", "two")
		_, err := loadConfig()
		assert.ErrorContains(t, err, "NODEFLOW_COMPACT_THRESHOLD")
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"no db path", func(c *Config) { c.DBPath = "" }, "db_path"},
		{"negative ttl", func(c *Config) { c.SessionTTL = Duration{-time.Second} }, "session_ttl"},
		{"zero cache ttl", func(c *Config) { c.CacheTTL = Duration{} }, "cache_ttl"},
		{"bad schedule", func(c *Config) { c.SweepSchedule = "every tuesday" }, "sweep_schedule"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			assert.ErrorContains(t, cfg.validate(), tc.errMsg)
		})
	}
}

func TestDurationJSON(t *testing.T) {
	data, err := json.Marshal(Config{SessionTTL: Duration{90 * time.Second}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_ttl":"1m30s"`)

	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`90`), &d))
}
