package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/rendis/nodeflow/internal/compaction"
	"github.com/rendis/nodeflow/internal/scheduler"
	"github.com/rendis/nodeflow/internal/store"
)

const defaultSessionTTL = 40 * time.Minute

// Duration is a time.Duration that reads and writes as "40m" in settings.json.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"40m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config holds all nodeflow server configuration.
// Priority: env vars (.env included) > settings.json > defaults.
type Config struct {
	DBPath           string   `json:"db_path"`
	LogLevel         string   `json:"log_level"`
	MetricsAddr      string   `json:"metrics_addr"`
	SessionTTL       Duration `json:"session_ttl"`
	SweepSchedule    string   `json:"sweep_schedule"`
	RedisURL         string   `json:"redis_url,omitempty"`
	CacheTTL         Duration `json:"cache_ttl"`
	CompactThreshold int      `json:"compact_threshold"`
	RedactionMarker  string   `json:"redaction_marker,omitempty"`
}

func defaultConfig() Config {
	return Config{
		DBPath:           filepath.Join(nodeflowDir(), "nodeflow.db"),
		LogLevel:         "info",
		MetricsAddr:      ":9464",
		SessionTTL:       Duration{defaultSessionTTL},
		SweepSchedule:    scheduler.DefaultSweepSchedule,
		CacheTTL:         Duration{store.DefaultCacheTTL},
		CompactThreshold: compaction.DefaultThreshold,
	}
}

func nodeflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nodeflow"
	}
	return filepath.Join(home, ".nodeflow")
}

func settingsPath() string {
	return filepath.Join(nodeflowDir(), "settings.json")
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
	}

	// .env feeds the environment without overriding what is already set.
	_ = godotenv.Load()

	// Layer 3: env vars override.
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("NODEFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("NODEFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("NODEFLOW_METRICS_ADDR"); ok {
		// Empty disables the metrics listener.
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("NODEFLOW_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NODEFLOW_SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = Duration{d}
	}
	if v := os.Getenv("NODEFLOW_SWEEP_SCHEDULE"); v != "" {
		cfg.SweepSchedule = v
	}
	if v := os.Getenv("NODEFLOW_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("NODEFLOW_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NODEFLOW_CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = Duration{d}
	}
	if v := os.Getenv("NODEFLOW_COMPACT_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NODEFLOW_COMPACT_THRESHOLD: %w", err)
		}
		cfg.CompactThreshold = n
	}
	if v := os.Getenv("NODEFLOW_REDACTION_MARKER"); v != "" {
		cfg.RedactionMarker = v
	}
	return nil
}

// validate rejects values the server cannot start with.
func (c Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.SessionTTL.Duration < 0 {
		return fmt.Errorf("session_ttl must not be negative")
	}
	if c.CacheTTL.Duration <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if _, err := scheduler.NewParser().Parse(c.SweepSchedule); err != nil {
		return fmt.Errorf("sweep_schedule %q: %w", c.SweepSchedule, err)
	}
	return nil
}
