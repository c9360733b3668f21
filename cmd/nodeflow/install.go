package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// runInstall writes settings.json from flags so later runs need no environment.
func runInstall(args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	dbPath := fs.String("db-path", "", "database path (default: ~/.nodeflow/nodeflow.db)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	metricsAddr := fs.String("metrics-addr", ":9464", "Prometheus listen address (empty disables)")
	sessionTTL := fs.Duration("session-ttl", defaultSessionTTL, "idle time before a session is reaped (0 disables)")
	sweep := fs.String("sweep-schedule", "", "cron spec for the idle sweep (default: @every 5m)")
	redisURL := fs.String("redis-url", "", "redis URL for the snapshot cache (empty disables)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir := nodeflowDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create %s: %v\n", dir, err)
		os.Exit(1)
	}

	cfg := defaultConfig()
	cfg.LogLevel = *logLevel
	cfg.MetricsAddr = *metricsAddr
	cfg.SessionTTL = Duration{*sessionTTL}
	cfg.RedisURL = *redisURL
	if *sweep != "" {
		cfg.SweepSchedule = *sweep
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	} else {
		cfg.DBPath = filepath.Join(dir, "nodeflow.db")
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", path)
}
