package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	HTTPPort            int
	SQLiteDSN           string
	PlannerURL          string
	PlannerTimeout      time.Duration
	HoldTTL             time.Duration
	HoldCleanupInterval time.Duration
}

// Load parses configuration values from the current process environment.
//
// The loader applies sensible defaults for optional fields while validating
// required values and reporting every missing or malformed entry at once.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:            8080,
		SQLiteDSN:           "file:scheduler.db?_foreign_keys=on",
		PlannerTimeout:      30 * time.Second,
		HoldTTL:             10 * time.Minute,
		HoldCleanupInterval: time.Minute,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("SCHEDULER_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "SCHEDULER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("SCHEDULER_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if plannerURL := strings.TrimSpace(os.Getenv("SCHEDULER_PLANNER_URL")); plannerURL == "" {
		missing = append(missing, "SCHEDULER_PLANNER_URL")
	} else {
		cfg.PlannerURL = plannerURL
	}

	if timeoutValue := strings.TrimSpace(os.Getenv("SCHEDULER_PLANNER_TIMEOUT")); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "SCHEDULER_PLANNER_TIMEOUT")
		} else {
			cfg.PlannerTimeout = timeout
		}
	}

	if ttlValue := strings.TrimSpace(os.Getenv("SCHEDULER_HOLD_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "SCHEDULER_HOLD_TTL")
		} else {
			cfg.HoldTTL = ttl
		}
	}

	if intervalValue := strings.TrimSpace(os.Getenv("SCHEDULER_HOLD_CLEANUP_INTERVAL")); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "SCHEDULER_HOLD_CLEANUP_INTERVAL")
		} else {
			cfg.HoldCleanupInterval = interval
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
