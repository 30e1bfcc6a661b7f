package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/httprunner/isrsim/internal/env"
)

// Environment variables read by the isrsim CLI.
const (
	EnvServiceDelay    = "ISR_SERVICE_DELAY"
	EnvTriggerCount    = "ISR_TRIGGER_COUNT"
	EnvTriggerInterval = "ISR_TRIGGER_INTERVAL"
	EnvSettleDelay     = "ISR_SETTLE_DELAY"
	EnvProducers       = "ISR_PRODUCERS"
	EnvLogLevel        = "ISR_LOG_LEVEL"
)

func ensureEnvLoaded() {
	_ = env.Ensure()
}

// String returns the trimmed environment variable or fallback when unset.
func String(key, fallback string) string {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Duration parses a time duration from environment or returns fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Int returns an integer environment variable or fallback when invalid.
func Int(key string, fallback int) int {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool parses a boolean environment variable.
func Bool(key string, fallback bool) bool {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
	}
	return fallback
}

// Simulation holds the run defaults resolved from the environment.
type Simulation struct {
	ServiceDelay    time.Duration
	TriggerCount    int
	TriggerInterval time.Duration
	SettleDelay     time.Duration
	Producers       int
	LogLevel        string
}

// LoadSimulation resolves run defaults: 10 triggers one second apart
// followed by a 3s settle.
func LoadSimulation() Simulation {
	return Simulation{
		ServiceDelay:    Duration(EnvServiceDelay, 500*time.Millisecond),
		TriggerCount:    Int(EnvTriggerCount, 10),
		TriggerInterval: Duration(EnvTriggerInterval, time.Second),
		SettleDelay:     Duration(EnvSettleDelay, 3*time.Second),
		Producers:       Int(EnvProducers, 1),
		LogLevel:        String(EnvLogLevel, "info"),
	}
}
