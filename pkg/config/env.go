package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/linkguard-hq/linkguard/pkg/logger"
)

const (
	// DefaultProbeURL is the liveness endpoint for the background
	// reachability check
	DefaultProbeURL = "https://www.gstatic.com/generate_204"

	// DefaultProbeIntervalSeconds defines how often the liveness probe runs
	DefaultProbeIntervalSeconds = 30

	// DefaultProbeTimeoutSeconds bounds a single probe round trip
	DefaultProbeTimeoutSeconds = 10

	// DefaultSourcePollIntervalSeconds defines how often the interface table is polled
	DefaultSourcePollIntervalSeconds = 5

	// DefaultQueueDBPath is where the offline queue is persisted;
	// set QUEUE_DB_PATH to "" explicitly to keep the queue in memory
	DefaultQueueDBPath = "linkguard.db"

	// DefaultReplayDelayMillis spaces successive queue replays
	DefaultReplayDelayMillis = 100

	// DefaultPreset is the retry profile used when a call does not pick one
	DefaultPreset = "standard"

	// DefaultReconnectStaggerMillis bounds the random delay before a parked
	// retry resumes after reconnect
	DefaultReconnectStaggerMillis = 500

	// DefaultMetricsPort defines the default port for the health and metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindowSeconds defines the time window for the circuit breaker
	DefaultCircuitBreakerWindowSeconds = 60

	// DefaultCircuitBreakerResetSeconds defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerResetSeconds = 30
)

// GetEnvProbeURL returns the liveness probe endpoint
func GetEnvProbeURL() string {
	probeURL := os.Getenv("PROBE_URL")
	if probeURL == "" {
		return DefaultProbeURL
	}
	return probeURL
}

// GetEnvProbeInterval returns the probe interval in seconds from environment variables
func GetEnvProbeInterval() (time.Duration, error) {
	return getEnvSeconds("PROBE_INTERVAL", DefaultProbeIntervalSeconds)
}

// GetEnvProbeTimeout returns the probe timeout in seconds from environment variables
func GetEnvProbeTimeout() (time.Duration, error) {
	return getEnvSeconds("PROBE_TIMEOUT", DefaultProbeTimeoutSeconds)
}

// GetEnvSourcePollInterval returns the interface poll interval in seconds
func GetEnvSourcePollInterval() (time.Duration, error) {
	return getEnvSeconds("SOURCE_POLL_INTERVAL", DefaultSourcePollIntervalSeconds)
}

// GetEnvSaveDataMode returns whether the data-saving flag should be set
func GetEnvSaveDataMode() (bool, error) {
	return getEnvBool("SAVE_DATA_MODE", false)
}

// GetEnvQueueDBPath returns the offline queue database path. An
// explicitly empty value selects the in-memory store.
func GetEnvQueueDBPath() string {
	path, ok := os.LookupEnv("QUEUE_DB_PATH")
	if !ok {
		return DefaultQueueDBPath
	}
	return path
}

// GetEnvReplayDelay returns the inter-replay delay in milliseconds
func GetEnvReplayDelay() (time.Duration, error) {
	return getEnvMillis("REPLAY_DELAY_MS", DefaultReplayDelayMillis)
}

// GetEnvDefaultPreset returns the default retry preset name
func GetEnvDefaultPreset() string {
	preset := os.Getenv("DEFAULT_PRESET")
	if preset == "" {
		return DefaultPreset
	}
	return preset
}

// GetEnvReconnectStagger returns the reconnect stagger bound in milliseconds
func GetEnvReconnectStagger() (time.Duration, error) {
	return getEnvMillis("RECONNECT_STAGGER_MS", DefaultReconnectStaggerMillis)
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker failure threshold
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	count, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if count <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return count, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker failure window in seconds
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvSeconds("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindowSeconds)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout in seconds
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvSeconds("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerResetSeconds)
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", level)
}

// GetEnvLogColoring returns whether log coloring is enabled
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", true)
}

func getEnvSeconds(name string, def int) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return time.Duration(def) * time.Second, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", name, raw)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", name)
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnvMillis(name string, def int) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return time.Duration(def) * time.Millisecond, nil
	}

	millis, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", name, raw)
	}
	if millis <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", name)
	}
	return time.Duration(millis) * time.Millisecond, nil
}

func getEnvBool(name string, def bool) (bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %s, must be a boolean", name, raw)
	}
	return value, nil
}
