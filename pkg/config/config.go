package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/linkguard-hq/linkguard/pkg/logger"
)

// Config holds the configuration for the resilience agent
type Config struct {
	ProbeURL           string
	ProbeInterval      time.Duration
	ProbeTimeout       time.Duration
	SourcePollInterval time.Duration
	SaveDataMode       bool
	QueueDBPath        string
	ReplayDelay        time.Duration
	DefaultPreset      string
	ReconnectStagger   time.Duration
	MetricsPort        string
	CircuitBreaker     CircuitBreakerConfig
	LoggerConfig       LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	probeURL := GetEnvProbeURL()

	probeInterval, err := GetEnvProbeInterval()
	if err != nil {
		return nil, err
	}

	probeTimeout, err := GetEnvProbeTimeout()
	if err != nil {
		return nil, err
	}

	sourcePollInterval, err := GetEnvSourcePollInterval()
	if err != nil {
		return nil, err
	}

	saveDataMode, err := GetEnvSaveDataMode()
	if err != nil {
		return nil, err
	}

	replayDelay, err := GetEnvReplayDelay()
	if err != nil {
		return nil, err
	}

	reconnectStagger, err := GetEnvReconnectStagger()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProbeURL:           probeURL,
		ProbeInterval:      probeInterval,
		ProbeTimeout:       probeTimeout,
		SourcePollInterval: sourcePollInterval,
		SaveDataMode:       saveDataMode,
		QueueDBPath:        GetEnvQueueDBPath(),
		ReplayDelay:        replayDelay,
		DefaultPreset:      GetEnvDefaultPreset(),
		ReconnectStagger:   reconnectStagger,
		MetricsPort:        metricsPort,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	return cfg, nil
}
