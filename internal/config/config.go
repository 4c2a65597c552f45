// Package config provides configuration for the gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverCompat = "compat"
	DriverOpenAI = "openai"
	DriverMock   = "mock"
)

// Config holds the gateway configuration.
type Config struct {
	// Server settings
	HTTPPort    int
	FrontendURL string

	// Database
	DatabaseURL string
	SessionTTL  time.Duration

	// Upstream provider
	Upstream UpstreamConfig

	// Resilience
	UpstreamTimeout  time.Duration
	RetryMax         int
	RetryBaseDelay   time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration

	// Admission
	ChatRateLimitPerMin int
	MaxMessageLength    int
	MaxSessionMessages  int

	// Logging
	LogLevel  string
	LogFormat string
}

// UpstreamConfig configures the upstream completion client.
type UpstreamConfig struct {
	Driver      string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:    getEnvInt("HTTP_PORT", 8080),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		DatabaseURL: getEnv("DATABASE_URL", "file:gateway.db?cache=shared&mode=rwc&_busy_timeout=5000"),
		SessionTTL:  time.Duration(getEnvInt("SESSION_TTL_HOURS", 2160)) * time.Hour,
		Upstream: UpstreamConfig{
			Driver:      strings.ToLower(getEnv("UPSTREAM_DRIVER", DriverCompat)),
			BaseURL:     getEnv("UPSTREAM_BASE_URL", "https://api.openai.com"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4"),
			MaxTokens:   getEnvInt("UPSTREAM_MAX_TOKENS", 2000),
			Temperature: getEnvFloat("UPSTREAM_TEMPERATURE", 0.7),
		},
		UpstreamTimeout:     time.Duration(getEnvInt("UPSTREAM_TIMEOUT_MS", 60000)) * time.Millisecond,
		RetryMax:            getEnvInt("RETRY_MAX", 2),
		RetryBaseDelay:      time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 500)) * time.Millisecond,
		BreakerThreshold:    getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerReset:        time.Duration(getEnvInt("BREAKER_RESET_MS", 30000)) * time.Millisecond,
		ChatRateLimitPerMin: getEnvInt("CHAT_RATE_LIMIT_PER_MIN", 10),
		MaxMessageLength:    getEnvInt("MAX_MESSAGE_LENGTH", 32000),
		MaxSessionMessages:  getEnvInt("MAX_SESSION_MESSAGES", 1000),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "console"),
	}
	if strings.EqualFold(os.Getenv("GATEWAY_MODE"), "MOCK") {
		cfg.Upstream.Driver = DriverMock
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
// A missing API key is not an error: the upstream client reports it lazily.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 {
		return fmt.Errorf("HTTP_PORT must be > 0")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}
	switch c.Upstream.Driver {
	case DriverCompat, DriverOpenAI, DriverMock:
	default:
		return fmt.Errorf("UPSTREAM_DRIVER must be one of %s, %s, %s", DriverCompat, DriverOpenAI, DriverMock)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT_MS must be > 0")
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("RETRY_MAX must be >= 0")
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("BREAKER_THRESHOLD must be > 0")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be > 0")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return defaultVal
}
