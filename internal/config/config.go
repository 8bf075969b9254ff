// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	ShutdownTimeout     time.Duration
	MaxRequestBodyBytes int64
	CORSOrigins         []string

	// History store. A postgres:// URL selects PostgreSQL, anything else is
	// a SQLite file path.
	DatabaseURL            string
	StrictPersistence      bool
	HistoryBufferSize      int
	HistoryFlushInterval   time.Duration
	Retention              time.Duration // 0 disables the retention loop.
	RetentionCheckInterval time.Duration

	// Live weather source.
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	FetchTimeout       time.Duration
	FetchRetries       int
	FetchRetryDelay    time.Duration

	// Pipeline behaviour.
	FanoutPolicy    string // "fail_fast" or "partial"
	RandomSeed      uint64 // 0 seeds from the clock.
	DefaultRegion   string
	DefaultCrop     string
	DefaultLanguage string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults. Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var cfg Config
	var err error

	cfg.Port, err = envInt("CROPAGENT_PORT", 8000)
	collect(err)
	cfg.ReadTimeout, err = envDuration("CROPAGENT_READ_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.WriteTimeout, err = envDuration("CROPAGENT_WRITE_TIMEOUT", 60*time.Second)
	collect(err)
	cfg.ShutdownTimeout, err = envDuration("CROPAGENT_SHUTDOWN_TIMEOUT", 15*time.Second)
	collect(err)
	maxBody, err := envInt("CROPAGENT_MAX_REQUEST_BODY_BYTES", 1<<20)
	collect(err)
	cfg.MaxRequestBodyBytes = int64(maxBody)
	cfg.CORSOrigins = envList("CROPAGENT_CORS_ORIGINS")

	cfg.DatabaseURL = envStr("DATABASE_URL", "cropagent.db")
	cfg.StrictPersistence, err = envBool("CROPAGENT_STRICT_PERSISTENCE", false)
	collect(err)
	cfg.HistoryBufferSize, err = envInt("CROPAGENT_HISTORY_BUFFER_SIZE", 500)
	collect(err)
	cfg.HistoryFlushInterval, err = envDuration("CROPAGENT_HISTORY_FLUSH_INTERVAL", time.Second)
	collect(err)
	cfg.Retention, err = envDuration("CROPAGENT_RETENTION", 365*24*time.Hour)
	collect(err)
	cfg.RetentionCheckInterval, err = envDuration("CROPAGENT_RETENTION_INTERVAL", 24*time.Hour)
	collect(err)

	cfg.OpenWeatherAPIKey = envStr("OPENWEATHERMAP_API_KEY", "")
	cfg.OpenWeatherBaseURL = envStr("OPENWEATHERMAP_BASE_URL", "https://api.openweathermap.org/data/2.5")
	cfg.FetchTimeout, err = envDuration("CROPAGENT_FETCH_TIMEOUT", 5*time.Second)
	collect(err)
	cfg.FetchRetries, err = envInt("CROPAGENT_FETCH_RETRIES", 2)
	collect(err)
	cfg.FetchRetryDelay, err = envDuration("CROPAGENT_FETCH_RETRY_DELAY", 200*time.Millisecond)
	collect(err)

	cfg.FanoutPolicy = envStr("CROPAGENT_FANOUT_POLICY", "fail_fast")
	cfg.RandomSeed, err = envUint("CROPAGENT_RANDOM_SEED", 0)
	collect(err)
	cfg.DefaultRegion = envStr("CROPAGENT_DEFAULT_REGION", "Maharashtra")
	cfg.DefaultCrop = envStr("CROPAGENT_DEFAULT_CROP", "Rice")
	cfg.DefaultLanguage = envStr("CROPAGENT_DEFAULT_LANGUAGE", "en")

	cfg.OTELEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.OTELInsecure, err = envBool("CROPAGENT_OTEL_INSECURE", false)
	collect(err)
	cfg.ServiceName = envStr("OTEL_SERVICE_NAME", "cropagent")
	cfg.LogLevel = envStr("CROPAGENT_LOG_LEVEL", "info")

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, errors.New("CROPAGENT_PORT must be between 1 and 65535"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("CROPAGENT_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.FanoutPolicy != "fail_fast" && c.FanoutPolicy != "partial" {
		errs = append(errs, fmt.Errorf("CROPAGENT_FANOUT_POLICY %q must be fail_fast or partial", c.FanoutPolicy))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("CROPAGENT_FETCH_TIMEOUT must be positive"))
	}
	if c.FetchRetries < 0 {
		errs = append(errs, errors.New("CROPAGENT_FETCH_RETRIES must not be negative"))
	}
	if c.HistoryBufferSize <= 0 {
		errs = append(errs, errors.New("CROPAGENT_HISTORY_BUFFER_SIZE must be positive"))
	}
	if c.HistoryFlushInterval <= 0 {
		errs = append(errs, errors.New("CROPAGENT_HISTORY_FLUSH_INTERVAL must be positive"))
	}
	if c.Retention < 0 {
		errs = append(errs, errors.New("CROPAGENT_RETENTION must not be negative"))
	}
	if c.Retention > 0 && c.RetentionCheckInterval <= 0 {
		errs = append(errs, errors.New("CROPAGENT_RETENTION_INTERVAL must be positive when retention is enabled"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// WeatherConfigured reports whether a real OpenWeatherMap key is set.
// "demo_key" is the placeholder shipped in sample env files.
func (c Config) WeatherConfigured() bool {
	return c.OpenWeatherAPIKey != "" && c.OpenWeatherAPIKey != "demo_key"
}

// ParseLevel maps a CROPAGENT_LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("CROPAGENT_LOG_LEVEL %q is not one of debug, info, warn, error", s)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envUint(key string, defaultVal uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid unsigned integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
