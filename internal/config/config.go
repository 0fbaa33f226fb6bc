// Package config handles application configuration and environment loading.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds the runtime settings of the dashboard server.
type Config struct {
	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // debug, info, warn, error (default "info")
	Env        string // "development" (default) or "production"

	// Uploads
	MaxFileSize   int64         // bytes; MAX_FILE_SIZE is given in MB (default 500)
	UploadTimeout time.Duration // default 300s

	// Sessions
	SessionTimeout time.Duration // idle expiry (default 3600s)
	SessionBackend string        // memory, redis or sqlite
	RedisURL       string
	RedisTimeout   time.Duration // dial/read/write bound (default 5s)
	SQLitePath     string        // default "propdash_sessions.sqlite"
	SweepInterval  time.Duration // default 5m

	// Upload admission (sliding window)
	RateLimitEnabled  bool          // default true
	RateLimitRequests int           // per window (default 100)
	RateLimitWindow   time.Duration // default 3600s

	// API token bucket
	APIRateLimitRPS   float64 // default 50
	APIRateLimitBurst int     // default 100

	CORSAllowedOrigins []string // default ["*"]

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables, applies
// defaults and validates the result.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:     os.Getenv("LISTEN_ADDR"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		Env:            os.Getenv("ENV"),
		SessionBackend: strings.ToLower(strings.TrimSpace(os.Getenv("SESSION_BACKEND"))),
		RedisURL:       os.Getenv("REDIS_URL"),
		SQLitePath:     os.Getenv("SQLITE_PATH"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	maxMB, err := envInt("MAX_FILE_SIZE", 500)
	collect(err)
	cfg.MaxFileSize = int64(maxMB) * 1024 * 1024

	cfg.UploadTimeout, err = envSeconds("UPLOAD_TIMEOUT", 300)
	collect(err)
	cfg.SessionTimeout, err = envSeconds("SESSION_TIMEOUT", 3600)
	collect(err)
	cfg.RedisTimeout, err = envSeconds("REDIS_TIMEOUT", 5)
	collect(err)
	cfg.SweepInterval, err = envDuration("SWEEP_INTERVAL", 5*time.Minute)
	collect(err)

	cfg.RateLimitEnabled = parseBoolEnvDefault("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitRequests, err = envInt("RATE_LIMIT_REQUESTS", 100)
	collect(err)
	cfg.RateLimitWindow, err = envSeconds("RATE_LIMIT_WINDOW", 3600)
	collect(err)

	cfg.APIRateLimitRPS, err = envFloat("API_RATE_LIMIT_RPS", 50)
	collect(err)
	cfg.APIRateLimitBurst, err = envInt("API_RATE_LIMIT_BURST", 100)
	collect(err)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SessionBackend == "" {
		cfg.SessionBackend = BackendMemory
		if cfg.RedisURL != "" {
			cfg.SessionBackend = BackendRedis
		}
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "propdash_sessions.sqlite"
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.SessionBackend == BackendMemory {
		cfg.Warnings = append(cfg.Warnings, "using in-memory session storage; sessions are lost on restart and not shared between instances")
	}
	if !cfg.RateLimitEnabled {
		cfg.Warnings = append(cfg.Warnings, "upload rate limiting is disabled")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch {
	case c.MaxFileSize <= 0:
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	case c.SessionTimeout <= 0:
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	case c.UploadTimeout <= 0:
		return fmt.Errorf("UPLOAD_TIMEOUT must be positive")
	case c.RedisTimeout <= 0:
		return fmt.Errorf("REDIS_TIMEOUT must be positive")
	case c.SweepInterval <= 0:
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	case c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0:
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	case c.APIRateLimitRPS <= 0 || c.APIRateLimitBurst <= 0:
		return fmt.Errorf("API_RATE_LIMIT_RPS and API_RATE_LIMIT_BURST must be positive")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "critical":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s", c.LogLevel)
	}

	switch c.SessionBackend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("invalid SESSION_BACKEND: %s (want memory, redis or sqlite)", c.SessionBackend)
	}

	// Production mode: insecure defaults are fatal errors.
	if c.IsProduction() {
		for _, o := range c.CORSAllowedOrigins {
			if o == "*" {
				return fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
			}
		}
	}
	return nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}

// envSeconds reads a whole number of seconds.
func envSeconds(key string, def int) (time.Duration, error) {
	n, err := envInt(key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// envDuration accepts a Go duration ("90s", "5m") or a bare number of seconds.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "0", "false", "no", "off":
		return false
	case "1", "true", "yes", "on":
		return true
	default:
		return defaultVal
	}
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv loads a .env file without overriding variables already present
// in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
