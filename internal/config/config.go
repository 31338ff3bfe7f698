package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the switchboard service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	LogLevel       string
	LogDevelopment bool

	CookieName   string
	CookieSecure bool

	AgentsDir string

	DatabaseURL string

	BrainMode    string
	BrainHTTPURL string
	BrainTimeout time.Duration

	MemoryKeywordLimit   int
	MemoryUploadMaxBytes int64

	RedactPII bool
}

// LoadDotEnv loads the given .env files (".env" when none) into the process
// environment. Missing files are skipped and existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "switchboard"),
		LogLevel:                 strings.ToLower(envOrDefault("APP_LOG_LEVEL", "info")),
		CookieName:               envOrDefault("APP_COOKIE_NAME", "switchboard_session"),
		AgentsDir:                stringsTrimSpace("AGENTS_DIR"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		BrainMode:                strings.ToLower(envOrDefault("BRAIN_MODE", "off")),
		BrainHTTPURL:             stringsTrimSpace("BRAIN_HTTP_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		BrainTimeout:             8 * time.Second,
		MemoryKeywordLimit:       10,
		MemoryUploadMaxBytes:     10 << 20,
		RedactPII:                true,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainTimeout, err = durationFromEnv("BRAIN_TIMEOUT", cfg.BrainTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", false)
	if err != nil {
		return Config{}, err
	}
	cfg.LogDevelopment, err = boolFromEnv("APP_LOG_DEVELOPMENT", false)
	if err != nil {
		return Config{}, err
	}
	cfg.CookieSecure, err = boolFromEnv("APP_COOKIE_SECURE", false)
	if err != nil {
		return Config{}, err
	}
	cfg.RedactPII, err = boolFromEnv("REDACT_PII", cfg.RedactPII)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryKeywordLimit, err = intFromEnv("MEMORY_KEYWORD_LIMIT", cfg.MemoryKeywordLimit)
	if err != nil {
		return Config{}, err
	}
	uploadMax, err := intFromEnv("MEMORY_UPLOAD_MAX_BYTES", int(cfg.MemoryUploadMaxBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryUploadMaxBytes = int64(uploadMax)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.MemoryKeywordLimit <= 0 {
		return fmt.Errorf("MEMORY_KEYWORD_LIMIT must be positive")
	}
	if c.MemoryUploadMaxBytes <= 0 {
		return fmt.Errorf("MEMORY_UPLOAD_MAX_BYTES must be positive")
	}
	if c.CookieName == "" {
		return fmt.Errorf("APP_COOKIE_NAME must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("APP_LOG_LEVEL must be one of debug, info, warn, error")
	}
	switch c.BrainMode {
	case "off", "mock":
	case "http":
		if c.BrainHTTPURL == "" {
			return fmt.Errorf("BRAIN_HTTP_URL is required when BRAIN_MODE=http")
		}
		if c.BrainTimeout <= 0 {
			return fmt.Errorf("BRAIN_TIMEOUT must be positive")
		}
	default:
		return fmt.Errorf("BRAIN_MODE must be one of off, http, mock")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
