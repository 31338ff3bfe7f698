package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.SessionInactivityTimeout != 30*time.Minute {
		t.Fatalf("SessionInactivityTimeout = %v, want 30m", cfg.SessionInactivityTimeout)
	}
	if cfg.BrainMode != "off" || cfg.BrainHTTPURL != "" {
		t.Fatalf("brain = %q/%q, want off with no url", cfg.BrainMode, cfg.BrainHTTPURL)
	}
	if !cfg.RedactPII {
		t.Fatalf("RedactPII = false, want true by default")
	}
	if cfg.MemoryKeywordLimit != 10 || cfg.MemoryUploadMaxBytes != 10<<20 {
		t.Fatalf("memory limits = %d/%d", cfg.MemoryKeywordLimit, cfg.MemoryUploadMaxBytes)
	}
	if cfg.CookieName != "switchboard_session" {
		t.Fatalf("CookieName = %q", cfg.CookieName)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("BRAIN_MODE", "HTTP")
	t.Setenv("BRAIN_HTTP_URL", "http://localhost:7777/respond")
	t.Setenv("BRAIN_TIMEOUT", "2s")
	t.Setenv("REDACT_PII", "no")
	t.Setenv("APP_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.BrainMode != "http" || cfg.BrainTimeout != 2*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.RedactPII {
		t.Fatalf("RedactPII = true, want false")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"short inactivity": {"APP_SESSION_INACTIVITY_TIMEOUT": "1s"},
		"bad duration":     {"APP_SHUTDOWN_TIMEOUT": "soon"},
		"bad bool":         {"APP_ALLOW_ANY_ORIGIN": "maybe"},
		"http without url": {"BRAIN_MODE": "http"},
		"unknown brain":    {"BRAIN_MODE": "oracle"},
		"zero keywords":    {"MEMORY_KEYWORD_LIMIT": "0"},
		"bad level":        {"APP_LOG_LEVEL": "loud"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error")
			}
		})
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "test.env")
	body := strings.Join([]string{"APP_METRICS_NAMESPACE=fromfile", "AGENTS_DIR=/srv/agents"}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("APP_METRICS_NAMESPACE", "fromenv")
	// godotenv only fills unset variables; AGENTS_DIR must be unset, not empty.
	os.Unsetenv("AGENTS_DIR")
	t.Cleanup(func() { os.Unsetenv("AGENTS_DIR") })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MetricsNamespace != "fromenv" {
		t.Fatalf("MetricsNamespace = %q, want fromenv", cfg.MetricsNamespace)
	}
	if cfg.AgentsDir != "/srv/agents" {
		t.Fatalf("AgentsDir = %q, want /srv/agents", cfg.AgentsDir)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_LOG_LEVEL",
		"APP_LOG_DEVELOPMENT",
		"APP_COOKIE_NAME",
		"APP_COOKIE_SECURE",
		"AGENTS_DIR",
		"DATABASE_URL",
		"BRAIN_MODE",
		"BRAIN_HTTP_URL",
		"BRAIN_TIMEOUT",
		"MEMORY_KEYWORD_LIMIT",
		"MEMORY_UPLOAD_MAX_BYTES",
		"REDACT_PII",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
