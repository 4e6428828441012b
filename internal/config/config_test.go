package config

import (
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
	if cfg.Executor.Mode != "mock" {
		t.Fatalf("Executor.Mode = %q, want mock", cfg.Executor.Mode)
	}
	if cfg.Polling.BaseDelay != time.Second || cfg.Polling.MaxAttempts != 10 {
		t.Fatalf("Polling = %+v, want 1s base and 10 attempts", cfg.Polling)
	}
	if cfg.Autosave.Debounce != 2*time.Second || cfg.Autosave.MaxRetries != 3 {
		t.Fatalf("Autosave = %+v, want 2s debounce and 3 retries", cfg.Autosave)
	}
	if cfg.Settings.Language != "English" {
		t.Fatalf("Settings.Language = %q, want English", cfg.Settings.Language)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("EXECUTOR_MODE", "http")
	t.Setenv("EXECUTOR_HTTP_URL", " http://localhost:7777/api ")
	t.Setenv("POLL_BASE_DELAY", "250ms")
	t.Setenv("POLL_GROWTH", "2")
	t.Setenv("AUTOSAVE_MAX_RETRIES", "5")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")
	t.Setenv("SETTINGS_TOTAL_POSTS_PER_MONTH", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.Executor.HTTPURL != "http://localhost:7777/api" {
		t.Fatalf("Executor.HTTPURL = %q, want trimmed value", cfg.Executor.HTTPURL)
	}
	if cfg.Polling.BaseDelay != 250*time.Millisecond || cfg.Polling.Growth != 2 {
		t.Fatalf("Polling = %+v", cfg.Polling)
	}
	if cfg.Autosave.MaxRetries != 5 {
		t.Fatalf("Autosave.MaxRetries = %d, want 5", cfg.Autosave.MaxRetries)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatal("AllowAnyOrigin = false, want true")
	}
	if got := cfg.Settings.Payload()["totalPostsPerMonth"]; got != 20 {
		t.Fatalf("settings payload totalPostsPerMonth = %v, want 20", got)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "unknown executor mode",
			env:  map[string]string{"EXECUTOR_MODE": "carrier-pigeon"},
			want: "Mode",
		},
		{
			name: "http mode without url",
			env:  map[string]string{"EXECUTOR_MODE": "http"},
			want: "EXECUTOR_HTTP_URL",
		},
		{
			name: "max delay below base delay",
			env:  map[string]string{"POLL_BASE_DELAY": "5s", "POLL_MAX_DELAY": "1s"},
			want: "MaxDelay",
		},
		{
			name: "bad duration",
			env:  map[string]string{"AUTOSAVE_DEBOUNCE": "soon"},
			want: "parse config",
		},
		{
			name: "failover needs a fallback",
			env: map[string]string{
				"EXECUTOR_MODE":     "failover",
				"EXECUTOR_HTTP_URL": "http://primary",
				"REDIS_ADDR":        "",
			},
			want: "failover",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Load() error = nil, want failure")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(key, "")
	}
}
