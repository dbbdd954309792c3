package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Sandbox.Runtime != "local" {
		t.Fatalf("expected default sandbox runtime local, got %q", cfg.Sandbox.Runtime)
	}
	if cfg.Sandbox.ExecTimeout != 30*time.Second {
		t.Fatalf("expected default exec timeout 30s, got %v", cfg.Sandbox.ExecTimeout)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("expected default session TTL 24h, got %v", cfg.SessionTTL)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SANDBOX_RUNTIME", "docker")
	t.Setenv("SANDBOX_TIMEOUT", "45s")
	t.Setenv("CONVERSATION_LOG_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.Sandbox.Runtime != "docker" {
		t.Fatalf("expected docker runtime, got %q", cfg.Sandbox.Runtime)
	}
	if cfg.Sandbox.ExecTimeout != 45*time.Second {
		t.Fatalf("expected 45s timeout, got %v", cfg.Sandbox.ExecTimeout)
	}
	if cfg.ConversationLog.Enabled {
		t.Fatal("expected conversation logging disabled")
	}
}

func TestLoadRejectsBadRuntime(t *testing.T) {
	t.Setenv("SANDBOX_RUNTIME", "firecracker")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown sandbox runtime")
	}
}

func TestGetEnvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_DURATION", "not-a-duration")

	if got := getEnvDuration("SOME_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback duration, got %v", got)
	}
}

func TestAllowedOrigins(t *testing.T) {
	dev := &Config{FrontendURL: "http://localhost:3000"}
	if got := dev.AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Fatalf("expected wildcard origin in development, got %v", got)
	}

	prod := &Config{FrontendURL: "https://datapilot.example.com"}
	if got := prod.AllowedOrigins(); len(got) != 1 || got[0] != prod.FrontendURL {
		t.Fatalf("expected frontend-only origins in production, got %v", got)
	}
}

func TestIsDevelopment(t *testing.T) {
	cases := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:5173", true},
		{"https://datapilot.example.com", false},
	}
	for _, tc := range cases {
		cfg := &Config{FrontendURL: tc.frontendURL}
		if got := cfg.IsDevelopment(); got != tc.want {
			t.Fatalf("IsDevelopment(%q) = %v, want %v", tc.frontendURL, got, tc.want)
		}
	}
}
