package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("TOOL_ENDPOINT_URL", "http://localhost:9000/mcp")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8000" {
		t.Errorf("Addr = %q, want :8000", cfg.Addr)
	}
	if cfg.Auth.AccessTTL != 60*time.Minute {
		t.Errorf("AccessTTL = %v, want 60m", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.RefreshTTL != 7*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 168h", cfg.Auth.RefreshTTL)
	}
	if cfg.Tools.CallTimeout != 30*time.Second {
		t.Errorf("CallTimeout = %v, want 30s", cfg.Tools.CallTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() succeeded without JWT_SECRET")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RITUO_ADDR", ":9999")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", cfg.Addr)
	}
	if cfg.Auth.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.Auth.AccessTTL)
	}
	if !cfg.TrustProxy {
		t.Error("TrustProxy = false, want true")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{FrontendURL: "http://localhost:5173"}
	if !cfg.IsDevelopment() {
		t.Error("localhost frontend should be development")
	}
	cfg.FrontendURL = "https://app.example.com"
	if cfg.IsDevelopment() {
		t.Error("public frontend should not be development")
	}
}
