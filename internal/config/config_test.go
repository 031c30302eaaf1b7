package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr != ":8099" {
		t.Errorf("expected default addr :8099, got %s", cfg.Addr)
	}
	if cfg.CommandTimeout != 10*time.Second {
		t.Errorf("expected 10s command timeout, got %s", cfg.CommandTimeout)
	}
	if cfg.RefreshInterval != 5*time.Minute {
		t.Errorf("expected 5m refresh interval, got %s", cfg.RefreshInterval)
	}
	if len(cfg.Vendors) != 2 || cfg.Vendors[0] != "mock" || cfg.Vendors[1] != "webhook" {
		t.Errorf("unexpected default vendors: %v", cfg.Vendors)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Error("expected missing JWT_SECRET to fail")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("COMMAND_TIMEOUT_SECONDS", "3")
	t.Setenv("VENDORS", " mock , mqtt ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr != ":9000" {
		t.Errorf("expected addr :9000, got %s", cfg.Addr)
	}
	if cfg.CommandTimeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %s", cfg.CommandTimeout)
	}
	if len(cfg.Vendors) != 2 || cfg.Vendors[0] != "mock" || cfg.Vendors[1] != "mqtt" {
		t.Errorf("unexpected vendors: %v", cfg.Vendors)
	}
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("COMMAND_TIMEOUT_SECONDS", "-1")

	if _, err := Load(); err == nil {
		t.Error("expected non-positive timeout to fail")
	}
}
