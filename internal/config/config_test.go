package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MIN_AGE", "")
	t.Setenv("OPERATOR_EMAILS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.MinAge != 25 {
		t.Fatalf("expected default min age 25, got %d", cfg.MinAge)
	}
	if cfg.MaxObjections != 3 {
		t.Fatalf("expected default max objections 3, got %d", cfg.MaxObjections)
	}
	if cfg.AggregatorWindow != 3*time.Second {
		t.Fatalf("expected default aggregator window, got %s", cfg.AggregatorWindow)
	}
	if cfg.SessionBackend != "redis" {
		t.Fatalf("expected redis session backend by default, got %s", cfg.SessionBackend)
	}
	if cfg.OperatorEmails != nil {
		t.Fatalf("expected no operator emails, got %v", cfg.OperatorEmails)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("MIN_CREDIT", "250.5")
	t.Setenv("MIN_AGE", "21")
	t.Setenv("LOCK_TIMEOUT", "45s")
	t.Setenv("SESSION_BACKEND", " Postgres ")
	t.Setenv("OPERATOR_EMAILS", "ops@example.com, ,lead@example.com")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.MinCredit != 250.5 {
		t.Fatalf("expected min credit override, got %v", cfg.MinCredit)
	}
	if cfg.MinAge != 21 {
		t.Fatalf("expected min age override, got %d", cfg.MinAge)
	}
	if cfg.LockTimeout != 45*time.Second {
		t.Fatalf("expected lock timeout override, got %s", cfg.LockTimeout)
	}
	if cfg.SessionBackend != "postgres" {
		t.Fatalf("expected normalized session backend, got %q", cfg.SessionBackend)
	}
	if len(cfg.OperatorEmails) != 2 || cfg.OperatorEmails[1] != "lead@example.com" {
		t.Fatalf("unexpected operator emails %v", cfg.OperatorEmails)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue enabled")
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MIN_AGE", "abc")
	t.Setenv("LOCK_TIMEOUT", "soon")
	t.Setenv("MIN_CREDIT", "lots")
	cfg := Load()
	if cfg.MinAge != 25 {
		t.Fatalf("expected fallback min age, got %d", cfg.MinAge)
	}
	if cfg.LockTimeout != 90*time.Second {
		t.Fatalf("expected fallback lock timeout, got %s", cfg.LockTimeout)
	}
	if cfg.MinCredit != 100 {
		t.Fatalf("expected fallback min credit, got %v", cfg.MinCredit)
	}
}
