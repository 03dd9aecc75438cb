package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/todo")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HashCost != 12 {
		t.Errorf("HashCost = %d, want 12", cfg.HashCost)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want 24h", cfg.TokenTTL)
	}
	if cfg.LockoutThreshold != 5 {
		t.Errorf("LockoutThreshold = %d, want 5", cfg.LockoutThreshold)
	}
	if cfg.LockoutWindow != 15*time.Minute || cfg.LockoutDuration != 15*time.Minute {
		t.Errorf("lockout window/duration = %v/%v, want 15m/15m", cfg.LockoutWindow, cfg.LockoutDuration)
	}
	if cfg.LockoutBackend != LockoutBackendMemory {
		t.Errorf("LockoutBackend = %q, want memory", cfg.LockoutBackend)
	}
}

func TestLoadMissingSecretFails(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/todo")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("err = %v, want missing JWT_SECRET", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HASH_COST", "10")
	t.Setenv("LOCKOUT_MAX_ATTEMPTS", "3")
	t.Setenv("LOCKOUT_DURATION_MINUTES", "30")
	t.Setenv("ACCESS_TOKEN_TTL_HOURS", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HashCost != 10 || cfg.LockoutThreshold != 3 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.LockoutDuration != 30*time.Minute || cfg.TokenTTL != time.Hour {
		t.Errorf("duration overrides not applied: %+v", cfg)
	}
}

func TestLoadRedisBackendRequiresURL(t *testing.T) {
	setRequired(t)
	t.Setenv("LOCKOUT_BACKEND", "redis")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
		t.Fatalf("err = %v, want REDIS_URL requirement", err)
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LockoutBackend != LockoutBackendRedis {
		t.Errorf("LockoutBackend = %q, want redis", cfg.LockoutBackend)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("LOCKOUT_BACKEND", "dynamo")

	if _, err := Load(); err == nil {
		t.Fatal("unknown backend accepted")
	}
}
