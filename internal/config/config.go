package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Lockout backends. Memory is the single-instance default; postgres and
// redis share state across instances.
const (
	LockoutBackendMemory   = "memory"
	LockoutBackendPostgres = "postgres"
	LockoutBackendRedis    = "redis"
)

// Config is the full process configuration, read once at startup and
// read-only afterwards.
type Config struct {
	DatabaseURL string
	SigningKey  string
	AppEnv      string
	Port        string
	SentryDSN   string

	HashCost int
	TokenTTL time.Duration

	LockoutThreshold int
	LockoutWindow    time.Duration
	LockoutDuration  time.Duration
	LockoutBackend   string
	RedisURL         string

	CronSecret       string
	AttemptRetention time.Duration
	CleanupBatchSize int

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
}

// Load reads configuration from the environment. Missing secrets are fatal
// here, at startup, never per-request.
func Load() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	signingKey, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DatabaseURL: databaseURL,
		SigningKey:  signingKey,
		AppEnv:      envOrDefault("APP_ENV", "development"),
		Port:        envOrDefault("PORT", "8080"),
		SentryDSN:   os.Getenv("SENTRY_DSN"),

		HashCost: envIntOrDefault("HASH_COST", 12),
		TokenTTL: envHoursOrDefault("ACCESS_TOKEN_TTL_HOURS", 24),

		LockoutThreshold: envIntOrDefault("LOCKOUT_MAX_ATTEMPTS", 5),
		LockoutWindow:    envMinutesOrDefault("LOCKOUT_WINDOW_MINUTES", 15),
		LockoutDuration:  envMinutesOrDefault("LOCKOUT_DURATION_MINUTES", 15),
		LockoutBackend:   strings.ToLower(envOrDefault("LOCKOUT_BACKEND", LockoutBackendMemory)),
		RedisURL:         os.Getenv("REDIS_URL"),

		CronSecret:       os.Getenv("CRON_SECRET"),
		AttemptRetention: envDaysOrDefault("LOGIN_ATTEMPT_RETENTION_DAYS", 30),
		CleanupBatchSize: envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),

		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
	}

	switch cfg.LockoutBackend {
	case LockoutBackendMemory, LockoutBackendPostgres:
	case LockoutBackendRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return Config{}, fmt.Errorf("LOCKOUT_BACKEND=redis requires REDIS_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown LOCKOUT_BACKEND: %s", cfg.LockoutBackend)
	}

	return cfg, nil
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}
