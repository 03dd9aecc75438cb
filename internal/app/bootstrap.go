package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"todo-auth/internal/auth"
	"todo-auth/internal/config"
	"todo-auth/internal/db"
	"todo-auth/internal/maintenance"
	"todo-auth/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Close   func() error
}

// Build wires configuration, storage, the lockout tracker and the auth
// service into a ready http.Handler.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var redisClient *redis.Client
	var tracker auth.Tracker
	var pgTracker *auth.PostgresTracker
	switch cfg.LockoutBackend {
	case config.LockoutBackendPostgres:
		pgTracker = auth.NewPostgresTracker(database, cfg.LockoutThreshold, cfg.LockoutWindow, cfg.LockoutDuration)
		tracker = pgTracker
	case config.LockoutBackendRedis:
		redisOptions, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(redisOptions)
		tracker = auth.NewRedisTracker(redisClient, cfg.LockoutThreshold, cfg.LockoutWindow, cfg.LockoutDuration)
	default:
		tracker = auth.NewMemoryTracker(cfg.LockoutThreshold, cfg.LockoutWindow, cfg.LockoutDuration)
	}
	logger.Info("lockout_tracker_ready", map[string]any{"backend": cfg.LockoutBackend})

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(
		authRepo,
		auth.NewHasher(cfg.HashCost),
		auth.DefaultPolicy(),
		tracker,
		auth.NewTokenIssuer(cfg.SigningKey, cfg.TokenTTL),
	)
	authHandler := auth.NewHandler(authService)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/signup", authHandler.Signup)
	mux.HandleFunc("POST /api/auth/signin", authHandler.Signin)
	mux.Handle("GET /api/auth/me", auth.Middleware(authService, http.HandlerFunc(authHandler.Me)))
	mux.Handle("POST /api/auth/logout", auth.Middleware(authService, http.HandlerFunc(authHandler.Logout)))
	mux.HandleFunc("GET /health", healthHandler(database))

	if pgTracker != nil {
		cleanupHandler := maintenance.NewCleanupHandler(
			pgTracker,
			logger,
			cfg.CronSecret,
			cfg.AttemptRetention,
			cfg.CleanupBatchSize,
		)
		mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
		mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	}

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Close: func() error {
			observability.FlushSentry()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
