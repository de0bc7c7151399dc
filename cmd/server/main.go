// Package main is the entry point for the risk event store API server. It
// wires the store, notifiers and services together and starts the HTTP
// server alongside the WebSocket hub and background scheduler.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evetabi/riskevents/internal/api"
	"github.com/evetabi/riskevents/internal/config"
	"github.com/evetabi/riskevents/internal/notify"
	"github.com/evetabi/riskevents/internal/repository"
	"github.com/evetabi/riskevents/internal/repository/memory"
	"github.com/evetabi/riskevents/internal/scheduler"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/evetabi/riskevents/internal/ws"
	"github.com/evetabi/riskevents/pkg/metrics"
	"github.com/joho/godotenv"
)

func main() {
	// ── 1. Config + logger ────────────────────────────────────────────────────
	envErr := godotenv.Load()
	cfg := config.MustLoad()
	logger := newLogger(cfg)
	if envErr != nil {
		logger.Debug(".env not loaded, using process environment", "err", envErr)
	}

	logger.Info("starting risk event server",
		"env", cfg.Server.Env, "port", cfg.Server.Port, "store", cfg.DB.Driver, "version", cfg.Server.Version)

	// ── 2. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Store ──────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store setup failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// ── 4. Metrics ────────────────────────────────────────────────────────────
	m := metrics.NewMetricsCollector(logger)

	// ── 5. WebSocket hub + notifiers ──────────────────────────────────────────
	authSvc := service.NewAuthService(cfg.JWT)
	var verifier ws.TokenVerifier
	if cfg.JWT.AccessSecret != "" {
		verifier = authSvc
	}
	hub := ws.NewHub(verifier, cfg.WS.AllowedOrigins, logger)
	go hub.Run(ctx)
	logger.Info("websocket hub started")

	sinks := []notify.Notifier{hub}
	if cfg.Redis.Addr != "" {
		rdb, err := notify.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// Notifications are best effort; the store keeps working without redis.
			logger.Warn("redis unavailable, pub/sub notifier disabled", "addr", cfg.Redis.Addr, "err", err)
		} else {
			defer rdb.Close()
			sinks = append(sinks, notify.NewRedisPublisher(rdb, cfg.Redis.Channel, logger))
			logger.Info("redis notifier enabled", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
		}
	}

	// ── 6. Services ───────────────────────────────────────────────────────────
	riskSvc := service.NewRiskEventService(store, notify.NewFanout(sinks...), m, logger)

	// ── 7. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(riskSvc, m, cfg.Scheduler, logger)
	sched.Start(ctx)

	// ── 8. HTTP Router ────────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		Ctx:     ctx,
		AuthSvc: authSvc,
		RiskSvc: riskSvc,
		Metrics: m,
		Hub:     hub,
		Cfg:     cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 9. Start server ───────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 10. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}
	logger.Info("server stopped cleanly")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)
	return logger
}

// openStore builds the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, func(), error) {
	if cfg.DB.Driver == config.DriverMemory {
		logger.Warn("using in-memory store; records are lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	db, err := repository.Connect(ctx, cfg.DB.DSN, repository.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database connected")

	if cfg.DB.AutoMigrate {
		if err = repository.Migrate(ctx, db, logger); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	store := repository.NewPostgresStore(db)
	return store, func() { _ = store.Close() }, nil
}
