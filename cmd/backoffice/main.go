// Package main is the entry point for the risk event back-office server.
// Runs on its own port and exposes read-only operator endpoints.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evetabi/riskevents/internal/backoffice"
	"github.com/evetabi/riskevents/internal/config"
	"github.com/evetabi/riskevents/internal/repository"
	"github.com/evetabi/riskevents/internal/repository/memory"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/joho/godotenv"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	envErr := godotenv.Load()
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug(".env not loaded, using process environment", "err", envErr)
	}

	logger.Info("starting risk event backoffice server",
		"env", cfg.Server.Env, "port", cfg.Server.BackofficePort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store ─────────────────────────────────────────────────────────────────
	var store repository.Store
	switch cfg.DB.Driver {
	case config.DriverMemory:
		// Only useful for local UI work: it cannot see the API server's records.
		logger.Warn("backoffice using an empty in-memory store")
		store = memory.NewStore()
	default:
		db, err := repository.Connect(ctx, cfg.DB.DSN, repository.PoolConfig{
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		pg := repository.NewPostgresStore(db)
		defer pg.Close()
		store = pg
		logger.Info("database connected")
	}

	// ── Services ──────────────────────────────────────────────────────────────
	riskSvc := service.NewRiskEventService(store, nil, nil, logger)
	authSvc := service.NewAuthService(cfg.JWT)

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		AuthSvc: authSvc,
		RiskSvc: riskSvc,
		Hub:     nil, // backoffice does not directly serve WS
		Cfg:     cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("backoffice http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}
	logger.Info("backoffice server stopped cleanly")
}
