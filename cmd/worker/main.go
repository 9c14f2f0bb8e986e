// Package main is the entry point for the Lembra reminder worker.
//
// It loads configuration, opens the pgx connection pool, wires the reminder
// pipeline (repositories, gateway client, runner), builds the HTTP trigger
// surface with the core chassis, and listens until a shutdown signal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lembra/internal/api/handlers"
	"lembra/internal/config"
	"lembra/internal/core"
	"lembra/internal/db"
	"lembra/internal/provider"
	"lembra/internal/scheduler"
	"lembra/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("lembra worker starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	runner := scheduler.NewRunner(
		db.NewCompanyRepository(pool),
		db.NewMessagingRepository(pool),
		db.NewAppointmentRepository(pool),
		db.NewSendLogRepository(pool),
		db.NewExecutionRepository(pool),
		provider.NewClient(cfg.Provider, logger.With("component", "gateway")),
		types.RealClock{},
		cfg.Scheduler,
		logger.With("component", "runner"),
	)

	prober := db.NewPgCredentialProber(cfg.Database.URL, logger.With("component", "prober"))
	verifier := core.NewTokenVerifier(cfg.Worker.Secret, prober, logger)

	srv, err := core.NewServer(cfg, logger, verifier, pool)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.MountRoutes(handlers.NewRemindersHandler(runner, logger.With("component", "handler")))

	return runHTTPServer(srv, cfg, logger)
}

// newPool builds the pgx connection pool from configuration.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// runHTTPServer starts the trigger surface with graceful shutdown on
// SIGINT/SIGTERM.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A full pipeline pass can legitimately take a while when many
		// reminders are due; the write timeout must outlast it.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("worker stopped cleanly")
	return nil
}

// newLogger creates the application-wide structured JSON logger.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
