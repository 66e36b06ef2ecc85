// Package main is the entrypoint for the long-running HazardWatch service.
//
// It wires every component through internal/app, starts the four scheduler
// loops (hazard sweep, retry sweep, daily digest, expiry) and serves the
// admin API until SIGINT or SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"hazardwatch/internal/app"
	"hazardwatch/internal/config"
)

func main() {
	logger := newLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("hazardwatch service starting")

	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = newLogger(cfg.LogLevel).With(
		"service", cfg.Service,
		"env", cfg.Environment,
		"version", cfg.Build.Version,
	)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire service", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Scheduler.Start(ctx)
	defer a.Scheduler.Stop()

	if err := a.Server.ListenAndServe(ctx); err != nil {
		logger.Error("admin server stopped with error", "error", err)
		a.Scheduler.Stop()
		a.Close()
		os.Exit(1)
	}
	logger.Info("hazardwatch service stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
