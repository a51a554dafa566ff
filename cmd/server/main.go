// Package main is the entry point for the Cinemax Club server.
//
// main stays minimal: read configuration, build the logger, prepare the
// data directory, and hand everything to internal/server.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/cinemax-club/internal/config"
	"github.com/sakif/cinemax-club/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if cfg.GeneratedSecret {
		logger.Warn("COOKIE_SECRET not set; using a random secret, visitors reset on restart")
	}

	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// identity calls carry their own deadline; this is a backstop
	backend := &http.Client{Timeout: cfg.Identity.Timeout + 5*time.Second}

	srv, err := server.New(cfg, backend, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
