// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weft-dev/weft/internal/engine"
	"github.com/weft-dev/weft/internal/server"
	"github.com/weft-dev/weft/internal/store/sqlite"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the weft daemon",
		Long:  "Load configuration, open the activity store, and serve the collector socket until interrupted.",
		RunE:  runStart,
	}
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger(cfg.Daemon.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := sqlite.Open(cfg.Daemon.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	eng, err := engine.Open(ctx, cfg, st, log)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("opening engine: %w", err)
	}
	eng.StartMaintenance(ctx)

	srv, err := server.New(server.Config{SocketPath: cfg.Daemon.SocketPath}, eng, log)
	if err != nil {
		_ = eng.Close()
		return err
	}

	log.Info("weft daemon starting", "socket", cfg.Daemon.SocketPath, "db", cfg.Daemon.DBPath)
	serveErr := srv.Start(ctx)

	// Store closes last so the final WAL frames are flushed.
	if err := eng.Close(); err != nil {
		log.Error("closing engine", "error", err)
	}
	if serveErr != nil {
		return fmt.Errorf("serving: %w", serveErr)
	}
	log.Info("weft daemon stopped")
	return nil
}

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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
