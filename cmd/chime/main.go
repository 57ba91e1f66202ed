// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

// Command chime is the Chime bot daemon. It logs into a Matrix
// homeserver with a saved session, follows /sync, and serves progress
// clocks: !clock commands create and manage them, emoji reactions on
// the bot's clock messages tick, lock, unlock, and delete them.
//
// The "login" subcommand authenticates interactively and writes
// session.json into the state directory for the daemon to use.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chime-foundation/chime/lib/clock"
	"github.com/chime-foundation/chime/lib/clocks"
	"github.com/chime-foundation/chime/lib/config"
	"github.com/chime-foundation/chime/lib/service"
	"github.com/chime-foundation/chime/lib/sqlitepool"
	"github.com/chime-foundation/chime/lib/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("chime")
		return
	}
	if len(os.Args) > 1 && os.Args[1] == "login" {
		if err := runLogin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to chime.yaml (or set CHIME_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := service.LoadSession(ctx, cfg.StateDir, cfg.HomeserverURL)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	defer session.Close()
	logger.Info("matrix session valid", "user_id", session.UserID())

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      cfg.DatabasePath,
		Logger:    logger,
		OnConnect: clocks.Schema,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	clk := clock.Real()
	directory := &sessionDirectory{session: session}

	renderer, err := clocks.NewRenderer(cfg.AssetDir, session, logger)
	if err != nil {
		return err
	}

	bot := &Bot{
		session:   session,
		userID:    session.UserID(),
		service:   clocks.NewService(clocks.NewSQLiteStore(pool)),
		renderer:  renderer,
		registry:  clocks.NewRegistry(),
		directory: directory,
		clk:       clk,
		noticeTTL: cfg.NoticeTTL.Std(),
		logger:    logger,
	}
	bot.surfaceCfg = clocks.SurfaceConfig{
		Service:   bot.service,
		Renderer:  bot.renderer,
		Directory: bot.directory,
		Registry:  bot.registry,
		Clock:     clk,
		Logger:    logger,
		LockAfter: cfg.LockAfter.Std(),
	}

	sinceToken, err := bot.initialSync(ctx)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}

	go service.RunSyncLoop(ctx, session, service.SyncConfig{
		Filter: syncFilter,
	}, sinceToken, bot.handleSync, clk, logger)

	logger.Info("chime running",
		"user_id", session.UserID(),
		"database", cfg.DatabasePath,
		"asset_dir", cfg.AssetDir,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
