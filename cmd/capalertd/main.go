package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"capalert/internal/broadcaster"
	"capalert/internal/capfeed"
	"capalert/internal/config"
	"capalert/internal/geo"
	"capalert/internal/httpapi"
	"capalert/internal/janitor"
	"capalert/internal/scheduler"
	"capalert/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DBURI); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	db, err := store.NewSQLite(cfg.DBURI)
	if err != nil {
		log.Error("open database", "path", cfg.DBURI, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := db.SeedDefaultSources(ctx, httpapi.DefaultSources); err != nil {
		log.Error("seed default sources", "error", err)
		os.Exit(1)
	}

	normalizer := geo.New(log)
	parser := capfeed.New(nil, log)
	bus := broadcaster.New(log)
	sched := scheduler.New(db, parser, normalizer, bus, log)
	jan := janitor.New(db, bus, time.Duration(cfg.JanitorIntervalHours)*time.Hour, time.Duration(cfg.RetentionDays)*24*time.Hour, log)
	api := httpapi.New(db, sched, jan, bus, normalizer, parser, log)

	log.Info("starting capalertd", "httpPort", cfg.HTTPPort)

	if err := sched.Start(ctx); err != nil {
		log.Error("start scheduler", "error", err)
		os.Exit(1)
	}
	jan.Start(ctx)

	addr := ":" + strconv.Itoa(cfg.HTTPPort)
	if err := api.Start(ctx, addr); err != nil {
		log.Error("http server stopped", "error", err)
		os.Exit(1)
	}

	sched.Stop()
	jan.Stop()
	log.Info("capalertd stopped")
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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
