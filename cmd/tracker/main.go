package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"price_tracker/internal/config"
	"price_tracker/internal/ingest"
	"price_tracker/internal/scheduler"
	"price_tracker/internal/source"
	_ "price_tracker/internal/source/bigl"
	_ "price_tracker/internal/source/olx"
	_ "price_tracker/internal/source/promua"
	_ "price_tracker/internal/source/rozetka"
	"price_tracker/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if cfg.Database.Driver == config.DriverSQLite {
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				log.Error("create data directory", "path", dir, "error", err)
				os.Exit(1)
			}
		}
	}

	store, err := storage.Open(cfg, storage.WithLogger(log))
	if err != nil {
		log.Error("open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.InitializeSchema(ctx); err != nil {
		log.Error("initialize schema", "error", err)
		os.Exit(1)
	}

	engine := ingest.New(store, source.Default, ingest.Options{
		Fetch: source.FetchOptions{
			Timeout:  cfg.FetchTimeout(),
			Delay:    cfg.FetchDelay(),
			MaxItems: cfg.Fetch.MaxItems,
		},
		Sources: cfg.Sources,
		DumpDir: cfg.DumpDir,
	}, log)

	sched := scheduler.New(engine, cfg.UpdateInterval(), log)

	log.Info("starting tracker",
		"driver", cfg.Database.Driver,
		"interval", cfg.UpdateInterval(),
		"registered_sources", source.Default.Names(),
	)

	sched.Run(ctx)

	log.Info("tracker stopped")
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
