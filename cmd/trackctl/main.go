package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"price_tracker/internal/admin"
	"price_tracker/internal/config"
	"price_tracker/internal/storage"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: trackctl <command> [args]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, admin.Usage)
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, err := storage.Open(cfg, storage.WithLogger(log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.InitializeSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "initialize schema: %v\n", err)
		os.Exit(1)
	}

	if err := admin.New(store, os.Stdout).Run(ctx, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "trackctl: %v\n", err)
		if errors.Is(err, admin.ErrUsage) {
			flag.Usage()
			os.Exit(2)
		}
		os.Exit(1)
	}
}
