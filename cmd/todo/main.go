package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"todo/internal/auth"
	"todo/internal/config"
	"todo/internal/logging"
	"todo/internal/storage"
	"todo/internal/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "todo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := config.ResolveConfigPath()
	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logCloser, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logCloser.Close()
	log.Info("starting", "config", configPath, "db", cfg.DBPath)

	store, err := storage.Open(cfg.DBPath, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pick up writes made by other processes sharing the database file.
	// Watch must return before the deferred store.Close runs.
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		store.Watch(ctx, cfg.SyncInterval())
	}()
	defer func() {
		stop()
		<-watchDone
	}()

	svc, err := auth.NewLocal(ctx, store, log)
	if err != nil {
		return err
	}

	if err := ui.Run(svc, store, cfg, log); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	log.Info("exiting")
	return nil
}
