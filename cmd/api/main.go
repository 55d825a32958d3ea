package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/kurihiro0119/git-metrics/internal/aggregator"
	"github.com/kurihiro0119/git-metrics/internal/api"
	"github.com/kurihiro0119/git-metrics/internal/config"
	"github.com/kurihiro0119/git-metrics/internal/provider"
	"github.com/kurihiro0119/git-metrics/internal/storage"
	"github.com/kurihiro0119/git-metrics/internal/storage/memory"
	"github.com/kurihiro0119/git-metrics/internal/storage/postgres"
	"github.com/kurihiro0119/git-metrics/internal/storage/sqlite"
	"github.com/kurihiro0119/git-metrics/internal/syncer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize storage
	var store storage.Store
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewStore(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL store: %v", err)
		}
	case "memory":
		store = memory.NewStore()
	default:
		store, err = sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite store: %v", err)
		}
	}
	defer store.Close()

	engine := aggregator.New(store, logger)
	providers := provider.DefaultFactory(provider.Options{
		Logger:  logger,
		Timeout: cfg.HTTPTimeout,
	})
	sync := syncer.New(store, providers, engine, logger, cfg.FetchLimit)

	handler := api.NewHandler(store, providers, sync, engine)
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("starting API server", "addr", addr, "storage", cfg.StorageType)

	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}
