package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/maltedev/catalog-scraper/internal/api"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/database"
	"github.com/maltedev/catalog-scraper/internal/jobs"
	"github.com/maltedev/catalog-scraper/internal/logger"
	"github.com/maltedev/catalog-scraper/internal/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		persister jobs.RunPersister
		products  jobs.ProductSource
		outbox    api.OutboxStats
	)

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: int32(cfg.Database.MaxConns),
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}

		outboxRepo := database.NewOutboxRepository(db)
		catalogRepo := database.NewCatalogRepository(db, logger)
		persister = catalogRepo
		products = catalogRepo
		outbox = outboxRepo

		if cfg.Redis.Addr != "" {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.Error("failed to connect to Redis", "error", err)
				os.Exit(1)
			}

			relay := database.NewRelay(outboxRepo, redisClient, logger, database.RelayConfig{
				PollInterval: 5 * time.Second,
				BatchSize:    100,
				MaxStreamLen: cfg.Redis.StreamMaxLen,
			})
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
		}
	}

	runStore, err := storage.NewRunStore(cfg.Server.RunsFile)
	if err != nil {
		logger.Error("failed to open run store", "file", cfg.Server.RunsFile, "error", err)
		os.Exit(1)
	}

	manager := jobs.NewManager(jobs.BuildPipeline(cfg, persister, logger), runStore, jobs.ManagerConfig{
		CatalogURL:  cfg.Catalog.URL,
		Stores:      cfg.SelectedStores(),
		ReportDir:   cfg.Report.Dir,
		ReportExt:   filepath.Ext(cfg.Report.Path),
		ReportSheet: cfg.Report.Sheet,
	}, logger)

	if products != nil {
		manager.UseProductSource(products)
	}

	handlers := api.NewHandlers(manager, outbox, logger)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr, "stores", len(manager.Stores()))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	manager.Close()
	cancel()
	logger.Info("server stopped")
}
