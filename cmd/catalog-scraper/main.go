package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/database"
	"github.com/maltedev/catalog-scraper/internal/jobs"
	"github.com/maltedev/catalog-scraper/internal/logger"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/report"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	var (
		catalogURL = flag.String("url", "", "Catalog listing URL; {page} is replaced by the page number, otherwise it is appended")
		storesFile = flag.String("stores", "", "YAML file with store contexts (default: built-in St. Petersburg and Moscow stores)")
		output     = flag.String("output", "", "Report path; .xlsx writes a workbook, anything else CSV")
		city       = flag.String("city", "", "Only crawl the stores of this city")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *catalogURL != "" {
		cfg.Catalog.URL = *catalogURL
	}
	if *output != "" {
		cfg.Report.Path = *output
	}
	if *city != "" {
		cfg.Catalog.City = *city
	}
	if *storesFile != "" {
		cfg.Catalog.StoresFile = *storesFile
		if err := cfg.LoadStores(); err != nil {
			log.Fatalf("Failed to load stores: %v", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	var persister jobs.RunPersister
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
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
		persister = database.NewCatalogRepository(db, logger)
	}

	w, err := report.New(cfg.Report.Path, cfg.Report.Sheet)
	if err != nil {
		logger.Error("Failed to create report", "path", cfg.Report.Path, "error", err)
		os.Exit(1)
	}

	stores := cfg.SelectedStores()
	run := &models.Run{
		ID:         uuid.New().String(),
		Status:     models.RunStatusPending,
		CatalogURL: cfg.Catalog.URL,
		City:       cfg.Catalog.City,
		ReportPath: cfg.Report.Path,
		CreatedAt:  time.Now(),
	}

	logger.Info("Starting catalog crawl",
		"run_id", run.ID,
		"url", cfg.Catalog.URL,
		"stores", len(stores),
		"output", cfg.Report.Path)

	pipeline := jobs.BuildPipeline(cfg, persister, logger)
	if err := pipeline.Execute(ctx, run, stores, w); err != nil {
		logger.Error("Catalog crawl failed", "error", err)
		os.Exit(1)
	}

	for _, c := range run.Contexts {
		attrs := []any{
			"store", c.Store.ID,
			"city", c.Store.City,
			"status", c.Status,
			"pages", c.Stats.Pages,
			"cards", c.Stats.Cards,
			"pickup_only", c.Stats.PickupOnly,
			"price_skipped", c.Stats.PriceSkipped,
			"detail_failures", c.Stats.DetailFailures,
			"records", c.Stats.Records,
			"duration", c.CompletedAt.Sub(c.StartedAt).Round(time.Millisecond),
		}
		if c.Error != "" {
			attrs = append(attrs, "error", c.Error)
			logger.Warn("Store context summary", attrs...)
			continue
		}
		logger.Info("Store context summary", attrs...)
	}

	logger.Info("Catalog crawl finished",
		"products", run.ProductCount,
		"duplicates", run.Duplicates,
		"missing_article", run.MissingArticle,
		"contexts_succeeded", run.Succeeded,
		"contexts_failed", run.Failed,
		"output", run.ReportPath)
}
