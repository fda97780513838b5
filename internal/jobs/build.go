package jobs

import (
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/fetcher"
	"github.com/maltedev/catalog-scraper/internal/merge"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

// BuildPipeline wires fetcher, worker, scheduler and merger from cfg.
// persister may be nil.
func BuildPipeline(cfg *config.Config, persister RunPersister, logger *slog.Logger) *Pipeline {
	f := fetcher.NewHTTPFetcher(fetcher.Options{
		Timeout:    cfg.Fetch.Timeout,
		MaxRetries: cfg.Fetch.MaxRetries,
		RetryDelay: cfg.Fetch.RetryDelay,
		Limiter:    ratelimit.NewRequestRateLimiter(cfg.Scraper.RequestRPS, cfg.Scraper.ContextConcurrency),
	}, logger)

	worker := scraper.NewContextWorker(f, parser.NewCatalogParser(logger), scraper.WorkerOptions{
		URLTemplate:       cfg.Catalog.URL,
		Headers:           map[string]string{"User-Agent": cfg.Scraper.UserAgent},
		DetailConcurrency: cfg.Scraper.DetailConcurrency,
		MinDelay:          cfg.Scraper.RateLimitMin,
		MaxDelay:          cfg.Scraper.RateLimitMax,
	}, logger)

	return NewPipeline(
		NewScheduler(worker, cfg.Scraper.ContextConcurrency, logger),
		merge.NewMerger(logger),
		persister,
		logger,
	)
}
