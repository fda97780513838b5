package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-scraper/internal/fetcher"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"golang.org/x/sync/errgroup"
)

type WorkerOptions struct {
	URLTemplate string
	Headers     map[string]string
	// DetailConcurrency bounds the detail fetches of one listing page.
	DetailConcurrency int
	// MinDelay and MaxDelay space the requests of one store context.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// ContextWorker crawls the whole catalog for one store context.
type ContextWorker struct {
	fetcher fetcher.PageFetcher
	parser  *parser.CatalogParser
	opts    WorkerOptions
	logger  *slog.Logger
}

func NewContextWorker(f fetcher.PageFetcher, p *parser.CatalogParser, opts WorkerOptions, logger *slog.Logger) *ContextWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DetailConcurrency < 1 {
		opts.DetailConcurrency = 1
	}
	return &ContextWorker{
		fetcher: f,
		parser:  p,
		opts:    opts,
		logger:  logger,
	}
}

type detailResult struct {
	product *models.ProductRecord
	err     error
}

// Run crawls every listing page of the store and hands each product record to
// emit as soon as it and every earlier card of its page are resolved, so
// records arrive in card order. Failed detail fetches only skip their card; a
// failed listing page ends the crawl with an error.
func (w *ContextWorker) Run(ctx context.Context, store models.StoreContext, emit func(models.ProductRecord)) (models.CrawlStats, error) {
	var stats models.CrawlStats

	logger := w.logger.With("component", "context_worker", "store", store.ID, "city", store.City)
	profile := fetcher.NewRequestProfile(w.opts.Headers, store)
	paced := fetcher.NewPacedFetcher(w.fetcher, ratelimit.NewAdaptiveRateLimiter(w.opts.MinDelay, w.opts.MaxDelay))
	crawler := NewListingCrawler(paced, w.parser, w.opts.URLTemplate, profile, logger)

	logger.Info("starting store crawl")

	for {
		page, ok, err := crawler.Next(ctx)
		if err != nil {
			logger.Error("store crawl failed", "error", err, "pages", stats.Pages)
			return stats, err
		}
		if !ok {
			break
		}

		stats.Pages++
		stats.Cards += page.TotalCards
		stats.PickupOnly += page.PickupOnly
		stats.PriceSkipped += page.PriceSkipped

		w.fetchDetails(ctx, logger, paced, profile, page.Cards, func(result detailResult) {
			if result.err != nil {
				stats.DetailFailures++
				return
			}
			stats.Records++
			emit(*result.product)
		})

		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}

	logger.Info("store crawl completed",
		"pages", stats.Pages,
		"cards", stats.Cards,
		"pickup_only", stats.PickupOnly,
		"detail_failures", stats.DetailFailures,
		"records", stats.Records)

	return stats, nil
}

// fetchDetails fetches and parses the detail pages of one listing page
// concurrently and calls handle from the calling goroutine for each card, in
// card order, as soon as that card and all cards before it are resolved. It
// returns after the last card is handled.
func (w *ContextWorker) fetchDetails(ctx context.Context, logger *slog.Logger, f fetcher.PageFetcher, profile fetcher.RequestProfile, cards []models.CardRef, handle func(detailResult)) {
	results := make([]detailResult, len(cards))
	done := make([]chan struct{}, len(cards))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(w.opts.DetailConcurrency)

	// g.Go blocks at the limit, so dispatch runs beside the handling loop
	go func() {
		for i, card := range cards {
			g.Go(func() error {
				defer close(done[i])

				html, err := f.Fetch(ctx, card.ProductLink, profile)
				if err != nil {
					logger.Warn("skipping product, detail fetch failed", "url", card.ProductLink, "error", err)
					results[i].err = err
					return nil
				}

				product, err := w.parser.ParseProductPage(html, card)
				if err != nil {
					logger.Warn("skipping product, detail page unreadable", "url", card.ProductLink, "error", err)
					results[i].err = err
					return nil
				}

				results[i].product = product
				return nil
			})
		}
	}()

	for i := range cards {
		<-done[i]
		handle(results[i])
	}

	g.Wait()
}
