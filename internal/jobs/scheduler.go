package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/catalog-scraper/internal/models"
	"golang.org/x/sync/errgroup"
)

// Worker crawls one store context and emits its records in order.
type Worker interface {
	Run(ctx context.Context, store models.StoreContext, emit func(models.ProductRecord)) (models.CrawlStats, error)
}

// RunResult holds one entry per store context, in the order the contexts
// were given to the scheduler.
type RunResult struct {
	Contexts  []models.ContextResult
	Succeeded int
	Failed    int
}

// Records returns the record sequence of every context in context order.
func (r *RunResult) Records() [][]models.ProductRecord {
	records := make([][]models.ProductRecord, len(r.Contexts))
	for i := range r.Contexts {
		records[i] = r.Contexts[i].Records
	}
	return records
}

// Scheduler runs one worker per store context with bounded concurrency.
type Scheduler struct {
	worker      Worker
	concurrency int
	logger      *slog.Logger
}

func NewScheduler(worker Worker, concurrency int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		worker:      worker,
		concurrency: concurrency,
		logger:      logger.With("component", "scheduler"),
	}
}

// Run blocks until every context is done or failed. A failed context never
// cancels its siblings; records of a failed context are kept up to the
// point of failure.
func (s *Scheduler) Run(ctx context.Context, stores []models.StoreContext) *RunResult {
	result := &RunResult{
		Contexts: make([]models.ContextResult, len(stores)),
	}
	for i, store := range stores {
		result.Contexts[i] = models.ContextResult{
			Store:  store,
			Status: models.ContextStatusPending,
		}
	}

	s.logger.Info("starting run", "contexts", len(stores), "concurrency", s.concurrency)

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(s.concurrency)

	for i := range stores {
		g.Go(func() error {
			cr := s.runContext(ctx, stores[i])

			mu.Lock()
			result.Contexts[i] = cr
			if cr.Status == models.ContextStatusDone {
				result.Succeeded++
			} else {
				result.Failed++
			}
			mu.Unlock()
			return nil
		})
	}

	g.Wait()

	s.logger.Info("run finished", "succeeded", result.Succeeded, "failed", result.Failed)
	return result
}

func (s *Scheduler) runContext(ctx context.Context, store models.StoreContext) models.ContextResult {
	cr := models.ContextResult{
		Store:     store,
		Status:    models.ContextStatusRunning,
		StartedAt: time.Now(),
	}

	stats, err := s.worker.Run(ctx, store, func(p models.ProductRecord) {
		cr.Records = append(cr.Records, p)
	})

	cr.Stats = stats
	cr.CompletedAt = time.Now()

	if err != nil {
		cr.Status = models.ContextStatusFailed
		cr.Error = err.Error()
		s.logger.Error("store context failed", "store", store.ID, "city", store.City, "error", err)
		return cr
	}

	cr.Status = models.ContextStatusDone
	return cr
}
