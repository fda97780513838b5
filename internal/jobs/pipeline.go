package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-scraper/internal/merge"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/report"
)

// RunPersister stores a finished run, e.g. in Postgres.
type RunPersister interface {
	SaveRun(ctx context.Context, run *models.Run) error
}

// Pipeline crawls, merges and writes one report.
type Pipeline struct {
	scheduler *Scheduler
	merger    *merge.Merger
	persister RunPersister
	logger    *slog.Logger
}

// NewPipeline builds a pipeline. persister may be nil.
func NewPipeline(scheduler *Scheduler, merger *merge.Merger, persister RunPersister, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		scheduler: scheduler,
		merger:    merger,
		persister: persister,
		logger:    logger.With("component", "pipeline"),
	}
}

// Execute fills run with the outcome of crawling stores into w. Failed
// contexts do not fail the run; only a report that cannot be written does.
func (p *Pipeline) Execute(ctx context.Context, run *models.Run, stores []models.StoreContext, w report.Writer) error {
	started := time.Now()
	run.Status = models.RunStatusRunning
	run.StartedAt = &started

	logger := p.logger.With("run_id", run.ID)

	result := p.scheduler.Run(ctx, stores)
	run.Contexts = result.Contexts
	run.Succeeded = result.Succeeded
	run.Failed = result.Failed

	products, stats := p.merger.Merge(result.Records()...)
	run.RecordsIn = stats.Input
	run.Duplicates = stats.Duplicates
	run.MissingArticle = stats.MissingArticle
	run.ProductCount = stats.Output
	run.Products = products

	if err := report.WriteAll(w, products); err != nil {
		p.finish(run, err)
		logger.Error("failed to write report", "path", run.ReportPath, "error", err)
		return fmt.Errorf("failed to write report: %w", err)
	}

	p.finish(run, nil)
	logger.Info("report written",
		"path", run.ReportPath,
		"products", run.ProductCount,
		"duplicates", run.Duplicates,
		"contexts_failed", run.Failed)

	if p.persister != nil {
		if err := p.persister.SaveRun(ctx, run); err != nil {
			logger.Error("failed to persist run", "error", err)
		}
	}

	return nil
}

func (p *Pipeline) finish(run *models.Run, err error) {
	now := time.Now()
	run.CompletedAt = &now
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		return
	}
	run.Status = models.RunStatusCompleted
}
