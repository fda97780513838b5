package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/report"
	"github.com/maltedev/catalog-scraper/internal/storage"
)

var (
	ErrNoStores = errors.New("no store contexts selected")
	ErrClosed   = errors.New("manager closed")
)

type ManagerConfig struct {
	CatalogURL string
	Stores     []models.StoreContext
	// ReportDir receives one report per run, named after the run ID.
	ReportDir string
	// ReportExt selects the report format, ".csv" or ".xlsx".
	ReportExt   string
	ReportSheet string
}

// RunRequest selects what a new run crawls.
type RunRequest struct {
	City string `json:"city,omitempty"`
}

// Stats summarizes run history.
type Stats struct {
	TotalRuns     int     `json:"total_runs"`
	PendingRuns   int     `json:"pending_runs"`
	RunningRuns   int     `json:"running_runs"`
	CompletedRuns int     `json:"completed_runs"`
	FailedRuns    int     `json:"failed_runs"`
	SuccessRate   float64 `json:"success_rate"`
}

// ProductSource serves the products of persisted runs.
type ProductSource interface {
	GetRunProducts(ctx context.Context, runID string) ([]models.ProductRecord, error)
}

// Manager starts runs in the background and tracks them in a RunStore.
type Manager struct {
	pipeline *Pipeline
	store    *storage.RunStore
	products ProductSource
	cfg      ManagerConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(pipeline *Pipeline, store *storage.RunStore, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReportExt == "" {
		cfg.ReportExt = ".csv"
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		pipeline: pipeline,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("component", "run_manager"),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.failInterrupted()
	return m
}

// UseProductSource serves completed runs' products from src. The run store
// stays the fallback when src fails or holds nothing for a run.
func (m *Manager) UseProductSource(src ProductSource) {
	m.products = src
}

// Stores returns the configured store contexts.
func (m *Manager) Stores() []models.StoreContext {
	return m.cfg.Stores
}

// StartRun records a new run and crawls it in the background.
func (m *Manager) StartRun(req RunRequest) (*models.Run, error) {
	if m.ctx.Err() != nil {
		return nil, ErrClosed
	}

	stores := models.FilterByCity(m.cfg.Stores, req.City)
	if len(stores) == 0 {
		return nil, fmt.Errorf("%w: city %q", ErrNoStores, req.City)
	}

	id := uuid.New().String()
	run := &models.Run{
		ID:         id,
		Status:     models.RunStatusPending,
		CatalogURL: m.cfg.CatalogURL,
		City:       req.City,
		ReportPath: filepath.Join(m.cfg.ReportDir, "catalog-"+id+m.cfg.ReportExt),
		CreatedAt:  time.Now(),
	}

	if err := m.store.Save(run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	m.logger.Info("run created", "id", run.ID, "city", req.City, "contexts", len(stores))

	created := *run
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.process(run, stores)
	}()

	return &created, nil
}

func (m *Manager) process(run *models.Run, stores []models.StoreContext) {
	logger := m.logger.With("run_id", run.ID)

	w, err := report.New(run.ReportPath, m.cfg.ReportSheet)
	if err != nil {
		now := time.Now()
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		run.CompletedAt = &now
		logger.Error("failed to open report", "error", err)
		m.save(run)
		return
	}

	run.Status = models.RunStatusRunning
	m.save(run)

	if err := m.pipeline.Execute(m.ctx, run, stores, w); err != nil {
		logger.Error("run failed", "error", err)
	} else {
		logger.Info("run completed", "products", run.ProductCount)
	}
	m.save(run)
}

func (m *Manager) save(run *models.Run) {
	if err := m.store.Save(run); err != nil {
		m.logger.Error("failed to save run", "run_id", run.ID, "error", err)
	}
}

// failInterrupted marks runs left unfinished by a previous process as failed.
func (m *Manager) failInterrupted() {
	for _, run := range m.store.List() {
		if run.Finished() {
			continue
		}
		now := time.Now()
		run.Status = models.RunStatusFailed
		run.Error = "interrupted"
		run.CompletedAt = &now
		m.save(run)
	}
}

// GetRun returns a run without its products.
func (m *Manager) GetRun(id string) (*models.Run, error) {
	run, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	run.Products = nil
	return run, nil
}

// ListRuns returns all runs, newest first, without contexts or products.
func (m *Manager) ListRuns() []*models.Run {
	runs := m.store.List()
	for _, run := range runs {
		run.Contexts = nil
		run.Products = nil
	}
	return runs
}

// GetRunProducts returns the merged products of a run.
func (m *Manager) GetRunProducts(ctx context.Context, id string) ([]models.ProductRecord, error) {
	run, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	if m.products != nil && run.Status == models.RunStatusCompleted {
		products, err := m.products.GetRunProducts(ctx, id)
		switch {
		case err != nil:
			m.logger.Warn("failed to load persisted products, using run store", "id", id, "error", err)
		case len(products) > 0 || run.ProductCount == 0:
			if products == nil {
				products = []models.ProductRecord{}
			}
			return products, nil
		}
	}

	if run.Products == nil {
		return []models.ProductRecord{}, nil
	}
	return run.Products, nil
}

func (m *Manager) GetStats() *Stats {
	counts := m.store.GetStats()
	stats := &Stats{
		TotalRuns:     counts["total"],
		PendingRuns:   counts[string(models.RunStatusPending)],
		RunningRuns:   counts[string(models.RunStatusRunning)],
		CompletedRuns: counts[string(models.RunStatusCompleted)],
		FailedRuns:    counts[string(models.RunStatusFailed)],
	}
	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(stats.CompletedRuns) / float64(stats.TotalRuns) * 100
	}
	return stats
}

// Wait blocks until every started run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels running crawls and waits for them to finish.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
