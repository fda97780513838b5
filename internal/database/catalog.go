package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/catalog-scraper/internal/models"
)

const (
	AggregateCatalogRun = "catalog_run"

	EventRunCompleted = "CATALOG_RUN_COMPLETED"
	EventRunFailed    = "CATALOG_RUN_FAILED"
)

// RunEventPayload is published for every persisted run.
type RunEventPayload struct {
	RunID          string           `json:"run_id"`
	Status         models.RunStatus `json:"status"`
	CatalogURL     string           `json:"catalog_url"`
	City           string           `json:"city,omitempty"`
	ReportPath     string           `json:"report_path"`
	ProductCount   int              `json:"product_count"`
	ContextsOK     int              `json:"contexts_succeeded"`
	ContextsFailed int              `json:"contexts_failed"`
	FailedStores   []string         `json:"failed_stores,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// CatalogRepository persists runs with their merged products. Each save
// also enqueues an outbox event in the same transaction.
type CatalogRepository struct {
	db     *DB
	outbox *OutboxRepository
	logger *slog.Logger
}

func NewCatalogRepository(db *DB, logger *slog.Logger) *CatalogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
		logger: logger.With("component", "catalog_repository"),
	}
}

// SaveRun upserts the run and replaces its products.
func (r *CatalogRepository) SaveRun(ctx context.Context, run *models.Run) error {
	contexts, err := json.Marshal(run.Contexts)
	if err != nil {
		return fmt.Errorf("failed to marshal contexts: %w", err)
	}

	event, err := runEvent(run)
	if err != nil {
		return err
	}

	err = r.db.Transaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO catalog_runs (
				id, status, catalog_url, city, report_path,
				contexts_succeeded, contexts_failed, records_in, duplicates,
				missing_article, product_count, contexts, error,
				created_at, started_at, completed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				contexts_succeeded = EXCLUDED.contexts_succeeded,
				contexts_failed = EXCLUDED.contexts_failed,
				records_in = EXCLUDED.records_in,
				duplicates = EXCLUDED.duplicates,
				missing_article = EXCLUDED.missing_article,
				product_count = EXCLUDED.product_count,
				contexts = EXCLUDED.contexts,
				error = EXCLUDED.error,
				started_at = EXCLUDED.started_at,
				completed_at = EXCLUDED.completed_at`

		_, err := tx.Exec(ctx, query,
			run.ID, run.Status, run.CatalogURL, run.City, run.ReportPath,
			run.Succeeded, run.Failed, run.RecordsIn, run.Duplicates,
			run.MissingArticle, run.ProductCount, contexts, run.Error,
			run.CreatedAt, run.StartedAt, run.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert run: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM catalog_products WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("failed to clear products: %w", err)
		}

		if len(run.Products) > 0 {
			_, err = tx.CopyFrom(ctx,
				pgx.Identifier{"catalog_products"},
				[]string{"run_id", "position", "article_number", "name", "product_link", "regular_price", "promo_price", "brand"},
				pgx.CopyFromSlice(len(run.Products), func(i int) ([]any, error) {
					p := run.Products[i]
					return []any{run.ID, i, p.ArticleNumber, p.Name, p.ProductLink, p.RegularPrice, p.PromoPrice, p.Brand}, nil
				}),
			)
			if err != nil {
				return fmt.Errorf("failed to copy products: %w", err)
			}
		}

		return r.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return err
	}

	r.logger.Info("run persisted", "run_id", run.ID, "products", len(run.Products), "event", event.EventType)
	return nil
}

// GetRunProducts returns the products of a run in report order.
func (r *CatalogRepository) GetRunProducts(ctx context.Context, runID string) ([]models.ProductRecord, error) {
	query := `
		SELECT article_number, name, product_link, regular_price, promo_price, brand
		FROM catalog_products
		WHERE run_id = $1
		ORDER BY position`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run products: %w", err)
	}
	defer rows.Close()

	var products []models.ProductRecord
	for rows.Next() {
		var p models.ProductRecord
		if err := rows.Scan(&p.ArticleNumber, &p.Name, &p.ProductLink, &p.RegularPrice, &p.PromoPrice, &p.Brand); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

func runEvent(run *models.Run) (*OutboxEvent, error) {
	payload := RunEventPayload{
		RunID:          run.ID,
		Status:         run.Status,
		CatalogURL:     run.CatalogURL,
		City:           run.City,
		ReportPath:     run.ReportPath,
		ProductCount:   run.ProductCount,
		ContextsOK:     run.Succeeded,
		ContextsFailed: run.Failed,
		Error:          run.Error,
	}
	for _, c := range run.Contexts {
		if c.Status == models.ContextStatusFailed {
			payload.FailedStores = append(payload.FailedStores, c.Store.ID)
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	eventType := EventRunCompleted
	if run.Status == models.RunStatusFailed {
		eventType = EventRunFailed
	}

	return &OutboxEvent{
		AggregateType: AggregateCatalogRun,
		AggregateID:   run.ID,
		EventType:     eventType,
		Payload:       data,
		TargetStream:  StreamCatalog,
	}, nil
}
