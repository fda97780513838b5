package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/database"
)

// LogRunEvents logs a summary line for every catalog run event and skips
// other event types.
func LogRunEvents(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "run_events")

	return func(ctx context.Context, env Envelope) error {
		if env.AggregateType != database.AggregateCatalogRun {
			return nil
		}

		var payload database.RunEventPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode run payload: %w", err)
		}

		attrs := []any{
			"run_id", payload.RunID,
			"status", payload.Status,
			"products", payload.ProductCount,
			"contexts_succeeded", payload.ContextsOK,
			"contexts_failed", payload.ContextsFailed,
			"report", payload.ReportPath,
		}

		switch {
		case env.Type == database.EventRunFailed:
			logger.Error("catalog run failed", append(attrs, "error", payload.Error)...)
		case payload.ContextsFailed > 0:
			logger.Warn("catalog run completed with failed stores", append(attrs, "failed_stores", payload.FailedStores)...)
		default:
			logger.Info("catalog run completed", attrs...)
		}
		return nil
	}
}
