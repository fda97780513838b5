package merge

import (
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/models"
)

// Stats describes one merge.
type Stats struct {
	Input          int `json:"input"`
	Duplicates     int `json:"duplicates"`
	MissingArticle int `json:"missing_article"`
	Output         int `json:"output"`
}

// Merger deduplicates the records of all store contexts by product link.
//
// For each link the first record carrying an article number wins. A record
// without an article number only holds the slot until a later duplicate with
// one shows up; links that never get an article number are dropped. Output
// keeps the order in which links were first seen.
type Merger struct {
	logger *slog.Logger
}

func NewMerger(logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		logger: logger.With("component", "result_merger"),
	}
}

// Merge consumes the per-context record sequences in the given order.
func (m *Merger) Merge(sequences ...[]models.ProductRecord) ([]models.ProductRecord, Stats) {
	var stats Stats

	index := make(map[string]int)
	var kept []models.ProductRecord

	for _, records := range sequences {
		for _, record := range records {
			stats.Input++

			i, seen := index[record.ProductLink]
			if !seen {
				index[record.ProductLink] = len(kept)
				kept = append(kept, record)
				continue
			}

			stats.Duplicates++
			if !kept[i].HasArticle() && record.HasArticle() {
				kept[i] = record
			}
		}
	}

	result := make([]models.ProductRecord, 0, len(kept))
	for _, record := range kept {
		if !record.HasArticle() {
			m.logger.Warn("dropping product without article number", "url", record.ProductLink)
			stats.MissingArticle++
			continue
		}
		result = append(result, record)
	}
	stats.Output = len(result)

	m.logger.Info("records merged",
		"input", stats.Input,
		"duplicates", stats.Duplicates,
		"missing_article", stats.MissingArticle,
		"output", stats.Output)

	return result, stats
}
