package models

import (
	"strings"
	"time"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one crawl of all selected store contexts into a single report.
type Run struct {
	ID         string          `json:"id"`
	Status     RunStatus       `json:"status"`
	CatalogURL string          `json:"catalog_url"`
	City       string          `json:"city,omitempty"`
	ReportPath string          `json:"report_path"`
	Contexts   []ContextResult `json:"contexts,omitempty"`
	Succeeded  int             `json:"contexts_succeeded"`
	Failed     int             `json:"contexts_failed"`

	RecordsIn      int `json:"records_in"`
	Duplicates     int `json:"duplicates"`
	MissingArticle int `json:"missing_article"`
	ProductCount   int `json:"product_count"`

	Products    []ProductRecord `json:"products,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// FilterByCity keeps the stores of one city. An empty city keeps all of them.
func FilterByCity(stores []StoreContext, city string) []StoreContext {
	if city == "" {
		return stores
	}

	var filtered []StoreContext
	for _, s := range stores {
		if strings.EqualFold(s.City, city) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
