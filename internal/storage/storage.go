package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/catalog-scraper/internal/models"
)

var ErrRunNotFound = errors.New("run not found")

// RunStore keeps run history in memory and mirrors it to a JSON file.
// An empty filename keeps everything in memory.
type RunStore struct {
	mu       sync.RWMutex
	runs     map[string]*models.Run
	filename string
}

func NewRunStore(filename string) (*RunStore, error) {
	rs := &RunStore{
		runs:     make(map[string]*models.Run),
		filename: filename,
	}

	if filename == "" {
		return rs, nil
	}

	if err := rs.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	return rs, nil
}

// Save inserts or replaces a run.
func (rs *RunStore) Save(run *models.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	stored := *run
	rs.runs[run.ID] = &stored
	return rs.save()
}

func (rs *RunStore) Get(id string) (*models.Run, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	run, exists := rs.runs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	cp := *run
	return &cp, nil
}

// List returns all runs, newest first.
func (rs *RunStore) List() []*models.Run {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	runs := make([]*models.Run, 0, len(rs.runs))
	for _, run := range rs.runs {
		cp := *run
		runs = append(runs, &cp)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

// GetStats counts runs per status, plus a "total" entry.
func (rs *RunStore) GetStats() map[string]int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	stats := make(map[string]int)
	for _, run := range rs.runs {
		stats[string(run.Status)]++
	}
	stats["total"] = len(rs.runs)
	return stats
}

func (rs *RunStore) save() error {
	if rs.filename == "" {
		return nil
	}

	data, err := json.MarshalIndent(rs.runs, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(rs.filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	// Write to temp file first for atomicity
	tmpFile := rs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpFile, rs.filename)
}

func (rs *RunStore) Load() error {
	data, err := os.ReadFile(rs.filename)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return json.Unmarshal(data, &rs.runs)
}
