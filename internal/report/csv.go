package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maltedev/catalog-scraper/internal/models"
)

// CSVWriter writes to a temporary file next to the target and renames it
// into place on Finalize.
type CSVWriter struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	csv       *csv.Writer
	rows      int
	finalized bool
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	file, err := os.Create(path + ".tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	w := &CSVWriter{
		path: path,
		file: file,
		csv:  csv.NewWriter(file),
	}

	if err := w.csv.Write(models.ReportHeader); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	return w, nil
}

func (w *CSVWriter) Append(product models.ProductRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrFinalized
	}

	if err := w.csv.Write(product.Row()); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	w.rows++
	return nil
}

func (w *CSVWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true

	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.discard()
		return fmt.Errorf("failed to flush report: %w", err)
	}

	if err := w.file.Close(); err != nil {
		os.Remove(w.file.Name())
		return fmt.Errorf("failed to close report: %w", err)
	}

	return os.Rename(w.file.Name(), w.path)
}

// Abort closes the temporary file and removes it. The target path is left
// untouched.
func (w *CSVWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true

	return w.discard()
}

func (w *CSVWriter) discard() error {
	closeErr := w.file.Close()
	if err := os.Remove(w.file.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove partial report: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close report: %w", closeErr)
	}
	return nil
}

// Rows returns the number of appended rows.
func (w *CSVWriter) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}
