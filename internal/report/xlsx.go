package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/xuri/excelize/v2"
)

const DefaultSheet = "Catalog"

// XLSXWriter builds the workbook in memory and saves it on Finalize.
type XLSXWriter struct {
	mu        sync.Mutex
	path      string
	sheet     string
	file      *excelize.File
	rows      int
	err       error
	finalized bool
}

func NewXLSXWriter(path, sheet string) *XLSXWriter {
	if sheet == "" {
		sheet = DefaultSheet
	}

	f := excelize.NewFile()
	w := &XLSXWriter{
		path:  path,
		sheet: sheet,
		file:  f,
	}

	// rename the default sheet so the workbook holds a single sheet
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		w.err = fmt.Errorf("failed to name sheet: %w", err)
		return w
	}
	w.err = w.writeRow(1, models.ReportHeader)

	return w
}

func (w *XLSXWriter) Append(product models.ProductRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrFinalized
	}
	if w.err != nil {
		return w.err
	}

	// row 1 holds the header
	if err := w.writeRow(w.rows+2, product.Row()); err != nil {
		return err
	}
	w.rows++
	return nil
}

func (w *XLSXWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true
	defer w.file.Close()

	if w.err != nil {
		return w.err
	}

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Abort drops the in-memory workbook without saving it.
func (w *XLSXWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true

	return w.file.Close()
}

func (w *XLSXWriter) writeRow(row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}

	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}
