package report

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/models"
)

var ErrFinalized = errors.New("report already finalized")

// Writer is a tabular sink. Finalize must be called exactly once, after the
// last Append; a report without rows still gets its header. Abort releases a
// sink that will not be finalized and leaves no partial report behind.
type Writer interface {
	Append(product models.ProductRecord) error
	Finalize() error
	Abort() error
}

// New picks the writer from the file extension: .xlsx gets a workbook,
// anything else CSV.
func New(path, sheet string) (Writer, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return NewXLSXWriter(path, sheet), nil
	}
	return NewCSVWriter(path)
}

// WriteAll appends every product and finalizes the report. A failed Append
// aborts the sink.
func WriteAll(w Writer, products []models.ProductRecord) error {
	for _, p := range products {
		if err := w.Append(p); err != nil {
			if abortErr := w.Abort(); abortErr != nil {
				return errors.Join(err, abortErr)
			}
			return err
		}
	}
	return w.Finalize()
}
