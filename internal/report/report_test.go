package report

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var sampleProducts = []models.ProductRecord{
	{
		ArticleNumber: "1001",
		Name:          "Jacobs Monarch, 150г",
		ProductLink:   "https://online.metro-cc.ru/products/jacobs",
		RegularPrice:  "549,90",
		PromoPrice:    "399,50",
		Brand:         "Jacobs",
	},
	{
		ArticleNumber: "1002",
		Name:          "Moccona",
		ProductLink:   "https://online.metro-cc.ru/products/moccona",
		RegularPrice:  "799",
		PromoPrice:    "699",
		Brand:         "Moccona",
	},
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.csv")

	w, err := New(path, "")
	require.NoError(t, err)
	require.IsType(t, &CSVWriter{}, w)

	require.NoError(t, WriteAll(w, sampleProducts))

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, models.ReportHeader, rows[0])
	assert.Equal(t, sampleProducts[0].Row(), rows[1])
	assert.Equal(t, sampleProducts[1].Row(), rows[2])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCSVWriterHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")

	w, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	rows := readCSV(t, path)
	assert.Equal(t, [][]string{models.ReportHeader}, rows)
	assert.Zero(t, w.Rows())
}

func TestCSVWriterFinalizeOnce(t *testing.T) {
	w, err := NewCSVWriter(filepath.Join(t.TempDir(), "once.csv"))
	require.NoError(t, err)

	require.NoError(t, w.Append(sampleProducts[0]))
	require.NoError(t, w.Finalize())

	assert.ErrorIs(t, w.Finalize(), ErrFinalized)
	assert.ErrorIs(t, w.Append(sampleProducts[1]), ErrFinalized)
	assert.Equal(t, 1, w.Rows())
}

// flakyWriter fails the Append with index failAt and forwards the rest.
type flakyWriter struct {
	Writer
	failAt  int
	appends int
}

func (f *flakyWriter) Append(p models.ProductRecord) error {
	f.appends++
	if f.appends == f.failAt {
		return errors.New("disk full")
	}
	return f.Writer.Append(p)
}

func TestWriteAllAbortsOnAppendFailure(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "result.csv")
		w, err := NewCSVWriter(path)
		require.NoError(t, err)

		err = WriteAll(&flakyWriter{Writer: w, failAt: 2}, sampleProducts)
		require.EqualError(t, err, "disk full")

		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))

		assert.ErrorIs(t, w.Finalize(), ErrFinalized)
		assert.ErrorIs(t, w.Abort(), ErrFinalized)
		assert.Equal(t, 1, w.Rows())
	})

	t.Run("xlsx", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "result.xlsx")
		w := NewXLSXWriter(path, "")

		err := WriteAll(&flakyWriter{Writer: w, failAt: 1}, sampleProducts)
		require.EqualError(t, err, "disk full")

		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))
		assert.ErrorIs(t, w.Finalize(), ErrFinalized)
	})
}

func TestCSVWriterAbortKeepsExistingReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	require.NoError(t, os.WriteFile(path, []byte("previous\n"), 0644))

	w, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(sampleProducts[0]))
	require.NoError(t, w.Abort())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(data))
}

func TestXLSXWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.xlsx")

	w, err := New(path, "Кофе")
	require.NoError(t, err)
	require.IsType(t, &XLSXWriter{}, w)

	require.NoError(t, WriteAll(w, sampleProducts))
	assert.ErrorIs(t, w.Finalize(), ErrFinalized)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Кофе"}, f.GetSheetList())

	rows, err := f.GetRows("Кофе")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.ReportHeader, rows[0])
	assert.Equal(t, sampleProducts[0].Row(), rows[1])
	assert.Equal(t, sampleProducts[1].Row(), rows[2])
}

func TestXLSXWriterHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")

	w := NewXLSXWriter(path, "")
	require.NoError(t, w.Finalize())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(DefaultSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{models.ReportHeader}, rows)
}
