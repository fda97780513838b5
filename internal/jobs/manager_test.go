package jobs

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, serverURL string, store *storage.RunStore) *Manager {
	t.Helper()

	spb := testStore("11")
	spb.City = "spb"

	m := NewManager(newTestPipeline(serverURL, nil), store, ManagerConfig{
		CatalogURL: serverURL + "/catalog?page={page}",
		Stores:     []models.StoreContext{testStore("10"), spb},
		ReportDir:  t.TempDir(),
		ReportExt:  ".xlsx",
	}, nil)
	t.Cleanup(m.Close)
	return m
}

func TestManagerRunLifecycle(t *testing.T) {
	server := httptest.NewServer(newTestSite())
	defer server.Close()

	store, err := storage.NewRunStore("")
	require.NoError(t, err)
	m := newTestManager(t, server.URL, store)

	run, err := m.StartRun(RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)
	assert.Equal(t, ".xlsx", filepath.Ext(run.ReportPath))

	m.Wait()

	got, err := m.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 2, got.Succeeded)
	assert.Equal(t, 4, got.ProductCount)
	assert.Len(t, got.Contexts, 2)
	assert.Nil(t, got.Products)
	assert.NotNil(t, got.CompletedAt)
	assert.FileExists(t, got.ReportPath)

	products, err := m.GetRunProducts(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, products, 4)
	assert.Equal(t, "1001", products[0].ArticleNumber)

	runs := m.ListRuns()
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].Contexts)

	stats := m.GetStats()
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.CompletedRuns)
	assert.Equal(t, float64(100), stats.SuccessRate)
}

func TestManagerCityFilter(t *testing.T) {
	server := httptest.NewServer(newTestSite())
	defer server.Close()

	store, err := storage.NewRunStore("")
	require.NoError(t, err)
	m := newTestManager(t, server.URL, store)

	run, err := m.StartRun(RunRequest{City: "spb"})
	require.NoError(t, err)
	m.Wait()

	got, err := m.GetRun(run.ID)
	require.NoError(t, err)
	require.Len(t, got.Contexts, 1)
	assert.Equal(t, "11", got.Contexts[0].Store.ID)
	assert.Equal(t, 2, got.ProductCount)

	_, err = m.StartRun(RunRequest{City: "kazan"})
	assert.ErrorIs(t, err, ErrNoStores)
}

func TestManagerUnknownRun(t *testing.T) {
	store, err := storage.NewRunStore("")
	require.NoError(t, err)
	m := newTestManager(t, "http://127.0.0.1:0", store)

	_, err = m.GetRun("missing")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)

	_, err = m.GetRunProducts(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestManagerFailsInterruptedRuns(t *testing.T) {
	store, err := storage.NewRunStore("")
	require.NoError(t, err)
	require.NoError(t, store.Save(&models.Run{ID: "stale", Status: models.RunStatusRunning}))
	require.NoError(t, store.Save(&models.Run{ID: "done", Status: models.RunStatusCompleted}))

	m := newTestManager(t, "http://127.0.0.1:0", store)

	stale, err := m.GetRun("stale")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stale.Status)
	assert.Equal(t, "interrupted", stale.Error)

	done, err := m.GetRun("done")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, done.Status)
}

func TestManagerClosed(t *testing.T) {
	store, err := storage.NewRunStore("")
	require.NoError(t, err)
	m := newTestManager(t, "http://127.0.0.1:0", store)

	m.Close()
	_, err = m.StartRun(RunRequest{})
	assert.ErrorIs(t, err, ErrClosed)
}

type stubProductSource struct {
	products []models.ProductRecord
	err      error
	calls    int
}

func (s *stubProductSource) GetRunProducts(ctx context.Context, runID string) ([]models.ProductRecord, error) {
	s.calls++
	return s.products, s.err
}

func TestManagerProductSource(t *testing.T) {
	stored := []models.ProductRecord{{ArticleNumber: "1001", ProductLink: "https://example.com/p/1"}}
	persisted := []models.ProductRecord{{ArticleNumber: "2002", ProductLink: "https://example.com/p/2"}}

	newManager := func(t *testing.T, src *stubProductSource) *Manager {
		store, err := storage.NewRunStore("")
		require.NoError(t, err)
		require.NoError(t, store.Save(&models.Run{ID: "done", Status: models.RunStatusCompleted, ProductCount: 1, Products: stored}))
		require.NoError(t, store.Save(&models.Run{ID: "broken", Status: models.RunStatusFailed}))

		m := newTestManager(t, "http://127.0.0.1:0", store)
		m.UseProductSource(src)
		return m
	}

	t.Run("persisted products win", func(t *testing.T) {
		m := newManager(t, &stubProductSource{products: persisted})
		products, err := m.GetRunProducts(context.Background(), "done")
		require.NoError(t, err)
		assert.Equal(t, persisted, products)
	})

	t.Run("source error falls back to run store", func(t *testing.T) {
		m := newManager(t, &stubProductSource{err: errors.New("connection refused")})
		products, err := m.GetRunProducts(context.Background(), "done")
		require.NoError(t, err)
		assert.Equal(t, stored, products)
	})

	t.Run("unpersisted run falls back to run store", func(t *testing.T) {
		m := newManager(t, &stubProductSource{})
		products, err := m.GetRunProducts(context.Background(), "done")
		require.NoError(t, err)
		assert.Equal(t, stored, products)
	})

	t.Run("unfinished runs skip the source", func(t *testing.T) {
		src := &stubProductSource{products: persisted}
		m := newManager(t, src)
		products, err := m.GetRunProducts(context.Background(), "broken")
		require.NoError(t, err)
		assert.Empty(t, products)
		assert.Zero(t, src.calls)

		_, err = m.GetRunProducts(context.Background(), "missing")
		assert.ErrorIs(t, err, storage.ErrRunNotFound)
	})
}
