package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maltedev/catalog-scraper/internal/catalogtest"
	"github.com/maltedev/catalog-scraper/internal/fetcher"
	"github.com/maltedev/catalog-scraper/internal/logger"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSite() *catalogtest.Site {
	return &catalogtest.Site{
		Pages: map[string][][]catalogtest.Card{
			"10": {
				{
					{Slug: "jacobs", Rubles: []string{"399", "549"}, Pennies: []string{",50", ",90"}},
					{Slug: "nescafe", Rubles: []string{"299"}, PickupOnly: true},
				},
				{
					{Slug: "moccona", Rubles: []string{"799"}},
					{Slug: "broken", Rubles: []string{"100"}},
					{Slug: "egoiste", Rubles: []string{"1", "2", "3"}},
				},
			},
		},
		Products: map[string]catalogtest.Product{
			"jacobs":  {Article: "1001", Name: "Jacobs Monarch", Brand: "Jacobs"},
			"nescafe": {Article: "1002", Name: "Nescafe Gold", Brand: "Nescafe"},
			"moccona": {Article: "1003", Name: "Moccona"},
			"broken":  {Article: "1004"},
			"egoiste": {Article: "1005"},
		},
		FailDetail: map[string]bool{"broken": true},
	}
}

func newTestWorker(serverURL string) *ContextWorker {
	f := fetcher.NewHTTPFetcher(fetcher.Options{Timeout: time.Second}, nil)
	return NewContextWorker(f, parser.NewCatalogParser(nil), WorkerOptions{
		URLTemplate:       serverURL + "/catalog?page={page}",
		Headers:           map[string]string{"User-Agent": "test"},
		DetailConcurrency: 4,
	}, nil)
}

func TestContextWorkerRun(t *testing.T) {
	site := newTestSite()
	server := httptest.NewServer(site)
	defer server.Close()

	store := models.StoreContext{ID: "10", City: "moscow", Identity: map[string]string{catalogtest.StoreCookie: "10"}}

	var records []models.ProductRecord
	stats, err := newTestWorker(server.URL).Run(context.Background(), store, func(p models.ProductRecord) {
		records = append(records, p)
	})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "1001", records[0].ArticleNumber)
	assert.Equal(t, "Jacobs", records[0].Brand)
	assert.Equal(t, "549,90", records[0].RegularPrice)
	assert.Equal(t, "399,50", records[0].PromoPrice)
	assert.Equal(t, server.URL+"/products/jacobs", records[0].ProductLink)
	assert.Equal(t, "1003", records[1].ArticleNumber)
	assert.Empty(t, records[1].Brand)

	assert.Equal(t, models.CrawlStats{
		Pages:          2,
		Cards:          5,
		PickupOnly:     1,
		PriceSkipped:   1,
		DetailFailures: 1,
		Records:        2,
	}, stats)

	// pickup-only and unknown price layouts never reach the detail page
	assert.Zero(t, site.CountRequests("/products/nescafe"))
	assert.Zero(t, site.CountRequests("/products/egoiste"))
	assert.Equal(t, 3, site.CountRequests("/catalog"))
}

func TestContextWorkerListingFailure(t *testing.T) {
	site := newTestSite()
	site.FailListing = map[string]bool{"10": true}
	server := httptest.NewServer(site)
	defer server.Close()

	store := models.StoreContext{ID: "10", Identity: map[string]string{catalogtest.StoreCookie: "10"}}

	emitted := 0
	_, err := newTestWorker(server.URL).Run(context.Background(), store, func(models.ProductRecord) { emitted++ })
	assert.ErrorIs(t, err, ErrListingFetch)
	assert.Zero(t, emitted)
}

// orderingFetcher checks that no detail page is requested before the listing
// page that links to it.
type orderingFetcher struct {
	mu    sync.Mutex
	next  fetcher.PageFetcher
	order []string
}

func (o *orderingFetcher) Fetch(ctx context.Context, url string, profile fetcher.RequestProfile) (string, error) {
	o.mu.Lock()
	o.order = append(o.order, url)
	o.mu.Unlock()
	return o.next.Fetch(ctx, url, profile)
}

func TestContextWorkerPageOrdering(t *testing.T) {
	site := newTestSite()
	server := httptest.NewServer(site)
	defer server.Close()

	of := &orderingFetcher{next: fetcher.NewHTTPFetcher(fetcher.Options{Timeout: time.Second}, nil)}
	worker := NewContextWorker(of, parser.NewCatalogParser(nil), WorkerOptions{
		URLTemplate:       server.URL + "/catalog?page={page}",
		DetailConcurrency: 4,
	}, nil)

	store := models.StoreContext{ID: "10", Identity: map[string]string{catalogtest.StoreCookie: "10"}}
	_, err := worker.Run(context.Background(), store, func(models.ProductRecord) {})
	require.NoError(t, err)

	index := func(suffix string) int {
		for i, u := range of.order {
			if strings.HasSuffix(u, suffix) {
				return i
			}
		}
		return -1
	}

	assert.Less(t, index("page=1"), index("/products/jacobs"))
	assert.Less(t, index("/products/jacobs"), index("page=2"))
	assert.Less(t, index("page=2"), index("/products/moccona"))
	assert.Less(t, index("/products/moccona"), index("page=3"))
}

func TestContextWorkerCancelled(t *testing.T) {
	site := newTestSite()
	server := httptest.NewServer(site)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := models.StoreContext{ID: "10", Identity: map[string]string{catalogtest.StoreCookie: "10"}}
	_, err := newTestWorker(server.URL).Run(ctx, store, func(models.ProductRecord) {})
	assert.Error(t, err)
}

// gatedFetcher serves a one-page catalog whose second detail page is held
// back until release is closed.
type gatedFetcher struct {
	release chan struct{}
}

func (g *gatedFetcher) Fetch(ctx context.Context, url string, _ fetcher.RequestProfile) (string, error) {
	switch {
	case strings.HasSuffix(url, "page=1"):
		return catalogtest.ListingHTML(1, []int{1}, []catalogtest.Card{
			{Slug: "first", Rubles: []string{"100"}},
			{Slug: "second", Rubles: []string{"200"}},
		}), nil
	case strings.Contains(url, "page="):
		return catalogtest.ListingHTML(1, []int{1}, nil), nil
	case strings.HasSuffix(url, "/products/first"):
		return catalogtest.ProductHTML(catalogtest.Product{Article: "1"}), nil
	case strings.HasSuffix(url, "/products/second"):
		select {
		case <-g.release:
			return catalogtest.ProductHTML(catalogtest.Product{Article: "2"}), nil
		case <-time.After(2 * time.Second):
			return "", errors.New("second detail never released")
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", errors.New("unexpected url " + url)
}

func TestContextWorkerEmitsBeforePageCompletes(t *testing.T) {
	gf := &gatedFetcher{release: make(chan struct{})}
	worker := NewContextWorker(gf, parser.NewCatalogParser(nil), WorkerOptions{
		URLTemplate:       "http://shop.test/catalog?page={page}",
		DetailConcurrency: 2,
	}, nil)

	var records []models.ProductRecord
	stats, err := worker.Run(context.Background(), models.StoreContext{ID: "10"}, func(p models.ProductRecord) {
		records = append(records, p)
		if p.ArticleNumber == "1" {
			close(gf.release)
		}
	})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].ArticleNumber)
	assert.Equal(t, "2", records[1].ArticleNumber)
	assert.Zero(t, stats.DetailFailures)
}

func TestContextWorkerDetailWarningsCarryStore(t *testing.T) {
	site := newTestSite()
	server := httptest.NewServer(site)
	defer server.Close()

	var buf bytes.Buffer
	f := fetcher.NewHTTPFetcher(fetcher.Options{Timeout: time.Second}, nil)
	worker := NewContextWorker(f, parser.NewCatalogParser(nil), WorkerOptions{
		URLTemplate:       server.URL + "/catalog?page={page}",
		DetailConcurrency: 4,
	}, logger.NewWithWriter(&buf, "warn", "json"))

	store := models.StoreContext{ID: "10", City: "moscow", Identity: map[string]string{catalogtest.StoreCookie: "10"}}
	_, err := worker.Run(context.Background(), store, func(models.ProductRecord) {})
	require.NoError(t, err)

	var skipped []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		if strings.HasPrefix(entry["msg"].(string), "skipping product") {
			skipped = append(skipped, entry)
		}
	}

	require.Len(t, skipped, 1)
	assert.Equal(t, "10", skipped[0]["store"])
	assert.Equal(t, "moscow", skipped[0]["city"])
	assert.Equal(t, "context_worker", skipped[0]["component"])
	assert.Equal(t, server.URL+"/products/broken", skipped[0]["url"])
}
