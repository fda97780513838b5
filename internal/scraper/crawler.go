package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/document"
	"github.com/maltedev/catalog-scraper/internal/fetcher"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
)

var (
	ErrListingFetch = errors.New("listing page fetch failed")
	ErrCrawlDone    = errors.New("crawl already finished")
)

// PagePlaceholder marks where the page number goes in a catalog URL
// template. Templates without it get the number appended.
const PagePlaceholder = "{page}"

// PageURL builds the listing URL of the given page.
func PageURL(template string, page int) string {
	n := strconv.Itoa(page)
	if strings.Contains(template, PagePlaceholder) {
		return strings.ReplaceAll(template, PagePlaceholder, n)
	}
	return template + n
}

// ListingPage is one crawled listing page.
type ListingPage struct {
	Number       int
	URL          string
	Address      string
	Reported     []int
	Cards        []models.CardRef
	TotalCards   int
	PickupOnly   int
	PriceSkipped int
}

// ListingCrawler walks the listing pages of one store context in order,
// starting at page 1. It stops as soon as the requested page is missing from
// the page numbers the site itself reports.
type ListingCrawler struct {
	fetcher     fetcher.PageFetcher
	parser      *parser.CatalogParser
	urlTemplate string
	profile     fetcher.RequestProfile
	logger      *slog.Logger

	page int
	done bool
}

func NewListingCrawler(f fetcher.PageFetcher, p *parser.CatalogParser, urlTemplate string, profile fetcher.RequestProfile, logger *slog.Logger) *ListingCrawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingCrawler{
		fetcher:     f,
		parser:      p,
		urlTemplate: urlTemplate,
		profile:     profile,
		logger:      logger.With("component", "listing_crawler"),
		page:        1,
	}
}

// Done reports whether the crawler reached the end of the catalog.
func (c *ListingCrawler) Done() bool {
	return c.done
}

// Next fetches the next listing page. It returns false once the requested
// page is not reported by the pagination control; any error ends the crawl.
func (c *ListingCrawler) Next(ctx context.Context) (*ListingPage, bool, error) {
	if c.done {
		return nil, false, ErrCrawlDone
	}

	pageURL := PageURL(c.urlTemplate, c.page)

	html, err := c.fetcher.Fetch(ctx, pageURL, c.profile)
	if err != nil {
		c.done = true
		return nil, false, fmt.Errorf("%w: page %d: %w", ErrListingFetch, c.page, err)
	}

	doc, err := document.Parse(html)
	if err != nil {
		c.done = true
		return nil, false, fmt.Errorf("%w: page %d: %v", parser.ErrMalformedListingPage, c.page, err)
	}

	reported := c.parser.ExtractPageNumbers(doc)
	if !reported.Contains(c.page) {
		c.logger.Info("requested page not listed, crawl finished",
			"page", c.page,
			"reported", reported.Sorted())
		c.done = true
		return nil, false, nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	cards, err := c.parser.ExtractCards(doc, base)
	if err != nil {
		c.done = true
		return nil, false, fmt.Errorf("page %d: %w", c.page, err)
	}

	page := &ListingPage{
		Number:       c.page,
		URL:          pageURL,
		Address:      c.parser.ExtractAddress(doc),
		Reported:     reported.Sorted(),
		TotalCards:   len(cards.Cards) + cards.PriceSkipped,
		PriceSkipped: cards.PriceSkipped,
	}

	for _, card := range cards.Cards {
		if card.PickupOnly {
			page.PickupOnly++
			continue
		}
		page.Cards = append(page.Cards, card)
	}

	c.logger.Info("listing page parsed",
		"page", page.Number,
		"address", page.Address,
		"cards", page.TotalCards,
		"orderable", len(page.Cards),
		"reported", page.Reported)

	c.page++
	return page, true, nil
}
