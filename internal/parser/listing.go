package parser

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/document"
	"github.com/maltedev/catalog-scraper/internal/models"
)

// PageNumbers is the set of listing pages the pagination control reports as
// navigable.
type PageNumbers map[int]struct{}

func (n PageNumbers) Contains(page int) bool {
	_, ok := n[page]
	return ok
}

// Sorted returns the page numbers in ascending order.
func (n PageNumbers) Sorted() []int {
	pages := make([]int, 0, len(n))
	for page := range n {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// ListingCards holds the cards of one listing page.
type ListingCards struct {
	Cards []models.CardRef
	// PriceSkipped counts orderable cards dropped for an unknown price layout.
	PriceSkipped int
}

// ExtractPageNumbers reads the pagination control. Page 1 is always part of
// the result and the active page is added when it is flagged.
func (p *CatalogParser) ExtractPageNumbers(doc document.View) PageNumbers {
	pages := PageNumbers{1: {}}

	items := doc.FindAll("a", paginationItemClass)
	if active, ok := doc.Find("a", paginationActiveClass); ok {
		items = append(items, active)
	}

	for _, item := range items {
		n, err := strconv.Atoi(strings.TrimSpace(item.Text()))
		if err != nil || n < 1 {
			continue
		}
		pages[n] = struct{}{}
	}

	return pages
}

// ExtractAddress returns the store address shown in the page header, if any.
func (p *CatalogParser) ExtractAddress(doc document.View) string {
	header, ok := doc.Find("div", addressClass)
	if !ok {
		return ""
	}
	button, ok := header.Find("button", "")
	if !ok {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(button.Text(), "\n", ""))
}

// ExtractCards reads every product card of a listing page. Links are resolved
// against base. A card without a link makes the whole page malformed; a card
// with an unknown price layout is skipped.
func (p *CatalogParser) ExtractCards(doc document.View, base *url.URL) (*ListingCards, error) {
	result := &ListingCards{}

	for i, card := range doc.FindAll("div", cardClass) {
		link, err := cardLink(card, base)
		if err != nil {
			return nil, fmt.Errorf("%w: card %d: %v", ErrMalformedListingPage, i, err)
		}

		if isPickupOnly(card) {
			result.Cards = append(result.Cards, models.CardRef{
				ProductLink: link,
				PickupOnly:  true,
			})
			continue
		}

		price, err := p.ExtractPrice(card)
		if err != nil {
			p.logger.Warn("skipping card", "url", link, "error", err)
			result.PriceSkipped++
			continue
		}

		result.Cards = append(result.Cards, models.CardRef{
			ProductLink: link,
			Price:       price,
		})
	}

	return result, nil
}

func cardLink(card document.View, base *url.URL) (string, error) {
	anchor, ok := card.Find("a", "")
	if !ok {
		return "", fmt.Errorf("no product link")
	}

	href, ok := anchor.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", fmt.Errorf("product link without href")
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid product link %q: %w", href, err)
	}

	if base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}

func isPickupOnly(card document.View) bool {
	button, ok := card.Find("span", cardButtonClass)
	if !ok {
		return false
	}
	return button.Text() == pickupOnlyText
}
