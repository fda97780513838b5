package parser

import (
	"errors"
	"log/slog"
)

var (
	ErrUnexpectedPriceLayout = errors.New("unexpected price layout")
	ErrBrandLabelNotFound    = errors.New("brand label not found")
	ErrMalformedListingPage  = errors.New("malformed listing page")
)

const (
	// listing page
	paginationItemClass   = "v-pagination__item catalog-paginate__item nuxt-link-active"
	paginationActiveClass = "v-pagination__item catalog-paginate__item nuxt-link-exact-active nuxt-link-active v-pagination__item--active"
	cardClass             = "product-card__content"
	cardButtonClass       = "simple-button__text"
	addressClass          = "header-address header-main__address"
	pickupOnlyText        = "Только в торговом центре"

	// listing card prices
	rublesClass = "product-price__sum-rubles"
	pennyClass  = "product-price__sum-penny"

	// detail page
	attributeListClass  = "product-attributes__list style--product-page-short-list"
	attributeNameClass  = "product-attributes__list-item-name-text"
	attributeLinkClass  = "product-attributes__list-item-link reset-link active-blue-text"
	articleClass        = "product-page-content__article"
	productHeadingClass = "product-page-content__product-name catalog-heading heading__h2"
	brandLabel          = "Бренд"
)

// CatalogParser extracts listing cards, prices and product details from the
// catalog markup.
type CatalogParser struct {
	logger *slog.Logger
}

func NewCatalogParser(logger *slog.Logger) *CatalogParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogParser{
		logger: logger.With("component", "catalog_parser"),
	}
}
