package models

import (
	"strconv"
	"strings"
	"time"
)

// ReportHeader is the fixed column order of every report row.
var ReportHeader = []string{"Id", "Name", "Link", "RegularPrice", "PromoPrice", "Brand"}

// StoreContext is the identity used to request one store's view of the catalog.
type StoreContext struct {
	ID       string            `json:"id" yaml:"id"`
	City     string            `json:"city" yaml:"city"`
	Name     string            `json:"name,omitempty" yaml:"name"`
	Identity map[string]string `json:"identity" yaml:"identity"`
}

// PriceRecord holds the normalized prices shown on a listing card.
// An empty Promo means no promotion is active.
type PriceRecord struct {
	Regular string `json:"regular_price"`
	Promo   string `json:"promo_price,omitempty"`
}

// NewPriceRecord strips whitespace from both prices and drops a promo price
// that is not strictly positive.
func NewPriceRecord(regular, promo string) PriceRecord {
	regular = StripSpaces(regular)
	promo = StripSpaces(promo)

	if !isPositive(promo) {
		promo = ""
	}

	return PriceRecord{
		Regular: regular,
		Promo:   promo,
	}
}

// CardRef is one product tile of a listing page.
type CardRef struct {
	ProductLink string
	Price       PriceRecord
	PickupOnly  bool
}

// ProductRecord is the unit of output. Empty strings mean the field could
// not be resolved.
type ProductRecord struct {
	ArticleNumber string `json:"article_number,omitempty"`
	Name          string `json:"name,omitempty"`
	ProductLink   string `json:"product_link"`
	RegularPrice  string `json:"regular_price"`
	PromoPrice    string `json:"promo_price,omitempty"`
	Brand         string `json:"brand,omitempty"`
}

func (p *ProductRecord) HasArticle() bool {
	return p.ArticleNumber != ""
}

// Row returns the record in ReportHeader order.
func (p *ProductRecord) Row() []string {
	return []string{
		p.ArticleNumber,
		p.Name,
		p.ProductLink,
		p.RegularPrice,
		p.PromoPrice,
		p.Brand,
	}
}

type ContextStatus string

const (
	ContextStatusPending ContextStatus = "pending"
	ContextStatusRunning ContextStatus = "running"
	ContextStatusDone    ContextStatus = "done"
	ContextStatusFailed  ContextStatus = "failed"
)

// CrawlStats counts what happened while crawling one store context.
type CrawlStats struct {
	Pages          int `json:"pages"`
	Cards          int `json:"cards"`
	PickupOnly     int `json:"pickup_only"`
	PriceSkipped   int `json:"price_skipped"`
	DetailFailures int `json:"detail_failures"`
	Records        int `json:"records"`
}

// ContextResult is the outcome of crawling one store context.
type ContextResult struct {
	Store       StoreContext    `json:"store"`
	Status      ContextStatus   `json:"status"`
	Stats       CrawlStats      `json:"stats"`
	Records     []ProductRecord `json:"-"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// StripSpaces removes every whitespace rune from s.
func StripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func isPositive(price string) bool {
	if price == "" {
		return false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(price, ",", "."), 64)
	if err != nil {
		return false
	}
	return v > 0
}
