package parser

import (
	"fmt"

	"github.com/maltedev/catalog-scraper/internal/document"
	"github.com/maltedev/catalog-scraper/internal/models"
)

// ExtractPrice reads the regular and promo price from a listing card.
//
// A card shows either one ruble amount (regular price only) or two (promo
// first, then regular). Penny parts are attached only when their count
// matches the ruble count.
func (p *CatalogParser) ExtractPrice(card document.View) (models.PriceRecord, error) {
	rubles := card.FindAll("span", rublesClass)
	pennies := card.FindAll("span", pennyClass)

	switch len(rubles) {
	case 1:
		regular := rubles[0].Text()
		if len(pennies) == 1 {
			regular += pennies[0].Text()
		}
		return models.NewPriceRecord(regular, ""), nil

	case 2:
		promo, regular := rubles[0].Text(), rubles[1].Text()
		if len(pennies) == 2 {
			promo += pennies[0].Text()
			regular += pennies[1].Text()
		}
		return models.NewPriceRecord(regular, promo), nil
	}

	return models.PriceRecord{}, fmt.Errorf("%w: %d ruble and %d penny elements",
		ErrUnexpectedPriceLayout, len(rubles), len(pennies))
}
