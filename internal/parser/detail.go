package parser

import (
	"fmt"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/document"
	"github.com/maltedev/catalog-scraper/internal/models"
)

// ParseProductPage builds the product record for a card from its detail page.
// Extraction is best effort: a field that cannot be resolved stays empty and
// the reason is logged.
func (p *CatalogParser) ParseProductPage(html string, card models.CardRef) (*models.ProductRecord, error) {
	doc, err := document.Parse(html)
	if err != nil {
		return nil, err
	}

	product := &models.ProductRecord{
		ProductLink:  card.ProductLink,
		RegularPrice: card.Price.Regular,
		PromoPrice:   card.Price.Promo,
	}

	brand, err := p.ExtractBrand(doc)
	if err != nil {
		p.logger.Warn("brand not resolved", "url", card.ProductLink, "error", err)
	}
	product.Brand = brand

	product.ArticleNumber = p.ExtractArticleNumber(doc)
	if product.ArticleNumber == "" {
		p.logger.Warn("article number not found", "url", card.ProductLink)
	}

	product.Name = p.ExtractName(doc)

	return product, nil
}

// ExtractBrand finds the brand among the short attribute list. Labels and
// linked values are matched by position, so a product whose attribute links
// do not line up with their labels can yield the wrong brand.
func (p *CatalogParser) ExtractBrand(doc document.View) (string, error) {
	list, ok := doc.Find("ul", attributeListClass)
	if !ok {
		return "", nil
	}

	values := list.FindAll("a", attributeLinkClass)
	if len(values) == 0 {
		return "", nil
	}

	index := -1
	for i, label := range list.FindAll("span", attributeNameClass) {
		if strings.TrimSpace(strings.ReplaceAll(label.Text(), "\n", "")) == brandLabel {
			index = i
			break
		}
	}
	if index < 0 {
		return "", ErrBrandLabelNotFound
	}

	if index >= len(values) {
		return "", fmt.Errorf("brand label at position %d but only %d attribute links", index, len(values))
	}

	return strings.ReplaceAll(values[index].Text(), " ", ""), nil
}

// ExtractArticleNumber returns the text after the last colon of the article
// line, e.g. "Артикул: 123456" gives "123456".
func (p *CatalogParser) ExtractArticleNumber(doc document.View) string {
	article, ok := doc.Find("p", articleClass)
	if !ok {
		return ""
	}

	text := models.StripSpaces(article.Text())
	if i := strings.LastIndex(text, ":"); i >= 0 {
		text = text[i+1:]
	}
	return text
}

func (p *CatalogParser) ExtractName(doc document.View) string {
	heading, ok := doc.Find("h1", productHeadingClass)
	if !ok {
		return ""
	}

	span, ok := heading.Find("span", "")
	if !ok {
		return ""
	}

	return strings.TrimSpace(strings.ReplaceAll(span.Text(), "\n", ""))
}
