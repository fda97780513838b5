// Package catalogtest serves a fake store catalog for tests.
package catalogtest

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

const StoreCookie = "metroStoreId"

type Card struct {
	Slug       string
	Rubles     []string
	Pennies    []string
	PickupOnly bool
}

type Product struct {
	Article string
	Name    string
	Brand   string
}

// ListingHTML renders a listing page whose pagination reports the given
// page numbers, with active flagged as the current page.
func ListingHTML(active int, reported []int, cards []Card) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	b.WriteString(`<div class="header-address header-main__address"><button>Test store</button></div>`)
	b.WriteString(`<div class="catalog-paginate">`)
	for _, n := range reported {
		if n == active {
			fmt.Fprintf(&b, `<a class="v-pagination__item catalog-paginate__item nuxt-link-exact-active nuxt-link-active v-pagination__item--active">%d</a>`, n)
			continue
		}
		fmt.Fprintf(&b, `<a class="v-pagination__item catalog-paginate__item nuxt-link-active">%d</a>`, n)
	}
	b.WriteString(`</div>`)

	for _, card := range cards {
		fmt.Fprintf(&b, `<div class="product-card__content"><a href="/products/%s">%s</a>`, card.Slug, card.Slug)
		for _, r := range card.Rubles {
			fmt.Fprintf(&b, `<span class="product-price__sum-rubles">%s</span>`, r)
		}
		for _, p := range card.Pennies {
			fmt.Fprintf(&b, `<span class="product-price__sum-penny">%s</span>`, p)
		}
		button := "В корзину"
		if card.PickupOnly {
			button = "Только в торговом центре"
		}
		fmt.Fprintf(&b, `<span class="simple-button__text">%s</span></div>`, button)
	}

	b.WriteString(`</body></html>`)
	return b.String()
}

// ProductHTML renders a detail page. Empty fields are left out of the markup.
func ProductHTML(p Product) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	if p.Name != "" {
		fmt.Fprintf(&b, `<h1 class="product-page-content__product-name catalog-heading heading__h2"><span>%s</span></h1>`, p.Name)
	}
	if p.Article != "" {
		fmt.Fprintf(&b, `<p class="product-page-content__article">Артикул: %s</p>`, p.Article)
	}
	if p.Brand != "" {
		b.WriteString(`<ul class="product-attributes__list style--product-page-short-list">`)
		fmt.Fprintf(&b, `<li><span class="product-attributes__list-item-name-text">Бренд</span><a class="product-attributes__list-item-link reset-link active-blue-text">%s</a></li>`, p.Brand)
		b.WriteString(`</ul>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

// Site is a fake catalog. Listing pages live under /catalog?page=N and are
// selected by the store cookie; details live under /products/{slug}.
type Site struct {
	// Pages maps a store id to its listing pages, page 1 first.
	Pages map[string][][]Card
	// Products maps a slug to its detail page content.
	Products map[string]Product
	// FailListing makes every listing request of a store return 500.
	FailListing map[string]bool
	// FailDetail makes the detail page of a slug return 404.
	FailDetail map[string]bool

	mu       sync.Mutex
	requests []string
}

func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	store := ""
	if cookie, err := r.Cookie(StoreCookie); err == nil {
		store = cookie.Value
	}

	s.mu.Lock()
	s.requests = append(s.requests, store+" "+r.URL.RequestURI())
	s.mu.Unlock()

	switch {
	case r.URL.Path == "/catalog":
		s.serveListing(w, r, store)
	case strings.HasPrefix(r.URL.Path, "/products/"):
		s.serveProduct(w, strings.TrimPrefix(r.URL.Path, "/products/"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Site) serveListing(w http.ResponseWriter, r *http.Request, store string) {
	if s.FailListing[store] {
		http.Error(w, "listing unavailable", http.StatusInternalServerError)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	pages := s.Pages[store]
	reported := make([]int, 0, len(pages))
	for i := range pages {
		reported = append(reported, i+1)
	}

	var cards []Card
	if page <= len(pages) {
		cards = pages[page-1]
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(ListingHTML(page, reported, cards)))
}

func (s *Site) serveProduct(w http.ResponseWriter, slug string) {
	product, ok := s.Products[slug]
	if !ok || s.FailDetail[slug] {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(ProductHTML(product)))
}

// Requests returns every request seen so far as "store path?query".
func (s *Site) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts requests whose path starts with prefix.
func (s *Site) CountRequests(prefix string) int {
	n := 0
	for _, req := range s.Requests() {
		_, path, _ := strings.Cut(req, " ")
		if strings.HasPrefix(path, prefix) {
			n++
		}
	}
	return n
}
