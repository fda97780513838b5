package document

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// View is the query surface every extractor works against. The class
// argument may hold several space separated classes; all of them must be
// present on a matching element. An empty tag matches any element.
type View interface {
	Find(tag, class string) (View, bool)
	FindAll(tag, class string) []View
	Attr(name string) (string, bool)
	Text() string
}

type GoqueryView struct {
	sel *goquery.Selection
}

// Parse builds a View over an HTML document.
func Parse(html string) (*GoqueryView, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &GoqueryView{sel: doc.Selection}, nil
}

func (v *GoqueryView) Find(tag, class string) (View, bool) {
	found := v.sel.Find(selector(tag, class)).First()
	if found.Length() == 0 {
		return nil, false
	}
	return &GoqueryView{sel: found}, true
}

func (v *GoqueryView) FindAll(tag, class string) []View {
	var views []View
	v.sel.Find(selector(tag, class)).Each(func(i int, s *goquery.Selection) {
		views = append(views, &GoqueryView{sel: s})
	})
	return views
}

func (v *GoqueryView) Attr(name string) (string, bool) {
	return v.sel.Attr(name)
}

func (v *GoqueryView) Text() string {
	return strings.TrimSpace(v.sel.Text())
}

func selector(tag, class string) string {
	var b strings.Builder
	b.WriteString(tag)
	for _, c := range strings.Fields(class) {
		b.WriteString(".")
		b.WriteString(c)
	}
	if b.Len() == 0 {
		return "*"
	}
	return b.String()
}
