// Package extract holds the per-layout extraction strategies. Each strategy
// knows how a site paginates, where quote blocks live in its markup and, when
// the site has them, how to reach and read author profile pages.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// Registry returns one strategy per supported layout variant.
func Registry() map[crawler.Variant]crawler.Strategy {
	return map[crawler.Variant]crawler.Strategy{
		crawler.VariantPaginatedList:  Paginated{},
		crawler.VariantSinglePageList: SinglePage{},
	}
}

func parseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collectTags(sel *goquery.Selection) []string {
	tags := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if tag := cleanText(s.Text()); tag != "" {
			tags = append(tags, tag)
		}
	})
	return tags
}

// resolveHref makes href absolute against page. It returns "" when href is
// missing or malformed.
func resolveHref(page *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if page == nil {
		return ref.String()
	}
	abs := page.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String()
}

func pageString(page *url.URL) string {
	if page == nil {
		return ""
	}
	return page.String()
}
