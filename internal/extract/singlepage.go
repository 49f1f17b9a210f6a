package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// SinglePage handles the goodreads quotes layout: every quote is on the base
// page and there are no author profiles to follow.
type SinglePage struct{}

// Variant implements crawler.Strategy.
func (SinglePage) Variant() crawler.Variant { return crawler.VariantSinglePageList }

// PageURL implements crawler.Strategy. Only the base page exists.
func (SinglePage) PageURL(base *url.URL, _ int) string {
	return base.String()
}

// Extract implements crawler.Strategy. HasMore is always false.
func (SinglePage) Extract(body []byte, pageURL *url.URL) (crawler.Extraction, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return crawler.Extraction{}, err
	}

	var out crawler.Extraction
	doc.Find("div.quote").Each(func(_ int, block *goquery.Selection) {
		text := firstLine(block.Find("div.quoteText").First().Text())
		author := strings.TrimSuffix(cleanText(block.Find("span.authorOrTitle").First().Text()), ",")
		author = strings.TrimSpace(author)
		if text == "" || author == "" {
			out.Skipped++
			return
		}
		out.Records = append(out.Records, crawler.Record{
			Text:      text,
			Author:    author,
			Tags:      collectTags(block.Find("div.greyText.smallText a")),
			SourceURL: pageString(pageURL),
		})
	})
	return out, nil
}

// AuthorURL implements crawler.Strategy. Profiles are not supported.
func (SinglePage) AuthorURL(*url.URL, crawler.Record) (string, bool) {
	return "", false
}

// ExtractAuthor implements crawler.Strategy. Profiles are not supported.
func (SinglePage) ExtractAuthor([]byte) (string, bool) {
	return "", false
}

// firstLine returns the first non-blank line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
