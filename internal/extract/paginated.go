package extract

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// Paginated handles the quotes.toscrape.com layout: numbered list pages at
// {base}/page/{n}/ and one profile page per author.
type Paginated struct{}

// Variant implements crawler.Strategy.
func (Paginated) Variant() crawler.Variant { return crawler.VariantPaginatedList }

// PageURL implements crawler.Strategy.
func (Paginated) PageURL(base *url.URL, page int) string {
	if page < 1 {
		page = 1
	}
	return base.JoinPath("page", strconv.Itoa(page)+"/").String()
}

// Extract implements crawler.Strategy. A page without any quote block is the
// end of the list.
func (Paginated) Extract(body []byte, pageURL *url.URL) (crawler.Extraction, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return crawler.Extraction{}, err
	}

	var out crawler.Extraction
	blocks := doc.Find("div.quote")
	blocks.Each(func(_ int, block *goquery.Selection) {
		text := strings.TrimSpace(block.Find("span.text").First().Text())
		author := cleanText(block.Find("small.author").First().Text())
		if text == "" || author == "" {
			out.Skipped++
			return
		}
		href, _ := block.Find(`a[href*="/author/"]`).First().Attr("href")
		out.Records = append(out.Records, crawler.Record{
			Text:      text,
			Author:    author,
			Tags:      collectTags(block.Find("a.tag")),
			AuthorURL: resolveHref(pageURL, href),
			SourceURL: pageString(pageURL),
		})
	})
	out.HasMore = blocks.Length() > 0
	return out, nil
}

// AuthorURL implements crawler.Strategy. The link found next to the quote is
// preferred; otherwise the profile path is derived from the author's name.
func (Paginated) AuthorURL(base *url.URL, rec crawler.Record) (string, bool) {
	if rec.AuthorURL != "" {
		return rec.AuthorURL, true
	}
	if base == nil || rec.Author == "" {
		return "", false
	}
	slug := strings.ReplaceAll(rec.Author, " ", "-")
	return base.JoinPath("author", url.PathEscape(slug)+"/").String(), true
}

// ExtractAuthor implements crawler.Strategy.
func (Paginated) ExtractAuthor(body []byte) (string, bool) {
	doc, err := parseDocument(body)
	if err != nil {
		return "", false
	}
	bio := strings.TrimSpace(doc.Find("div.author-description").First().Text())
	return bio, bio != ""
}
