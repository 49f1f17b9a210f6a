package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

const goodreadsPage = `<html><body><div class="leftContainer">
<div class="quote">
  <div class="quoteDetails">
    <div class="quoteText">
      “Be yourself; everyone else is already taken.”
    <br>  ―
    <span class="authorOrTitle">
      Oscar Wilde
    </span>
    </div>
    <div class="quoteFooter">
      <div class="greyText smallText left">
        tags:
          <a href="/quotes/tag/attributed-no-source">attributed-no-source</a>,
          <a href="/quotes/tag/be-yourself">be-yourself</a>
      </div>
    </div>
  </div>
</div>
<div class="quote">
  <div class="quoteDetails">
    <div class="quoteText">
      “So many books, so little time.”
    <br>  ―
    <span class="authorOrTitle">
      Frank Zappa,
    </span>
    <span><a class="authorOrTitle" href="/work/quotes/1">Whatever</a></span>
    </div>
  </div>
</div>
<div class="quote">
  <div class="quoteDetails">
    <div class="quoteText">
      “An orphaned quote.”
    </div>
  </div>
</div>
</div></body></html>`

func TestSinglePageExtract(t *testing.T) {
	t.Parallel()

	page := mustURL(t, "https://www.goodreads.com/quotes")
	got, err := SinglePage{}.Extract([]byte(goodreadsPage), page)
	require.NoError(t, err)
	require.False(t, got.HasMore)
	require.Equal(t, 1, got.Skipped)
	require.Len(t, got.Records, 2)

	require.Equal(t, "“Be yourself; everyone else is already taken.”", got.Records[0].Text)
	require.Equal(t, "Oscar Wilde", got.Records[0].Author)
	require.Equal(t, []string{"attributed-no-source", "be-yourself"}, got.Records[0].Tags)
	require.Equal(t, "https://www.goodreads.com/quotes", got.Records[0].SourceURL)
	require.Empty(t, got.Records[0].AuthorURL)

	require.Equal(t, "“So many books, so little time.”", got.Records[1].Text)
	require.Equal(t, "Frank Zappa", got.Records[1].Author)
	require.Empty(t, got.Records[1].Tags)
}

func TestSinglePageURLAndProfiles(t *testing.T) {
	t.Parallel()

	base := mustURL(t, "https://www.goodreads.com/quotes")
	s := SinglePage{}
	require.Equal(t, "https://www.goodreads.com/quotes", s.PageURL(base, 1))
	require.Equal(t, "https://www.goodreads.com/quotes", s.PageURL(base, 7))

	_, ok := s.AuthorURL(base, crawler.Record{Author: "Oscar Wilde"})
	require.False(t, ok)
	_, ok = s.ExtractAuthor([]byte("<div class=\"author-description\">x</div>"))
	require.False(t, ok)
}

func TestSinglePageEmpty(t *testing.T) {
	t.Parallel()

	got, err := SinglePage{}.Extract([]byte("<html></html>"), nil)
	require.NoError(t, err)
	require.False(t, got.HasMore)
	require.Empty(t, got.Records)
}
