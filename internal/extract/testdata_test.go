package extract

import (
	"testing"

	"github.com/RecoveryAshes/reviewcrawler/internal/models"
	"github.com/stretchr/testify/require"
)

const (
	sourceURL = "https://example.com/reviews"

	listingHTML = `<html><body>
<div class="review-item" data-page="1"><a class="title" href="/r/1">Game One</a></div>
<div class="review-item" data-page="1"><a class="title" href="/r/2">Game Two</a></div>
<a class="load-more" href="#">Ver más</a>
</body></html>`

	reviewOneHTML = `<html><body>
<h1>Game One análisis</h1>
<span class="platform">PC</span><span class="platform">PS5</span>
<span class="score">8,5</span>
<time class="date" datetime="">12 de marzo de 2021</time>
<span class="author">Ana</span>
<a class="genres" href="/g/1">Ficha</a>
</body></html>`

	reviewTwoHTML = `<html><body>
<h1>Game Two análisis</h1>
<span class="platform">Switch</span>
<span class="score"></span>
<time class="date">1 de enero de 2022</time>
<a class="genres" href="/g/2">Ficha</a>
</body></html>`

	genresHTML = `<html><body><ul><li class="genre">Action</li></ul></body></html>`
)

func testTemplate(t *testing.T) *SiteTemplate {
	t.Helper()

	tmpl, err := NewSiteTemplate(TemplateConfig{
		Selectors: Selectors{
			ListingItem: ".review-item",
			ListingLink: "a.title",
			LoadMore:    ".load-more",
			Title:       "h1",
			Platforms:   ".platform",
			Score:       ".score",
			Reviewer:    ".author",
			PublishedAt: ".date",
			Hop2Link:    "a.genres",
			Tags:        ".genre",
		},
		ScoreMin: 0,
		ScoreMax: 10,
	})
	require.NoError(t, err)
	return tmpl
}

func testExtractor(t *testing.T, policy Hop2Policy) *Extractor {
	t.Helper()

	e, err := NewExtractor(testTemplate(t), Config{
		ListingTag:  "scroll",
		ReviewTag:   "delay",
		GenreTag:    models.TagNone,
		Hop2Failure: policy,
	})
	require.NoError(t, err)
	return e
}

func resolved(req *models.CrawlRequest, content string) *models.ResolvedDocument {
	return models.NewResolvedDocument(req, content, "")
}
