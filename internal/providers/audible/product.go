package audible

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/providers/common"
)

// ProductPage scrapes /pd/{asin} pages.
type ProductPage struct {
	provider *Provider
}

func (p *ProductPage) Name() string {
	return "audible-product"
}

// Scrape returns nil without error when the page is missing or carries no title.
func (p *ProductPage) Scrape(ctx context.Context, asin string) (*domain.BookMetadata, error) {
	asin = strings.ToUpper(strings.TrimSpace(asin))
	if asin == "" {
		return nil, nil
	}
	doc, err := p.provider.pages.Fetch(ctx, p.provider.productURL(asin), "product")
	if err != nil {
		if errors.Is(err, common.ErrPageNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if common.IsUnavailablePage(doc) {
		return nil, nil
	}
	meta := parseProductPage(doc)
	if meta.Title == "" {
		return nil, nil
	}
	meta.ASIN = asin
	meta.Source = "Audible"
	return &meta, nil
}

func parseProductPage(doc *goquery.Document) domain.BookMetadata {
	meta, _ := common.ExtractJSONLD(doc)

	details := doc.Find("adbl-product-details").First()
	if details.Length() == 0 {
		details = doc.Selection
	}

	meta.Title = common.FirstNonEmpty(
		meta.Title,
		common.TextOf(doc.Find("h1.bc-heading")),
		doc.Find(`meta[property="og:title"]`).AttrOr("content", ""),
	)
	meta.Subtitle = common.FirstNonEmpty(meta.Subtitle, common.TextOf(doc.Find("li.subtitle, span.subtitle")))
	if len(meta.Authors) == 0 {
		meta.Authors = linkNames(details, `a[href*="/author/"]`)
	}
	if len(meta.Narrators) == 0 {
		meta.Narrators = linkNames(details, `a[href*="searchNarrator"], a[href*="/narrator/"]`)
	}
	if len(meta.Narrators) == 0 {
		meta.Narrators = common.SplitNames(common.TextOf(doc.Find("li.narratorLabel")))
	}
	meta.Description = common.FirstNonEmpty(
		meta.Description,
		common.TextOf(doc.Find(`adbl-text-block[slot="summary"]`)),
		common.TextOf(doc.Find(".productPublisherSummary")),
	)
	if meta.RuntimeMinutes == 0 {
		meta.RuntimeMinutes = common.ParseRuntimeMinutes(common.TextOf(doc.Find("li.runtimeLabel")))
	}
	if meta.PublishYear == 0 {
		meta.PublishYear = releaseYear(common.TextOf(doc.Find("li.releaseDateLabel")))
	}
	meta.Language = common.FirstNonEmpty(meta.Language, common.CleanLanguage(common.TextOf(doc.Find("li.languageLabel"))))
	if label := common.TextOf(doc.Find("li.seriesLabel")); label != "" {
		meta.Series, meta.SeriesNumber = common.ParseSeriesLabel(label)
	}
	if meta.ImageURL == "" {
		meta.ImageURL = common.CleanImageURL(common.FirstNonEmpty(
			doc.Find(`meta[property="og:image"]`).AttrOr("content", ""),
			doc.Find("img.bc-image-inset-border").AttrOr("src", ""),
		))
	}
	if len(meta.Genres) == 0 {
		doc.Find("adbl-chip, .bc-chip-text").Each(func(_ int, chip *goquery.Selection) {
			if genre := common.TextOf(chip); genre != "" {
				meta.Genres = appendUnique(meta.Genres, genre)
			}
		})
	}
	if meta.Series == "" {
		if base, series, number, ok := common.SplitSeriesTitle(meta.Title); ok {
			meta.Title = base
			meta.Series = series
			meta.SeriesNumber = number
		}
	}
	return meta
}

// releaseYear accepts a four-digit year anywhere or the storefront's MM-DD-YY.
func releaseYear(raw string) int {
	if year := common.ExtractYear(raw); year > 0 {
		return year
	}
	value := common.StripLabel(raw, "Release date")
	if parsed, err := time.Parse("01-02-06", value); err == nil {
		return parsed.Year()
	}
	return 0
}

func linkNames(scope *goquery.Selection, selector string) []string {
	var out []string
	scope.Find(selector).Each(func(_ int, link *goquery.Selection) {
		for _, name := range common.SplitNames(link.Text()) {
			out = appendUnique(out, name)
		}
	})
	return out
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if strings.EqualFold(existing, value) {
			return values
		}
	}
	return append(values, value)
}
