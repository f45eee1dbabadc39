package amazon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/providers/common"
)

// ProductPage scrapes /dp/{asin} pages for a single metadata record.
type ProductPage struct {
	provider *Provider
}

func (p *ProductPage) Name() string {
	return "amazon-product"
}

// Scrape returns nil without error when the page is missing, unavailable, or
// carries no title.
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
		slog.Debug("amazon product unavailable", slog.String("asin", asin))
		return nil, nil
	}

	meta := parseProductPage(doc)
	if meta.Title == "" {
		return nil, nil
	}
	meta.ASIN = asin
	meta.Source = "Amazon"
	return &meta, nil
}

func parseProductPage(doc *goquery.Document) domain.BookMetadata {
	meta, _ := common.ExtractJSONLD(doc)

	meta.Title = common.FirstNonEmpty(
		meta.Title,
		common.TextOf(doc.Find("#productTitle")),
		common.TextOf(doc.Find("h1#title")),
		doc.Find(`meta[property="og:title"]`).AttrOr("content", ""),
	)
	if meta.ImageURL == "" {
		meta.ImageURL = productImage(doc)
	}

	doc.Find("#audibleproductdetails_feature_div tr").Each(func(_ int, row *goquery.Selection) {
		label := strings.ToLower(common.TextOf(row.Find("th")))
		value := common.TextOf(row.Find("td"))
		if value == "" {
			return
		}
		switch {
		case strings.HasPrefix(label, "author"):
			if len(meta.Authors) == 0 {
				meta.Authors = common.SplitNames(value)
			}
		case strings.HasPrefix(label, "narrator"):
			if len(meta.Narrators) == 0 {
				meta.Narrators = common.SplitNames(value)
			}
		case strings.HasPrefix(label, "listening length"):
			meta.RuntimeMinutes = common.ParseRuntimeMinutes(value)
		case strings.HasPrefix(label, "publisher"):
			meta.Publisher = common.FirstNonEmpty(meta.Publisher, value)
		case strings.HasPrefix(label, "language"):
			meta.Language = common.FirstNonEmpty(meta.Language, common.CleanLanguage(value))
		case strings.Contains(label, "release date"):
			if meta.PublishYear == 0 {
				meta.PublishYear = common.ExtractYear(value)
			}
		case strings.HasPrefix(label, "version"):
			meta.Abridged = strings.Contains(strings.ToLower(value), "abridged") &&
				!strings.Contains(strings.ToLower(value), "unabridged")
		case strings.HasPrefix(label, "series"), strings.HasPrefix(label, "part of series"):
			series, number := parseSeriesRow(value)
			meta.Series = common.FirstNonEmpty(meta.Series, series)
			meta.SeriesNumber = common.FirstNonEmpty(meta.SeriesNumber, number)
		}
	})

	if len(meta.Authors) == 0 {
		meta.Authors = common.SplitNames(common.TextOf(doc.Find("#bylineInfo .author a, #bylineInfo a.contributorNameID")))
	}
	if meta.Language == "" {
		doc.Find("#detailBullets_feature_div li").EachWithBreak(func(_ int, item *goquery.Selection) bool {
			text := common.TextOf(item)
			if strings.HasPrefix(strings.ToLower(text), "language") {
				meta.Language = common.CleanLanguage(strings.ReplaceAll(text, "\u200f", ""))
				return false
			}
			return true
		})
	}
	if meta.Description == "" {
		meta.Description = common.FirstNonEmpty(
			common.TextOf(doc.Find("#bookDescription_feature_div")),
			common.TextOf(doc.Find("#productDescription")),
		)
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

// parseSeriesRow reads "Book 3 of 9: The Expanse" and "The Expanse, Book 3".
func parseSeriesRow(value string) (series, number string) {
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "book ") {
		fields := strings.Fields(value)
		if len(fields) >= 2 {
			number = strings.TrimSuffix(fields[1], ":")
		}
		if idx := strings.Index(value, ":"); idx >= 0 {
			return strings.TrimSpace(value[idx+1:]), number
		}
		return "", number
	}
	return common.ParseSeriesLabel(value)
}

func productImage(doc *goquery.Document) string {
	landing := doc.Find("#landingImage").First()
	if hires := landing.AttrOr("data-old-hires", ""); hires != "" {
		return common.CleanImageURL(hires)
	}
	if dynamic := landing.AttrOr("data-a-dynamic-image", ""); dynamic != "" {
		var variants map[string]json.RawMessage
		if json.Unmarshal([]byte(dynamic), &variants) == nil {
			for imageURL := range variants {
				if cleaned := common.CleanImageURL(imageURL); cleaned != "" {
					return cleaned
				}
			}
		}
	}
	return common.CleanImageURL(common.FirstNonEmpty(
		landing.AttrOr("src", ""),
		doc.Find("#imgBlkFront").AttrOr("src", ""),
		doc.Find(`meta[property="og:image"]`).AttrOr("content", ""),
	))
}
