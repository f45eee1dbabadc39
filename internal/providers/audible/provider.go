package audible

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/providers/common"
)

const (
	defaultEndpoint = "https://www.audible.com"
	siteName        = "audible"
	maxSearchHits   = 20
)

var (
	pdPattern   = regexp.MustCompile(`/pd/[^/?#]+/([A-Z0-9]{10})`)
	asinPattern = regexp.MustCompile(`\bB0[A-Z0-9]{8}\b`)
	// Storefront chrome that search layouts sometimes render as a heading.
	headerNoise = map[string]struct{}{
		"english - usd":      {},
		"audible":            {},
		"audible.com":        {},
		"browse":             {},
		"sign in":            {},
		"search results":     {},
		"try standard free":  {},
		"listen anytime":     {},
		"best sellers":       {},
		"new releases":       {},
		"whispersync":        {},
		"audible originals":  {},
		"podcasts":           {},
		"membership details": {},
	}
)

type Config struct {
	Endpoint      string
	UserAgent     string
	Client        *http.Client
	RatePerSecond float64
}

// Provider searches the Audible catalog.
type Provider struct {
	baseURL *url.URL
	pages   *common.PageClient
}

func NewProvider(cfg Config) *Provider {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	baseURL, err := url.Parse(endpoint)
	if err != nil || baseURL.Host == "" {
		baseURL, _ = url.Parse(defaultEndpoint)
	}
	return &Provider{
		baseURL: baseURL,
		pages: common.NewPageClient(common.PageConfig{
			Site:          siteName,
			UserAgent:     cfg.UserAgent,
			Client:        cfg.Client,
			RatePerSecond: cfg.RatePerSecond,
		}),
	}
}

func (p *Provider) Name() string {
	return "Audible"
}

func (p *Provider) Search(ctx context.Context, query string) ([]domain.CatalogHit, error) {
	searchURL := p.resolve("/search", url.Values{
		"keywords":           {strings.TrimSpace(query)},
		"ipRedirectOverride": {"true"},
	})
	doc, err := p.pages.Fetch(ctx, searchURL, "search")
	if err != nil {
		if errors.Is(err, common.ErrPageNotFound) {
			return []domain.CatalogHit{}, nil
		}
		return nil, err
	}
	hits := parseSearchResults(doc, p.baseURL)
	slog.Debug("audible search parsed",
		slog.String("query", query),
		slog.Int("hits", len(hits)),
	)
	return hits, nil
}

func (p *Provider) ProductPage() *ProductPage {
	return &ProductPage{provider: p}
}

func (p *Provider) productURL(asin string) string {
	return p.resolve("/pd/"+url.PathEscape(asin), url.Values{"ipRedirectOverride": {"true"}})
}

func (p *Provider) resolve(path string, query url.Values) string {
	ref := &url.URL{Path: path}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	return p.baseURL.ResolveReference(ref).String()
}

func parseSearchResults(doc *goquery.Document, baseURL *url.URL) []domain.CatalogHit {
	hits := make([]domain.CatalogHit, 0, maxSearchHits)
	seen := make(map[string]struct{}, maxSearchHits)
	doc.Find("li.productListItem").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		hit := extractItem(item)
		if hit.ASIN == "" || isHeaderNoise(hit.Title) {
			return true
		}
		if _, dup := seen[hit.ASIN]; dup {
			return true
		}
		seen[hit.ASIN] = struct{}{}
		hit.ProductURL = baseURL.ResolveReference(&url.URL{Path: "/pd/" + hit.ASIN}).String()
		hits = append(hits, hit)
		return len(hits) < maxSearchHits
	})
	return hits
}

func extractItem(item *goquery.Selection) domain.CatalogHit {
	titleLink := item.Find("h3 a").First()
	href := titleLink.AttrOr("href", "")
	if href == "" {
		href = item.Find(`a[href*="/pd/"]`).First().AttrOr("href", "")
	}

	title := common.FirstNonEmpty(
		common.TextOf(item.Find("h3.bc-heading")),
		common.TextOf(titleLink),
	)
	releaseDate := common.StripLabel(common.TextOf(item.Find("li.releaseDateLabel")), "Release date")

	hit := domain.CatalogHit{
		ASIN:        asinFromItem(item, href),
		Title:       title,
		Subtitle:    common.TextOf(item.Find("li.subtitle")),
		Author:      strings.Join(common.SplitNames(common.TextOf(item.Find("li.authorLabel"))), ", "),
		Narrator:    strings.Join(common.SplitNames(common.TextOf(item.Find("li.narratorLabel"))), ", "),
		Duration:    common.StripLabel(common.TextOf(item.Find("li.runtimeLabel")), "Length"),
		ReleaseDate: releaseDate,
		Language:    common.CleanLanguage(common.TextOf(item.Find("li.languageLabel"))),
	}
	if label := common.TextOf(item.Find("li.seriesLabel")); label != "" {
		hit.Series, hit.SeriesNumber = common.ParseSeriesLabel(label)
	}

	image := item.Find("img").First()
	hit.ImageURL = common.CleanImageURL(image.AttrOr("src", image.AttrOr("data-lazy", "")))
	return hit
}

func asinFromItem(item *goquery.Selection, href string) string {
	if match := pdPattern.FindStringSubmatch(href); len(match) == 2 {
		return match[1]
	}
	for _, attr := range []string{"data-asin", "data-trigger"} {
		if value := strings.ToUpper(strings.TrimSpace(item.AttrOr(attr, ""))); asinPattern.MatchString(value) {
			return asinPattern.FindString(value)
		}
	}
	return asinPattern.FindString(href)
}

func isHeaderNoise(title string) bool {
	value := strings.ToLower(strings.TrimSpace(title))
	if len(value) < 2 {
		return true
	}
	_, noisy := headerNoise[value]
	return noisy
}
