package amazon

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
	defaultEndpoint = "https://www.amazon.com"
	siteName        = "amazon"
	maxSearchHits   = 20
	maxResultNodes  = 25
)

var (
	dpPattern          = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`)
	placeholderPattern = regexp.MustCompile(`(?i)^(?:\d+[-–]\d+ of \d+ results for|results for|amazon\.com:|audible session|audible membership|best sellers|discover more)`)
)

type Config struct {
	Endpoint      string
	UserAgent     string
	Client        *http.Client
	RatePerSecond float64
}

// Provider searches the Audible department of the Amazon storefront.
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
	return "Amazon"
}

// Search returns up to 20 distinct catalog rows for query.
func (p *Provider) Search(ctx context.Context, query string) ([]domain.CatalogHit, error) {
	searchURL := p.resolve("/s", url.Values{
		"k":   {strings.TrimSpace(query)},
		"i":   {"audible"},
		"ref": {"sr_nr_n_1"},
	})
	doc, err := p.pages.Fetch(ctx, searchURL, "search")
	if err != nil {
		if errors.Is(err, common.ErrPageNotFound) {
			return []domain.CatalogHit{}, nil
		}
		return nil, err
	}

	hits := parseSearchResults(doc, p.baseURL)
	slog.Debug("amazon search parsed",
		slog.String("query", query),
		slog.Int("hits", len(hits)),
	)
	return hits, nil
}

// ProductPage exposes the product page scraper sharing this provider's client
// and rate limit.
func (p *Provider) ProductPage() *ProductPage {
	return &ProductPage{provider: p}
}

func (p *Provider) productURL(asin string) string {
	return p.resolve("/dp/"+url.PathEscape(asin), nil)
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
	add := func(hit domain.CatalogHit) {
		if len(hits) >= maxSearchHits || hit.ASIN == "" || isPlaceholderTitle(hit.Title) {
			return
		}
		if _, dup := seen[hit.ASIN]; dup {
			return
		}
		seen[hit.ASIN] = struct{}{}
		hit.ProductURL = baseURL.ResolveReference(&url.URL{Path: "/dp/" + hit.ASIN}).String()
		hits = append(hits, hit)
	}

	doc.Find(`div[data-component-type="s-search-result"]`).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		add(extractResult(sel))
		return i+1 < maxResultNodes && len(hits) < maxSearchHits
	})
	if len(hits) > 0 {
		return hits
	}

	// Layout fallback: any product link on the page.
	doc.Find(`a[href*="/dp/"]`).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		add(domain.CatalogHit{
			ASIN:  asinFromHref(href),
			Title: common.CleanHTMLText(link.Text()),
		})
		return len(hits) < maxSearchHits
	})
	return hits
}

func extractResult(sel *goquery.Selection) domain.CatalogHit {
	asin := strings.ToUpper(strings.TrimSpace(sel.AttrOr("data-asin", "")))
	if asin == "" {
		asin = asinFromHref(sel.Find(`a[href*="/dp/"]`).First().AttrOr("href", ""))
	}
	title := common.FirstNonEmpty(
		common.TextOf(sel.Find("h2 span")),
		common.TextOf(sel.Find("span.a-text-normal")),
		common.TextOf(sel.Find("span.a-size-medium")),
	)

	author := ""
	sel.Find("div.a-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		text := common.CleanHTMLText(row.Text())
		if strings.HasPrefix(strings.ToLower(text), "by ") {
			author = strings.TrimSpace(text[3:])
			return false
		}
		return true
	})
	if author == "" {
		author = common.TextOf(sel.Find(`a[href*="field-author"]`))
	}

	narrator := ""
	sel.Find("span, div").EachWithBreak(func(_ int, node *goquery.Selection) bool {
		text := common.CleanHTMLText(node.Text())
		if strings.HasPrefix(strings.ToLower(text), "narrated by") {
			narrator = strings.Join(common.SplitNames(text), ", ")
			return false
		}
		return true
	})

	image := sel.Find("img.s-image").First()
	if image.Length() == 0 {
		image = sel.Find("img").First()
	}

	return domain.CatalogHit{
		ASIN:     asin,
		Title:    title,
		Author:   author,
		Narrator: narrator,
		ImageURL: common.CleanImageURL(image.AttrOr("src", image.AttrOr("data-src", ""))),
	}
}

func asinFromHref(href string) string {
	match := dpPattern.FindStringSubmatch(href)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

func isPlaceholderTitle(title string) bool {
	value := strings.TrimSpace(title)
	if len(value) < 3 {
		return true
	}
	if placeholderPattern.MatchString(value) {
		return true
	}
	return strings.Contains(strings.ToLower(value), "results for") && !strings.Contains(value, `"`)
}
