package torznab

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/providers/common"
)

const (
	defaultUserAgent = "metasearch/1.0"
	// Newznab/Torznab audiobook category.
	defaultCategories = "3030"
	maxFeedBytes      = 8 * 1024 * 1024
)

var ErrNotConfigured = errors.New("indexer is not configured")

type Config struct {
	Name       string
	Endpoint   string
	APIKey     string
	UserAgent  string
	Categories string
	// Usenet switches the feed to Newznab semantics: enclosures are NZB files.
	Usenet    bool
	IndexerID int
	Client    *http.Client
}

// Provider reads release feeds from a Torznab or Newznab indexer (Jackett,
// Prowlarr, or a native indexer API).
type Provider struct {
	name       string
	endpoint   string
	apiKey     string
	userAgent  string
	categories string
	usenet     bool
	indexerID  int
	client     *http.Client
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "torznab"
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	categories := strings.TrimSpace(cfg.Categories)
	if categories == "" {
		categories = defaultCategories
	}
	return &Provider{
		name:       name,
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		userAgent:  userAgent,
		categories: categories,
		usenet:     cfg.Usenet,
		indexerID:  cfg.IndexerID,
		client:     client,
	}
}

func (p *Provider) Name() string {
	return p.name
}

// Indexer describes this feed the way the quality scorers see it.
func (p *Provider) Indexer() domain.Indexer {
	indexer := domain.Indexer{
		ID:             p.indexerID,
		Name:           p.name,
		Type:           "Torrent",
		Implementation: "Torznab",
		Priority:       25,
	}
	if p.usenet {
		indexer.Type = "Usenet"
		indexer.Implementation = "Newznab"
	}
	return indexer
}

func (p *Provider) Configured() bool {
	if p.endpoint == "" {
		return false
	}
	return p.apiKey != "" || endpointHasAPIKey(p.endpoint)
}

// SearchReleases runs t=search against the feed and maps items to releases.
func (p *Provider) SearchReleases(ctx context.Context, query string, limit int) ([]domain.Release, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}
	if !p.Configured() {
		return nil, ErrNotConfigured
	}

	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	params := uri.Query()
	params.Set("t", "search")
	params.Set("q", query)
	params.Set("cat", p.categories)
	// Jackett only includes seeders/size attrs when extended output is requested.
	if strings.TrimSpace(params.Get("extended")) == "" {
		params.Set("extended", "1")
	}
	if strings.TrimSpace(params.Get("apikey")) == "" && p.apiKey != "" {
		params.Set("apikey", p.apiKey)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	uri.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/xml,text/xml,application/rss+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, common.NewStatusError(p.name, resp)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, err
	}

	items, err := parseFeed(payload)
	if err != nil {
		return nil, err
	}

	releases := make([]domain.Release, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		release, ok := p.itemToRelease(item, uri.Host)
		if !ok {
			continue
		}
		key := strings.ToLower(release.Title) + "|" + release.TorrentURL + release.NzbURL
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		releases = append(releases, release)
		if limit > 0 && len(releases) >= limit {
			break
		}
	}
	return releases, nil
}

func (p *Provider) itemToRelease(item feedItem, endpointHost string) (domain.Release, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return domain.Release{}, false
	}

	attrs := make(map[string]string, len(item.Attrs))
	for _, attr := range item.Attrs {
		key := strings.ToLower(strings.TrimSpace(attr.Name))
		if key == "" {
			continue
		}
		if _, exists := attrs[key]; exists {
			continue
		}
		attrs[key] = strings.TrimSpace(attr.Value)
	}

	size := parseI64(attrs["size"])
	if size <= 0 && item.Enclosure.Length > 0 {
		size = item.Enclosure.Length
	}

	release := domain.Release{
		Title:                 title,
		Size:                  size,
		Grabs:                 parseInt(attrs["grabs"]),
		Language:              attrs["language"],
		Source:                common.FirstNonEmpty(attrs["indexer"], attrs["tracker"], p.name),
		ResultURL:             firstOriginalHTTPURL(endpointHost, item.Comments, attrs["comments"], attrs["details"], attrs["infourl"], item.Link, item.Guid),
		IndexerID:             p.indexerID,
		IndexerImplementation: p.Indexer().Implementation,
		PublishedDate:         strings.TrimSpace(item.PubDate),
	}

	downloadURL := common.FirstNonEmpty(firstMagnet(item.Guid, item.Link, item.Enclosure.URL), item.Enclosure.URL, item.Link)
	if p.usenet || strings.Contains(strings.ToLower(item.Enclosure.Type), "nzb") {
		release.DownloadType = "nzb"
		release.NzbURL = downloadURL
		return release, true
	}

	release.DownloadType = "torrent"
	release.TorrentURL = downloadURL
	if raw, ok := attrs["seeders"]; ok {
		seeders := parseInt(raw)
		release.Seeders = &seeders
		leechers := parseInt(attrs["leechers"])
		if peers := parseInt(attrs["peers"]); leechers == 0 && peers > seeders {
			leechers = peers - seeders
		}
		release.Leechers = &leechers
	}
	return release, true
}

func firstOriginalHTTPURL(endpointHost string, candidates ...string) string {
	endpointHostNorm := normalizeHost(endpointHost)
	for _, candidate := range candidates {
		value := strings.TrimSpace(candidate)
		lower := strings.ToLower(value)
		if !(strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")) {
			continue
		}
		parsed, err := url.Parse(value)
		if err != nil || parsed.Host == "" {
			continue
		}
		hostNorm := normalizeHost(parsed.Host)
		if hostNorm == "" || (endpointHostNorm != "" && hostNorm == endpointHostNorm) {
			continue
		}
		if strings.Contains(hostNorm, "jackett") || strings.Contains(hostNorm, "prowlarr") {
			continue
		}
		return parsed.String()
	}
	return ""
}

func normalizeHost(raw string) string {
	value := strings.TrimSpace(strings.ToLower(raw))
	if value == "" {
		return ""
	}
	if !strings.Contains(value, "://") {
		value = "http://" + value
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

type feedResponse struct {
	Channel feedChannel `xml:"channel"`
}

type feedChannel struct {
	Items []feedItem `xml:"item"`
}

type feedItem struct {
	Title     string        `xml:"title"`
	Guid      string        `xml:"guid"`
	Link      string        `xml:"link"`
	Comments  string        `xml:"comments"`
	PubDate   string        `xml:"pubDate"`
	Enclosure feedEnclosure `xml:"enclosure"`
	Attrs     []feedAttr    `xml:"attr"`
}

type feedEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type feedAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func parseFeed(payload []byte) ([]feedItem, error) {
	var rss feedResponse
	if err := xml.Unmarshal(payload, &rss); err != nil {
		return nil, fmt.Errorf("invalid torznab XML: %w", err)
	}
	return rss.Channel.Items, nil
}

func firstMagnet(candidates ...string) string {
	for _, candidate := range candidates {
		value := strings.TrimSpace(candidate)
		if strings.HasPrefix(strings.ToLower(value), "magnet:?") {
			return value
		}
	}
	return ""
}

func parseInt(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}

func parseI64(raw string) int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func endpointHasAPIKey(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.TrimSpace(parsed.Query().Get("apikey")) != ""
}
