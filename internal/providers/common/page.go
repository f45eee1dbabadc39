package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"audiostream/metasearch/internal/metrics"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	maxPageBytes     = 4 * 1024 * 1024
)

var (
	// ErrBotChallenge means the site served a captcha or robot check instead of content.
	ErrBotChallenge = errors.New("bot challenge detected")
	// ErrPageNotFound means the site answered 404 for the requested page.
	ErrPageNotFound = errors.New("page not found")
)

type PageConfig struct {
	Site      string
	UserAgent string
	Client    *http.Client
	// RatePerSecond bounds requests to the site; zero disables the limiter.
	RatePerSecond float64
}

// PageClient fetches HTML pages from one storefront politely.
type PageClient struct {
	site      string
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

func NewPageClient(cfg PageConfig) *PageClient {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &PageClient{
		site:      cfg.Site,
		client:    client,
		userAgent: userAgent,
		limiter:   limiter,
	}
}

// Fetch downloads rawURL and parses it. page labels the request in metrics.
func (c *PageClient) Fetch(ctx context.Context, rawURL, page string) (*goquery.Document, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	started := time.Now()
	resp, err := c.client.Do(req)
	metrics.ScrapeDuration.WithLabelValues(c.site, page).Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPageNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewStatusError(c.site, resp)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse %s page: %w", c.site, err)
	}
	if err := DetectBotChallenge(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// DetectBotChallenge recognizes the captcha and robot-check interstitials both
// storefronts serve to automated clients.
func DetectBotChallenge(doc *goquery.Document) error {
	if doc == nil {
		return nil
	}
	if doc.Find(`form[action*="validateCaptcha"]`).Length() > 0 || doc.Find("#captchacharacters").Length() > 0 {
		return ErrBotChallenge
	}
	content := strings.ToLower(doc.Text())
	for _, marker := range []string{
		"enter the characters you see",
		"type the characters you see",
		"to discuss automated access to amazon data",
		"robot check",
		"automated traffic",
	} {
		if strings.Contains(content, marker) {
			return ErrBotChallenge
		}
	}
	return nil
}

// IsUnavailablePage reports whether a product page says the title cannot be bought.
func IsUnavailablePage(doc *goquery.Document) bool {
	title := strings.ToLower(doc.Find("title").First().Text())
	if strings.Contains(title, "not available") {
		return true
	}
	return strings.Contains(strings.ToLower(doc.Text()), "audiobook is not available")
}

// TextOf returns the trimmed, whitespace-collapsed text of the first match.
func TextOf(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.First().Text()), " ")
}
