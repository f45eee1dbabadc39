package imagecache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	maxImageBytes      = int64(10 * 1024 * 1024)
	defaultConcurrency = 4
	downloadTimeout    = 15 * time.Second
)

var (
	ErrInvalidIdentifier = errors.New("invalid image identifier")
	ErrBlockedURL        = errors.New("blocked url host")
	ErrNotImage          = errors.New("upstream response is not an image")

	identifierPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	extensions        = map[string]string{
		"image/jpeg": ".jpg",
		"image/jpg":  ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
		"image/gif":  ".gif",
		"image/avif": ".avif",
	}
)

type Config struct {
	Dir         string
	Client      *http.Client
	Concurrency int
	UserAgent   string
	// AllowPrivateHosts disables the loopback/private-network guard.
	AllowPrivateHosts bool
}

// Cache keeps one cover image per identifier on disk. Downloads for the same
// identifier are collapsed and bounded in number.
type Cache struct {
	dir          string
	client       *http.Client
	userAgent    string
	allowPrivate bool
	group        singleflight.Group
	sem          *semaphore.Weighted
	pending      sync.WaitGroup
}

func New(cfg Config) (*Cache, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, errors.New("image cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image cache dir: %w", err)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	cache := &Cache{
		dir:          dir,
		userAgent:    strings.TrimSpace(cfg.UserAgent),
		allowPrivate: cfg.AllowPrivateHosts,
		sem:          semaphore.NewWeighted(int64(concurrency)),
	}
	cache.client = cfg.Client
	if cache.client == nil {
		cache.client = cache.newClient()
	}
	return cache, nil
}

// CachedPath returns the on-disk file for asin when one exists.
func (c *Cache) CachedPath(asin string) (string, bool) {
	asin = normalizeIdentifier(asin)
	if !identifierPattern.MatchString(asin) {
		return "", false
	}
	matches, err := filepath.Glob(filepath.Join(c.dir, asin+".*"))
	if err != nil {
		return "", false
	}
	for _, match := range matches {
		if strings.HasSuffix(match, ".tmp") {
			continue
		}
		if info, err := os.Stat(match); err == nil && info.Size() > 0 {
			return match, true
		}
	}
	return "", false
}

// DownloadAndCache fetches imageURL in the background. Failures are logged.
func (c *Cache) DownloadAndCache(imageURL, asin string) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
		defer cancel()
		if _, err := c.Fetch(ctx, imageURL, asin); err != nil {
			slog.Debug("image cache download failed",
				slog.String("asin", asin),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until background downloads started so far have finished.
func (c *Cache) Wait() {
	c.pending.Wait()
}

// Fetch downloads imageURL for asin unless it is already cached and returns
// the file path.
func (c *Cache) Fetch(ctx context.Context, imageURL, asin string) (string, error) {
	asin = normalizeIdentifier(asin)
	if !identifierPattern.MatchString(asin) {
		return "", ErrInvalidIdentifier
	}
	if path, ok := c.CachedPath(asin); ok {
		return path, nil
	}
	result, err, _ := c.group.Do(asin, func() (any, error) {
		if path, ok := c.CachedPath(asin); ok {
			return path, nil
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer c.sem.Release(1)
		return c.download(ctx, imageURL, asin)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Cache) download(ctx context.Context, imageURL, asin string) (string, error) {
	target, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil {
		return "", fmt.Errorf("invalid image url: %w", err)
	}
	if err := c.validateURL(ctx, target); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > maxImageBytes {
		return "", errors.New("image too large")
	}

	limited := io.LimitReader(resp.Body, maxImageBytes)
	head := make([]byte, 512)
	n, readErr := io.ReadFull(limited, head)
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		return "", readErr
	}
	head = head[:n]

	contentType := strings.ToLower(strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]))
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(head)
	}
	ext, ok := extensions[strings.Split(contentType, ";")[0]]
	if !ok {
		return "", ErrNotImage
	}

	tmp, err := os.CreateTemp(c.dir, asin+"-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(head); err != nil {
		tmp.Close()
		return "", err
	}
	if _, err := io.Copy(tmp, limited); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	path := filepath.Join(c.dir, asin+ext)
	if err := os.Rename(tmpName, path); err != nil {
		return "", err
	}
	slog.Debug("image cached", slog.String("asin", asin), slog.String("path", path))
	return path, nil
}

func (c *Cache) newClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.ForceAttemptHTTP2 = false
	transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	dialer := &net.Dialer{Timeout: 8 * time.Second, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   12 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			return c.validateURL(req.Context(), req.URL)
		},
	}
}

func (c *Cache) validateURL(ctx context.Context, u *url.URL) error {
	if u == nil {
		return errors.New("invalid url")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.New("unsupported url scheme")
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return errors.New("invalid url host")
	}
	if c.allowPrivate {
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".localhost") {
		return ErrBlockedURL
	}
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return ErrBlockedURL
		}
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupIPAddr(lookupCtx, host)
	if err != nil || len(addrs) == 0 {
		return errors.New("failed to resolve url host")
	}
	for _, addr := range addrs {
		if isBlockedIP(addr.IP) {
			return ErrBlockedURL
		}
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified()
}

func normalizeIdentifier(asin string) string {
	return strings.ToUpper(strings.TrimSpace(asin))
}
