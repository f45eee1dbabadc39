package apihttp

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"audiostream/metasearch/internal/metrics"
)

const (
	maxTrackedClients = 4096
	clientIdleTTL     = 10 * time.Minute
)

// route describes how the middleware chain treats one endpoint family.
type route struct {
	label  string
	// stream marks long-lived progress connections; their duration is not a latency.
	stream bool
	// quiet routes log successful requests at debug.
	quiet  bool
	// open routes bypass the rate limiter.
	open   bool
}

var exactRoutes = map[string]route{
	"/health":           {label: "/health", quiet: true, open: true},
	"/metrics":          {label: "/metrics", quiet: true, open: true},
	"/search":           {label: "/search"},
	"/search/progress":  {label: "/search/progress", stream: true},
	"/ws/progress":      {label: "/ws/progress", stream: true},
	"/quality/score":    {label: "/quality/score"},
	"/quality/profiles": {label: "/quality/profiles"},
	"/releases":         {label: "/releases"},
}

func classifyRoute(path string) route {
	if r, ok := exactRoutes[path]; ok {
		return r
	}
	switch {
	case strings.HasPrefix(path, "/search/providers"):
		return route{label: "/search/providers"}
	case strings.HasPrefix(path, "/api/images/"):
		return route{label: "/api/images", quiet: true}
	}
	return route{label: "/other"}
}

func normalizeRoute(path string) string {
	return classifyRoute(path).label
}

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush and Hijack keep SSE and WebSocket progress working through the chain.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		info := classifyRoute(r.URL.Path)
		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", info.label),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Int("bytes", rw.size),
			slog.Int64("durationMs", time.Since(start).Milliseconds()),
			slog.String("clientIP", clientIP(r)),
		}
		params := r.URL.Query()
		if q := strings.TrimSpace(params.Get("q")); q != "" {
			attrs = append(attrs, slog.String("q", truncate(q, 120)))
		}
		if channel := strings.TrimSpace(params.Get("channel")); channel != "" {
			attrs = append(attrs, slog.String("channel", truncate(channel, 64)))
		}
		logger.LogAttrs(r.Context(), requestLogLevel(info, rw.status), "http request", attrs...)
	})
}

func requestLogLevel(info route, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case info.quiet:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			logger.Error("handler panic",
				slog.Any("error", recovered),
				slog.String("route", normalizeRoute(r.URL.Path)),
				slog.String("clientIP", clientIP(r)),
				slog.String("stack", string(debug.Stack())),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := classifyRoute(r.URL.Path)
		if info.label == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, info.label, strconv.Itoa(rw.status)).Inc()
		if !info.stream {
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, info.label).Observe(time.Since(start).Seconds())
		}
	})
}

// clientLimiter hands out one token bucket per client address so a single
// caller hammering /search cannot starve everyone else.
type clientLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*trackedClient
	now     func() time.Time
}

type trackedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*trackedClient),
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.evictIdleLocked(now)
		}
		entry = &trackedClient{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *clientLimiter) evictIdleLocked(now time.Time) {
	for key, entry := range l.clients {
		if now.Sub(entry.lastSeen) > clientIdleTTL {
			delete(l.clients, key)
		}
	}
	// Everyone is active: start over rather than grow without bound.
	if len(l.clients) >= maxTrackedClients {
		clear(l.clients)
	}
}

// rateLimitMiddleware answers 429 once a client exhausts its bucket.
func rateLimitMiddleware(rps float64, burst int, next http.Handler) http.Handler {
	limiter := newClientLimiter(rps, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if classifyRoute(r.URL.Path).open || limiter.allow(clientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	return remote
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}
