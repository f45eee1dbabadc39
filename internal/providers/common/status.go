package common

import (
	"fmt"
	"io"
	"net/http"
)

// StatusError is a non-success answer from a catalog site, metadata API or
// indexer.
type StatusError struct {
	Source     string
	StatusCode int
	Snippet    string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("%s HTTP %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("%s HTTP %d: %s", e.Source, e.StatusCode, e.Snippet)
}

// Temporary reports whether the same request may succeed later: rate limits
// and server-side failures.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// NewStatusError reads a short snippet of the body for diagnostics.
func NewStatusError(source string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{
		Source:     source,
		StatusCode: resp.StatusCode,
		Snippet:    CompactSnippet(string(body), 220),
	}
}
