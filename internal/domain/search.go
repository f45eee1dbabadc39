package domain

import (
	"strings"
	"time"
)

type SearchRequest struct {
	Query   string
	Limit   int
	NoCache bool
	// Channel routes progress messages for this query; empty disables them.
	Channel string
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type ProviderStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

type SearchResponse struct {
	Query       string            `json:"query"`
	Items       []CandidateResult `json:"items"`
	Providers   []ProviderStatus  `json:"providers"`
	DropReasons map[string]string `json:"dropReasons,omitempty"`
	ElapsedMS   int64             `json:"elapsedMs"`
	TotalItems  int               `json:"totalItems"`
	Cached      bool              `json:"cached,omitempty"`
}

// ProgressEvent is one human-readable step of an interactive search.
type ProgressEvent struct {
	Message string `json:"message"`
	ASIN    string `json:"asin,omitempty"`
	Type    string `json:"type"`
}

// MetadataSourceConfig is an operator-configured metadata API endpoint.
type MetadataSourceConfig struct {
	Name     string `json:"name"`
	BaseURL  string `json:"baseUrl"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

// SearchSettings are the read-only switches consulted per query.
type SearchSettings struct {
	AmazonEnabled        bool
	AudibleEnabled       bool
	OpenLibraryEnabled   bool
	AmazonMaxCandidates  int
	AudibleMaxCandidates int
	MaxResults           int
}

func DefaultSearchSettings() SearchSettings {
	return SearchSettings{
		AmazonEnabled:        true,
		AudibleEnabled:       true,
		OpenLibraryEnabled:   true,
		AmazonMaxCandidates:  50,
		AudibleMaxCandidates: 50,
		MaxResults:           100,
	}
}

// NormalizeIdentifier returns the map key used for case-insensitive identifier lookups.
func NormalizeIdentifier(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
