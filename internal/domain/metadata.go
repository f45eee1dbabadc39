package domain

import "strings"

// BookMetadata is the provider-agnostic bibliographic record for one identifier.
type BookMetadata struct {
	ASIN           string   `json:"asin"`
	Source         string   `json:"source,omitempty"`
	Title          string   `json:"title,omitempty"`
	Subtitle       string   `json:"subtitle,omitempty"`
	Authors        []string `json:"authors,omitempty"`
	Narrators      []string `json:"narrators,omitempty"`
	Publisher      string   `json:"publisher,omitempty"`
	Language       string   `json:"language,omitempty"`
	Description    string   `json:"description,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	Series         string   `json:"series,omitempty"`
	SeriesNumber   string   `json:"seriesNumber,omitempty"`
	RuntimeMinutes int      `json:"runtimeMinutes,omitempty"`
	PublishYear    int      `json:"publishYear,omitempty"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	ISBN           string   `json:"isbn,omitempty"`
	Explicit       bool     `json:"explicit,omitempty"`
	Abridged       bool     `json:"abridged,omitempty"`
}

// Clone returns a deep copy so callers can hand records across goroutines.
func (m BookMetadata) Clone() BookMetadata {
	out := m
	out.Authors = append([]string(nil), m.Authors...)
	out.Narrators = append([]string(nil), m.Narrators...)
	out.Genres = append([]string(nil), m.Genres...)
	return out
}

// CandidateResult is the user-facing projection of a metadata record.
type CandidateResult struct {
	ID             string   `json:"id"`
	ASIN           string   `json:"asin,omitempty"`
	Title          string   `json:"title"`
	Subtitle       string   `json:"subtitle,omitempty"`
	Author         string   `json:"author,omitempty"`
	Narrator       string   `json:"narrator,omitempty"`
	Publisher      string   `json:"publisher,omitempty"`
	Language       string   `json:"language,omitempty"`
	Description    string   `json:"description,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	Series         string   `json:"series,omitempty"`
	SeriesNumber   string   `json:"seriesNumber,omitempty"`
	RuntimeMinutes int      `json:"runtimeMinutes,omitempty"`
	PublishYear    int      `json:"publishYear,omitempty"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	ProductURL     string   `json:"productUrl,omitempty"`
	MagnetLink     string   `json:"magnetLink,omitempty"`
	Source         string   `json:"source,omitempty"`
	Format         string   `json:"format,omitempty"`
	Explicit       bool     `json:"explicit,omitempty"`
	Abridged       bool     `json:"abridged,omitempty"`
	IsEnriched     bool     `json:"isEnriched"`
	MetadataSource string   `json:"metadataSource,omitempty"`
	Score          float64  `json:"score"`
}

// CatalogHit is one raw row from a product-catalog search page.
type CatalogHit struct {
	ASIN         string `json:"asin,omitempty"`
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	Narrator     string `json:"narrator,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ProductURL   string `json:"productUrl,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Series       string `json:"series,omitempty"`
	SeriesNumber string `json:"seriesNumber,omitempty"`
	Subtitle     string `json:"subtitle,omitempty"`
	ReleaseDate  string `json:"releaseDate,omitempty"`
	Language     string `json:"language,omitempty"`
}

// HasDetail reports whether the hit carries more than title/author/image.
func (h CatalogHit) HasDetail() bool {
	for _, value := range []string{h.Narrator, h.Duration, h.Series, h.Subtitle, h.ReleaseDate, h.Language} {
		if strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}

// OpenLibraryBook is one document from the open bibliographic index.
type OpenLibraryBook struct {
	Key              string   `json:"key,omitempty"`
	Title            string   `json:"title,omitempty"`
	AuthorNames      []string `json:"author_name,omitempty"`
	Publishers       []string `json:"publisher,omitempty"`
	CoverID          int      `json:"cover_i,omitempty"`
	FirstPublishYear int      `json:"first_publish_year,omitempty"`
	Subjects         []string `json:"subject,omitempty"`
	ISBN             []string `json:"isbn,omitempty"`
	Languages        []string `json:"language,omitempty"`
}
