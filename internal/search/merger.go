package search

import (
	"regexp"
	"strconv"
	"strings"

	"audiostream/metasearch/internal/domain"
)

var (
	durationPattern    = regexp.MustCompile(`(?i)(\d+)\s*hrs?\s+(?:and\s+)?(\d+)\s*mins?`)
	hoursOnlyPattern   = regexp.MustCompile(`(?i)(\d+)\s*hrs?\b`)
	minutesOnlyPattern = regexp.MustCompile(`(?i)(\d+)\s*mins?\b`)
	releaseDatePattern = regexp.MustCompile(`(\d{2})-(\d{2})-(\d{2})`)
)

// Merge returns a copy of target with its empty fields filled from secondary.
// Populated fields on target are never overwritten.
func Merge(target, secondary domain.BookMetadata) domain.BookMetadata {
	out := target.Clone()
	if out.Title == "" {
		out.Title = secondary.Title
	}
	if out.Subtitle == "" {
		out.Subtitle = secondary.Subtitle
	}
	if len(out.Authors) == 0 {
		out.Authors = append([]string(nil), secondary.Authors...)
	}
	if len(out.Narrators) == 0 {
		out.Narrators = append([]string(nil), secondary.Narrators...)
	}
	if out.Publisher == "" {
		out.Publisher = secondary.Publisher
	}
	if out.Description == "" {
		out.Description = secondary.Description
	}
	if len(out.Genres) == 0 {
		out.Genres = append([]string(nil), secondary.Genres...)
	}
	if out.Language == "" {
		out.Language = secondary.Language
	}
	if out.ImageURL == "" {
		out.ImageURL = secondary.ImageURL
	}
	if out.RuntimeMinutes == 0 {
		out.RuntimeMinutes = secondary.RuntimeMinutes
	}
	if out.PublishYear == 0 {
		out.PublishYear = secondary.PublishYear
	}
	return out
}

// MetadataFromCatalogHit parses the loosely formatted fields of a catalog row.
// Series is left empty: search-page markup pairs series with the wrong row too often.
func MetadataFromCatalogHit(hit domain.CatalogHit) domain.BookMetadata {
	meta := domain.BookMetadata{
		ASIN:     hit.ASIN,
		Source:   "Audible",
		Title:    hit.Title,
		Subtitle: hit.Subtitle,
		Language: hit.Language,
		ImageURL: hit.ImageURL,
	}
	if author := strings.TrimSpace(hit.Author); author != "" {
		meta.Authors = []string{author}
	}
	if narrators := splitNarrators(hit.Narrator); len(narrators) > 0 {
		meta.Narrators = narrators
	}
	meta.RuntimeMinutes = parseRuntime(hit.Duration)
	if match := releaseDatePattern.FindStringSubmatch(hit.ReleaseDate); match != nil {
		year, _ := strconv.Atoi(match[3])
		meta.PublishYear = 2000 + year
	}
	return meta
}

func splitNarrators(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if name := strings.TrimSpace(field); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// parseRuntime reads "21 hrs and 22 mins" style lengths into minutes.
func parseRuntime(raw string) int {
	if raw == "" {
		return 0
	}
	if match := durationPattern.FindStringSubmatch(raw); match != nil {
		hours, _ := strconv.Atoi(match[1])
		minutes, _ := strconv.Atoi(match[2])
		return hours*60 + minutes
	}
	total := 0
	if match := hoursOnlyPattern.FindStringSubmatch(raw); match != nil {
		hours, _ := strconv.Atoi(match[1])
		total += hours * 60
	}
	if match := minutesOnlyPattern.FindStringSubmatch(raw); match != nil {
		minutes, _ := strconv.Atoi(match[1])
		total += minutes
	}
	return total
}
