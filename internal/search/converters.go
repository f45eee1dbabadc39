package search

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"audiostream/metasearch/internal/domain"
)

const (
	unknownTitle    = "Unknown Title"
	unknownAuthor   = "Unknown Author"
	openLibraryName = "OpenLibrary"
	imageRoutePath  = "/api/images/"
)

var yearPattern = regexp.MustCompile(`\d{4}`)

// RawHit is the title/author/image a catalog page reported for an identifier.
type RawHit struct {
	Title    string
	Author   string
	ImageURL string
}

// Converter projects canonical metadata into candidate results. Image URLs are
// rewritten to the local image route and cached in the background.
type Converter struct {
	images ImageCache
}

func NewConverter(images ImageCache) *Converter {
	return &Converter{images: images}
}

func (c *Converter) ToCandidate(meta domain.BookMetadata, asin string, raw RawHit) domain.CandidateResult {
	title := strings.TrimSpace(meta.Title)
	if title == "" || title == "Audible" || strings.Contains(title, "English - USD") {
		title = strings.TrimSpace(raw.Title)
	}
	if title == "" {
		title = unknownTitle
	}

	author := ""
	if len(meta.Authors) > 0 {
		author = strings.TrimSpace(meta.Authors[0])
	}
	if IsAuthorNoise(author) {
		author = strings.TrimSpace(raw.Author)
	}
	if IsAuthorNoise(author) {
		author = unknownAuthor
	}

	imageURL := strings.TrimSpace(meta.ImageURL)
	if imageURL == "" || IsPlaceholderImage(imageURL) {
		imageURL = strings.TrimSpace(raw.ImageURL)
	}
	if IsPlaceholderImage(imageURL) {
		imageURL = ""
	}
	if imageURL != "" && asin != "" {
		c.cacheImage(imageURL, asin)
		imageURL = imageRoutePath + domain.NormalizeIdentifier(asin)
	}

	source := strings.TrimSpace(meta.Source)
	if source == "" {
		source = "Amazon/Audible"
	}

	result := domain.CandidateResult{
		ID:             uuid.NewString(),
		ASIN:           asin,
		Title:          title,
		Subtitle:       meta.Subtitle,
		Author:         author,
		Narrator:       strings.Join(meta.Narrators, ", "),
		Publisher:      meta.Publisher,
		Language:       meta.Language,
		Description:    meta.Description,
		Genres:         append([]string(nil), meta.Genres...),
		Series:         meta.Series,
		SeriesNumber:   meta.SeriesNumber,
		RuntimeMinutes: meta.RuntimeMinutes,
		PublishYear:    meta.PublishYear,
		ImageURL:       imageURL,
		Source:         source,
		MetadataSource: meta.Source,
		Format:         "Audiobook",
		Explicit:       meta.Explicit,
		Abridged:       meta.Abridged,
	}
	if asin != "" {
		result.ProductURL = productURL(meta.Source, asin)
		result.MagnetLink = "amazon://asin/" + asin
	}
	return result
}

func (c *Converter) cacheImage(imageURL, asin string) {
	if c == nil || c.images == nil {
		return
	}
	if _, ok := c.images.CachedPath(asin); ok {
		return
	}
	c.images.DownloadAndCache(imageURL, asin)
}

// OpenLibraryCandidate turns an index suggestion into an already-enriched result
// that never goes through metadata lookup.
func (c *Converter) OpenLibraryCandidate(book domain.OpenLibraryBook) domain.CandidateResult {
	meta := FromOpenLibrary(book, "")
	if len(book.Publishers) > 1 {
		meta.Publisher = "Multiple"
	}
	result := c.ToCandidate(meta, "", RawHit{})
	result.IsEnriched = true
	result.MetadataSource = openLibraryName
	if key := strings.TrimSpace(book.Key); key != "" {
		result.ID = key
		if strings.HasPrefix(key, "/works") || strings.HasPrefix(key, "/books") {
			result.ProductURL = "https://openlibrary.org" + key
		}
	}
	return result
}

func productURL(source, asin string) string {
	if source == "Amazon" {
		return "https://www.amazon.com/dp/" + asin
	}
	return "https://www.audible.com/pd/" + asin
}

// IsPlaceholderImage reports the grey/transparent pixel images catalog pages
// serve when no cover exists.
func IsPlaceholderImage(imageURL string) bool {
	lower := strings.ToLower(imageURL)
	return strings.Contains(lower, "grey-pixel") ||
		strings.Contains(lower, "gray-pixel") ||
		strings.Contains(lower, "transparent-pixel")
}

func FromAudimeta(book domain.AudimetaBook, asin, source string) domain.BookMetadata {
	meta := domain.BookMetadata{
		ASIN:        firstNonEmpty(book.ASIN, asin),
		Source:      firstNonEmpty(source, "Audible"),
		Title:       book.Title,
		Subtitle:    book.Subtitle,
		Authors:     refNames(book.Authors),
		Narrators:   refNames(book.Narrators),
		Publisher:   book.Publisher,
		Description: book.Description,
		Genres:      refNames(book.Genres),
		Language:    book.Language,
		ISBN:        book.ISBN,
		ImageURL:    book.ImageURL,
		Abridged:    strings.Contains(strings.ToLower(book.BookFormat), "abridged"),
		Explicit:    book.Explicit,
	}
	if len(book.Series) > 0 {
		meta.Series = book.Series[0].Name
		meta.SeriesNumber = book.Series[0].Position
	}
	if book.LengthMinutes > 0 {
		meta.RuntimeMinutes = book.LengthMinutes
	}
	meta.PublishYear = extractYear(firstNonEmpty(book.ReleaseDate, book.PublishDate))
	return meta
}

func FromAudnexus(book domain.AudnexusBook, asin, source string) domain.BookMetadata {
	meta := domain.BookMetadata{
		ASIN:        firstNonEmpty(book.ASIN, asin),
		Source:      firstNonEmpty(source, "Audible"),
		Title:       book.Title,
		Subtitle:    book.Subtitle,
		Authors:     refNames(book.Authors),
		Narrators:   refNames(book.Narrators),
		Publisher:   book.PublisherName,
		Description: firstNonEmpty(book.Description, book.Summary),
		Genres:      refNames(book.Genres),
		Language:    book.Language,
		ISBN:        book.ISBN,
		ImageURL:    book.Image,
		Abridged:    strings.Contains(strings.ToLower(book.FormatType), "abridged"),
		Explicit:    book.IsAdult,
	}
	switch {
	case book.SeriesPrimary != nil:
		meta.Series = book.SeriesPrimary.Name
		meta.SeriesNumber = book.SeriesPrimary.Position
	case book.SeriesSecondary != nil:
		meta.Series = book.SeriesSecondary.Name
		meta.SeriesNumber = book.SeriesSecondary.Position
	}
	if book.RuntimeLengthMin > 0 {
		meta.RuntimeMinutes = book.RuntimeLengthMin
	}
	if strings.TrimSpace(book.ReleaseDate) != "" {
		meta.PublishYear = extractYear(book.ReleaseDate)
	} else if book.Copyright > 0 {
		meta.PublishYear = book.Copyright
	}
	return meta
}

func FromOpenLibrary(book domain.OpenLibraryBook, asin string) domain.BookMetadata {
	meta := domain.BookMetadata{
		ASIN:        asin,
		Source:      openLibraryName,
		Title:       book.Title,
		Authors:     nonBlank(book.AuthorNames),
		PublishYear: book.FirstPublishYear,
	}
	if len(book.Publishers) > 0 {
		meta.Publisher = book.Publishers[0]
	}
	if len(book.Languages) > 0 {
		meta.Language = book.Languages[0]
	}
	if len(book.ISBN) > 0 {
		meta.ISBN = book.ISBN[0]
	}
	if book.CoverID > 0 {
		meta.ImageURL = "https://covers.openlibrary.org/b/id/" + strconv.Itoa(book.CoverID) + "-L.jpg"
	}
	return meta
}

func extractYear(value string) int {
	match := yearPattern.FindString(value)
	if match == "" {
		return 0
	}
	year, _ := strconv.Atoi(match)
	return year
}

func refNames(refs []domain.NamedRef) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if name := strings.TrimSpace(ref.Name); name != "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func nonBlank(values []string) []string {
	var out []string
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			out = append(out, value)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
