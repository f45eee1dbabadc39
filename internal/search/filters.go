package search

import (
	"strings"

	"audiostream/metasearch/internal/domain"
)

const (
	reasonKindleEdition  = "filtered: kindle-edition"
	reasonNonAudiobook   = "non_audiobook_filtered"
	reasonPromotional    = "filtered: promotional"
	reasonProductListing = "filtered: product-listing"
	reasonMissingInfo    = "filtered: missing-title-and-author"
)

// Filter rejects a candidate with a reason, or passes it with "".
type Filter interface {
	Name() string
	Check(result domain.CandidateResult) string
}

type FilterFunc struct {
	name  string
	check func(domain.CandidateResult) string
}

func (f FilterFunc) Name() string {
	return f.name
}

func (f FilterFunc) Check(result domain.CandidateResult) string {
	return f.check(result)
}

// Pipeline applies filters in order; the first rejecting filter's reason wins.
type Pipeline struct {
	filters []Filter
}

func NewPipeline(filters ...Filter) *Pipeline {
	return &Pipeline{filters: filters}
}

// DefaultPipeline is the rejection chain every candidate passes before acceptance.
func DefaultPipeline() *Pipeline {
	return NewPipeline(
		FilterFunc{name: "kindle-edition", check: kindleEditionFilter},
		FilterFunc{name: "audiobook-only", check: audiobookOnlyFilter},
		FilterFunc{name: "promotional", check: promotionalFilter},
		FilterFunc{name: "product-listing", check: productListingFilter},
		FilterFunc{name: "missing-info", check: missingInfoFilter},
	)
}

// Evaluate reports whether result should be dropped and why.
func (p *Pipeline) Evaluate(result domain.CandidateResult) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, filter := range p.filters {
		if reason := filter.Check(result); reason != "" {
			return reason, true
		}
	}
	return "", false
}

// Apply returns the results that pass every filter.
func (p *Pipeline) Apply(results []domain.CandidateResult) []domain.CandidateResult {
	out := make([]domain.CandidateResult, 0, len(results))
	for _, result := range results {
		if _, drop := p.Evaluate(result); drop {
			continue
		}
		out = append(out, result)
	}
	return out
}

var (
	audioMetadataSources   = []string{"audible", "audimeta", "audnexus", "amazon"}
	trustedMetadataSources = []string{"audible", "audimeta", "audnexus", "amazon", "openlibrary"}

	printFormatIndicators = []string{
		"paperback", "hardcover", "mass market paperback", "ebook", "kindle edition", "audio cd", "board book",
		"box set", "3 books", "3 book", "3-book", "three volume", "volume set", "trilogy", "collector's edition", "slipcase",
		"paperback –", "hardcover –",
	}
)

func kindleEditionFilter(result domain.CandidateResult) string {
	if IsKindleEdition(result.Title) || IsKindleEdition(result.Format) {
		return reasonKindleEdition
	}
	return ""
}

// audiobookOnlyFilter drops print editions, unless anything about the result
// says it is audio.
func audiobookOnlyFilter(result domain.CandidateResult) string {
	if result.IsEnriched {
		return ""
	}
	hasRuntime := result.RuntimeMinutes > 0
	hasNarrator := strings.TrimSpace(result.Narrator) != ""
	if hasRuntime || hasNarrator || sourceMatches(result.MetadataSource, audioMetadataSources) {
		return ""
	}
	haystack := strings.ToLower(result.Title + " " + result.Format)
	for _, indicator := range printFormatIndicators {
		if strings.Contains(haystack, indicator) {
			return reasonNonAudiobook
		}
	}
	return ""
}

func promotionalFilter(result domain.CandidateResult) string {
	if IsPromotionalTitle(result.Title) {
		return reasonPromotional
	}
	return ""
}

func productListingFilter(result domain.CandidateResult) string {
	if result.IsEnriched && sourceMatches(result.MetadataSource, trustedMetadataSources) {
		return ""
	}
	if IsProductLikeTitle(result.Title) || IsSellerArtist(result.Author) {
		return reasonProductListing
	}
	return ""
}

func missingInfoFilter(result domain.CandidateResult) string {
	title := strings.TrimSpace(result.Title)
	author := strings.TrimSpace(result.Author)
	titleMissing := title == "" || title == unknownTitle
	authorMissing := author == "" || author == unknownAuthor
	if titleMissing && authorMissing {
		return reasonMissingInfo
	}
	return ""
}

func sourceMatches(source string, names []string) bool {
	lower := strings.ToLower(strings.TrimSpace(source))
	if lower == "" {
		return false
	}
	for _, name := range names {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}
