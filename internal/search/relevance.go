package search

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xrash/smetrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"audiostream/metasearch/internal/domain"
)

const (
	weightContainment  = 0.45
	weightAuthor       = 0.18
	weightFuzzy        = 0.12
	weightCompleteness = 0.10
	weightSource       = 0.06
	weightASIN         = 0.05
	weightSeries       = 0.04

	promoPenalty      = 0.25
	fuzzyRescueMax    = 0.4
	fuzzyRescueMin    = 0.85
	fuzzyRescueFactor = 0.1
	openLibraryBoost  = 0.15
)

// Scored carries a relevance score together with the sub-scores it was built from.
type Scored struct {
	Result       domain.CandidateResult
	Score        float64
	Containment  float64
	Fuzzy        float64
	Author       float64
	Series       float64
	Completeness float64
	SourceTrust  float64
}

// ScoreRelevance computes a 0..1 relevance for result against query from the
// precomputed title containment and fuzzy similarity.
func ScoreRelevance(result domain.CandidateResult, query string, containment, fuzzy float64) Scored {
	queryTokens := tokenize(query)
	scored := Scored{
		Result:       result,
		Containment:  containment,
		Fuzzy:        fuzzy,
		Author:       tokenOverlap(queryTokens, result.Author),
		Series:       tokenOverlap(queryTokens, result.Series),
		Completeness: completeness(result),
		SourceTrust:  sourceTrust(result.MetadataSource),
	}

	asinMatch := 0.0
	if result.ASIN != "" && strings.EqualFold(result.ASIN, strings.TrimSpace(query)) {
		asinMatch = 1
	}

	score := containment*weightContainment +
		scored.Author*weightAuthor +
		fuzzy*weightFuzzy +
		scored.Completeness*weightCompleteness +
		scored.SourceTrust*weightSource +
		asinMatch*weightASIN +
		scored.Series*weightSeries

	if IsPromotionalTitle(result.Title) {
		score -= promoPenalty
	}
	score = clamp01(score)

	if containment < fuzzyRescueMax && fuzzy > fuzzyRescueMin {
		score = min(1, score+fuzzy*fuzzyRescueFactor)
	}
	if strings.EqualFold(result.MetadataSource, openLibraryName) {
		score = min(1, score+openLibraryBoost)
	}
	scored.Score = score
	return scored
}

// TitleContainment is the fraction of query tokens present in the title, or 1
// when the whole query appears verbatim.
func TitleContainment(query, title string) float64 {
	q := foldText(strings.TrimSpace(query))
	t := foldText(title)
	if q == "" || t == "" {
		return 0
	}
	if strings.Contains(t, q) {
		return 1
	}
	return tokenOverlap(tokenize(query), title)
}

// TitleFuzzy is 1 - levenshtein/maxlen over the folded strings.
func TitleFuzzy(query, title string) float64 {
	q := foldText(strings.TrimSpace(query))
	t := foldText(strings.TrimSpace(title))
	if q == "" || t == "" {
		return 0
	}
	longest := max(utf8.RuneCountInString(q), utf8.RuneCountInString(t))
	distance := smetrics.WagnerFischer(q, t, 1, 1, 1)
	return clamp01(1 - float64(distance)/float64(longest))
}

func tokenOverlap(queryTokens []string, field string) float64 {
	if len(queryTokens) == 0 || strings.TrimSpace(field) == "" {
		return 0
	}
	fieldTokens := make(map[string]struct{})
	for _, token := range tokenize(field) {
		fieldTokens[token] = struct{}{}
	}
	matched := 0
	for _, token := range queryTokens {
		if _, ok := fieldTokens[token]; ok {
			matched++
		}
	}
	return min(1, float64(matched)/float64(len(queryTokens)))
}

func completeness(result domain.CandidateResult) float64 {
	present := 0
	for _, value := range []string{result.Title, result.Author, result.Publisher, result.ImageURL} {
		if strings.TrimSpace(value) != "" {
			present++
		}
	}
	return float64(present) / 4
}

func sourceTrust(metadataSource string) float64 {
	lower := strings.ToLower(strings.TrimSpace(metadataSource))
	switch {
	case lower == "":
		return 0
	case strings.Contains(lower, "audimeta"), strings.Contains(lower, "audnex"), strings.Contains(lower, "openlibrary"):
		return 1
	default:
		return 0.5
	}
}

func tokenize(text string) []string {
	folded := foldText(text)
	return strings.FieldsFunc(folded, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '-', '_', '.', ',', ':', ';':
			return true
		}
		return false
	})
}

// foldText lower-cases and strips combining marks so "Brontë" matches "bronte".
func foldText(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	return strings.ToLower(folded)
}

func clamp01(value float64) float64 {
	return max(0, min(1, value))
}
