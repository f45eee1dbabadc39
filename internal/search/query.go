package search

import (
	"regexp"
	"strings"
	"unicode"
)

type queryKind int

const (
	queryText queryKind = iota
	queryASIN
	queryISBN
)

var bareASINPattern = regexp.MustCompile(`(?i)^B0[A-Z0-9]{8}$`)

type parsedQuery struct {
	text string
	kind queryKind
	asin string
}

// parseQuery classifies a free-text query. "asin:XXXX" or a bare B0-prefixed
// identifier takes the direct lookup path; a query that is only an ISBN
// (10 or 13 digits, separators ignored) skips the Audible catalog.
func parseQuery(raw string) parsedQuery {
	text := strings.Join(strings.Fields(raw), " ")
	parsed := parsedQuery{text: text, kind: queryText}
	if text == "" {
		return parsed
	}

	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "asin:") {
		candidate := strings.TrimSpace(text[len("asin:"):])
		if IsValidASIN(candidate) {
			parsed.kind = queryASIN
			parsed.asin = strings.ToUpper(candidate)
			return parsed
		}
	}
	if bareASINPattern.MatchString(text) {
		parsed.kind = queryASIN
		parsed.asin = strings.ToUpper(text)
		return parsed
	}
	if isISBNQuery(text) {
		parsed.kind = queryISBN
	}
	return parsed
}

func isISBNQuery(text string) bool {
	digits := 0
	for _, r := range text {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '-' || r == ' ':
		case (r == 'X' || r == 'x') && digits == 9:
			digits++
		default:
			return false
		}
	}
	return digits == 10 || digits == 13
}
