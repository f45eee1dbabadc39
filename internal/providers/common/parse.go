package common

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	yearPattern       = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	hoursPattern      = regexp.MustCompile(`(?i)(\d+)\s*(?:hours?|hrs?)\b`)
	minutesPattern    = regexp.MustCompile(`(?i)(\d+)\s*(?:minutes?|mins?)\b`)
	rolePattern       = regexp.MustCompile(`(?i),?\s*\((?:author|narrator|reader|performer|contributor)\)`)
	labelPattern      = regexp.MustCompile(`(?i)narrated by:?|narrator:|written by:?|by:`)
	nameSplitPattern  = regexp.MustCompile(`,|\band\b|/|&`)
	currencyPattern   = regexp.MustCompile(`(?i)\s*-\s*(USD|EUR|GBP|CAD|AUD|INR)\s*$`)
	imageIDPattern    = regexp.MustCompile(`/images/I/([A-Za-z0-9_+-]+)\.`)
	seriesColonBook   = regexp.MustCompile(`(?i)^(.+?):\s*([^,]+),?\s+Book\s+(\d+)$`)
	seriesParenBook   = regexp.MustCompile(`(?i)^(.+?)\s*\(([^,)]+),?\s+Book\s+(\d+)\)$`)
	seriesBookOf      = regexp.MustCompile(`(?i)^(.+?)[,:]\s+Book\s+(\d+)\s+of\s+(.+)$`)
	seriesLabelPrefix = regexp.MustCompile(`(?i)^\s*series:\s*`)
	seriesBookSuffix  = regexp.MustCompile(`(?i)^(.+?),\s*Book\s+(\d+)`)
)

func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// StripLabel removes a leading "Label:" prefix such as "Narrated by:" or "Language:".
func StripLabel(raw, label string) string {
	value := CleanHTMLText(raw)
	if len(value) >= len(label) && strings.EqualFold(value[:len(label)], label) {
		value = value[len(label):]
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), ":"))
}

// ExtractYear returns the first plausible four-digit year in raw, or 0.
func ExtractYear(raw string) int {
	match := yearPattern.FindString(raw)
	if match == "" {
		return 0
	}
	year, _ := strconv.Atoi(match)
	return year
}

// ParseRuntimeMinutes reads "12 hours and 5 minutes" or "12 hrs and 5 mins".
func ParseRuntimeMinutes(raw string) int {
	total := 0
	if match := hoursPattern.FindStringSubmatch(raw); len(match) == 2 {
		hours, _ := strconv.Atoi(match[1])
		total += hours * 60
	}
	if match := minutesPattern.FindStringSubmatch(raw); len(match) == 2 {
		minutes, _ := strconv.Atoi(match[1])
		total += minutes
	}
	return total
}

// SplitNames turns a credit line into distinct person names, dropping role
// annotations and "Narrated by:" style labels.
func SplitNames(raw string) []string {
	value := CleanHTMLText(raw)
	value = labelPattern.ReplaceAllString(value, "")
	value = rolePattern.ReplaceAllString(value, "")
	parts := nameSplitPattern.Split(value, -1)
	names := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

// CleanLanguage drops storefront suffixes like "English - USD".
func CleanLanguage(raw string) string {
	value := StripLabel(raw, "Language")
	return strings.TrimSpace(currencyPattern.ReplaceAllString(value, ""))
}

// CleanImageURL discards navigation and tracking images and upgrades social
// share thumbnails to a full-size cover.
func CleanImageURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" || strings.HasPrefix(value, "data:") {
		return ""
	}
	for _, marker := range []string{"/navigation/", "logo", "/batch/", "fls-na.amazon"} {
		if strings.Contains(value, marker) {
			return ""
		}
	}
	if strings.Contains(value, "PJAdblSocialShare") || strings.Contains(value, "_CLa") || strings.Contains(value, "_SL10_") {
		if match := imageIDPattern.FindStringSubmatch(value); len(match) == 2 {
			return "https://m.media-amazon.com/images/I/" + match[1] + "._SL500_.jpg"
		}
	}
	return value
}

// SplitSeriesTitle pulls a series name and number out of titles such as
// "Dune: Dune Chronicles, Book 1". ok is false when no pattern matched.
func SplitSeriesTitle(title string) (base, series, number string, ok bool) {
	value := strings.TrimSpace(title)
	if match := seriesColonBook.FindStringSubmatch(value); match != nil {
		return strings.TrimSpace(match[1]), strings.TrimSpace(match[2]), match[3], true
	}
	if match := seriesParenBook.FindStringSubmatch(value); match != nil {
		return strings.TrimSpace(match[1]), strings.TrimSpace(match[2]), match[3], true
	}
	if match := seriesBookOf.FindStringSubmatch(value); match != nil {
		return strings.TrimSpace(match[1]), strings.TrimSpace(match[3]), match[2], true
	}
	return value, "", "", false
}

// ParseSeriesLabel reads "Series: The Expanse, Book 3".
func ParseSeriesLabel(raw string) (series, number string) {
	value := seriesLabelPrefix.ReplaceAllString(CleanHTMLText(raw), "")
	if match := seriesBookSuffix.FindStringSubmatch(value); match != nil {
		return strings.TrimSpace(match[1]), match[2]
	}
	return strings.TrimSpace(value), ""
}

func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// CompactSnippet shortens an error body for logs.
func CompactSnippet(raw string, maxLen int) string {
	value := CleanHTMLText(raw)
	if value == "" {
		return "empty response body"
	}
	if len(value) <= maxLen {
		return value
	}
	if maxLen < 4 {
		return value[:maxLen]
	}
	return value[:maxLen-3] + "..."
}
