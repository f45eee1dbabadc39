package search

import (
	"regexp"
	"strings"
)

var (
	promoPercentPattern = regexp.MustCompile(`\b\d+%`)
	promoStorePattern   = regexp.MustCompile(`(?i)visit the .*store`)
	productCountPattern = regexp.MustCompile(`(?i)\b(pack of|set of|set x|qty|piece)\b`)
	productUnitPattern  = regexp.MustCompile(`(?i)\b\d{1,4}\s?(cm|mm|in|inches|oz|ml)\b`)
	productWordPattern  = regexp.MustCompile(`(?i)\b(led|lamp|light|charger|battery|watt|volt|usb|hdmi|case|cover|shirt|socks|decor|decorations?|gift|necklace|bracelet|ring|halloween|christmas|remote|plug|adapter|holder|stand|tool|kit|pack of|set of|piece|cm|mm|inch|inches|oz|ml|capacity|dimensions|material|fabric|men's|women's)\b`)
)

var titleNoisePattern = regexp.MustCompile(`(?i)(no results|suggested searches|try again|browse categories|customer service|sign in|audible\.com|\b(help|search|menu|account|language|currency)\b)`)

// IsValidASIN reports whether value looks like a catalog identifier:
// ten alphanumerics starting with "B0" or a digit.
func IsValidASIN(value string) bool {
	if len(value) != 10 {
		return false
	}
	upper := strings.ToUpper(value)
	if !strings.HasPrefix(upper, "B0") && (upper[0] < '0' || upper[0] > '9') {
		return false
	}
	for i := 0; i < len(upper); i++ {
		c := upper[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// IsTitleNoise detects storefront chrome scraped in place of a real title.
func IsTitleNoise(title string) bool {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return true
	}
	if strings.Count(trimmed, "\n") > 2 {
		return true
	}
	return titleNoisePattern.MatchString(trimmed)
}

func IsPromotionalTitle(title string) bool {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)
	if promoPercentPattern.MatchString(lower) {
		return true
	}
	if strings.Contains(lower, "unlock") && (strings.Contains(lower, "save") || strings.Contains(lower, "savings")) {
		return true
	}
	if promoStorePattern.MatchString(lower) {
		return true
	}
	return strings.HasPrefix(lower, "unlock ") || strings.HasPrefix(lower, "save ") || strings.HasPrefix(lower, "visit the ")
}

func IsAuthorNoise(author string) bool {
	trimmed := strings.TrimSpace(author)
	if len(trimmed) < 2 {
		return true
	}
	if strings.EqualFold(trimmed, "Authors") || strings.EqualFold(trimmed, "By:") {
		return true
	}
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "sort by") || strings.Contains(lower, "english - usd")
}

// IsProductLikeTitle flags retail listings (chargers, decor, apparel) that leak
// into audiobook search pages.
func IsProductLikeTitle(title string) bool {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return false
	}
	if len(trimmed) > 200 {
		return true
	}
	if productWordPattern.MatchString(trimmed) || productCountPattern.MatchString(trimmed) || productUnitPattern.MatchString(trimmed) {
		return true
	}
	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "store") || strings.Contains(lower, "visit the") {
		return true
	}
	return strings.Count(trimmed, ",") >= 3
}

// IsSellerArtist reports whether an author field actually names a storefront.
func IsSellerArtist(author string) bool {
	lower := strings.ToLower(strings.TrimSpace(author))
	if lower == "" {
		return false
	}
	return strings.Contains(lower, "store") || strings.Contains(lower, "seller") || strings.Contains(lower, "shop")
}

func IsKindleEdition(text string) bool {
	return strings.Contains(strings.ToLower(text), "kindle edition")
}
