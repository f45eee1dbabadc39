package quality

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/metrics"
)

const (
	baseScore                = 100
	formatMatchBonus         = 1
	formatInTitleBonus       = 5
	formatMismatchPenalty    = -12
	formatMissingPenalty     = -8
	qualityMissingPenalty    = -10
	languageMissingPenalty   = -10
	languageMismatchPenalty  = -15
	qualityNotAllowedPenalty = -20
	preferredWordBonus       = 5
	maxSeedersBonus          = 10
	maxAgePenalty            = 60
	agePenaltySpanDays       = 3650.0
	maxSeedersAgeBonus       = 60
)

// Scorer evaluates releases against a quality profile.
type Scorer struct {
	now func() time.Time
}

type ScorerOption func(*Scorer)

// WithClock overrides the time source used for age checks.
func WithClock(now func() time.Time) ScorerOption {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the verdict for release under profile. indexer may be nil when
// the release's indexer is unknown.
func (s *Scorer) Score(release domain.Release, profile domain.QualityProfile, indexer *domain.Indexer) domain.QualityScore {
	result := s.evaluate(release, profile, indexer)
	metrics.QualityDecisionsTotal.WithLabelValues(string(result.Verdict)).Inc()
	return result
}

func (s *Scorer) evaluate(release domain.Release, profile domain.QualityProfile, indexer *domain.Indexer) domain.QualityScore {
	language := normalizeToken(release.Language)
	format := normalizeToken(release.Format)
	tier := normalizeToken(release.Quality)
	title := release.Title
	titleLower := strings.ToLower(title)

	for _, word := range profile.MustNotContain {
		if word != "" && containsFold(title, word) {
			return reject(fmt.Sprintf("Contains forbidden word: '%s'", word))
		}
	}
	for _, word := range profile.MustContain {
		if word != "" && !containsFold(title, word) {
			return reject(fmt.Sprintf("Missing required word: '%s'", word))
		}
	}

	usenet := IsUsenet(release, indexer)

	if !usenet && release.Size > 0 {
		if profile.MinimumSize > 0 && release.Size < megabytes(profile.MinimumSize) {
			return reject(fmt.Sprintf("File too small (< %d MB)", profile.MinimumSize))
		}
		if profile.MaximumSize > 0 && release.Size > megabytes(profile.MaximumSize) {
			return reject(fmt.Sprintf("File too large (> %d MB)", profile.MaximumSize))
		}
	}

	if strings.EqualFold(release.DownloadType, "torrent") && seedersOf(release) < profile.MinimumSeeders {
		value := "(none)"
		if release.Seeders != nil {
			value = fmt.Sprint(*release.Seeders)
		}
		return reject(fmt.Sprintf("Not enough seeders (%s < %d)", value, profile.MinimumSeeders))
	}

	retention := 0
	if indexer != nil {
		retention = indexer.Retention
	}
	ageDays := 0.0
	if published, ok := ParsePublished(release.PublishedDate); ok {
		ageDays = s.now().Sub(published).Hours() / 24
		if reason := ageRejection(ageDays, retention, profile.MaximumAge, usenet); reason != "" {
			return reject(reason)
		}
	}

	score := domain.QualityScore{
		Verdict:   domain.VerdictAccepted,
		Score:     baseScore,
		Breakdown: make(map[string]int),
	}
	add := func(key string, delta int) {
		score.Score += delta
		score.Breakdown[key] = delta
	}

	if usenet && language == "" && len(profile.PreferredLanguages) > 0 {
		language = detectLanguage(titleLower, profile.PreferredLanguages)
	}
	if len(profile.PreferredLanguages) > 0 {
		switch {
		case language == "" && usenet:
			slog.Debug("usenet release without language", slog.String("title", title))
		case language == "":
			add("Language", languageMissingPenalty)
		case !anyEqualFold(profile.PreferredLanguages, language):
			add("LanguageMismatch", languageMismatchPenalty)
		}
	}

	if usenet && format == "" && len(profile.PreferredFormats) > 0 {
		if detected := detectFormat(titleLower, profile.PreferredFormats); detected != "" {
			format = detected
			add("FormatMatchedInTitle", formatInTitleBonus)
		}
	}
	if len(profile.PreferredFormats) > 0 {
		switch {
		case format == "" && usenet:
			slog.Debug("usenet release without format", slog.String("title", title))
		case format == "":
			add("Format", formatMissingPenalty)
		case formatMatches(profile.PreferredFormats, format, tier, release, titleLower):
			add("FormatMatchedInFormat", formatMatchBonus)
		default:
			add("FormatMismatch", formatMismatchPenalty)
		}
	}

	if !usenet {
		if tier == "" {
			if format == "" && detectFormat(titleLower, profile.PreferredFormats) == "" && !urlHasAudioExtension(release.TorrentURL) {
				add("QualityMissing", qualityMissingPenalty)
			}
		} else {
			tierScore := TierScore(tier)
			score.Score -= 100 - tierScore
			score.Breakdown["Quality"] = tierScore
			if !tierAllowed(profile, tier) {
				add("QualityNotAllowed", qualityNotAllowedPenalty)
				score.RejectionReasons = append(score.RejectionReasons,
					fmt.Sprintf("Quality '%s' not allowed by profile", tier))
			}
		}
	}

	bonus := 0
	for _, word := range profile.PreferredWords {
		if strings.TrimSpace(word) != "" && containsFold(title, word) {
			bonus += preferredWordBonus
		}
	}
	if bonus != 0 {
		add("PreferredWords", bonus)
	}

	seeders := seedersOf(release)
	if seeders > 0 {
		add("Seeders", min(maxSeedersBonus, seeders))
	}

	if ageDays > 0 {
		penalty := min(int(math.Floor(ageDays/agePenaltySpanDays*maxAgePenalty)), maxAgePenalty)
		if penalty > 0 {
			add("Age", -penalty)
		}
	}
	if !usenet && ageDays >= agePenaltySpanDays && seeders > 0 {
		ageBonus := min(maxSeedersAgeBonus, int(math.Floor(float64(seeders)/20*maxSeedersAgeBonus)))
		if ageBonus > 0 {
			add("SeedersAgeBonus", ageBonus)
		}
	}

	if score.Score <= 0 {
		score.Verdict = domain.VerdictRejected
		score.RejectionReasons = append(score.RejectionReasons, "computed score <= 0")
		return score
	}
	if len(score.RejectionReasons) > 0 {
		score.Verdict = domain.VerdictRejected
		return score
	}
	score.Score = min(max(score.Score, 0), 100)
	return score
}

// ageRejection applies indexer retention and profile maximum age. Usenet
// releases must satisfy both; for torrents a configured retention replaces
// the profile limit.
func ageRejection(ageDays float64, retention, maximumAge int, usenet bool) string {
	retentionExceeded := retention > 0 && ageDays > float64(retention)
	ageExceeded := maximumAge > 0 && ageDays > float64(maximumAge)
	switch {
	case retentionExceeded:
		return fmt.Sprintf("Too old (%d days > indexer retention %d days)", int(ageDays), retention)
	case ageExceeded && (usenet || retention <= 0):
		return fmt.Sprintf("Too old (%d days > profile maximum age %d days)", int(ageDays), maximumAge)
	}
	return ""
}

func reject(reason string) domain.QualityScore {
	return domain.QualityScore{
		Verdict:          domain.VerdictRejected,
		RejectionReasons: []string{reason},
	}
}

// IsUsenet reports whether release is delivered through Usenet, which exempts
// it from size checks and missing language or format penalties.
func IsUsenet(release domain.Release, indexer *domain.Indexer) bool {
	if release.NzbURL != "" {
		return true
	}
	if strings.EqualFold(release.DownloadType, "nzb") || strings.EqualFold(release.DownloadType, "usenet") {
		return true
	}
	implementation := strings.ToLower(release.IndexerImplementation)
	if strings.Contains(implementation, "nzb") || strings.Contains(implementation, "usenet") {
		return true
	}
	if containsFold(release.Source, "usenet") {
		return true
	}
	resultURL := strings.ToLower(release.ResultURL)
	if strings.HasSuffix(resultURL, ".nzb") || strings.Contains(resultURL, "/nzb") {
		return true
	}
	if strings.HasSuffix(strings.ToLower(release.TorrentURL), ".nzb") {
		return true
	}
	return indexer != nil && strings.EqualFold(strings.TrimSpace(indexer.Type), "usenet")
}

// TierScore maps a quality label onto 0..100, highest for lossless audio.
func TierScore(quality string) int {
	q := strings.ToLower(quality)
	switch {
	case q == "":
		return 0
	case strings.Contains(q, "flac"):
		return 100
	case strings.Contains(q, "aax"):
		return 95
	case strings.Contains(q, "m4b"):
		return 90
	case strings.Contains(q, "opus"):
		return 85
	case strings.Contains(q, "v0"):
		return 82
	case strings.Contains(q, "v1"):
		return 76
	case strings.Contains(q, "v2"):
		return 70
	case strings.Contains(q, "aac"), strings.Contains(q, "m4a"):
		return 78
	case strings.Contains(q, "320"):
		return 80
	case strings.Contains(q, "256"):
		return 74
	case strings.Contains(q, "192"):
		return 60
	case strings.Contains(q, "vbr"), strings.Contains(q, "cbr"):
		return 65
	case strings.Contains(q, "mp3") && !strings.Contains(q, "64") && !strings.Contains(q, "128"):
		return 65
	case strings.Contains(q, "128"):
		return 50
	case strings.Contains(q, "64"):
		return 40
	default:
		return 0
	}
}

// ParsePublished accepts the date layouts indexers commonly emit.
func ParsePublished(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	layouts := []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func tierAllowed(profile domain.QualityProfile, tier string) bool {
	if len(profile.Qualities) == 0 {
		return true
	}
	allowed := make([]string, 0, len(profile.Qualities)+len(profile.PreferredFormats))
	for _, def := range profile.Qualities {
		if def.Allowed {
			allowed = append(allowed, strings.ToLower(def.Quality))
		}
	}
	for _, format := range profile.PreferredFormats {
		if f := strings.ToLower(strings.TrimSpace(format)); f != "" {
			allowed = append(allowed, f)
		}
	}
	detected := strings.ToLower(tier)
	for _, q := range allowed {
		if q == "" {
			continue
		}
		if strings.Contains(detected, q) || strings.Contains(q, detected) {
			return true
		}
	}
	return false
}

func formatMatches(preferred []string, format, tier string, release domain.Release, titleLower string) bool {
	formatLower := strings.ToLower(format)
	tierLower := strings.ToLower(tier)
	location := release.TorrentURL
	if location == "" {
		location = release.Source
	}
	location = strings.ToLower(location)
	for _, candidate := range preferred {
		token := strings.ToLower(strings.TrimSpace(candidate))
		if token == "" {
			continue
		}
		if strings.Contains(formatLower, token) || strings.Contains(tierLower, token) ||
			strings.Contains(location, token) || strings.Contains(titleLower, token) {
			return true
		}
	}
	return false
}

func detectFormat(titleLower string, preferred []string) string {
	if titleLower == "" {
		return ""
	}
	for _, candidate := range preferred {
		token := strings.ToLower(strings.TrimSpace(candidate))
		if token != "" && strings.Contains(titleLower, token) {
			return token
		}
	}
	return ""
}

var commonLanguageTokens = []struct {
	token    string
	language string
}{
	{"english", "English"},
	{"eng", "English"},
	{"spanish", "Spanish"},
	{"german", "German"},
	{"french", "French"},
}

func detectLanguage(titleLower string, preferred []string) string {
	if titleLower == "" {
		return ""
	}
	for _, language := range preferred {
		token := strings.ToLower(strings.TrimSpace(language))
		if token != "" && strings.Contains(titleLower, token) {
			return language
		}
	}
	words := strings.FieldsFunc(titleLower, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	})
	for _, word := range words {
		for _, common := range commonLanguageTokens {
			if word == common.token {
				return common.language
			}
		}
	}
	return ""
}

func urlHasAudioExtension(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, ".m4b") || strings.Contains(lower, ".mp3") || strings.Contains(lower, ".m4a")
}

func normalizeToken(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.EqualFold(trimmed, "unknown") {
		return ""
	}
	return trimmed
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func anyEqualFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), target) {
			return true
		}
	}
	return false
}

func seedersOf(release domain.Release) int {
	if release.Seeders == nil {
		return 0
	}
	return *release.Seeders
}

func megabytes(mb int) int64 {
	return int64(mb) * 1024 * 1024
}
