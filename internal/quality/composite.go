package quality

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"audiostream/metasearch/internal/domain"
)

// Tier weights keep each signal an order of magnitude apart so higher tiers
// dominate ties in lower ones.
const (
	compositeQualityWeight = 1000.0
	compositeFormatWeight  = 100.0
	compositeIndexerWeight = 1000.0
	compositeSeedWeight    = 100.0
	compositeAgeWeight     = 10.0

	unknownAgeScore    = 50.0
	unknownFormatScore = 50.0
	unknownSizeScore   = 50.0
)

// Composite ranks releases that already passed the quality profile. It never
// rejects.
func (s *Scorer) Composite(release domain.Release, indexer *domain.Indexer) domain.CompositeScore {
	breakdown := map[string]float64{
		"Quality": float64(TierScore(release.Quality)) * compositeQualityWeight / 100,
		"Format":  formatScore(release.Format) * compositeFormatWeight / 100,
		"Indexer": indexerScore(indexer),
		"Seed":    seedScore(release) * compositeSeedWeight,
		"Age":     unknownAgeScore,
		"Size":    sizeScore(release.Size),
	}
	if published, ok := ParsePublished(release.PublishedDate); ok {
		breakdown["Age"] = ageScore(s.now().Sub(published)) * compositeAgeWeight
	}

	total := 0.0
	for _, value := range breakdown {
		total += value
	}

	slog.Debug("composite score",
		slog.String("title", release.Title),
		slog.Float64("total", total),
	)
	return domain.CompositeScore{Total: total, Breakdown: breakdown}
}

// Ranked pairs a release with both of its scores.
type Ranked struct {
	Release   domain.Release        `json:"release"`
	Decision  domain.QualityScore   `json:"decision"`
	Composite domain.CompositeScore `json:"composite"`
}

// Rank scores every release under profile and orders accepted releases by
// composite total, highest first. Rejected releases follow in input order.
func (s *Scorer) Rank(releases []domain.Release, profile domain.QualityProfile, indexers map[int]domain.Indexer) []Ranked {
	accepted := make([]Ranked, 0, len(releases))
	rejected := make([]Ranked, 0)
	for _, release := range releases {
		var indexer *domain.Indexer
		if idx, ok := indexers[release.IndexerID]; ok && release.IndexerID != 0 {
			indexer = &idx
		}
		ranked := Ranked{
			Release:  release,
			Decision: s.Score(release, profile, indexer),
		}
		if ranked.Decision.IsRejected() {
			rejected = append(rejected, ranked)
			continue
		}
		ranked.Composite = s.Composite(release, indexer)
		accepted = append(accepted, ranked)
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Composite.Total > accepted[j].Composite.Total
	})
	return append(accepted, rejected...)
}

func indexerScore(indexer *domain.Indexer) float64 {
	if indexer == nil {
		return 0
	}
	priority := min(max(indexer.Priority, 1), 50)
	return float64(51-priority) * compositeIndexerWeight
}

func seedScore(release domain.Release) float64 {
	downloadType := strings.ToLower(release.DownloadType)
	if strings.Contains(downloadType, "usenet") || strings.Contains(downloadType, "ddl") || release.NzbURL != "" {
		if release.Grabs <= 0 {
			return 0
		}
		return math.Min(100, 20+math.Log10(float64(release.Grabs))*20)
	}

	seeders := seedersOf(release)
	if seeders <= 0 {
		return 0
	}
	score := math.Min(100, 20+math.Log10(float64(seeders))*20)
	if release.Leechers != nil && *release.Leechers > 0 {
		ratio := float64(seeders) / float64(*release.Leechers)
		switch {
		case ratio > 2:
			score += 10
		case ratio > 1:
			score += 5
		}
	}
	return math.Min(100, score)
}

func ageScore(age time.Duration) float64 {
	days := age.Hours() / 24
	switch {
	case days < 1:
		return 100
	case days < 7:
		return 90
	case days < 30:
		return 75
	case days < 90:
		return 60
	case days < 365:
		return 40
	default:
		return 20
	}
}

func sizeScore(size int64) float64 {
	if size <= 0 {
		return unknownSizeScore
	}
	mb := float64(size) / (1024 * 1024)
	switch {
	case mb >= 100 && mb <= 800:
		return 100
	case mb >= 50 && mb < 100, mb > 800 && mb <= 1500:
		return 80
	case mb >= 10 && mb < 50, mb > 1500 && mb <= 3000:
		return 50
	case mb < 10:
		return 20
	default:
		return 30
	}
}

func formatScore(format string) float64 {
	f := strings.ToLower(strings.TrimSpace(format))
	switch {
	case f == "":
		return unknownFormatScore
	case strings.Contains(f, "m4b"):
		return 100
	case strings.Contains(f, "flac"):
		return 95
	case strings.Contains(f, "opus"):
		return 90
	case strings.Contains(f, "m4a"), strings.Contains(f, "aac"):
		return 85
	case strings.Contains(f, "mp3"):
		return 75
	case strings.Contains(f, "ogg"), strings.Contains(f, "vorbis"):
		return 70
	case strings.Contains(f, "wma"):
		return 40
	case strings.Contains(f, "realaudio"), f == "ra":
		return 30
	default:
		return unknownFormatScore
	}
}
