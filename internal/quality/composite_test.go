package quality

import (
	"math"
	"testing"

	"audiostream/metasearch/internal/domain"
)

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}

func TestCompositeTierWeights(t *testing.T) {
	got := newTestScorer().Composite(domain.Release{
		Title:    "Book",
		Quality:  "m4b",
		Format:   "m4b",
		Seeders:  intPtr(100),
		Leechers: intPtr(10),
	}, nil)

	want := map[string]float64{
		"Quality": 900,
		"Format":  100,
		"Indexer": 0,
		"Seed":    7000,
		"Age":     50,
		"Size":    50,
	}
	for key, value := range want {
		if !approx(got.Breakdown[key], value) {
			t.Fatalf("%s: expected %v, got %v", key, value, got.Breakdown[key])
		}
	}
	if !approx(got.Total, 8100) {
		t.Fatalf("expected total 8100, got %v", got.Total)
	}
}

func TestCompositeIndexerPriorityClamped(t *testing.T) {
	scorer := newTestScorer()
	release := domain.Release{Title: "Book"}

	top := scorer.Composite(release, &domain.Indexer{Priority: -5})
	if top.Breakdown["Indexer"] != 50000 {
		t.Fatalf("expected priority clamped to 1, got %v", top.Breakdown["Indexer"])
	}
	bottom := scorer.Composite(release, &domain.Indexer{Priority: 99})
	if bottom.Breakdown["Indexer"] != 1000 {
		t.Fatalf("expected priority clamped to 50, got %v", bottom.Breakdown["Indexer"])
	}
}

func TestCompositeUsenetUsesGrabs(t *testing.T) {
	got := newTestScorer().Composite(domain.Release{
		Title:        "Book",
		DownloadType: "usenet",
		Grabs:        10,
		Seeders:      intPtr(1000),
	}, nil)
	if !approx(got.Breakdown["Seed"], 4000) {
		t.Fatalf("expected grab based seed score, got %v", got.Breakdown["Seed"])
	}
}

func TestCompositeAgeAndSizeBuckets(t *testing.T) {
	scorer := newTestScorer()
	recent := scorer.Composite(domain.Release{PublishedDate: daysAgo(3), Size: 300 * 1024 * 1024}, nil)
	if recent.Breakdown["Age"] != 900 || recent.Breakdown["Size"] != 100 {
		t.Fatalf("unexpected breakdown: %v", recent.Breakdown)
	}
	old := scorer.Composite(domain.Release{PublishedDate: daysAgo(800), Size: 5 * 1024 * 1024 * 1024}, nil)
	if old.Breakdown["Age"] != 200 || old.Breakdown["Size"] != 30 {
		t.Fatalf("unexpected breakdown: %v", old.Breakdown)
	}
}

func TestRankOrdersAcceptedByCompositeAndTrailsRejected(t *testing.T) {
	profile := domain.QualityProfile{MustNotContain: []string{"sample"}}
	indexers := map[int]domain.Indexer{
		1: {ID: 1, Priority: 25},
		2: {ID: 2, Priority: 1},
	}
	releases := []domain.Release{
		{Title: "Book sample", IndexerID: 2},
		{Title: "Book mp3", Quality: "flac", IndexerID: 1},
		{Title: "Book m4b", Quality: "mp3", IndexerID: 2},
	}

	ranked := newTestScorer().Rank(releases, profile, indexers)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(ranked))
	}
	if ranked[0].Release.Title != "Book m4b" || ranked[1].Release.Title != "Book mp3" {
		t.Fatalf("unexpected order: %q, %q", ranked[0].Release.Title, ranked[1].Release.Title)
	}
	if !ranked[2].Decision.IsRejected() || ranked[2].Composite.Total != 0 {
		t.Fatalf("expected rejected release last without composite, got %+v", ranked[2])
	}
}
