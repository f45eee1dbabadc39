package amazon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"audiostream/metasearch/internal/providers/common"
)

const searchPage = `
<html><body>
<div data-component-type="s-search-result" data-asin="B08G9PRS1K">
  <h2><a href="/Project-Hail-Mary/dp/B08G9PRS1K"><span>Project Hail Mary</span></a></h2>
  <div class="a-row"><span>by Andy Weir</span></div>
  <div class="a-row"><span>Narrated by Ray Porter</span></div>
  <img class="s-image" src="https://m.media-amazon.com/images/I/91vS2L5YfEL._AC_UY218_.jpg" />
</div>
<div data-component-type="s-search-result" data-asin="">
  <h2><a href="/Artemis/dp/B0722RN3P4"><span>Artemis</span></a></h2>
  <div class="a-row"><span>by Andy Weir</span></div>
</div>
<div data-component-type="s-search-result" data-asin="B000000001">
  <h2><span>1-16 of 200 results for "andy weir"</span></h2>
</div>
<div data-component-type="s-search-result" data-asin="B08G9PRS1K">
  <h2><span>Project Hail Mary</span></h2>
</div>
</body></html>`

const productPage = `
<html><head>
<meta property="og:image" content="https://m.media-amazon.com/images/I/og.jpg" />
</head><body>
<span id="productTitle">Leviathan Wakes (The Expanse, Book 1)</span>
<img id="landingImage" data-old-hires="https://m.media-amazon.com/images/I/81hires.jpg" />
<div id="audibleproductdetails_feature_div"><table>
  <tr><th>Author</th><td>James S. A. Corey</td></tr>
  <tr><th>Narrator</th><td>Jefferson Mays</td></tr>
  <tr><th>Listening Length</th><td>20 hours and 56 minutes</td></tr>
  <tr><th>Publisher</th><td>Hachette Audio</td></tr>
  <tr><th>Audible.com Release Date</th><td>June 15, 2011</td></tr>
  <tr><th>Program Type</th><td>Audiobook</td></tr>
  <tr><th>Version</th><td>Unabridged</td></tr>
  <tr><th>Language</th><td>English</td></tr>
</table></div>
<div id="bookDescription_feature_div"><span>Humanity has colonized the solar system.</span></div>
</body></html>`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewProvider(Config{Endpoint: server.URL, Client: server.Client()})
}

func TestSearchParsesResults(t *testing.T) {
	var gotQuery string
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/s" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query().Get("k")
		if r.URL.Query().Get("i") != "audible" {
			t.Errorf("expected audible department, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(searchPage))
	})

	hits, err := provider.Search(context.Background(), "andy weir")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotQuery != "andy weir" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d: %+v", len(hits), hits)
	}
	first := hits[0]
	if first.ASIN != "B08G9PRS1K" || first.Title != "Project Hail Mary" || first.Author != "Andy Weir" {
		t.Fatalf("unexpected first hit: %+v", first)
	}
	if first.Narrator != "Ray Porter" {
		t.Fatalf("unexpected narrator: %q", first.Narrator)
	}
	if !strings.HasSuffix(first.ProductURL, "/dp/B08G9PRS1K") {
		t.Fatalf("unexpected product url: %q", first.ProductURL)
	}
	if hits[1].ASIN != "B0722RN3P4" {
		t.Fatalf("expected ASIN from link, got %+v", hits[1])
	}
}

func TestSearchFallsBackToProductLinks(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<a href="/gp/x/dp/B0722RN3P4/ref=sr_1">Artemis</a><a href="/dp/B0722RN3P4">Artemis</a>`))
	})
	hits, err := provider.Search(context.Background(), "artemis")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "Artemis" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestSearchReportsBotChallenge(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<p>To discuss automated access to Amazon data please contact us.</p>`))
	})
	if _, err := provider.Search(context.Background(), "dune"); !errors.Is(err, common.ErrBotChallenge) {
		t.Fatalf("expected bot challenge, got %v", err)
	}
}

func TestProductPageScrape(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dp/B005LZHXSY" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(productPage))
	})

	meta, err := provider.ProductPage().Scrape(context.Background(), "b005lzhxsy")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if meta == nil {
		t.Fatal("expected metadata")
	}
	if meta.ASIN != "B005LZHXSY" || meta.Source != "Amazon" {
		t.Fatalf("unexpected identity: %+v", meta)
	}
	if meta.Title != "Leviathan Wakes" || meta.Series != "The Expanse" || meta.SeriesNumber != "1" {
		t.Fatalf("unexpected title/series: %q %q %q", meta.Title, meta.Series, meta.SeriesNumber)
	}
	if !reflect.DeepEqual(meta.Authors, []string{"James S. A. Corey"}) || !reflect.DeepEqual(meta.Narrators, []string{"Jefferson Mays"}) {
		t.Fatalf("unexpected credits: %+v %+v", meta.Authors, meta.Narrators)
	}
	if meta.RuntimeMinutes != 1256 || meta.PublishYear != 2011 || meta.Publisher != "Hachette Audio" {
		t.Fatalf("unexpected details: %+v", meta)
	}
	if meta.Abridged {
		t.Fatal("unabridged edition reported as abridged")
	}
	if meta.ImageURL != "https://m.media-amazon.com/images/I/81hires.jpg" {
		t.Fatalf("unexpected image: %q", meta.ImageURL)
	}
	if meta.Language != "English" || meta.Description == "" {
		t.Fatalf("unexpected language/description: %q %q", meta.Language, meta.Description)
	}
}

func TestProductPageMissingIsNil(t *testing.T) {
	provider := newTestProvider(t, http.NotFound)
	meta, err := provider.ProductPage().Scrape(context.Background(), "B000MISSING")
	if err != nil || meta != nil {
		t.Fatalf("expected nil result, got %+v / %v", meta, err)
	}
}

func TestParseSeriesRow(t *testing.T) {
	series, number := parseSeriesRow("Book 3 of 9: The Expanse")
	if series != "The Expanse" || number != "3" {
		t.Fatalf("unexpected series row: %q #%q", series, number)
	}
}
