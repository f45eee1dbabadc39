package openlibrary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchDecodesDocs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search.json" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("q") != "dune herbert" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"numFound":1,"docs":[{"key":"/works/OL893415W","title":"Dune",
			"author_name":["Frank Herbert"],"first_publish_year":1965,"cover_i":11481354,
			"isbn":["9780441013593"],"language":["eng"]}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Client: server.Client()})
	books, err := client.Search(context.Background(), " dune herbert ", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("expected 1 book, got %d", len(books))
	}
	book := books[0]
	if book.Key != "/works/OL893415W" || book.FirstPublishYear != 1965 || book.CoverID != 11481354 {
		t.Fatalf("unexpected book: %+v", book)
	}
	if len(book.AuthorNames) != 1 || book.AuthorNames[0] != "Frank Herbert" {
		t.Fatalf("unexpected authors: %+v", book.AuthorNames)
	}
}

func TestSearchEmptyQuerySkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	}))
	defer server.Close()

	books, err := NewClient(Config{BaseURL: server.URL}).Search(context.Background(), "  ", 10)
	if err != nil || len(books) != 0 {
		t.Fatalf("expected empty result, got %+v / %v", books, err)
	}
}

func TestSearchReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewClient(Config{BaseURL: server.URL}).Search(context.Background(), "dune", 10); err == nil {
		t.Fatal("expected error for 502")
	}
}
