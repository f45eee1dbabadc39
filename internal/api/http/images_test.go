package apihttp

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

type fakeImageStore struct {
	files map[string]string
}

func (f fakeImageStore) CachedPath(asin string) (string, bool) {
	path, ok := f.files[asin]
	return path, ok
}

func TestImageServesCachedCover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "B08G9PRS1K.jpg")
	if err := os.WriteFile(path, []byte("\xff\xd8\xff\xe0cover"), 0o644); err != nil {
		t.Fatalf("write cover: %v", err)
	}
	handler := NewServer(nil, WithImages(fakeImageStore{files: map[string]string{"B08G9PRS1K": path}})).Handler()

	rec := serve(t, handler, http.MethodGet, "/api/images/B08G9PRS1K", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "\xff\xd8\xff\xe0cover" || rec.Header().Get("Cache-Control") == "" {
		t.Fatalf("unexpected image response: %q %v", rec.Body.String(), rec.Header())
	}

	if rec := serve(t, handler, http.MethodGet, "/api/images/B000000000", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for uncached cover, got %d", rec.Code)
	}
	if rec := serve(t, handler, http.MethodDelete, "/api/images/B08G9PRS1K", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestImageWithoutCache(t *testing.T) {
	if rec := serve(t, NewServer(nil).Handler(), http.MethodGet, "/api/images/B08G9PRS1K", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
