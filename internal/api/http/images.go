package apihttp

import (
	"net/http"
	"strings"
)

// handleImage serves a cover previously stored by the image cache.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	asin := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/images/"))
	if asin == "" || strings.Contains(asin, "/") {
		http.NotFound(w, r)
		return
	}
	if s.images == nil {
		writeError(w, http.StatusNotFound, "not_found", "image cache is not configured")
		return
	}
	path, ok := s.images.CachedPath(asin)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "image not cached")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, path)
}
