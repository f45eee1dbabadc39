package apihttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/quality"
	"audiostream/metasearch/internal/releases"
	"audiostream/metasearch/internal/search"
)

const maxScoreReleases = 1000

type scoreRequest struct {
	Profile   *domain.QualityProfile `json:"profile"`
	ProfileID *int                   `json:"profileId"`
	Releases  []domain.Release       `json:"releases"`
	Indexers  []domain.Indexer       `json:"indexers"`
}

type scoreResponse struct {
	Profile  string           `json:"profile"`
	Items    []quality.Ranked `json:"items"`
	Accepted int              `json:"accepted"`
}

func (s *Server) handleQualityScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var request scoreRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(request.Releases) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "releases are required")
		return
	}
	if len(request.Releases) > maxScoreReleases {
		writeError(w, http.StatusBadRequest, "invalid_request", "too many releases (max 1000)")
		return
	}

	var (
		profile domain.QualityProfile
		err     error
	)
	switch {
	case request.Profile != nil:
		profile = *request.Profile
	case request.ProfileID != nil:
		profile, err = s.profiles.Profile(*request.ProfileID)
	default:
		profile = s.profiles.Default()
	}
	if err != nil {
		writeProfileError(w, err)
		return
	}

	indexers := s.profiles.IndexerMap()
	for _, indexer := range request.Indexers {
		indexers[indexer.ID] = indexer
	}
	ranked := s.scorer.Rank(request.Releases, profile, indexers)
	writeJSON(w, http.StatusOK, scoreResponse{
		Profile:  profile.Name,
		Items:    ranked,
		Accepted: countAccepted(ranked),
	})
}

func (s *Server) handleQualityProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":   s.profiles.Profiles,
		"default": s.profiles.Default().Name,
	})
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.releases == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "release search is not configured")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}

	profile := s.profiles.Default()
	if raw := strings.TrimSpace(r.URL.Query().Get("profileId")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid profileId")
			return
		}
		if profile, err = s.profiles.Profile(id); err != nil {
			writeProfileError(w, err)
			return
		}
	}

	result, err := s.releases.Find(r.Context(), query, profile)
	if err != nil {
		s.logger.Warn("release search failed",
			slog.String("query", truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, search.ErrInvalidQuery):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, releases.ErrNoSources):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "release search failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeProfileError(w http.ResponseWriter, err error) {
	if errors.Is(err, quality.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

func countAccepted(items []quality.Ranked) int {
	accepted := 0
	for _, item := range items {
		if !item.Decision.IsRejected() {
			accepted++
		}
	}
	return accepted
}
