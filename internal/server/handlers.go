package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mirusearch/miru/internal/models"
	"github.com/mirusearch/miru/internal/refine"
	"github.com/mirusearch/miru/internal/search"
)

// maxUploadBytes caps image uploads at 16 MiB.
const maxUploadBytes = 16 << 20

// Error kinds returned in the JSON body so clients can branch without
// parsing messages.
const (
	kindValidation    = "validation"
	kindEmptyFeedback = "empty_feedback"
	kindNoPriorSearch = "no_prior_search"
	kindBackend       = "backend"
	kindInternal      = "internal"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, kindValidation, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	s.logger.Debug("search request",
		zap.String("session_id", req.SessionID), zap.Int("top_k", req.TopK))
	response, err := s.service.Search(r.Context(), &req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchByImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, kindValidation, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, kindValidation, "file field is required")
		return
	}
	defer file.Close()
	// Read one byte past the cap so an oversized upload is rejected rather
	// than truncated and embedded as a corrupt prefix.
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, kindValidation, "failed to read upload")
		return
	}
	if len(data) > maxUploadBytes {
		s.respondError(w, http.StatusBadRequest, kindValidation, "uploaded file exceeds 16 MiB limit")
		return
	}

	topK := 0
	if v := r.FormValue("top_k"); v != "" {
		topK, _ = strconv.Atoi(v)
	}
	var speciesFilter []string
	if v := r.FormValue("species_filter"); v != "" {
		for _, sp := range strings.Split(v, ",") {
			if sp = strings.TrimSpace(sp); sp != "" {
				speciesFilter = append(speciesFilter, sp)
			}
		}
	}
	query := &search.ImageQuery{
		SessionID:     r.FormValue("session_id"),
		UserID:        r.FormValue("user_id"),
		Filename:      header.Filename,
		Data:          data,
		TopK:          topK,
		SpeciesFilter: speciesFilter,
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	s.logger.Debug("image search request",
		zap.String("session_id", query.SessionID), zap.String("filename", query.Filename))
	response, err := s.service.SearchByImage(r.Context(), query)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req models.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, kindValidation, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	s.logger.Debug("feedback request",
		zap.String("session_id", req.SessionID),
		zap.Int("liked", len(req.LikedIDs)), zap.Int("disliked", len(req.DislikedIDs)))
	response, err := s.service.Feedback(r.Context(), &req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	entries, err := s.service.History(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("history lookup failed", zap.String("user_id", userID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, err.Error())
		return
	}
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.service.Analytics(r.Context())
	if err != nil {
		s.logger.Error("analytics failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, analytics)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, kindBackend, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCaptionSearch(w http.ResponseWriter, r *http.Request) {
	if s.captions == nil {
		s.respondError(w, http.StatusNotImplemented, kindInternal, "caption index not enabled")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, kindValidation, "q parameter is required")
		return
	}
	limit := s.config.Search.CaptionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	hits, err := s.captions.Search(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("caption search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, err.Error())
		return
	}
	if hits == nil {
		hits = []*models.CaptionHit{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"hits": hits})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondServiceError maps service errors onto status codes and error kinds.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var queryErr *refine.QueryError
	switch {
	case errors.Is(err, refine.ErrEmptyFeedback):
		s.respondError(w, http.StatusBadRequest, kindEmptyFeedback, err.Error())
	case errors.Is(err, refine.ErrNoPriorSearch):
		s.respondError(w, http.StatusConflict, kindNoPriorSearch, err.Error())
	case errors.As(err, &queryErr):
		s.logger.Error("backend query failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, kindBackend, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, kind, message string) {
	s.respondJSON(w, status, map[string]string{"error": message, "kind": kind})
}
