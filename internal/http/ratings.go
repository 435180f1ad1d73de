package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plated-app/ratings-api/internal/domain"
	"github.com/plated-app/ratings-api/internal/profile"
	"github.com/plated-app/ratings-api/internal/ratings"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type submitRatingRequest struct {
	Score       *int   `json:"score"`
	Review      string `json:"review"`
	RaterName   string `json:"raterName"`
	RaterAvatar string `json:"raterAvatar"`
}

type ratingResponse struct {
	RaterID     string    `json:"raterId"`
	RaterName   string    `json:"raterName"`
	RaterAvatar string    `json:"raterAvatar"`
	Score       int       `json:"score"`
	Review      string    `json:"review"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type ratingStatsResponse struct {
	TargetID  string           `json:"targetId"`
	Average   float64          `json:"average"`
	Total     int              `json:"total"`
	Breakdown map[int]int      `json:"breakdown"`
	Ratings   []ratingResponse `json:"ratings"`
}

type ratingSummaryResponse struct {
	TargetID    string      `json:"targetId"`
	Average     float64     `json:"average"`
	Total       int         `json:"total"`
	Breakdown   map[int]int `json:"breakdown"`
	Percentages map[int]int `json:"percentages"`
}

type submitRatingResponse struct {
	TargetID string         `json:"targetId"`
	Rating   ratingResponse `json:"rating"`
	Average  float64        `json:"average"`
	Total    int            `json:"total"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	targetID, err := decodeUserParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	stats, err := s.svc.Stats(r.Context(), targetID)
	if err != nil {
		s.logger.Printf("fetch stats for %s failed: %v", targetID, err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch ratings")
		return
	}
	s.respondJSON(w, http.StatusOK, toStatsResponse(targetID, stats))
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	targetID, err := decodeUserParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	stats, err := s.svc.Stats(r.Context(), targetID)
	if err != nil {
		s.logger.Printf("fetch summary for %s failed: %v", targetID, err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch ratings")
		return
	}

	s.respondJSON(w, http.StatusOK, ratingSummaryResponse{
		TargetID:    targetID,
		Average:     stats.Average,
		Total:       stats.Total,
		Breakdown:   stats.Breakdown,
		Percentages: domain.Percentages(stats.Breakdown, stats.Total),
	})
}

func (s *Server) handleGetOwnRating(w http.ResponseWriter, r *http.Request) {
	targetID, err := decodeUserParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	raterID := raterFromHeader(r)
	if raterID == "" {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	rating, err := s.svc.RatingFor(r.Context(), targetID, raterID)
	if err != nil {
		if errors.Is(err, ratings.ErrNoRating) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
			return
		}
		s.logger.Printf("fetch own rating failed: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch rating")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(rating))
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	targetID, err := decodeUserParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	raterID := raterFromHeader(r)
	if raterID == "" {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req submitRatingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.Score == nil || !domain.ValidScore(*req.Score) {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "score must be an integer between 1 and 5")
		return
	}
	if len([]rune(req.Review)) > domain.MaxReviewLength {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			fmt.Sprintf("review must not exceed %d characters", domain.MaxReviewLength))
		return
	}

	rater := ratings.RaterRef{
		ID:     raterID,
		Name:   strings.TrimSpace(req.RaterName),
		Avatar: strings.TrimSpace(req.RaterAvatar),
	}
	if rater.Name == "" {
		rater = s.enrichRaterSnapshot(r.Context(), rater)
	}

	updated, created, err := s.svc.Submit(r.Context(), ratings.SubmitParams{
		TargetID: targetID,
		Rater:    rater,
		Score:    *req.Score,
		Review:   req.Review,
	})
	if err != nil {
		switch {
		case errors.Is(err, ratings.ErrInvalidScore), errors.Is(err, ratings.ErrMissingTarget):
			s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		case errors.Is(err, ratings.ErrMissingRater):
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		default:
			s.logger.Printf("submit rating error: %v", err)
			s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process rating")
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	resp := submitRatingResponse{
		TargetID: targetID,
		Average:  updated.Average,
		Total:    updated.Total,
	}
	for _, rating := range updated.Ratings {
		if rating.RaterID == raterID {
			resp.Rating = toRatingResponse(rating)
			break
		}
	}
	s.respondJSON(w, status, resp)
}

// enrichRaterSnapshot fills the display snapshot from the profile
// directory when the submitter omitted it. Best effort: a missing or
// unreachable directory leaves the snapshot empty.
func (s *Server) enrichRaterSnapshot(ctx context.Context, rater ratings.RaterRef) ratings.RaterRef {
	if s.profiles == nil {
		return rater
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.ProfileTimeoutSecs)*time.Second)
	defer cancel()

	p, err := s.profiles.Lookup(ctx, rater.ID)
	if err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			s.logger.Printf("profile lookup failed for %s: %v", rater.ID, err)
		}
		return rater
	}
	rater.Name = p.DisplayName
	if rater.Avatar == "" {
		rater.Avatar = p.AvatarURL
	}
	return rater
}

func (s *Server) handleDeleteOwnRating(w http.ResponseWriter, r *http.Request) {
	targetID, err := decodeUserParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	raterID := raterFromHeader(r)
	if raterID == "" {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	if _, err := s.svc.Delete(r.Context(), targetID, raterID); err != nil {
		s.logger.Printf("delete rating error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete rating")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	if !s.verifyBearer(r.Header.Get("Authorization")) {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	if err := s.svc.Reset(r.Context()); err != nil {
		s.logger.Printf("reset ratings error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to reset ratings")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toStatsResponse(targetID string, c domain.Collection) ratingStatsResponse {
	resp := ratingStatsResponse{
		TargetID:  targetID,
		Average:   c.Average,
		Total:     c.Total,
		Breakdown: c.Breakdown,
		Ratings:   make([]ratingResponse, 0, len(c.Ratings)),
	}
	for _, rating := range c.Ratings {
		resp.Ratings = append(resp.Ratings, toRatingResponse(rating))
	}
	return resp
}

func toRatingResponse(r domain.Rating) ratingResponse {
	return ratingResponse{
		RaterID:     r.RaterID,
		RaterName:   r.RaterName,
		RaterAvatar: r.RaterAvatar,
		Score:       r.Score,
		Review:      r.Review,
		SubmittedAt: r.SubmittedAt,
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Printf("failed to encode response: %v", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

func decodeUserParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		return "", fmt.Errorf("missing user id parameter")
	}
	id, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("invalid user id parameter")
	}
	return id, nil
}

func raterFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Rater-Id"))
}

func (s *Server) verifyBearer(header string) bool {
	if header == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token == s.cfg.AuthToken
}
