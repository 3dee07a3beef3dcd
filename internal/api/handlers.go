// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelfeed/reelfeed/internal/collab"
	"github.com/reelfeed/reelfeed/internal/metrics"
	"github.com/reelfeed/reelfeed/internal/store"
)

// RatingRequest is the body of PUT /api/v1/ratings.
type RatingRequest struct {
	UserID  string  `json:"user_id" validate:"required"`
	MovieID int64   `json:"movie_id" validate:"required"`
	Rating  float64 `json:"rating" validate:"gte=0,lte=10"`
}

// FeedbackRequest is the body of POST /api/v1/feedback.
type FeedbackRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	MovieID  int64  `json:"movie_id" validate:"required"`
	Category string `json:"category" validate:"required"`
}

// PutRating stores or overwrites a rating and queues it for the next
// retrain cycle.
func (h *Handler) PutRating(w http.ResponseWriter, r *http.Request) {
	var req RatingRequest
	if err := h.decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRating, "rating must include user_id, movie_id and a value in [0, 10]", err)
		return
	}
	if _, err := h.catalog.MovieByID(req.MovieID); err != nil {
		respondError(w, http.StatusNotFound, codeUnknownMovie, "movie is not in the catalog", err)
		return
	}

	if err := h.store.Put(req.UserID, req.MovieID, req.Rating); err != nil {
		if errors.Is(err, store.ErrInvalidRating) {
			respondError(w, http.StatusBadRequest, codeInvalidRating, err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to store rating", err)
		return
	}

	metrics.RatingsIngested.Inc()
	h.refresher.EnqueueRating(req.UserID, req.MovieID, req.Rating)
	// rated movies are excluded from recommendations, so cached
	// responses for this user are stale now
	h.engine.InvalidateCache()

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  req.UserID,
		"movie_id": req.MovieID,
		"rating":   req.Rating,
	})
}

// DeleteRating removes a rating if present.
func (h *Handler) DeleteRating(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	movieID, err := strconv.ParseInt(r.URL.Query().Get("movie_id"), 10, 64)
	if userID == "" || err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "user_id and movie_id query parameters are required", err)
		return
	}

	existed, err := h.store.Delete(userID, movieID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to delete rating", err)
		return
	}
	if existed {
		h.engine.InvalidateCache()
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": existed})
}

// ListRatings returns all ratings for a user, ordered by movie id.
func (h *Handler) ListRatings(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "user_id query parameter is required", nil)
		return
	}

	ratings, err := h.store.ListByUser(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to list ratings", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"ratings": ratings,
		"count":   len(ratings),
	})
}

// PostFeedback records interaction feedback and queues it for adaptive
// weight adjustment.
func (h *Handler) PostFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := h.decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidFeedback, "feedback must include user_id, movie_id and category", err)
		return
	}
	if !store.ValidFeedbackCategory(req.Category) {
		respondError(w, http.StatusBadRequest, codeInvalidFeedback, "category must be one of like, dislike, not_interested, watched", nil)
		return
	}
	if _, err := h.catalog.MovieByID(req.MovieID); err != nil {
		respondError(w, http.StatusNotFound, codeUnknownMovie, "movie is not in the catalog", err)
		return
	}

	if err := h.store.PutFeedback(req.UserID, req.MovieID, req.Category); err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to store feedback", err)
		return
	}

	metrics.FeedbackIngested.WithLabelValues(req.Category).Inc()
	h.refresher.EnqueueFeedback(req.UserID, req.MovieID, req.Category)

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  req.UserID,
		"movie_id": req.MovieID,
		"category": req.Category,
	})
}

// GetRecommendations serves the hybrid recommendation list.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "user_id query parameter is required", nil)
		return
	}
	seedTitle := r.URL.Query().Get("title")
	k := intParam(r, "k", 0)

	recs, err := h.engine.Recommend(r.Context(), userID, seedTitle, k)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to build recommendations", err)
		return
	}

	metrics.RecommendationsServed.Inc()
	contentW, collabW := h.engine.Weights()
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":         userID,
		"recommendations": recs,
		"count":           len(recs),
		"weights": map[string]float64{
			"content":       contentW,
			"collaborative": collabW,
		},
	})
}

// GetMovie returns catalog metadata for one movie.
func (h *Handler) GetMovie(w http.ResponseWriter, r *http.Request) {
	movieID, err := strconv.ParseInt(chi.URLParam(r, "movieID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "movie id must be an integer", err)
		return
	}

	movie, err := h.catalog.MovieByID(movieID)
	if err != nil {
		respondError(w, http.StatusNotFound, codeUnknownMovie, "movie is not in the catalog", err)
		return
	}
	respondJSON(w, http.StatusOK, movie)
}

// GetSimilarMovies returns movies similar to the given one. The source
// parameter selects content similarity (default) or the collaborative
// co-rating signal.
func (h *Handler) GetSimilarMovies(w http.ResponseWriter, r *http.Request) {
	movieID, err := strconv.ParseInt(chi.URLParam(r, "movieID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "movie id must be an integer", err)
		return
	}
	n := intParam(r, "n", 10)

	var scored []collab.ScoredMovie
	switch r.URL.Query().Get("source") {
	case "", "content":
		results, err := h.catalog.SimilarTo(movieID, n)
		if err != nil {
			respondError(w, http.StatusNotFound, codeUnknownMovie, "movie is not in the catalog", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"movie_id": movieID, "similar": results, "source": "content"})
		return
	case "collaborative":
		scored, err = h.model.SimilarMovies(movieID, n)
		if errors.Is(err, collab.ErrNotTrained) {
			respondError(w, http.StatusServiceUnavailable, codeModelNotTrained, "collaborative model has not been trained yet", nil)
			return
		}
		if err != nil {
			respondError(w, http.StatusNotFound, codeNotFound, "movie has no collaborative signal", err)
			return
		}
	default:
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "source must be content or collaborative", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"movie_id": movieID, "similar": scored, "source": "collaborative"})
}

// SearchMovies looks a movie up by fuzzy title or lists a genre.
func (h *Handler) SearchMovies(w http.ResponseWriter, r *http.Request) {
	if genre := r.URL.Query().Get("genre"); genre != "" {
		n := intParam(r, "n", 10)
		respondJSON(w, http.StatusOK, map[string]any{
			"genre":  genre,
			"movies": h.catalog.SearchByGenre(genre, n),
		})
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "q or genre query parameter is required", nil)
		return
	}
	movie, ok := h.catalog.FindByTitle(query)
	if !ok {
		respondError(w, http.StatusNotFound, codeNotFound, "no movie matches the query", nil)
		return
	}
	respondJSON(w, http.StatusOK, movie)
}

// GetUserPreferences returns the per-genre taste profile.
func (h *Handler) GetUserPreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	prefs, err := h.store.UserPreferences(userID, h.catalog)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to compute preferences", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"preferences": prefs,
	})
}

// ExportUser returns everything stored for one user.
func (h *Handler) ExportUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	export, err := h.store.ExportUser(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to export user data", err)
		return
	}
	respondJSON(w, http.StatusOK, export)
}

// GetAnalytics returns rating-corpus aggregates.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.store.Analytics()
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to compute analytics", err)
		return
	}
	respondJSON(w, http.StatusOK, analytics)
}

// SystemStatus reports model, engine and refresh state.
func (h *Handler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	users, movies := h.model.Counts()
	contentW, collabW := h.engine.Weights()

	respondJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"catalog_movies": h.catalog.Movies(),
		"model": map[string]any{
			"trained":         h.model.IsTrained(),
			"version":         h.model.Version(),
			"last_trained_at": h.model.LastTrainedAt(),
			"users":           users,
			"movies":          movies,
		},
		"weights": map[string]float64{
			"content":       contentW,
			"collaborative": collabW,
		},
		"refresh": h.refresher.Status(),
	})
}

// SystemRetrain forces an immediate retrain cycle.
func (h *Handler) SystemRetrain(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.ForceRetrain(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "retrain failed and the previous model was restored", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"model_version": h.model.Version(),
		"trained":       h.model.IsTrained(),
	})
}

// SystemPerformance returns the retrain history for the given window.
func (h *Handler) SystemPerformance(w http.ResponseWriter, r *http.Request) {
	hours := intParam(r, "window_hours", 24)
	if hours <= 0 {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "window_hours must be positive", nil)
		return
	}

	records, err := h.refresher.PerformanceHistory(time.Duration(hours) * time.Hour)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to read retrain history", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"window_hours": hours,
		"retrains":     records,
		"count":        len(records),
	})
}

// Healthz is the liveness endpoint.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"healthy":        true,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// intParam reads an integer query parameter with a fallback.
func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
