// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Package store persists user ratings and feedback in an embedded
// BadgerDB database. Ratings are upserted under "rating:{user}:{movie}"
// keys and feedback events are appended under "feedback:{user}:{uuid}"
// keys, both as JSON values.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/reelfeed/reelfeed/internal/logging"
)

var (
	// ErrInvalidRating is returned when a rating value is outside [0, 10].
	ErrInvalidRating = errors.New("rating must be between 0 and 10")

	// ErrInvalidFeedback is returned for an unknown feedback category.
	ErrInvalidFeedback = errors.New("invalid feedback category")
)

// Feedback categories accepted by PutFeedback.
const (
	FeedbackLike          = "like"
	FeedbackDislike       = "dislike"
	FeedbackNotInterested = "not_interested"
	FeedbackWatched       = "watched"
)

// ValidFeedbackCategory reports whether category is accepted.
func ValidFeedbackCategory(category string) bool {
	switch category {
	case FeedbackLike, FeedbackDislike, FeedbackNotInterested, FeedbackWatched:
		return true
	}
	return false
}

// Rating is a single user rating of a movie on a 0-10 scale.
type Rating struct {
	UserID    string    `json:"user_id"`
	MovieID   int64     `json:"movie_id"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Feedback is a categorical reaction to a movie.
type Feedback struct {
	UserID    string    `json:"user_id"`
	MovieID   int64     `json:"movie_id"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// GenrePreference summarizes a user's affinity for one genre.
type GenrePreference struct {
	Genre           string  `json:"genre"`
	AverageRating   float64 `json:"average_rating"`
	Count           int     `json:"count"`
	PreferenceScore float64 `json:"preference_score"`
}

// MovieAggregate is a per-movie rating summary.
type MovieAggregate struct {
	MovieID       int64   `json:"movie_id"`
	AverageRating float64 `json:"average_rating"`
	Count         int     `json:"count"`
}

// Analytics is a store-wide summary.
type Analytics struct {
	TotalUsers     int              `json:"total_users"`
	TotalRatings   int              `json:"total_ratings"`
	AverageRating  float64          `json:"average_rating"`
	TotalFeedback  int              `json:"total_feedback"`
	TopRatedMovies []MovieAggregate `json:"top_rated_movies"`
}

// UserExport is the full stored record for one user.
type UserExport struct {
	UserID   string     `json:"user_id"`
	Ratings  []Rating   `json:"ratings"`
	Feedback []Feedback `json:"feedback"`
}

// GenreSource resolves movie genres for preference aggregation.
// Implemented by the movie catalog.
type GenreSource interface {
	MovieGenres(movieID int64) ([]string, bool)
}

const (
	prefixRating   = "rating:"
	prefixFeedback = "feedback:"
)

// Store is a BadgerDB-backed rating and feedback store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().Str("path", path).Msg("rating store opened")
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func ratingKey(userID string, movieID int64) []byte {
	return []byte(prefixRating + userID + ":" + strconv.FormatInt(movieID, 10))
}

// Put upserts a rating. Values outside [0, 10] are rejected with
// ErrInvalidRating.
func (s *Store) Put(userID string, movieID int64, value float64) error {
	if value < 0 || value > 10 {
		return fmt.Errorf("%w: got %g", ErrInvalidRating, value)
	}
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidRating)
	}

	r := Rating{
		UserID:    userID,
		MovieID:   movieID,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal rating: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(ratingKey(userID, movieID), data)
	})
}

// Get returns the rating value and whether it exists.
func (s *Store) Get(userID string, movieID int64) (float64, bool, error) {
	var r Rating
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ratingKey(userID, movieID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get rating: %w", err)
	}
	return r.Value, true, nil
}

// Delete removes a rating and reports whether it existed.
func (s *Store) Delete(userID string, movieID int64) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := ratingKey(userID, movieID)
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("delete rating: %w", err)
	}
	return existed, nil
}

// ListByUser returns all ratings for one user, sorted by movie id.
func (s *Store) ListByUser(userID string) ([]Rating, error) {
	ratings, err := s.scanRatings(prefixRating + userID + ":")
	if err != nil {
		return nil, err
	}
	sort.Slice(ratings, func(i, j int) bool {
		return ratings[i].MovieID < ratings[j].MovieID
	})
	return ratings, nil
}

// All returns every stored rating. This is the training input for the
// collaborative model.
func (s *Store) All() ([]Rating, error) {
	return s.scanRatings(prefixRating)
}

func (s *Store) scanRatings(prefix string) ([]Rating, error) {
	var out []Rating
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r Rating
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan ratings: %w", err)
	}
	return out, nil
}

// PutFeedback appends a feedback event. The category must be one of
// like, dislike, not_interested or watched.
func (s *Store) PutFeedback(userID string, movieID int64, category string) error {
	if !ValidFeedbackCategory(category) {
		return fmt.Errorf("%w: %q", ErrInvalidFeedback, category)
	}
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidFeedback)
	}

	f := Feedback{
		UserID:    userID,
		MovieID:   movieID,
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	key := []byte(prefixFeedback + userID + ":" + uuid.NewString())
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// FeedbackByUser returns all feedback events for one user, oldest first.
func (s *Store) FeedbackByUser(userID string) ([]Feedback, error) {
	return s.scanFeedback(prefixFeedback + userID + ":")
}

// AllFeedback returns every stored feedback event.
func (s *Store) AllFeedback() ([]Feedback, error) {
	return s.scanFeedback(prefixFeedback)
}

func (s *Store) scanFeedback(prefix string) ([]Feedback, error) {
	var out []Feedback
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var f Feedback
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &f)
			})
			if err != nil {
				return err
			}
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan feedback: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Analytics summarizes the whole store: user and rating counts, global
// average rating, feedback count and the top rated movies by mean rating.
func (s *Store) Analytics() (*Analytics, error) {
	ratings, err := s.All()
	if err != nil {
		return nil, err
	}
	feedback, err := s.AllFeedback()
	if err != nil {
		return nil, err
	}

	users := make(map[string]struct{})
	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	total := 0.0
	for _, r := range ratings {
		users[r.UserID] = struct{}{}
		sums[r.MovieID] += r.Value
		counts[r.MovieID]++
		total += r.Value
	}

	a := &Analytics{
		TotalUsers:    len(users),
		TotalRatings:  len(ratings),
		TotalFeedback: len(feedback),
	}
	if len(ratings) > 0 {
		a.AverageRating = total / float64(len(ratings))
	}

	for movieID, sum := range sums {
		a.TopRatedMovies = append(a.TopRatedMovies, MovieAggregate{
			MovieID:       movieID,
			AverageRating: sum / float64(counts[movieID]),
			Count:         counts[movieID],
		})
	}
	sort.Slice(a.TopRatedMovies, func(i, j int) bool {
		mi, mj := a.TopRatedMovies[i], a.TopRatedMovies[j]
		if mi.AverageRating != mj.AverageRating {
			return mi.AverageRating > mj.AverageRating
		}
		if mi.Count != mj.Count {
			return mi.Count > mj.Count
		}
		return mi.MovieID < mj.MovieID
	})
	if len(a.TopRatedMovies) > 10 {
		a.TopRatedMovies = a.TopRatedMovies[:10]
	}
	return a, nil
}

// UserPreferences aggregates a user's ratings by genre. The preference
// score weighs the per-genre average by how much of the user's rating
// activity that genre represents: avg * count / totalRatings.
func (s *Store) UserPreferences(userID string, genres GenreSource) ([]GenrePreference, error) {
	ratings, err := s.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	if len(ratings) == 0 {
		return nil, nil
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range ratings {
		gs, ok := genres.MovieGenres(r.MovieID)
		if !ok {
			continue
		}
		for _, g := range gs {
			sums[g] += r.Value
			counts[g]++
		}
	}

	total := float64(len(ratings))
	prefs := make([]GenrePreference, 0, len(sums))
	for g, sum := range sums {
		avg := sum / float64(counts[g])
		prefs = append(prefs, GenrePreference{
			Genre:           g,
			AverageRating:   avg,
			Count:           counts[g],
			PreferenceScore: avg * float64(counts[g]) / total,
		})
	}
	sort.Slice(prefs, func(i, j int) bool {
		if prefs[i].PreferenceScore != prefs[j].PreferenceScore {
			return prefs[i].PreferenceScore > prefs[j].PreferenceScore
		}
		return prefs[i].Genre < prefs[j].Genre
	})
	return prefs, nil
}

// ExportUser returns all stored data for one user.
func (s *Store) ExportUser(userID string) (*UserExport, error) {
	ratings, err := s.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	feedback, err := s.FeedbackByUser(userID)
	if err != nil {
		return nil, err
	}
	return &UserExport{
		UserID:   userID,
		Ratings:  ratings,
		Feedback: feedback,
	}, nil
}
