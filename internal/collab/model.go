// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Package collab implements the collaborative filtering model: a dense
// user-movie rating matrix, user-user and movie-movie cosine similarity,
// and a truncated low-rank factorization trained with alternating least
// squares.
//
// Training builds a complete replacement state off to the side and swaps
// it in under a write lock, so scoring keeps serving the previous state
// while a retrain runs.
package collab

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelfeed/reelfeed/internal/logging"
	"github.com/reelfeed/reelfeed/internal/snapshot"
)

var (
	// ErrNoData is returned when the rating source is empty. Callers
	// degrade to content-only recommendations.
	ErrNoData = errors.New("no ratings available for training")

	// ErrNotTrained is returned by queries that need a trained model.
	ErrNotTrained = errors.New("model is not trained")
)

// Rating is a single training observation.
type Rating struct {
	UserID  string
	MovieID int64
	Value   float64
}

// RatingSource provides training data. Implemented by the rating store
// through an adapter.
type RatingSource interface {
	All() ([]Rating, error)
}

// ScoredMovie pairs a movie id with a predicted score.
type ScoredMovie struct {
	MovieID int64   `json:"movie_id"`
	Score   float64 `json:"score"`
}

// Config controls training.
type Config struct {
	// FactorRank is the requested factorization rank. The effective
	// rank is clamped to min(FactorRank, min(numUsers, numMovies)-1).
	FactorRank int

	// FactorSweeps is the number of alternating least squares sweeps.
	FactorSweeps int

	// Regularization is the ALS ridge term.
	Regularization float64

	// TopNeighbors is how many similar users feed the user-based signal.
	TopNeighbors int

	// MinSimilarity excludes weakly similar users from the signal.
	MinSimilarity float64

	// Seed makes factor initialization deterministic.
	Seed int64

	// NumWorkers bounds similarity computation parallelism.
	// Zero means GOMAXPROCS.
	NumWorkers int
}

// DefaultConfig returns the default training configuration.
func DefaultConfig() Config {
	return Config{
		FactorRank:     50,
		FactorSweeps:   10,
		Regularization: 0.1,
		TopNeighbors:   10,
		MinSimilarity:  0.1,
		Seed:           42,
		NumWorkers:     0,
	}
}

// state is the immutable trained state swapped in atomically.
type state struct {
	matrix       [][]float64
	userIndex    map[string]int
	movieIndex   map[int64]int
	indexToUser  []string
	indexToMovie []int64

	userSim  [][]float64
	movieSim [][]float64

	userFactors  [][]float64
	movieFactors [][]float64

	trained       bool
	version       int
	lastTrainedAt time.Time
}

// Model is the collaborative filtering model.
type Model struct {
	cfg    Config
	source RatingSource
	logger zerolog.Logger

	mu sync.RWMutex
	st state
}

// New creates an untrained model reading from the given source.
func New(cfg Config, source RatingSource) *Model {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = runtime.GOMAXPROCS(0)
	}
	return &Model{
		cfg:    cfg,
		source: source,
		logger: logging.With().Str("component", "collab").Logger(),
	}
}

// IsTrained reports whether the model has trained state.
func (m *Model) IsTrained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.trained
}

// Version returns the training generation, starting at 0.
func (m *Model) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.version
}

// LastTrainedAt returns when the model last finished training.
func (m *Model) LastTrainedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.lastTrainedAt
}

// Counts returns the trained user and movie dimensions.
func (m *Model) Counts() (users, movies int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.st.indexToUser), len(m.st.indexToMovie)
}

// Train rebuilds the model from the rating source. The similarity and
// factorization sub-steps are independently fault tolerant: a failed
// sub-step is logged and skipped, and the remaining signals still go
// live. An empty source returns ErrNoData and leaves existing state
// untouched.
func (m *Model) Train(ctx context.Context) error {
	start := time.Now()

	ratings, err := m.source.All()
	if err != nil {
		return fmt.Errorf("load ratings: %w", err)
	}
	if len(ratings) == 0 {
		return ErrNoData
	}

	next := buildMatrix(ratings)
	m.logger.Debug().
		Int("users", len(next.indexToUser)).
		Int("movies", len(next.indexToMovie)).
		Int("ratings", len(ratings)).
		Msg("rating matrix built")

	if err := contextCancelled(ctx); err != nil {
		return err
	}
	userSim, err := m.similarityMatrix(ctx, next.matrix)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		m.logger.Error().Err(err).Msg("user similarity step failed, skipping")
	} else {
		next.userSim = userSim
	}

	if err := contextCancelled(ctx); err != nil {
		return err
	}
	movieSim, err := m.similarityMatrix(ctx, transpose(next.matrix))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		m.logger.Error().Err(err).Msg("movie similarity step failed, skipping")
	} else {
		next.movieSim = movieSim
	}

	if err := contextCancelled(ctx); err != nil {
		return err
	}
	userFactors, movieFactors, err := m.factorize(ctx, next.matrix)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		m.logger.Error().Err(err).Msg("factorization step failed, skipping")
	} else {
		next.userFactors = userFactors
		next.movieFactors = movieFactors
	}

	m.mu.Lock()
	next.trained = true
	next.version = m.st.version + 1
	next.lastTrainedAt = time.Now().UTC()
	m.st = *next
	m.mu.Unlock()

	m.logger.Info().
		Int("version", next.version).
		Int("users", len(next.indexToUser)).
		Int("movies", len(next.indexToMovie)).
		Dur("duration", time.Since(start)).
		Msg("model trained")
	return nil
}

// buildMatrix builds a dense user-movie matrix with deterministic index
// order (sorted user ids and movie ids). Missing ratings are 0.
func buildMatrix(ratings []Rating) *state {
	userSet := make(map[string]struct{})
	movieSet := make(map[int64]struct{})
	for _, r := range ratings {
		userSet[r.UserID] = struct{}{}
		movieSet[r.MovieID] = struct{}{}
	}

	users := make([]string, 0, len(userSet))
	for u := range userSet {
		users = append(users, u)
	}
	sort.Strings(users)

	movies := make([]int64, 0, len(movieSet))
	for mID := range movieSet {
		movies = append(movies, mID)
	}
	sort.Slice(movies, func(i, j int) bool { return movies[i] < movies[j] })

	st := &state{
		userIndex:    make(map[string]int, len(users)),
		movieIndex:   make(map[int64]int, len(movies)),
		indexToUser:  users,
		indexToMovie: movies,
	}
	for i, u := range users {
		st.userIndex[u] = i
	}
	for i, mID := range movies {
		st.movieIndex[mID] = i
	}

	st.matrix = make([][]float64, len(users))
	for i := range st.matrix {
		st.matrix[i] = make([]float64, len(movies))
	}
	for _, r := range ratings {
		st.matrix[st.userIndex[r.UserID]][st.movieIndex[r.MovieID]] = r.Value
	}
	return st
}

// ScoreForUser predicts scores for movies the user has not rated,
// averaging the user-based and factor signals where both are present.
// Scores are rounded to 3 decimals. An untrained model or unknown user
// yields an empty result.
func (m *Model) ScoreForUser(userID string) map[int64]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.st.trained {
		return nil
	}
	uIdx, ok := m.st.userIndex[userID]
	if !ok {
		return nil
	}

	userScores := m.userBasedScores(uIdx)
	factorScores := m.factorScores(uIdx)

	combined := make(map[int64]float64, len(factorScores))
	for _, movieID := range m.st.indexToMovie {
		us, hasUser := userScores[movieID]
		fs, hasFactor := factorScores[movieID]
		switch {
		case hasUser && hasFactor:
			combined[movieID] = round3((us + fs) / 2)
		case hasUser:
			combined[movieID] = round3(us)
		case hasFactor:
			combined[movieID] = round3(fs)
		}
	}
	return combined
}

// TopScores returns the user's predicted scores sorted descending,
// truncated to n. Ties keep ascending movie id order for determinism.
func (m *Model) TopScores(userID string, n int) []ScoredMovie {
	scores := m.ScoreForUser(userID)
	if len(scores) == 0 || n < 1 {
		return nil
	}

	out := make([]ScoredMovie, 0, len(scores))
	for movieID, score := range scores {
		out = append(out, ScoredMovie{MovieID: movieID, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].MovieID < out[j].MovieID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// userBasedScores accumulates sim-weighted neighbor ratings for movies
// the target user has not rated. The neighborhood is the top configured
// number of users by similarity, self excluded, above the similarity
// floor.
func (m *Model) userBasedScores(uIdx int) map[int64]float64 {
	if m.st.userSim == nil {
		return nil
	}

	type neighbor struct {
		idx int
		sim float64
	}
	simRow := m.st.userSim[uIdx]
	neighbors := make([]neighbor, 0, len(simRow)-1)
	for i, sim := range simRow {
		if i == uIdx {
			continue
		}
		neighbors = append(neighbors, neighbor{idx: i, sim: sim})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].sim != neighbors[j].sim {
			return neighbors[i].sim > neighbors[j].sim
		}
		return neighbors[i].idx < neighbors[j].idx
	})
	if len(neighbors) > m.cfg.TopNeighbors {
		neighbors = neighbors[:m.cfg.TopNeighbors]
	}

	scores := make(map[int64]float64)
	targetRow := m.st.matrix[uIdx]
	for _, n := range neighbors {
		if n.sim <= m.cfg.MinSimilarity {
			continue
		}
		neighborRow := m.st.matrix[n.idx]
		for mIdx, rating := range neighborRow {
			if rating > 0 && targetRow[mIdx] == 0 {
				scores[m.st.indexToMovie[mIdx]] += n.sim * rating
			}
		}
	}
	return scores
}

// factorScores predicts unrated movies as user-factor / movie-factor
// dot products.
func (m *Model) factorScores(uIdx int) map[int64]float64 {
	if m.st.userFactors == nil || m.st.movieFactors == nil {
		return nil
	}

	scores := make(map[int64]float64)
	userVec := m.st.userFactors[uIdx]
	targetRow := m.st.matrix[uIdx]
	for mIdx, movieVec := range m.st.movieFactors {
		if targetRow[mIdx] != 0 {
			continue
		}
		scores[m.st.indexToMovie[mIdx]] = dot(userVec, movieVec)
	}
	return scores
}

// SimilarMovies returns the n movies most similar to the given one by
// rating co-occurrence.
func (m *Model) SimilarMovies(movieID int64, n int) ([]ScoredMovie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.st.trained || m.st.movieSim == nil {
		return nil, ErrNotTrained
	}
	mIdx, ok := m.st.movieIndex[movieID]
	if !ok {
		return nil, fmt.Errorf("movie %d not in trained model", movieID)
	}

	row := m.st.movieSim[mIdx]
	out := make([]ScoredMovie, 0, len(row)-1)
	for i, sim := range row {
		if i == mIdx {
			continue
		}
		out = append(out, ScoredMovie{MovieID: m.st.indexToMovie[i], Score: sim})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].MovieID < out[j].MovieID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// HasRated reports whether the trained matrix holds a rating for the
// pair. It reflects training-time data, not live store contents.
func (m *Model) HasRated(userID string, movieID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.st.trained {
		return false
	}
	uIdx, ok := m.st.userIndex[userID]
	if !ok {
		return false
	}
	mIdx, ok := m.st.movieIndex[movieID]
	if !ok {
		return false
	}
	return m.st.matrix[uIdx][mIdx] != 0
}

// Export deep-copies the model state for snapshotting. The blend
// weights are filled in by the caller.
func (m *Model) Export() *snapshot.ModelState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &snapshot.ModelState{
		Version:      m.st.version,
		Trained:      m.st.trained,
		TrainedAt:    m.st.lastTrainedAt,
		Matrix:       copyMatrix(m.st.matrix),
		UserIndex:    copyStringIndex(m.st.userIndex),
		MovieIndex:   copyInt64Index(m.st.movieIndex),
		IndexToUser:  append([]string(nil), m.st.indexToUser...),
		IndexToMovie: append([]int64(nil), m.st.indexToMovie...),
		UserSim:      copyMatrix(m.st.userSim),
		MovieSim:     copyMatrix(m.st.movieSim),
		UserFactors:  copyMatrix(m.st.userFactors),
		MovieFactors: copyMatrix(m.st.movieFactors),
	}
}

// Restore atomically replaces the model state from a snapshot.
func (m *Model) Restore(st *snapshot.ModelState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.st = state{
		matrix:        copyMatrix(st.Matrix),
		userIndex:     copyStringIndex(st.UserIndex),
		movieIndex:    copyInt64Index(st.MovieIndex),
		indexToUser:   append([]string(nil), st.IndexToUser...),
		indexToMovie:  append([]int64(nil), st.IndexToMovie...),
		userSim:       copyMatrix(st.UserSim),
		movieSim:      copyMatrix(st.MovieSim),
		userFactors:   copyMatrix(st.UserFactors),
		movieFactors:  copyMatrix(st.MovieFactors),
		trained:       st.Trained,
		version:       st.Version,
		lastTrainedAt: st.TrainedAt,
	}
}

// round3 rounds to 3 decimal places.
func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// contextCancelled returns the context error, if any.
func contextCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func copyMatrix(src [][]float64) [][]float64 {
	if src == nil {
		return nil
	}
	out := make([][]float64, len(src))
	for i, row := range src {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func copyStringIndex(src map[string]int) map[string]int {
	if src == nil {
		return nil
	}
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func copyInt64Index(src map[int64]int) map[int64]int {
	if src == nil {
		return nil
	}
	out := make(map[int64]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
