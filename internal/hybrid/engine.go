// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Package hybrid fuses content-based and collaborative candidate lists
// into one ranked recommendation list using a weighted positional blend.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/reelfeed/reelfeed/internal/catalog"
	"github.com/reelfeed/reelfeed/internal/collab"
	"github.com/reelfeed/reelfeed/internal/logging"
)

// ErrInvalidWeights is returned by SetWeights for unusable weight pairs.
var ErrInvalidWeights = errors.New("invalid blend weights")

// ContentSource supplies content-based candidates. Implemented by the
// movie catalog.
type ContentSource interface {
	SimilarToTitle(title string, n int) ([]catalog.ScoredMovie, error)
	SearchByGenre(genre string, n int) []catalog.Movie
	RandomMovies(n int) []catalog.Movie
	MovieByID(id int64) (catalog.Movie, error)
}

// CollabScorer supplies the collaborative candidate list. Implemented
// by the collaborative model.
type CollabScorer interface {
	TopScores(userID string, n int) []collab.ScoredMovie
	IsTrained() bool
}

// ProfileSource supplies the user's rating history and genre leaning.
type ProfileSource interface {
	// RatedMovies returns movie id -> rating for the user.
	RatedMovies(userID string) (map[int64]float64, error)

	// TopGenre returns the user's highest-preference genre, or "" when
	// the user has no usable history.
	TopGenre(userID string) (string, error)
}

// Recommendation is one ranked result with its component scores kept
// for explainability.
type Recommendation struct {
	Movie        catalog.Movie `json:"movie"`
	HybridScore  float64       `json:"hybrid_score"`
	ContentScore float64       `json:"content_score"`
	CollabScore  float64       `json:"collaborative_score"`
}

// EvalMetrics reports offline ranking quality against a holdout set.
type EvalMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Users     int     `json:"users"`
}

// Config controls the fusion engine.
type Config struct {
	ContentWeight float64
	CollabWeight  float64
	DefaultK      int
	MaxK          int
	Cache         CacheConfig
}

// DefaultConfig returns the default fusion configuration.
func DefaultConfig() Config {
	return Config{
		ContentWeight: 0.6,
		CollabWeight:  0.4,
		DefaultK:      10,
		MaxK:          100,
	}
}

// Engine merges content and collaborative signals.
type Engine struct {
	content ContentSource
	scorer  CollabScorer
	profile ProfileSource
	cfg     Config
	logger  zerolog.Logger

	weightsMu     sync.RWMutex
	contentWeight float64
	collabWeight  float64

	cache *responseCache
}

// New creates a fusion engine.
func New(cfg Config, content ContentSource, scorer CollabScorer, profile ProfileSource) *Engine {
	e := &Engine{
		content:       content,
		scorer:        scorer,
		profile:       profile,
		cfg:           cfg,
		logger:        logging.With().Str("component", "hybrid").Logger(),
		contentWeight: cfg.ContentWeight,
		collabWeight:  cfg.CollabWeight,
	}
	if cfg.Cache.Enabled {
		e.cache = newResponseCache(cfg.Cache)
	}
	return e
}

// Weights returns the current blend weights.
func (e *Engine) Weights() (content, collaborative float64) {
	e.weightsMu.RLock()
	defer e.weightsMu.RUnlock()
	return e.contentWeight, e.collabWeight
}

// SetWeights replaces the blend weights. Both must be non-negative and
// at least one positive.
func (e *Engine) SetWeights(content, collaborative float64) error {
	if content < 0 || collaborative < 0 {
		return fmt.Errorf("%w: negative weight (content=%g, collaborative=%g)", ErrInvalidWeights, content, collaborative)
	}
	if content+collaborative == 0 {
		return fmt.Errorf("%w: both weights zero", ErrInvalidWeights)
	}

	e.weightsMu.Lock()
	e.contentWeight = content
	e.collabWeight = collaborative
	e.weightsMu.Unlock()

	e.InvalidateCache()
	e.logger.Info().
		Float64("content_weight", content).
		Float64("collaborative_weight", collaborative).
		Msg("blend weights updated")
	return nil
}

// InvalidateCache drops all cached responses. Called after retrains and
// weight changes.
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.purge()
	}
}

// Recommend produces the top-k hybrid recommendations for a user.
// seedTitle optionally steers the content signal toward a specific
// movie; otherwise the user's top-preference genre is used, falling
// back to a random sample for users with no history.
//
// Either signal may be empty (untrained model, unresolvable title);
// the other still produces results.
func (e *Engine) Recommend(ctx context.Context, userID, seedTitle string, k int) ([]Recommendation, error) {
	if k < 1 {
		k = e.cfg.DefaultK
	}
	if k > e.cfg.MaxK {
		k = e.cfg.MaxK
	}

	if e.cache != nil {
		if recs, ok := e.cache.get(cacheKey(userID, seedTitle, k)); ok {
			return recs, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rated, err := e.profile.RatedMovies(userID)
	if err != nil {
		// degraded: treat as no history rather than failing the request
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("rating history unavailable")
		rated = nil
	}

	contentIDs := e.contentCandidates(userID, seedTitle, len(rated) > 0, 2*k)
	collabIDs := e.collabCandidates(userID, 2*k)

	type candidate struct {
		movieID int64
		content float64
		collab  float64
		order   int
	}
	candidates := make(map[int64]*candidate)
	discovery := 0

	for i, movieID := range contentIDs {
		candidates[movieID] = &candidate{
			movieID: movieID,
			content: positionalScore(i, len(contentIDs)),
			order:   discovery,
		}
		discovery++
	}
	for i, movieID := range collabIDs {
		score := positionalScore(i, len(collabIDs))
		if c, ok := candidates[movieID]; ok {
			c.collab = score
			continue
		}
		candidates[movieID] = &candidate{
			movieID: movieID,
			collab:  score,
			order:   discovery,
		}
		discovery++
	}

	contentWeight, collabWeight := e.Weights()

	ranked := make([]*candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, already := rated[c.movieID]; already {
			continue
		}
		ranked = append(ranked, c)
	}
	// stable order: discovery order breaks hybrid-score ties
	sort.Slice(ranked, func(i, j int) bool {
		si := contentWeight*ranked[i].content + collabWeight*ranked[i].collab
		sj := contentWeight*ranked[j].content + collabWeight*ranked[j].collab
		if si != sj {
			return si > sj
		}
		return ranked[i].order < ranked[j].order
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	recs := make([]Recommendation, 0, len(ranked))
	for _, c := range ranked {
		movie, err := e.content.MovieByID(c.movieID)
		if err != nil {
			// collaborative candidates can reference movies absent from
			// the catalog; skip rather than fail the whole list
			e.logger.Debug().Int64("movie_id", c.movieID).Msg("candidate missing from catalog")
			continue
		}
		recs = append(recs, Recommendation{
			Movie:        movie,
			HybridScore:  round3(contentWeight*c.content + collabWeight*c.collab),
			ContentScore: c.content,
			CollabScore:  c.collab,
		})
	}

	if e.cache != nil {
		e.cache.put(cacheKey(userID, seedTitle, k), recs)
	}
	return recs, nil
}

// contentCandidates returns the ordered content-based candidate ids.
func (e *Engine) contentCandidates(userID, seedTitle string, hasHistory bool, n int) []int64 {
	if seedTitle != "" {
		scored, err := e.content.SimilarToTitle(seedTitle, n)
		if err != nil {
			e.logger.Warn().Err(err).Str("title", seedTitle).Msg("content lookup failed")
			return nil
		}
		ids := make([]int64, 0, len(scored))
		for _, s := range scored {
			ids = append(ids, s.Movie.ID)
		}
		return ids
	}

	if hasHistory {
		genre, err := e.profile.TopGenre(userID)
		if err != nil {
			e.logger.Warn().Err(err).Str("user_id", userID).Msg("genre preference unavailable")
		} else if genre != "" {
			movies := e.content.SearchByGenre(genre, n)
			ids := make([]int64, 0, len(movies))
			for _, m := range movies {
				ids = append(ids, m.ID)
			}
			return ids
		}
	}

	movies := e.content.RandomMovies(n)
	ids := make([]int64, 0, len(movies))
	for _, m := range movies {
		ids = append(ids, m.ID)
	}
	return ids
}

// collabCandidates returns the ordered collaborative candidate ids.
func (e *Engine) collabCandidates(userID string, n int) []int64 {
	if !e.scorer.IsTrained() {
		return nil
	}
	scored := e.scorer.TopScores(userID, n)
	ids := make([]int64, 0, len(scored))
	for _, s := range scored {
		ids = append(ids, s.MovieID)
	}
	return ids
}

// Evaluate measures top-k precision, recall and F1 against per-user
// holdout positives, averaged over users with a non-empty holdout.
func (e *Engine) Evaluate(ctx context.Context, holdout map[string][]int64, k int) (EvalMetrics, error) {
	var m EvalMetrics
	var precisionSum, recallSum float64

	for userID, positives := range holdout {
		if err := ctx.Err(); err != nil {
			return EvalMetrics{}, err
		}
		if len(positives) == 0 {
			continue
		}

		recs, err := e.Recommend(ctx, userID, "", k)
		if err != nil {
			return EvalMetrics{}, fmt.Errorf("evaluate user %s: %w", userID, err)
		}
		if len(recs) == 0 {
			m.Users++
			continue
		}

		positiveSet := make(map[int64]struct{}, len(positives))
		for _, id := range positives {
			positiveSet[id] = struct{}{}
		}
		hits := 0
		for _, r := range recs {
			if _, ok := positiveSet[r.Movie.ID]; ok {
				hits++
			}
		}
		precisionSum += float64(hits) / float64(len(recs))
		recallSum += float64(hits) / float64(len(positives))
		m.Users++
	}

	if m.Users == 0 {
		return m, nil
	}
	m.Precision = precisionSum / float64(m.Users)
	m.Recall = recallSum / float64(m.Users)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}

// positionalScore maps list rank to (n-i)/n so rank 0 scores 1.0.
func positionalScore(i, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(n-i) / float64(n)
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func cacheKey(userID, seedTitle string, k int) string {
	return fmt.Sprintf("%s|%s|%d", userID, seedTitle, k)
}
