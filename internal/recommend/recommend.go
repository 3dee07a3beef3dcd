// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Package recommend composes the rating store, the movie catalog, the
// collaborative model and the hybrid engine into a working
// recommendation stack.
package recommend

import (
	"github.com/reelfeed/reelfeed/internal/catalog"
	"github.com/reelfeed/reelfeed/internal/collab"
	"github.com/reelfeed/reelfeed/internal/config"
	"github.com/reelfeed/reelfeed/internal/hybrid"
	"github.com/reelfeed/reelfeed/internal/store"
)

// StoreRatings adapts the rating store to the collaborative model's
// input interface.
type StoreRatings struct {
	Store *store.Store
}

// All returns every stored rating as model input.
func (s StoreRatings) All() ([]collab.Rating, error) {
	ratings, err := s.Store.All()
	if err != nil {
		return nil, err
	}
	out := make([]collab.Rating, len(ratings))
	for i, r := range ratings {
		out[i] = collab.Rating{
			UserID:  r.UserID,
			MovieID: r.MovieID,
			Value:   r.Value,
		}
	}
	return out, nil
}

// StoreProfile adapts the rating store and catalog to the hybrid
// engine's user-profile interface.
type StoreProfile struct {
	Store   *store.Store
	Catalog *catalog.Catalog
}

// RatedMovies returns movie id -> rating for the user.
func (p StoreProfile) RatedMovies(userID string) (map[int64]float64, error) {
	ratings, err := p.Store.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	rated := make(map[int64]float64, len(ratings))
	for _, r := range ratings {
		rated[r.MovieID] = r.Value
	}
	return rated, nil
}

// TopGenre returns the user's strongest genre preference, or "" when
// the user has no history.
func (p StoreProfile) TopGenre(userID string) (string, error) {
	prefs, err := p.Store.UserPreferences(userID, p.Catalog)
	if err != nil {
		return "", err
	}
	if len(prefs) == 0 {
		return "", nil
	}
	return prefs[0].Genre, nil
}

// Stack is the assembled recommendation pipeline.
type Stack struct {
	Model  *collab.Model
	Engine *hybrid.Engine
}

// Build assembles the model and engine from the store, catalog and
// configuration.
func Build(cfg config.RecommendConfig, st *store.Store, cat *catalog.Catalog) *Stack {
	modelCfg := collab.DefaultConfig()
	modelCfg.FactorRank = cfg.FactorRank
	modelCfg.FactorSweeps = cfg.FactorSweeps
	modelCfg.TopNeighbors = cfg.TopNeighbors
	modelCfg.MinSimilarity = cfg.MinSimilarity
	modelCfg.Seed = cfg.Seed

	model := collab.New(modelCfg, StoreRatings{Store: st})

	engineCfg := hybrid.DefaultConfig()
	engineCfg.ContentWeight = cfg.ContentWeight
	engineCfg.CollabWeight = cfg.CollabWeight
	engineCfg.DefaultK = cfg.DefaultK
	engineCfg.MaxK = cfg.MaxK
	engineCfg.Cache = hybrid.CacheConfig{
		Enabled:    cfg.Cache.Enabled,
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	}

	engine := hybrid.New(engineCfg, cat, model, StoreProfile{Store: st, Catalog: cat})
	return &Stack{Model: model, Engine: engine}
}
