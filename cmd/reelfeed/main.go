// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Reelfeed serves hybrid movie recommendations over HTTP.
//
// It blends content-based similarity from the movie catalog with a
// collaborative model trained on stored ratings, and retrains the model
// in the background as ratings and feedback arrive.
//
// Configuration comes from a YAML file (REELFEED_CONFIG or the default
// search paths) layered under REELFEED_* environment variables:
//
//	REELFEED_SERVER_PORT=8080 \
//	REELFEED_CATALOG_MOVIES_PATH=/data/movies.json \
//	REELFEED_STORE_PATH=/data/ratings \
//	reelfeed
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/reelfeed/reelfeed/internal/api"
	"github.com/reelfeed/reelfeed/internal/catalog"
	"github.com/reelfeed/reelfeed/internal/config"
	"github.com/reelfeed/reelfeed/internal/logging"
	"github.com/reelfeed/reelfeed/internal/metrics"
	"github.com/reelfeed/reelfeed/internal/recommend"
	"github.com/reelfeed/reelfeed/internal/refresh"
	"github.com/reelfeed/reelfeed/internal/snapshot"
	"github.com/reelfeed/reelfeed/internal/store"
	"github.com/reelfeed/reelfeed/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("movies_path", cfg.Catalog.MoviesPath).
		Str("store_path", cfg.Store.Path).
		Str("snapshot_dir", cfg.Refresh.SnapshotDir).
		Msg("starting reelfeed")

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open rating store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing rating store")
		}
	}()

	cat, err := catalog.Load(cfg.Catalog.MoviesPath, cfg.Catalog.SimilarityPath, cfg.Catalog.Seed)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load movie catalog")
	}

	stack := recommend.Build(cfg.Recommend, st, cat)

	snaps, err := snapshot.NewStore(cfg.Refresh.SnapshotDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open snapshot store")
	}

	// resume from the latest snapshot so restarts do not serve an
	// untrained model
	if state, meta, err := snaps.LoadLatest(); err == nil {
		stack.Model.Restore(state)
		if state.ContentWeight+state.CollabWeight > 0 {
			if werr := stack.Engine.SetWeights(state.ContentWeight, state.CollabWeight); werr != nil {
				logging.Warn().Err(werr).Msg("snapshot blend weights rejected, keeping configured weights")
			}
		}
		metrics.ModelVersion.Set(float64(stack.Model.Version()))
		logging.Info().
			Int("model_version", state.Version).
			Time("saved_at", meta.SavedAt).
			Msg("model restored from snapshot")
	} else if errors.Is(err, snapshot.ErrNoSnapshot) {
		logging.Info().Msg("no model snapshot found, starting untrained")
	} else {
		logging.Warn().Err(err).Msg("snapshot load failed, starting untrained")
	}

	refresher := refresh.New(refresh.Config{
		Interval:        cfg.Refresh.Interval,
		MinUpdates:      cfg.Refresh.MinUpdates,
		QueueSize:       cfg.Refresh.QueueSize,
		RetainBackups:   cfg.Refresh.RetainBackups,
		MetricsPath:     cfg.Refresh.MetricsPath,
		LearningRate:    cfg.Refresh.LearningRate,
		MaxCollabWeight: cfg.Refresh.MaxCollabWeight,
		SuccessFloor:    cfg.Refresh.SuccessFloor,
	}, stack.Model, stack.Engine, snaps)

	handler := api.NewHandler(st, cat, stack.Engine, stack.Model, refresher, cfg)
	router := api.NewRouter(handler, cfg.Server)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.New(logging.NewSlogLogger(), treeCfg)
	tree.AddModelService(refresher)
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := tree.ServeBackground(ctx)
	logging.Info().Str("addr", httpServer.Addr).Msg("reelfeed started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop within timeout")
		}
	}

	logging.Info().Msg("reelfeed stopped")
}
