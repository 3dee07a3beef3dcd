// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Package api provides the HTTP surface of the recommendation engine:
// rating and feedback ingestion, recommendation queries, catalog
// lookups and operator endpoints, served over a Chi router.
package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/reelfeed/reelfeed/internal/catalog"
	"github.com/reelfeed/reelfeed/internal/collab"
	"github.com/reelfeed/reelfeed/internal/config"
	"github.com/reelfeed/reelfeed/internal/hybrid"
	"github.com/reelfeed/reelfeed/internal/logging"
	"github.com/reelfeed/reelfeed/internal/refresh"
	"github.com/reelfeed/reelfeed/internal/store"
)

// Response is the envelope every JSON endpoint returns.
type Response struct {
	Status   string   `json:"status"`
	Data     any      `json:"data,omitempty"`
	Error    *Error   `json:"error,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// Error carries a machine-readable code alongside the message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata is attached to every response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// Error codes returned by the API.
const (
	codeInvalidRequest  = "INVALID_REQUEST"
	codeInvalidRating   = "INVALID_RATING"
	codeInvalidFeedback = "INVALID_FEEDBACK"
	codeUnknownMovie    = "UNKNOWN_MOVIE"
	codeNotFound        = "NOT_FOUND"
	codeModelNotTrained = "MODEL_NOT_TRAINED"
	codeInternal        = "INTERNAL_ERROR"
)

// Handler holds the dependencies the HTTP handlers need.
type Handler struct {
	store     *store.Store
	catalog   *catalog.Catalog
	engine    *hybrid.Engine
	model     *collab.Model
	refresher *refresh.Controller
	cfg       *config.Config
	validate  *validator.Validate
	startTime time.Time
}

// NewHandler wires the API handlers to their dependencies.
func NewHandler(st *store.Store, cat *catalog.Catalog, engine *hybrid.Engine, model *collab.Model, refresher *refresh.Controller, cfg *config.Config) *Handler {
	return &Handler{
		store:     st,
		catalog:   cat,
		engine:    engine,
		model:     model,
		refresher: refresher,
		cfg:       cfg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		startTime: time.Now(),
	}
}

// respondJSON wraps data in the response envelope and writes it.
func respondJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, &Response{
		Status:   "ok",
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

// respondError writes an error envelope. The wrapped error, if any, is
// logged but never leaked to the client.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Err(err).Msg("api error")
	}
	writeEnvelope(w, status, &Response{
		Status:   "error",
		Error:    &Error{Code: code, Message: message},
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

func writeEnvelope(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(resp)
	if err != nil {
		logging.Error().Err(err).Msg("response marshal failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logging.Error().Err(err).Msg("response write failed")
	}
}

// decodeJSON decodes and validates a request body.
func (h *Handler) decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}
