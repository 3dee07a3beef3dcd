// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Package refresh decides when to retrain the collaborative model from
// accumulating rating and feedback events, and protects every retrain
// with a snapshot-before-train / rollback-on-fault cycle.
//
// The controller runs as a supervised service: a periodic loop retrains
// when the refresh interval elapses or the pending-event threshold is
// crossed, and threshold crossings additionally trigger an immediate
// detached retrain so a burst of events does not wait for the next tick.
package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/reelfeed/reelfeed/internal/collab"
	"github.com/reelfeed/reelfeed/internal/logging"
	"github.com/reelfeed/reelfeed/internal/metrics"
	"github.com/reelfeed/reelfeed/internal/snapshot"
)

// EventType distinguishes queued events.
type EventType string

// Queued event types.
const (
	EventRating   EventType = "rating"
	EventFeedback EventType = "feedback"
)

// Event is one queued rating or feedback update.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	MovieID   int64     `json:"movie_id"`
	Rating    float64   `json:"rating,omitempty"`
	Category  string    `json:"category,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Trainable is the retrainable model. Implemented by the collaborative
// model.
type Trainable interface {
	Train(ctx context.Context) error
	Export() *snapshot.ModelState
	Restore(st *snapshot.ModelState)
	Version() int
}

// Fusion exposes the blend weights the controller snapshots and adapts.
// Implemented by the hybrid engine.
type Fusion interface {
	Weights() (content, collaborative float64)
	SetWeights(content, collaborative float64) error
	InvalidateCache()
}

// SnapshotStore persists model state. Implemented by the snapshot
// package; an interface so tests can inject persistence faults.
type SnapshotStore interface {
	SaveLatest(st *snapshot.ModelState) error
	SaveBackup(st *snapshot.ModelState) (string, error)
	LoadLatestBackup() (*snapshot.ModelState, *snapshot.Metadata, error)
	PruneBackups(keep int) error
}

// Status is a point-in-time view of the controller.
type Status struct {
	Running          bool      `json:"running"`
	LastRetrain      time.Time `json:"last_retrain"`
	QueueDepth       int       `json:"queue_depth"`
	PendingUpdates   int       `json:"pending_updates"`
	IntervalSeconds  float64   `json:"update_interval_seconds"`
	MinUpdates       int       `json:"min_updates_threshold"`
	SecondsUntilNext float64   `json:"seconds_until_next_update"`
}

// Config controls the controller.
type Config struct {
	// Interval is the periodic retrain interval.
	Interval time.Duration

	// MinUpdates is the pending-event threshold that triggers an
	// immediate retrain.
	MinUpdates int

	// QueueSize bounds the event channel.
	QueueSize int

	// RetainBackups is how many backup snapshots survive pruning.
	RetainBackups int

	// MetricsPath is the JSONL performance log location. Empty
	// disables the log.
	MetricsPath string

	// LearningRate, MaxCollabWeight and SuccessFloor drive adaptive
	// weight adjustment.
	LearningRate    float64
	MaxCollabWeight float64
	SuccessFloor    float64

	// Cooldown is the pause after a loop fault before resuming.
	Cooldown time.Duration
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		Interval:        time.Hour,
		MinUpdates:      10,
		QueueSize:       1024,
		RetainBackups:   5,
		LearningRate:    0.01,
		MaxCollabWeight: 0.8,
		SuccessFloor:    0.6,
		Cooldown:        time.Minute,
	}
}

// Controller buffers update events and drives retrain cycles.
type Controller struct {
	cfg    Config
	model  Trainable
	fusion Fusion
	snaps  SnapshotStore
	logger zerolog.Logger

	queue   chan Event
	pending atomic.Int64

	// trainMu serializes retrain cycles; TryLock makes concurrent
	// triggers collapse into one cycle.
	trainMu sync.Mutex

	mu          sync.RWMutex
	running     bool
	lastRetrain time.Time
}

var _ suture.Service = (*Controller)(nil)

// New creates a controller. It does not start the periodic loop; run it
// under a supervisor via Serve.
func New(cfg Config, model Trainable, fusion Fusion, snaps SnapshotStore) *Controller {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	return &Controller{
		cfg:    cfg,
		model:  model,
		fusion: fusion,
		snaps:  snaps,
		logger: logging.With().Str("component", "refresh").Logger(),
		queue:  make(chan Event, cfg.QueueSize),
		// startup counts as the interval baseline
		lastRetrain: time.Now().UTC(),
	}
}

// EnqueueRating queues a rating event. Crossing the pending threshold
// triggers a detached retrain that does not block the caller.
func (c *Controller) EnqueueRating(userID string, movieID int64, rating float64) {
	c.enqueue(Event{
		Type:      EventRating,
		UserID:    userID,
		MovieID:   movieID,
		Rating:    rating,
		Timestamp: time.Now().UTC(),
	})
}

// EnqueueFeedback queues a feedback event.
func (c *Controller) EnqueueFeedback(userID string, movieID int64, category string) {
	c.enqueue(Event{
		Type:      EventFeedback,
		UserID:    userID,
		MovieID:   movieID,
		Category:  category,
		Timestamp: time.Now().UTC(),
	})
}

func (c *Controller) enqueue(ev Event) {
	select {
	case c.queue <- ev:
	default:
		c.logger.Warn().
			Str("type", string(ev.Type)).
			Str("user_id", ev.UserID).
			Msg("event queue full, dropping event")
		return
	}

	pending := c.pending.Add(1)
	metrics.PendingUpdates.Set(float64(pending))

	if int(pending) >= c.cfg.MinUpdates {
		go func() {
			batch, err := c.retrainCycle(context.Background(), false)
			if err != nil {
				c.logger.Error().Err(err).Msg("threshold-triggered retrain failed")
				return
			}
			c.AdaptWeights(batch)
		}()
	}
}

// Serve runs the periodic loop until ctx is cancelled. Implements
// suture.Service. Loop faults are logged and followed by a cooldown;
// the loop itself never terminates on a transient error.
func (c *Controller) Serve(ctx context.Context) error {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	wake := c.cfg.Interval / 10
	if wake > time.Minute {
		wake = time.Minute
	}
	if wake <= 0 {
		wake = time.Second
	}

	c.logger.Info().
		Dur("interval", c.cfg.Interval).
		Dur("wake", wake).
		Int("min_updates", c.cfg.MinUpdates).
		Msg("refresh loop started")

	ticker := time.NewTicker(wake)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("refresh loop stopping")
			return ctx.Err()
		case <-ticker.C:
			if !c.due() {
				continue
			}
			batch, err := c.retrainCycle(ctx, false)
			if err != nil {
				c.logger.Error().Err(err).Dur("cooldown", c.cfg.Cooldown).Msg("retrain cycle failed")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(c.cfg.Cooldown):
				}
				continue
			}
			c.AdaptWeights(batch)
		}
	}
}

// due reports whether a periodic retrain should run now.
func (c *Controller) due() bool {
	pending := int(c.pending.Load())
	if pending == 0 {
		return false
	}
	c.mu.RLock()
	elapsed := time.Since(c.lastRetrain)
	c.mu.RUnlock()
	return elapsed >= c.cfg.Interval || pending >= c.cfg.MinUpdates
}

// ForceRetrain runs a retrain cycle immediately, even with an empty
// queue. Used by the operator endpoint.
func (c *Controller) ForceRetrain(ctx context.Context) error {
	batch, err := c.retrainCycle(ctx, true)
	if err != nil {
		return err
	}
	c.AdaptWeights(batch)
	return nil
}

// retrainCycle drains the queue, snapshots the model, retrains and
// persists the result. On any fault after the drain it restores the
// most recent backup, re-queues the drained batch and leaves the
// pending counter for the next cycle to retry. Returns the drained
// batch so the caller can run adaptive weight adjustment as a post-step.
func (c *Controller) retrainCycle(ctx context.Context, force bool) ([]Event, error) {
	if !c.trainMu.TryLock() {
		// another cycle is already running; its outcome covers us
		return nil, nil
	}
	defer c.trainMu.Unlock()

	start := time.Now()
	batch := c.drain()
	if len(batch) == 0 && !force {
		return nil, nil
	}

	c.logger.Info().Int("batch_size", len(batch)).Msg("retrain cycle starting")

	trained, err := c.runProtected(ctx)
	if err != nil {
		c.rollback(batch)
		metrics.RetrainsTotal.WithLabelValues("rollback").Inc()
		return nil, err
	}

	c.pending.Add(-int64(len(batch)))
	metrics.PendingUpdates.Set(float64(c.pending.Load()))
	c.mu.Lock()
	c.lastRetrain = time.Now().UTC()
	c.mu.Unlock()

	duration := time.Since(start)
	if trained {
		metrics.RetrainsTotal.WithLabelValues("success").Inc()
	} else {
		metrics.RetrainsTotal.WithLabelValues("empty").Inc()
	}
	metrics.RetrainDuration.Observe(duration.Seconds())
	metrics.ModelVersion.Set(float64(c.model.Version()))

	c.fusion.InvalidateCache()
	c.appendPerformanceRecord(batch, duration)

	if err := c.snaps.PruneBackups(c.cfg.RetainBackups); err != nil {
		c.logger.Warn().Err(err).Msg("backup pruning failed")
	}

	c.logger.Info().
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Int("model_version", c.model.Version()).
		Msg("retrain cycle complete")
	return batch, nil
}

// runProtected performs the fault-protected steps: backup, train, save.
// Returns false when training was skipped because the store is empty;
// that is not a fault since nothing was mutated.
func (c *Controller) runProtected(ctx context.Context) (bool, error) {
	state := c.model.Export()
	state.ContentWeight, state.CollabWeight = c.fusion.Weights()
	if _, err := c.snaps.SaveBackup(state); err != nil {
		return false, err
	}

	if err := c.model.Train(ctx); err != nil {
		if errors.Is(err, collab.ErrNoData) {
			c.logger.Warn().Msg("retrain skipped, no ratings in store")
			return false, nil
		}
		return false, err
	}

	trained := c.model.Export()
	trained.ContentWeight, trained.CollabWeight = c.fusion.Weights()
	return true, c.snaps.SaveLatest(trained)
}

// rollback restores the most recently modified backup into the model
// and pushes the drained batch back onto the queue.
func (c *Controller) rollback(batch []Event) {
	state, meta, err := c.snaps.LoadLatestBackup()
	if err != nil {
		c.logger.Error().Err(err).Msg("rollback failed, no backup available")
	} else {
		c.model.Restore(state)
		if state.ContentWeight+state.CollabWeight > 0 {
			if werr := c.fusion.SetWeights(state.ContentWeight, state.CollabWeight); werr != nil {
				c.logger.Warn().Err(werr).Msg("rollback could not restore blend weights")
			}
		}
		c.fusion.InvalidateCache()
		c.logger.Warn().
			Int("restored_version", state.Version).
			Time("saved_at", meta.SavedAt).
			Msg("model rolled back to latest backup")
	}

	// best-effort: re-queue the batch so the next cycle retries it
	for _, ev := range batch {
		select {
		case c.queue <- ev:
		default:
			c.logger.Warn().Msg("queue full during rollback re-queue, event dropped")
			c.pending.Add(-1)
		}
	}
}

// drain empties the queue into a batch. Events arriving during the
// drain land in the next cycle once the channel read misses.
func (c *Controller) drain() []Event {
	var batch []Event
	for {
		select {
		case ev := <-c.queue:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
}

// Status reports the controller's current state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	running := c.running
	lastRetrain := c.lastRetrain
	c.mu.RUnlock()

	untilNext := c.cfg.Interval - time.Since(lastRetrain)
	if untilNext < 0 {
		untilNext = 0
	}

	return Status{
		Running:          running,
		LastRetrain:      lastRetrain,
		QueueDepth:       len(c.queue),
		PendingUpdates:   int(c.pending.Load()),
		IntervalSeconds:  c.cfg.Interval.Seconds(),
		MinUpdates:       c.cfg.MinUpdates,
		SecondsUntilNext: untilNext.Seconds(),
	}
}
