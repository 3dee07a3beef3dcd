// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package refresh

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/reelfeed/reelfeed/internal/snapshot"
)

// stubTrainable counts Train calls and signals them on a channel.
type stubTrainable struct {
	mu       sync.Mutex
	trains   int
	restored *snapshot.ModelState
	trainErr error
	version  int
	signal   chan struct{}
}

func newStubTrainable() *stubTrainable {
	return &stubTrainable{version: 1, signal: make(chan struct{}, 16)}
}

func (s *stubTrainable) Train(ctx context.Context) error {
	s.mu.Lock()
	s.trains++
	err := s.trainErr
	if err == nil {
		s.version++
	}
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
	return err
}

func (s *stubTrainable) Export() *snapshot.ModelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &snapshot.ModelState{Version: s.version, Trained: true}
}

func (s *stubTrainable) Restore(st *snapshot.ModelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restored = st
	s.version = st.Version
}

func (s *stubTrainable) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *stubTrainable) trainCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trains
}

// stubFusion records weight changes.
type stubFusion struct {
	mu           sync.Mutex
	content      float64
	collab       float64
	invalidated  int
	setWeightErr error
}

func (f *stubFusion) Weights() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content, f.collab
}

func (f *stubFusion) SetWeights(content, collab float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setWeightErr != nil {
		return f.setWeightErr
	}
	f.content = content
	f.collab = collab
	return nil
}

func (f *stubFusion) InvalidateCache() {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

// faultingSnapshots wraps a real store and fails SaveLatest on demand.
type faultingSnapshots struct {
	*snapshot.Store
	failSaveLatest bool
}

func (f *faultingSnapshots) SaveLatest(st *snapshot.ModelState) error {
	if f.failSaveLatest {
		return errors.New("disk full")
	}
	return f.Store.SaveLatest(st)
}

func newTestController(t *testing.T, cfg Config) (*Controller, *stubTrainable, *stubFusion, *faultingSnapshots) {
	t.Helper()
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	snaps := &faultingSnapshots{Store: store}
	model := newStubTrainable()
	fusion := &stubFusion{content: 0.6, collab: 0.4}
	return New(cfg, model, fusion, snaps), model, fusion, snaps
}

func waitForTrain(t *testing.T, model *stubTrainable) {
	t.Helper()
	select {
	case <-model.signal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for retrain")
	}
}

func TestThresholdTriggersRetrain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinUpdates = 3
	c, model, _, _ := newTestController(t, cfg)

	c.EnqueueRating("alice", 1, 9.0)
	c.EnqueueRating("alice", 2, 8.5)
	time.Sleep(50 * time.Millisecond)
	if got := model.trainCount(); got != 0 {
		t.Fatalf("train calls below threshold = %d, want 0", got)
	}

	c.EnqueueRating("bob", 1, 7.5)
	waitForTrain(t, model)

	if got := model.trainCount(); got != 1 {
		t.Fatalf("train calls = %d, want 1", got)
	}
}

func TestRetrainResetsPending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinUpdates = 100
	c, _, _, _ := newTestController(t, cfg)

	c.EnqueueRating("alice", 1, 9.0)
	c.EnqueueFeedback("alice", 1, "like")
	if got := c.Status().PendingUpdates; got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	if err := c.ForceRetrain(context.Background()); err != nil {
		t.Fatalf("ForceRetrain: %v", err)
	}
	st := c.Status()
	if st.PendingUpdates != 0 {
		t.Errorf("pending after retrain = %d, want 0", st.PendingUpdates)
	}
	if st.QueueDepth != 0 {
		t.Errorf("queue depth after retrain = %d, want 0", st.QueueDepth)
	}
	if st.LastRetrain.IsZero() {
		t.Error("last retrain not recorded")
	}
}

func TestRollbackOnPersistFault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinUpdates = 100
	c, model, _, snaps := newTestController(t, cfg)
	snaps.failSaveLatest = true

	c.EnqueueRating("alice", 1, 9.0)
	err := c.ForceRetrain(context.Background())
	if err == nil {
		t.Fatal("ForceRetrain succeeded, want persistence fault")
	}

	if model.restored == nil {
		t.Fatal("model was not restored from backup")
	}
	if model.restored.Version != 1 {
		t.Errorf("restored version = %d, want pre-train version 1", model.restored.Version)
	}
	if got := c.Status().PendingUpdates; got != 1 {
		t.Errorf("pending after fault = %d, want 1 (batch re-queued)", got)
	}
}

func TestForceRetrainEmptyQueue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinUpdates = 100
	c, model, _, _ := newTestController(t, cfg)

	if err := c.ForceRetrain(context.Background()); err != nil {
		t.Fatalf("ForceRetrain: %v", err)
	}
	if got := model.trainCount(); got != 1 {
		t.Fatalf("train calls = %d, want 1", got)
	}
}

func TestStatusFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = 30 * time.Minute
	cfg.MinUpdates = 7
	c, _, _, _ := newTestController(t, cfg)

	st := c.Status()
	if st.Running {
		t.Error("controller reports running before Serve")
	}
	if st.IntervalSeconds != 1800 {
		t.Errorf("interval seconds = %v, want 1800", st.IntervalSeconds)
	}
	if st.MinUpdates != 7 {
		t.Errorf("min updates = %d, want 7", st.MinUpdates)
	}
	if st.SecondsUntilNext <= 0 || st.SecondsUntilNext > 1800 {
		t.Errorf("seconds until next = %v, want within (0, 1800]", st.SecondsUntilNext)
	}
	if st.LastRetrain.IsZero() {
		t.Error("interval baseline not set at construction")
	}
}

func TestServeLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = time.Hour
	c, _, _, _ := newTestController(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !c.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("controller never reported running")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
	if c.Status().Running {
		t.Error("controller reports running after Serve returned")
	}
}

func TestPerformanceLogRoundtrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsPath = filepath.Join(t.TempDir(), "retrain_metrics.jsonl")
	c, _, _, _ := newTestController(t, cfg)

	batch := []Event{
		{Type: EventRating, UserID: "alice"},
		{Type: EventRating, UserID: "alice"},
		{Type: EventFeedback, UserID: "bob", Category: "like"},
	}
	c.appendPerformanceRecord(batch, 1500*time.Millisecond)
	c.appendPerformanceRecord(batch[:1], 200*time.Millisecond)

	records, err := c.PerformanceHistory(time.Hour)
	if err != nil {
		t.Fatalf("PerformanceHistory: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	first := records[0]
	if first.UpdatesCount != 3 {
		t.Errorf("updates count = %d, want 3", first.UpdatesCount)
	}
	if first.DurationSeconds != 1.5 {
		t.Errorf("duration = %v, want 1.5", first.DurationSeconds)
	}
	if first.UpdateTypes["rating"] != 2 || first.UpdateTypes["feedback"] != 1 {
		t.Errorf("update types = %v", first.UpdateTypes)
	}
	if first.UserActivity["alice"] != 2 || first.UserActivity["bob"] != 1 {
		t.Errorf("user activity = %v", first.UserActivity)
	}
}

func TestPerformanceHistoryMissingFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsPath = filepath.Join(t.TempDir(), "missing.jsonl")
	c, _, _, _ := newTestController(t, cfg)

	records, err := c.PerformanceHistory(time.Hour)
	if err != nil {
		t.Fatalf("PerformanceHistory: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0", len(records))
	}
}

func TestAdaptWeights(t *testing.T) {
	tests := []struct {
		name        string
		batch       []Event
		startCollab float64
		wantCollab  float64
	}{
		{
			name: "low positive rate shifts toward collaborative",
			batch: []Event{
				{Type: EventFeedback, Category: "like"},
				{Type: EventFeedback, Category: "dislike"},
			},
			startCollab: 0.4,
			wantCollab:  0.41,
		},
		{
			name: "high positive rate leaves weights alone",
			batch: []Event{
				{Type: EventFeedback, Category: "like"},
				{Type: EventFeedback, Category: "watched"},
				{Type: EventFeedback, Category: "dislike"},
			},
			startCollab: 0.4,
			wantCollab:  0.4,
		},
		{
			name: "collaborative weight capped",
			batch: []Event{
				{Type: EventFeedback, Category: "not_interested"},
			},
			startCollab: 0.8,
			wantCollab:  0.8,
		},
		{
			name: "rating-only batch is ignored",
			batch: []Event{
				{Type: EventRating, UserID: "alice"},
			},
			startCollab: 0.4,
			wantCollab:  0.4,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			c, _, fusion, _ := newTestController(t, cfg)
			fusion.content = 1 - tc.startCollab
			fusion.collab = tc.startCollab

			c.AdaptWeights(tc.batch)

			_, collab := fusion.Weights()
			if math.Abs(collab-tc.wantCollab) > 1e-9 {
				t.Errorf("collab weight = %v, want %v", collab, tc.wantCollab)
			}
			content, _ := fusion.Weights()
			if math.Abs(content+collab-1) > 1e-9 {
				t.Errorf("weights sum = %v, want 1", content+collab)
			}
		})
	}
}

func TestDueConditions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = time.Hour
	cfg.MinUpdates = 5
	c, _, _, _ := newTestController(t, cfg)

	if c.due() {
		t.Error("due with empty queue")
	}

	c.EnqueueRating("alice", 1, 9.0)
	if c.due() {
		t.Error("due with pending below threshold and interval not elapsed")
	}

	c.mu.Lock()
	c.lastRetrain = time.Now().Add(-2 * time.Hour)
	c.mu.Unlock()
	if !c.due() {
		t.Error("not due after interval elapsed with pending events")
	}
}
