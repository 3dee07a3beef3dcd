// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package store

import (
	"errors"
	"math"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

type stubGenres map[int64][]string

func (g stubGenres) MovieGenres(movieID int64) ([]string, bool) {
	gs, ok := g[movieID]
	return gs, ok
}

func TestPutValidation(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		name    string
		userID  string
		value   float64
		wantErr bool
	}{
		{name: "lower bound", userID: "alice", value: 0, wantErr: false},
		{name: "upper bound", userID: "alice", value: 10, wantErr: false},
		{name: "mid", userID: "alice", value: 7.5, wantErr: false},
		{name: "below range", userID: "alice", value: -0.1, wantErr: true},
		{name: "above range", userID: "alice", value: 10.1, wantErr: true},
		{name: "empty user", userID: "", value: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Put(tt.userID, 100, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Put(%q, 100, %g) error = %v, wantErr %v", tt.userID, tt.value, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidRating) {
				t.Errorf("Put() error = %v, want ErrInvalidRating", err)
			}
		})
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("alice", 550, 8.5); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := s.Get("alice", 550)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != 8.5 {
		t.Errorf("Get() = %g, want 8.5", got)
	}

	// unknown key is not an error
	_, ok, err = s.Get("alice", 999)
	if err != nil {
		t.Fatalf("Get() unknown key error = %v", err)
	}
	if ok {
		t.Error("Get() unknown key ok = true, want false")
	}
}

func TestPutOverwrites(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("alice", 550, 3); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put("alice", 550, 9); err != nil {
		t.Fatalf("Put() second error = %v", err)
	}

	got, _, err := s.Get("alice", 550)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != 9 {
		t.Errorf("Get() after overwrite = %g, want 9", got)
	}

	ratings, err := s.ListByUser("alice")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(ratings) != 1 {
		t.Errorf("ListByUser() len = %d, want 1 (upsert)", len(ratings))
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("bob", 7, 6); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	existed, err := s.Delete("bob", 7)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !existed {
		t.Error("Delete() existed = false, want true")
	}

	existed, err = s.Delete("bob", 7)
	if err != nil {
		t.Fatalf("Delete() second error = %v", err)
	}
	if existed {
		t.Error("Delete() on absent key existed = true, want false")
	}
}

func TestListByUserIsolatesUsers(t *testing.T) {
	s := openTestStore(t)

	ratings := []struct {
		user  string
		movie int64
		value float64
	}{
		{"alice", 1, 9},
		{"alice", 2, 4},
		{"bob", 1, 7},
		{"alicia", 3, 8}, // shares prefix with alice
	}
	for _, r := range ratings {
		if err := s.Put(r.user, r.movie, r.value); err != nil {
			t.Fatalf("Put(%s, %d) error = %v", r.user, r.movie, err)
		}
	}

	got, err := s.ListByUser("alice")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListByUser(alice) len = %d, want 2", len(got))
	}
	if got[0].MovieID != 1 || got[1].MovieID != 2 {
		t.Errorf("ListByUser(alice) movies = [%d %d], want sorted [1 2]", got[0].MovieID, got[1].MovieID)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("All() len = %d, want 4", len(all))
	}
}

func TestFeedbackValidation(t *testing.T) {
	s := openTestStore(t)

	for _, cat := range []string{FeedbackLike, FeedbackDislike, FeedbackNotInterested, FeedbackWatched} {
		if err := s.PutFeedback("alice", 1, cat); err != nil {
			t.Errorf("PutFeedback(%q) error = %v", cat, err)
		}
	}

	err := s.PutFeedback("alice", 1, "loved_it")
	if !errors.Is(err, ErrInvalidFeedback) {
		t.Errorf("PutFeedback(invalid) error = %v, want ErrInvalidFeedback", err)
	}

	fb, err := s.FeedbackByUser("alice")
	if err != nil {
		t.Fatalf("FeedbackByUser() error = %v", err)
	}
	if len(fb) != 4 {
		t.Errorf("FeedbackByUser() len = %d, want 4", len(fb))
	}
}

func TestAnalytics(t *testing.T) {
	s := openTestStore(t)

	puts := []struct {
		user  string
		movie int64
		value float64
	}{
		{"alice", 1, 10},
		{"alice", 2, 6},
		{"bob", 1, 8},
		{"bob", 3, 4},
	}
	for _, p := range puts {
		if err := s.Put(p.user, p.movie, p.value); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	if err := s.PutFeedback("alice", 1, FeedbackLike); err != nil {
		t.Fatalf("PutFeedback() error = %v", err)
	}

	a, err := s.Analytics()
	if err != nil {
		t.Fatalf("Analytics() error = %v", err)
	}

	if a.TotalUsers != 2 {
		t.Errorf("TotalUsers = %d, want 2", a.TotalUsers)
	}
	if a.TotalRatings != 4 {
		t.Errorf("TotalRatings = %d, want 4", a.TotalRatings)
	}
	if a.TotalFeedback != 1 {
		t.Errorf("TotalFeedback = %d, want 1", a.TotalFeedback)
	}
	if math.Abs(a.AverageRating-7.0) > 1e-9 {
		t.Errorf("AverageRating = %g, want 7.0", a.AverageRating)
	}
	if len(a.TopRatedMovies) == 0 || a.TopRatedMovies[0].MovieID != 1 {
		t.Errorf("TopRatedMovies[0] = %+v, want movie 1 (avg 9)", a.TopRatedMovies)
	}
}

func TestUserPreferences(t *testing.T) {
	s := openTestStore(t)

	genres := stubGenres{
		1: {"Action", "Sci-Fi"},
		2: {"Action"},
		3: {"Drama"},
	}

	puts := []struct {
		movie int64
		value float64
	}{
		{1, 10},
		{2, 8},
		{3, 2},
	}
	for _, p := range puts {
		if err := s.Put("alice", p.movie, p.value); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	prefs, err := s.UserPreferences("alice", genres)
	if err != nil {
		t.Fatalf("UserPreferences() error = %v", err)
	}
	if len(prefs) != 3 {
		t.Fatalf("UserPreferences() len = %d, want 3", len(prefs))
	}

	// Action: avg 9 over 2 ratings of 3 total -> score 6.0
	if prefs[0].Genre != "Action" {
		t.Errorf("top preference = %q, want Action", prefs[0].Genre)
	}
	if math.Abs(prefs[0].PreferenceScore-6.0) > 1e-9 {
		t.Errorf("Action PreferenceScore = %g, want 6.0", prefs[0].PreferenceScore)
	}
	if math.Abs(prefs[0].AverageRating-9.0) > 1e-9 {
		t.Errorf("Action AverageRating = %g, want 9.0", prefs[0].AverageRating)
	}

	// no ratings -> nil, no error
	none, err := s.UserPreferences("ghost", genres)
	if err != nil {
		t.Fatalf("UserPreferences(ghost) error = %v", err)
	}
	if none != nil {
		t.Errorf("UserPreferences(ghost) = %v, want nil", none)
	}
}

func TestExportUser(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("carol", 5, 7); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.PutFeedback("carol", 5, FeedbackWatched); err != nil {
		t.Fatalf("PutFeedback() error = %v", err)
	}

	exp, err := s.ExportUser("carol")
	if err != nil {
		t.Fatalf("ExportUser() error = %v", err)
	}
	if exp.UserID != "carol" {
		t.Errorf("UserID = %q, want carol", exp.UserID)
	}
	if len(exp.Ratings) != 1 || exp.Ratings[0].Value != 7 {
		t.Errorf("Ratings = %+v, want one rating of 7", exp.Ratings)
	}
	if len(exp.Feedback) != 1 || exp.Feedback[0].Category != FeedbackWatched {
		t.Errorf("Feedback = %+v, want one watched event", exp.Feedback)
	}
}
