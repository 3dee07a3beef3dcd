// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package snapshot

import (
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func sampleState(version int) *ModelState {
	return &ModelState{
		Version:   version,
		Trained:   true,
		TrainedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Matrix: [][]float64{
			{9, 0, 7},
			{0, 8, 6},
		},
		UserIndex:    map[string]int{"alice": 0, "bob": 1},
		MovieIndex:   map[int64]int{100: 0, 200: 1, 300: 2},
		IndexToUser:  []string{"alice", "bob"},
		IndexToMovie: []int64{100, 200, 300},
		UserSim: [][]float64{
			{1, 0.5},
			{0.5, 1},
		},
		MovieSim: [][]float64{
			{1, 0.2, 0.4},
			{0.2, 1, 0.3},
			{0.4, 0.3, 1},
		},
		UserFactors:   [][]float64{{0.1, 0.2}, {0.3, 0.4}},
		MovieFactors:  [][]float64{{0.5, 0.6}, {0.7, 0.8}, {0.9, 1.0}},
		ContentWeight: 0.6,
		CollabWeight:  0.4,
	}
}

func TestSaveLoadLatestRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	want := sampleState(3)
	if err := s.SaveLatest(want); err != nil {
		t.Fatalf("SaveLatest() error = %v", err)
	}

	got, meta, err := s.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadLatest() state mismatch:\ngot  %+v\nwant %+v", got, want)
	}
	if meta.Version != 3 {
		t.Errorf("meta.Version = %d, want 3", meta.Version)
	}
	if meta.UserCount != 2 || meta.MovieCount != 3 {
		t.Errorf("meta counts = (%d, %d), want (2, 3)", meta.UserCount, meta.MovieCount)
	}
	if meta.Checksum == "" {
		t.Error("meta.Checksum is empty")
	}
}

func TestLoadLatestMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	_, _, err = s.LoadLatest()
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("LoadLatest() error = %v, want ErrNoSnapshot", err)
	}
	_, _, err = s.LoadLatestBackup()
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("LoadLatestBackup() error = %v, want ErrNoSnapshot", err)
	}
}

func TestLoadLatestBackupPicksNewestByModTime(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	oldPath, err := s.SaveBackup(sampleState(1))
	if err != nil {
		t.Fatalf("SaveBackup() error = %v", err)
	}
	newPath, err := s.SaveBackup(sampleState(2))
	if err != nil {
		t.Fatalf("SaveBackup() second error = %v", err)
	}
	if oldPath == newPath {
		t.Fatalf("backup paths collided: %s", oldPath)
	}

	// force distinct mtimes regardless of filesystem resolution
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	got, _, err := s.LoadLatestBackup()
	if err != nil {
		t.Fatalf("LoadLatestBackup() error = %v", err)
	}
	if got.Version != 2 {
		t.Errorf("LoadLatestBackup().Version = %d, want 2 (newest mtime)", got.Version)
	}
}

func TestChecksumMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := s.SaveLatest(sampleState(1)); err != nil {
		t.Fatalf("SaveLatest() error = %v", err)
	}

	// rewrite the file with a tampered checksum
	path := filepath.Join(dir, "model_latest.gob.gz")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	f.Close()

	sf.Metadata.Checksum = "deadbeef"
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	if err := gob.NewEncoder(out).Encode(sf); err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}
	out.Close()

	if _, _, err := s.LoadLatest(); err == nil {
		t.Fatal("LoadLatest() with corrupt checksum succeeded, want error")
	}
}

func TestPruneBackups(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	var paths []string
	for i := 1; i <= 4; i++ {
		p, err := s.SaveBackup(sampleState(i))
		if err != nil {
			t.Fatalf("SaveBackup(%d) error = %v", i, err)
		}
		// stamp increasing mtimes so ordering is unambiguous
		mod := time.Now().Add(time.Duration(i-4) * time.Hour)
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatalf("Chtimes() error = %v", err)
		}
		paths = append(paths, p)
	}

	if err := s.PruneBackups(2); err != nil {
		t.Fatalf("PruneBackups() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("backups remaining = %d, want 2", len(entries))
	}

	// the newest two survive
	got, _, err := s.LoadLatestBackup()
	if err != nil {
		t.Fatalf("LoadLatestBackup() error = %v", err)
	}
	if got.Version != 4 {
		t.Errorf("newest surviving backup version = %d, want 4", got.Version)
	}
	if _, err := os.Stat(paths[0]); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("oldest backup still exists: %s", paths[0])
	}
}
