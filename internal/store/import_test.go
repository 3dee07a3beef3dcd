// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestImportRatingsCSV(t *testing.T) {
	tests := []struct {
		name         string
		csv          string
		wantImported int
		wantSkipped  int
	}{
		{
			name:         "with header",
			csv:          "user_id,movie_id,rating\nalice,1,9.0\nbob,1,7.5\n",
			wantImported: 2,
		},
		{
			name:         "without header",
			csv:          "alice,1,9.0\nalice,2,8.5\n",
			wantImported: 2,
		},
		{
			name:         "skips bad rows",
			csv:          "alice,1,9.0\n,2,5.0\nbob,notanid,5.0\ncarol,3,eleven\ndave,4,12.0\nshort,row\n",
			wantImported: 1,
			wantSkipped:  5,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := openTestStore(t)
			path := filepath.Join(t.TempDir(), "ratings.csv")
			if err := os.WriteFile(path, []byte(tc.csv), 0o600); err != nil {
				t.Fatalf("write fixture: %v", err)
			}

			stats, err := s.ImportRatingsCSV(context.Background(), path)
			if err != nil {
				t.Fatalf("ImportRatingsCSV: %v", err)
			}
			if stats.Imported != tc.wantImported {
				t.Errorf("imported = %d, want %d", stats.Imported, tc.wantImported)
			}
			if stats.Skipped != tc.wantSkipped {
				t.Errorf("skipped = %d, want %d", stats.Skipped, tc.wantSkipped)
			}

			all, err := s.All()
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			if len(all) != tc.wantImported {
				t.Errorf("stored ratings = %d, want %d", len(all), tc.wantImported)
			}
		})
	}
}

func TestImportRatingsCSVMissingFile(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.ImportRatingsCSV(context.Background(), filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("ImportRatingsCSV succeeded on missing file")
	}
}
