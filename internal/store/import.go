// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/reelfeed/reelfeed/internal/logging"
)

// ImportStats summarizes a bulk import run.
type ImportStats struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportRatingsCSV bulk-loads ratings from a CSV file with columns
// user_id,movie_id,rating. A header row is detected and skipped. Rows
// that fail validation are skipped and counted, not fatal; a malformed
// file or a storage error aborts the import.
func (s *Store) ImportRatingsCSV(ctx context.Context, path string) (*ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ratings file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	stats := &ImportStats{}
	line := 0

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read ratings file: %w", err)
		}
		line++

		if line == 1 && looksLikeHeader(record) {
			continue
		}
		if len(record) < 3 {
			stats.Skipped++
			continue
		}

		userID := strings.TrimSpace(record[0])
		movieID, midErr := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
		value, valErr := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if userID == "" || midErr != nil || valErr != nil {
			stats.Skipped++
			continue
		}

		if err := s.Put(userID, movieID, value); err != nil {
			if errors.Is(err, ErrInvalidRating) {
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("store rating at line %d: %w", line, err)
		}
		stats.Imported++
	}

	logging.Info().
		Str("path", path).
		Int("imported", stats.Imported).
		Int("skipped", stats.Skipped).
		Msg("ratings import finished")
	return stats, nil
}

func looksLikeHeader(record []string) bool {
	if len(record) < 3 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	return err != nil
}
