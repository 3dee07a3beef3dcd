// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package refresh

import (
	"bufio"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
)

// PerformanceRecord is one line in the JSONL retrain log.
type PerformanceRecord struct {
	Timestamp       time.Time      `json:"timestamp"`
	UpdatesCount    int            `json:"updates_count"`
	DurationSeconds float64        `json:"duration_seconds"`
	UpdateTypes     map[string]int `json:"update_types"`
	UserActivity    map[string]int `json:"user_activity"`
}

// appendPerformanceRecord writes one retrain record to the JSONL log.
// Logging failures never fail the cycle.
func (c *Controller) appendPerformanceRecord(batch []Event, duration time.Duration) {
	if c.cfg.MetricsPath == "" {
		return
	}

	rec := PerformanceRecord{
		Timestamp:       time.Now().UTC(),
		UpdatesCount:    len(batch),
		DurationSeconds: duration.Seconds(),
		UpdateTypes:     make(map[string]int),
		UserActivity:    make(map[string]int),
	}
	for _, ev := range batch {
		rec.UpdateTypes[string(ev.Type)]++
		rec.UserActivity[ev.UserID]++
	}

	if err := os.MkdirAll(filepath.Dir(c.cfg.MetricsPath), 0750); err != nil {
		c.logger.Warn().Err(err).Msg("performance log directory creation failed")
		return
	}

	f, err := os.OpenFile(c.cfg.MetricsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		c.logger.Warn().Err(err).Msg("performance log open failed")
		return
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn().Err(err).Msg("performance record marshal failed")
		return
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		c.logger.Warn().Err(err).Msg("performance record write failed")
	}
}

// PerformanceHistory returns the retrain records from the last window.
// A missing log file yields an empty history, not an error.
func (c *Controller) PerformanceHistory(window time.Duration) ([]PerformanceRecord, error) {
	if c.cfg.MetricsPath == "" {
		return nil, nil
	}

	f, err := os.Open(c.cfg.MetricsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	cutoff := time.Now().UTC().Add(-window)
	var records []PerformanceRecord

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec PerformanceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// a corrupt line does not invalidate the rest of the log
			c.logger.Warn().Err(err).Msg("skipping malformed performance record")
			continue
		}
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, err
	}
	return records, nil
}
