// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package refresh

import "github.com/reelfeed/reelfeed/internal/store"

// AdaptWeights nudges the blend toward the collaborative model when the
// positive-feedback rate in the batch falls below the success floor.
// Only feedback events count; "like" and "watched" are positive. The
// collaborative weight is capped and the two weights always sum to 1
// after an adjustment.
func (c *Controller) AdaptWeights(batch []Event) {
	var total, positive int
	for _, ev := range batch {
		if ev.Type != EventFeedback {
			continue
		}
		total++
		if ev.Category == store.FeedbackLike || ev.Category == store.FeedbackWatched {
			positive++
		}
	}
	if total == 0 {
		return
	}

	rate := float64(positive) / float64(total)
	if rate >= c.cfg.SuccessFloor {
		return
	}

	_, collabWeight := c.fusion.Weights()
	adjusted := collabWeight + c.cfg.LearningRate
	if adjusted > c.cfg.MaxCollabWeight {
		adjusted = c.cfg.MaxCollabWeight
	}
	if adjusted == collabWeight {
		return
	}

	if err := c.fusion.SetWeights(1-adjusted, adjusted); err != nil {
		c.logger.Warn().Err(err).Msg("adaptive weight adjustment rejected")
		return
	}
	c.logger.Info().
		Float64("positive_rate", rate).
		Float64("collab_weight", adjusted).
		Msg("blend weights adapted from feedback")
}
