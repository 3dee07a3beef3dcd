// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package collab

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// similarityMatrix computes pairwise cosine similarity between the rows
// of the given matrix, parallelized in row chunks.
func (m *Model) similarityMatrix(ctx context.Context, rows [][]float64) ([][]float64, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("empty matrix")
	}

	// Precompute norms once; each pair lookup is then two multiplies.
	norms := make([]float64, n)
	for i, row := range rows {
		norms[i] = norm(row)
	}

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
		sim[i][i] = 1
	}

	numWorkers := m.cfg.NumWorkers
	if numWorkers > n {
		numWorkers = n
	}
	chunkSize := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startRow := w * chunkSize
		endRow := startRow + chunkSize
		if endRow > n {
			endRow = n
		}
		if startRow >= endRow {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				if contextCancelled(ctx) != nil {
					return
				}
				for j := i + 1; j < n; j++ {
					s := cosineWithNorms(rows[i], rows[j], norms[i], norms[j])
					sim[i][j] = s
					sim[j][i] = s
				}
			}
		}(startRow, endRow)
	}
	wg.Wait()

	if err := contextCancelled(ctx); err != nil {
		return nil, err
	}
	return sim, nil
}

// cosineWithNorms computes cosine similarity given precomputed norms.
// A zero vector has similarity 0 with everything.
func cosineWithNorms(a, b []float64, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot(a, b) / (normA * normB)
}

// cosineSimilarity computes cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	return cosineWithNorms(a, b, norm(a), norm(b))
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(a []float64) float64 {
	sum := 0.0
	for _, v := range a {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// transpose returns the transpose of a rectangular matrix.
func transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	rows, cols := len(m), len(m[0])
	out := make([][]float64, cols)
	for j := 0; j < cols; j++ {
		out[j] = make([]float64, rows)
		for i := 0; i < rows; i++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}
