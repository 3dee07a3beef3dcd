// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package collab

import (
	"context"
	"fmt"
	"math"
)

// factorize decomposes the rating matrix into low-rank user and movie
// factor matrices with alternating least squares. The effective rank is
// clamped to min(configured rank, min(numUsers, numMovies)-1); matrices
// too small to support rank 1 cannot be factorized.
func (m *Model) factorize(ctx context.Context, matrix [][]float64) (userFactors, movieFactors [][]float64, err error) {
	numUsers := len(matrix)
	if numUsers == 0 {
		return nil, nil, fmt.Errorf("empty matrix")
	}
	numMovies := len(matrix[0])

	rank := m.cfg.FactorRank
	if minDim := min(numUsers, numMovies); rank > minDim-1 {
		rank = minDim - 1
	}
	if rank < 1 {
		return nil, nil, fmt.Errorf("matrix %dx%d too small to factorize", numUsers, numMovies)
	}

	userFactors = m.initFactors(numUsers, rank)
	movieFactors = m.initFactors(numMovies, rank)

	for sweep := 0; sweep < m.cfg.FactorSweeps; sweep++ {
		if err := contextCancelled(ctx); err != nil {
			return nil, nil, err
		}
		updateFactors(matrix, userFactors, movieFactors, rank, m.cfg.Regularization)
		updateFactors(transpose(matrix), movieFactors, userFactors, rank, m.cfg.Regularization)
	}
	return userFactors, movieFactors, nil
}

// initFactors produces small deterministic values so repeated training
// on identical data yields identical factors.
func (m *Model) initFactors(n, rank int) [][]float64 {
	factors := make([][]float64, n)
	for i := range factors {
		factors[i] = make([]float64, rank)
		for f := range factors[i] {
			mix := (int64(i*rank+f) + m.cfg.Seed) % 1000
			factors[i][f] = 0.1 * (float64(mix)/1000.0 - 0.5)
		}
	}
	return factors
}

// updateFactors solves the ridge regression for each row of target
// given the fixed counterpart factors, using only observed (non-zero)
// ratings.
func updateFactors(matrix [][]float64, target, fixed [][]float64, rank int, lambda float64) {
	for i := range matrix {
		// A = sum over rated j of fixed_j fixed_j^T + lambda*I
		// b = sum over rated j of rating * fixed_j
		a := make([][]float64, rank)
		for r := range a {
			a[r] = make([]float64, rank)
			a[r][r] = lambda
		}
		b := make([]float64, rank)

		rated := false
		for j, rating := range matrix[i] {
			if rating == 0 {
				continue
			}
			rated = true
			fj := fixed[j]
			for r := 0; r < rank; r++ {
				b[r] += rating * fj[r]
				for c := 0; c < rank; c++ {
					a[r][c] += fj[r] * fj[c]
				}
			}
		}
		if !rated {
			continue
		}

		if solved := solveLinearSystem(a, b); solved != nil {
			target[i] = solved
		}
	}
}

// solveLinearSystem solves Ax = b for symmetric positive definite A via
// Cholesky decomposition with forward and back substitution. Returns
// nil if the decomposition fails.
func solveLinearSystem(a [][]float64, b []float64) []float64 {
	n := len(b)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}

	// Decompose A = L L^T.
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil
				}
				l[i][i] = math.Sqrt(sum)
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}

	// Forward substitution: L y = b.
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for k := 0; k < i; k++ {
			sum -= l[i][k] * y[k]
		}
		y[i] = sum / l[i][i]
	}

	// Back substitution: L^T x = y.
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := y[i]
		for k := i + 1; k < n; k++ {
			sum -= l[k][i] * x[k]
		}
		x[i] = sum / l[i][i]
	}
	return x
}
