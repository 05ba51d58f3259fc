// Package decomp provides the natively invertible decomposition adapters:
// linear subspace (PCA), independent components (FastICA) and nonnegative
// factorization (NMF). Each adapter implements ports.Compressor with the
// uniform orientation contract: embeddings are samples × k and weights are
// k × genes, whatever the algorithm's native layout is.
package decomp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"golatent/internal/errors"
)

// checkRank validates the latent dimensionality against the matrix shape.
func checkRank(k, samples, genes int) error {
	limit := samples
	if genes < limit {
		limit = genes
	}
	if k < 1 || k > limit {
		return errors.InvalidRank(
			fmt.Sprintf("k=%d out of range [1, %d] for a %dx%d matrix", k, limit, samples, genes))
	}
	return nil
}

// colMeans returns the per-column mean of m.
func colMeans(m *mat.Dense) []float64 {
	r, c := m.Dims()
	means := make([]float64, c)
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += m.At(i, j)
		}
		means[j] = sum / float64(r)
	}
	return means
}

// centered returns a copy of m with the given per-column offsets removed.
func centered(m *mat.Dense, means []float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, j)-means[j])
		}
	}
	return out
}

// addRowVector adds the given per-column offsets to m in place.
func addRowVector(m *mat.Dense, means []float64) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)+means[j])
		}
	}
}
