package decomp

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"golatent/domain/expr"
	"golatent/domain/model"
	"golatent/internal/errors"
)

const nmfDenomFloor = 1e-10

// NMFConfig tunes the multiplicative-update solver. Zero values fall back
// to the defaults used by the ensemble runs.
type NMFConfig struct {
	Tol     float64 // relative loss-change stopping threshold, default 5e-3
	MaxIter int     // default 200
}

// NMF is the nonnegative-factorization adapter: Frobenius-loss Lee-Seung
// multiplicative updates with a seeded random initialization. Input must be
// nonnegative; z-scored data is rejected rather than silently clipped.
type NMF struct {
	cfg NMFConfig

	k       int
	seed    int64
	basis   *mat.Dense // samples × k, the training embedding
	factors *mat.Dense // k × genes, the weights
	genes   []string
}

// NewNMF creates an unfitted NMF adapter.
func NewNMF(cfg NMFConfig) *NMF {
	if cfg.Tol == 0 {
		cfg.Tol = 5e-3
	}
	if cfg.MaxIter == 0 {
		cfg.MaxIter = 200
	}
	return &NMF{cfg: cfg}
}

// Algorithm returns the variant tag.
func (n *NMF) Algorithm() model.Algorithm { return model.AlgNMF }

// Invertible reports the native inverse map.
func (n *NMF) Invertible() bool { return true }

// Fit factorizes the training matrix as W·H with W, H >= 0.
func (n *NMF) Fit(ctx context.Context, train *expr.Matrix, k int, seed int64) error {
	rows, cols := train.Data.Dims()
	if err := checkRank(k, rows, cols); err != nil {
		return err
	}
	if err := requireNonnegative(train.Data); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	avg := math.Sqrt(mat.Sum(train.Data) / float64(rows*cols*k))
	w := mat.NewDense(rows, k, nil)
	h := mat.NewDense(k, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < k; j++ {
			w.Set(i, j, avg*math.Abs(rng.NormFloat64()))
		}
	}
	for i := 0; i < k; i++ {
		for j := 0; j < cols; j++ {
			h.Set(i, j, avg*math.Abs(rng.NormFloat64()))
		}
	}

	x := train.Data
	initLoss := frobeniusLoss(x, w, h)
	prevLoss := initLoss
	for iter := 0; iter < n.cfg.MaxIter; iter++ {
		updateFactors(x, w, h)
		updateBasis(x, w, h)

		if (iter+1)%10 == 0 {
			loss := frobeniusLoss(x, w, h)
			if initLoss > 0 && (prevLoss-loss)/initLoss < n.cfg.Tol {
				break
			}
			prevLoss = loss
		}
	}

	n.k = k
	n.seed = seed
	n.basis = w
	n.factors = h
	n.genes = append([]string(nil), train.GeneIDs...)
	return nil
}

// Embedding returns the samples × k training basis.
func (n *NMF) Embedding() *mat.Dense { return n.basis }

// Weights returns the k × genes factor matrix.
func (n *NMF) Weights() *mat.Dense { return n.factors }

// Genes returns the gene IDs spanned by the weights.
func (n *NMF) Genes() []string { return n.genes }

// Transform embeds new samples by solving for a nonnegative basis with the
// train-fit factors held fixed.
func (n *NMF) Transform(x *expr.Matrix) (*mat.Dense, error) {
	if n.factors == nil {
		return nil, errors.InternalError("nmf transform before fit")
	}
	if x.NumGenes() != len(n.genes) {
		return nil, errors.DimensionMismatch("nmf transform input gene count differs from training")
	}
	// Test data normalized with train-fit parameters can fall slightly below
	// zero; those values are clamped rather than rejected. The strict
	// nonnegativity requirement applies to Fit only.
	xd := clampNonnegative(x.Data)

	rows, _ := xd.Dims()
	rng := rand.New(rand.NewSource(n.seed))
	avg := math.Sqrt(mat.Sum(xd) / float64(rows*len(n.genes)*n.k))
	if avg == 0 {
		avg = 1
	}
	w := mat.NewDense(rows, n.k, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < n.k; j++ {
			w.Set(i, j, avg*math.Abs(rng.NormFloat64()))
		}
	}
	for iter := 0; iter < n.cfg.MaxIter; iter++ {
		updateBasis(xd, w, n.factors)
	}
	return w, nil
}

// clampNonnegative returns a copy with negative entries set to zero.
func clampNonnegative(m *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(m)
	r, c := out.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if out.At(i, j) < 0 {
				out.Set(i, j, 0)
			}
		}
	}
	return out
}

// Reconstruct multiplies an embedding through the factor matrix.
func (n *NMF) Reconstruct(z *mat.Dense) (*mat.Dense, error) {
	if n.factors == nil {
		return nil, errors.InternalError("nmf reconstruct before fit")
	}
	_, zk := z.Dims()
	if zk != n.k {
		return nil, errors.DimensionMismatch("nmf reconstruct embedding width differs from k")
	}
	var x mat.Dense
	x.Mul(z, n.factors)
	return &x, nil
}

// requireNonnegative rejects matrices with negative entries.
func requireNonnegative(m *mat.Dense) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) < 0 {
				return errors.InvalidInput(
					fmt.Sprintf("nonnegative factorization requires nonnegative input, found %g at (%d,%d)",
						m.At(i, j), i, j))
			}
		}
	}
	return nil
}

// updateFactors applies the multiplicative update H ← H ∘ (WᵀX) / (WᵀWH).
func updateFactors(x, w, h *mat.Dense) {
	var num, wtw, den mat.Dense
	num.Mul(w.T(), x)
	wtw.Mul(w.T(), w)
	den.Mul(&wtw, h)
	r, c := h.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := den.At(i, j)
			if d < nmfDenomFloor {
				d = nmfDenomFloor
			}
			h.Set(i, j, h.At(i, j)*num.At(i, j)/d)
		}
	}
}

// updateBasis applies the multiplicative update W ← W ∘ (XHᵀ) / (WHHᵀ).
func updateBasis(x, w, h *mat.Dense) {
	var num, hht, den mat.Dense
	num.Mul(x, h.T())
	hht.Mul(h, h.T())
	den.Mul(w, &hht)
	r, c := w.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := den.At(i, j)
			if d < nmfDenomFloor {
				d = nmfDenomFloor
			}
			w.Set(i, j, w.At(i, j)*num.At(i, j)/d)
		}
	}
}

// frobeniusLoss is ||X - WH||_F.
func frobeniusLoss(x, w, h *mat.Dense) float64 {
	var approx mat.Dense
	approx.Mul(w, h)
	var diff mat.Dense
	diff.Sub(x, &approx)
	return mat.Norm(&diff, 2)
}
