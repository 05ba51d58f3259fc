package decomp

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"golatent/domain/expr"
	"golatent/domain/model"
	"golatent/internal/errors"
)

// ICA is the independent-components adapter: FastICA with a logcosh
// contrast, SVD whitening and symmetric decorrelation. The rotation depends
// on the seeded random initialization, so identical seeds reproduce
// identical components.
type ICA struct {
	maxIter int
	tol     float64

	k         int
	mean      []float64
	unmixing  *mat.Dense // k × genes
	mixing    *mat.Dense // genes × k, pseudo-inverse of unmixing
	embedding *mat.Dense // samples × k
	genes     []string
}

// NewICA creates an unfitted FastICA adapter with default iteration limits.
func NewICA() *ICA {
	return &ICA{maxIter: 200, tol: 1e-4}
}

// Algorithm returns the variant tag.
func (c *ICA) Algorithm() model.Algorithm { return model.AlgICA }

// Invertible reports the native inverse map.
func (c *ICA) Invertible() bool { return true }

// Fit whitens the centered training matrix and runs the FastICA fixed-point
// iteration from a seeded random rotation.
func (c *ICA) Fit(ctx context.Context, train *expr.Matrix, k int, seed int64) error {
	n, g := train.Data.Dims()
	if err := checkRank(k, n, g); err != nil {
		return err
	}

	c.mean = colMeans(train.Data)
	xc := centered(train.Data, c.mean)

	var svd mat.SVD
	if ok := svd.Factorize(xc, mat.SVDThin); !ok {
		return errors.InternalError("SVD failed to converge during whitening")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	// Whitened data: sqrt(n) * U_k has unit-variance uncorrelated columns.
	// The whitening operator K maps centered gene space into that basis.
	sqrtN := math.Sqrt(float64(n))
	white := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			white.Set(i, j, u.At(i, j)*sqrtN)
		}
	}
	whitener := mat.NewDense(k, g, nil)
	for i := 0; i < k; i++ {
		if s[i] == 0 {
			return errors.InvalidRank("training matrix rank is below requested k")
		}
		for j := 0; j < g; j++ {
			whitener.Set(i, j, v.At(j, i)*sqrtN/s[i])
		}
	}

	rng := rand.New(rand.NewSource(seed))
	w := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			w.Set(i, j, rng.NormFloat64())
		}
	}
	w = symmetricDecorrelate(w)

	for iter := 0; iter < c.maxIter; iter++ {
		next, err := c.fixedPointStep(white, w)
		if err != nil {
			return err
		}
		// Convergence: rotation between iterations approaches identity up
		// to component sign.
		var lim float64
		var prod mat.Dense
		prod.Mul(next, w.T())
		for i := 0; i < k; i++ {
			d := math.Abs(math.Abs(prod.At(i, i)) - 1)
			if d > lim {
				lim = d
			}
		}
		w = next
		if lim < c.tol {
			break
		}
	}

	c.k = k
	c.genes = append([]string(nil), train.GeneIDs...)
	c.unmixing = &mat.Dense{}
	c.unmixing.Mul(w, whitener)

	c.embedding = &mat.Dense{}
	c.embedding.Mul(xc, c.unmixing.T())

	mixing, err := pseudoInverse(c.unmixing)
	if err != nil {
		return err
	}
	c.mixing = mixing
	return nil
}

// fixedPointStep performs one parallel FastICA update with g = tanh.
func (c *ICA) fixedPointStep(white, w *mat.Dense) (*mat.Dense, error) {
	n, k := white.Dims()

	var src mat.Dense
	src.Mul(white, w.T()) // n × k sources under current rotation

	gx := mat.NewDense(n, k, nil)
	gDeriv := make([]float64, k)
	for j := 0; j < k; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			t := math.Tanh(src.At(i, j))
			gx.Set(i, j, t)
			sum += 1 - t*t
		}
		gDeriv[j] = sum / float64(n)
	}

	var next mat.Dense
	next.Mul(gx.T(), white)
	next.Scale(1/float64(n), &next)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			next.Set(i, j, next.At(i, j)-gDeriv[i]*w.At(i, j))
		}
	}
	return symmetricDecorrelate(&next), nil
}

// Embedding returns the samples × k source estimates for the training data.
func (c *ICA) Embedding() *mat.Dense { return c.embedding }

// Weights returns the k × genes unmixing matrix.
func (c *ICA) Weights() *mat.Dense { return c.unmixing }

// Genes returns the gene IDs spanned by the weights.
func (c *ICA) Genes() []string { return c.genes }

// Transform projects new samples through the train-fit unmixing matrix.
func (c *ICA) Transform(x *expr.Matrix) (*mat.Dense, error) {
	if c.unmixing == nil {
		return nil, errors.InternalError("ica transform before fit")
	}
	if x.NumGenes() != len(c.mean) {
		return nil, errors.DimensionMismatch("ica transform input gene count differs from training")
	}
	xc := centered(x.Data, c.mean)
	var z mat.Dense
	z.Mul(xc, c.unmixing.T())
	return &z, nil
}

// Reconstruct maps sources back to gene space through the mixing matrix.
func (c *ICA) Reconstruct(z *mat.Dense) (*mat.Dense, error) {
	if c.mixing == nil {
		return nil, errors.InternalError("ica reconstruct before fit")
	}
	_, zk := z.Dims()
	if zk != c.k {
		return nil, errors.DimensionMismatch("ica reconstruct embedding width differs from k")
	}
	var x mat.Dense
	x.Mul(z, c.mixing.T())
	addRowVector(&x, c.mean)
	return &x, nil
}

// symmetricDecorrelate replaces w with (w wᵀ)^(-1/2) w, which for the SVD
// w = UΣVᵀ reduces to UVᵀ.
func symmetricDecorrelate(w *mat.Dense) *mat.Dense {
	var svd mat.SVD
	svd.Factorize(w, mat.SVDThin)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	out := &mat.Dense{}
	out.Mul(&u, v.T())
	return out
}

// pseudoInverse computes the Moore-Penrose inverse through a thin SVD.
func pseudoInverse(m *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, errors.InternalError("SVD failed during pseudo-inverse")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	_, uc := u.Dims()
	scaled := mat.DenseCopyOf(&v)
	vr, _ := v.Dims()
	for j := 0; j < uc; j++ {
		inv := 0.0
		if s[j] > 1e-12 {
			inv = 1 / s[j]
		}
		for i := 0; i < vr; i++ {
			scaled.Set(i, j, scaled.At(i, j)*inv)
		}
	}
	// V Σ⁻¹ Uᵀ, shape cols(m) × rows(m).
	out := &mat.Dense{}
	out.Mul(scaled, u.T())
	return out, nil
}
