package decomp

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"golatent/domain/expr"
	"golatent/domain/model"
	"golatent/internal/errors"
)

// PCA is the linear-subspace adapter. The fit is a thin SVD of the centered
// training matrix; the forward and inverse maps reuse the train-fit mean and
// principal axes, so out-of-sample projection never refits.
type PCA struct {
	k          int
	mean       []float64
	components *mat.Dense // k × genes, rows are principal axes
	embedding  *mat.Dense // samples × k
	genes      []string
}

// NewPCA creates an unfitted PCA adapter.
func NewPCA() *PCA {
	return &PCA{}
}

// Algorithm returns the variant tag.
func (p *PCA) Algorithm() model.Algorithm { return model.AlgPCA }

// Invertible reports the native inverse map.
func (p *PCA) Invertible() bool { return true }

// Fit factorizes the centered training matrix. The seed is accepted for
// interface uniformity; the SVD is deterministic.
func (p *PCA) Fit(ctx context.Context, train *expr.Matrix, k int, seed int64) error {
	n, g := train.Data.Dims()
	if err := checkRank(k, n, g); err != nil {
		return err
	}

	p.mean = colMeans(train.Data)
	xc := centered(train.Data, p.mean)

	var svd mat.SVD
	if ok := svd.Factorize(xc, mat.SVDThin); !ok {
		return errors.InternalError("SVD failed to converge on training matrix")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	p.k = k
	p.genes = append([]string(nil), train.GeneIDs...)

	p.embedding = mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			p.embedding.Set(i, j, u.At(i, j)*s[j])
		}
	}

	p.components = mat.NewDense(k, g, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < g; j++ {
			p.components.Set(i, j, v.At(j, i))
		}
	}
	return nil
}

// Embedding returns the samples × k training embedding.
func (p *PCA) Embedding() *mat.Dense { return p.embedding }

// Weights returns the k × genes principal axes.
func (p *PCA) Weights() *mat.Dense { return p.components }

// Genes returns the gene IDs spanned by the weights.
func (p *PCA) Genes() []string { return p.genes }

// Transform projects new samples with the train-fit mean and axes.
func (p *PCA) Transform(x *expr.Matrix) (*mat.Dense, error) {
	if p.components == nil {
		return nil, errors.InternalError("pca transform before fit")
	}
	if x.NumGenes() != len(p.mean) {
		return nil, errors.DimensionMismatch("pca transform input gene count differs from training")
	}
	xc := centered(x.Data, p.mean)
	var z mat.Dense
	z.Mul(xc, p.components.T())
	return &z, nil
}

// Reconstruct maps an embedding back to gene space.
func (p *PCA) Reconstruct(z *mat.Dense) (*mat.Dense, error) {
	if p.components == nil {
		return nil, errors.InternalError("pca reconstruct before fit")
	}
	_, zk := z.Dims()
	if zk != p.k {
		return nil, errors.DimensionMismatch("pca reconstruct embedding width differs from k")
	}
	var x mat.Dense
	x.Mul(z, p.components)
	addRowVector(&x, p.mean)
	return &x, nil
}
