package ports

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"golatent/domain/expr"
	"golatent/domain/model"
)

// Compressor is the uniform contract every decomposition variant satisfies.
// One Compressor instance represents one (algorithm, seed) fit; instances
// are not reused across seeds.
//
// Matrix conventions: Embedding is samples × k, Weights is k × genes. The
// adapter is responsible for reorienting algorithms whose native output is
// the transpose.
type Compressor interface {
	// Algorithm returns the variant tag.
	Algorithm() model.Algorithm

	// Invertible reports whether the variant carries a native inverse map.
	// Non-invertible variants reconstruct through their weight matrix and
	// project out of sample through ridge regression instead.
	Invertible() bool

	// Fit trains on the normalized training matrix with the given latent
	// dimensionality and seed. k must satisfy 1 <= k <= min(samples, genes)
	// for decomposition-based variants. The context bounds variants that
	// block on external processes; the in-process variants ignore it.
	Fit(ctx context.Context, train *expr.Matrix, k int, seed int64) error

	// Embedding returns the samples × k training embedding.
	Embedding() *mat.Dense

	// Weights returns the k × genes weight matrix.
	Weights() *mat.Dense

	// Genes returns the gene IDs spanned by the weight columns. Equal to
	// the training gene set except for prior-restricted variants.
	Genes() []string

	// Transform projects new samples (same gene set as training) into the
	// latent space using only train-fit parameters.
	Transform(x *expr.Matrix) (*mat.Dense, error)

	// Reconstruct maps an embedding of matching dimensionality back toward
	// gene space, producing a samples × len(Genes()) matrix.
	Reconstruct(z *mat.Dense) (*mat.Dense, error)
}
