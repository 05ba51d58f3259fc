package ports

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"golatent/domain/expr"
)

// PathwayFitRequest describes one prior-informed factorization call. The
// (K, Seed, Shuffled) triple is the cache key; ForceRefresh bypasses any
// cached result and removes side-effect files afterwards, which short-lived
// evaluation runs rely on.
type PathwayFitRequest struct {
	Train        *expr.Matrix // normalized training matrix
	K            int
	Seed         int64
	Shuffled     bool
	PathwaysFile string
	ForceRefresh bool
}

// PathwayFitResult carries the three matrices the external solver returns.
type PathwayFitResult struct {
	// Weights is k × len(Genes): latent components over the gene subset the
	// solver actually used.
	Weights *mat.Dense

	// Genes lists the gene IDs of the weight columns.
	Genes []string

	// Embedding is samples × k for the training data.
	Embedding *mat.Dense

	// L2 is the regularization scalar the solver selected; it doubles as
	// the ridge hyperparameter for out-of-sample projection.
	L2 float64
}

// PathwayFactorizer is the opaque boundary to the external prior-informed
// factorization process. A call blocks for the duration of the subprocess;
// a non-zero exit maps to an EXTERNAL_FIT_FAILURE error.
type PathwayFactorizer interface {
	Factorize(ctx context.Context, req PathwayFitRequest) (*PathwayFitResult, error)
}
