package expr

import (
	"fmt"

	"golatent/internal/errors"
)

// Pair holds a training matrix and a held-out test matrix that share the
// same gene set. Construction fails if the gene IDs disagree in content or
// order; everything downstream relies on positional gene alignment.
type Pair struct {
	Train *Matrix
	Test  *Matrix
}

// NewPair validates the shared-gene-set invariant and returns the pair.
func NewPair(train, test *Matrix) (*Pair, error) {
	if train == nil || test == nil {
		return nil, errors.InvalidInput("train and test matrices are both required")
	}
	if train.NumGenes() != test.NumGenes() {
		return nil, errors.DimensionMismatch(
			fmt.Sprintf("train has %d genes but test has %d", train.NumGenes(), test.NumGenes()))
	}
	for i, g := range train.GeneIDs {
		if test.GeneIDs[i] != g {
			return nil, errors.DimensionMismatch(
				fmt.Sprintf("gene set mismatch at column %d: train %q vs test %q", i, g, test.GeneIDs[i]))
		}
	}
	return &Pair{Train: train, Test: test}, nil
}
