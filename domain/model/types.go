package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Algorithm identifies one of the supported decomposition methods. The set
// is closed: dispatch happens over these tags, never over capability
// sniffing on a shared object.
type Algorithm string

const (
	AlgPCA   Algorithm = "pca"
	AlgICA   Algorithm = "ica"
	AlgNMF   Algorithm = "nmf"
	AlgPLIER Algorithm = "plier"
)

// ListAlgorithms returns every supported algorithm in canonical order.
func ListAlgorithms() []Algorithm {
	return []Algorithm{AlgPCA, AlgICA, AlgNMF, AlgPLIER}
}

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, a := range ListAlgorithms() {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown algorithm %q", name)
}

// Split tags a reconstruction score with the data it was computed on.
type Split string

const (
	SplitTrain Split = "training"
	SplitTest  Split = "testing"
)

// FittedModel is the per-(algorithm, seed) record produced by one fit. It
// is created at fit time, persisted, and discarded after its seed iteration;
// nothing is shared across seeds.
type FittedModel struct {
	Algorithm Algorithm
	Seed      int64
	K         int

	// Embedding is samples × k; Weights is k × genes regardless of the
	// native orientation of the underlying algorithm.
	Embedding *mat.Dense
	Weights   *mat.Dense

	// Genes lists the gene IDs spanned by Weights. For the pathway variant
	// this is the prior-intersection subset, for everything else the full
	// gene set.
	Genes []string

	// TestEmbedding is n_test × k, present once the model has been applied
	// out of sample.
	TestEmbedding *mat.Dense
}

// LatentNames returns the component labels used for embedding columns and
// weight rows, e.g. pca_0..pca_{k-1}.
func (f *FittedModel) LatentNames() []string {
	names := make([]string, f.K)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", f.Algorithm, i)
	}
	return names
}

// ReconstructionRow is one row of the aggregate result table: a single
// scalar score for an (algorithm, seed, shuffled, split) combination.
type ReconstructionRow struct {
	Algorithm Algorithm
	Seed      int64
	Shuffled  bool
	Split     Split
	Score     float64
}

// VariantFailure records a per-seed, per-variant error that was isolated by
// the driver. Failures are reported with the run result, never dropped.
type VariantFailure struct {
	Algorithm Algorithm
	Seed      int64
	Split     Split // empty when the whole fit failed, set for scoring-only failures
	Err       error
}

func (v VariantFailure) String() string {
	if v.Split != "" {
		return fmt.Sprintf("%s seed=%d split=%s: %v", v.Algorithm, v.Seed, v.Split, v.Err)
	}
	return fmt.Sprintf("%s seed=%d: %v", v.Algorithm, v.Seed, v.Err)
}
