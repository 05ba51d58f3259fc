package eval

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"golatent/internal/errors"
)

// DefaultEpsilon is the clipping value used to keep the logit finite.
const DefaultEpsilon = 1e-7

// Score computes the approximate binary cross-entropy between a
// reconstructed matrix and the original it approximates. Reconstruction
// values are clipped into [epsilon, 1-epsilon] before the logit transform,
// then the score is the mean over samples of
//
//	numFeatures * mean_over_features(-logit*orig + log(1 + exp(logit)))
//
// which matches a sigmoid cross-entropy with logits up to clipping. The
// metric is comparable across algorithms because it never consults the
// model that produced the reconstruction. numFeatures must equal the column
// count of both matrices; for prior-restricted variants both matrices and
// the count refer to the same gene subset.
func Score(recon, orig mat.Matrix, numFeatures int, epsilon float64) (float64, error) {
	rr, rc := recon.Dims()
	or, oc := orig.Dims()
	if rr != or || rc != oc {
		return 0, errors.DimensionMismatch(
			fmt.Sprintf("reconstruction is %dx%d but original is %dx%d", rr, rc, or, oc))
	}
	if numFeatures != rc {
		return 0, errors.DimensionMismatch(
			fmt.Sprintf("feature count %d disagrees with matrix width %d", numFeatures, rc))
	}
	if epsilon <= 0 || epsilon >= 0.5 {
		return 0, errors.InvalidInput(fmt.Sprintf("epsilon %g out of (0, 0.5)", epsilon))
	}

	total := 0.0
	p := float64(numFeatures)
	for i := 0; i < rr; i++ {
		rowSum := 0.0
		for j := 0; j < rc; j++ {
			x := recon.At(i, j)
			if x < epsilon {
				x = epsilon
			} else if x > 1-epsilon {
				x = 1 - epsilon
			}
			logit := math.Log(x / (1 - x))
			rowSum += -logit*orig.At(i, j) + math.Log1p(math.Exp(logit))
		}
		featureMean := rowSum / float64(rc)
		total += p * featureMean
	}
	return total / float64(rr), nil
}
