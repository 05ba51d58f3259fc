package norm

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"golatent/domain/expr"
	"golatent/internal/errors"
)

// Method selects the per-feature normalization applied before fitting.
type Method string

const (
	// MethodZScore centers each gene and scales to unit variance.
	MethodZScore Method = "zscore"
	// MethodMinMax rescales each gene to [0, 1].
	MethodMinMax Method = "zeroone"
)

// ParseMethod validates a normalization method name.
func ParseMethod(name string) (Method, error) {
	switch Method(name) {
	case MethodZScore, MethodMinMax:
		return Method(name), nil
	}
	return "", errors.InvalidMethod(fmt.Sprintf("normalization method must be %q or %q, got %q",
		MethodZScore, MethodMinMax, name))
}

// Fit holds the per-feature parameters learned from one training matrix.
// A Fit is owned by the matrix it was computed on; it is applied to a test
// matrix only by explicit reuse and never refit there.
type Fit struct {
	Method Method
	Center []float64 // per-feature mean (zscore) or min (zeroone)
	Scale  []float64 // per-feature stddev (zscore) or range (zeroone)
}

// FitTransform learns normalization parameters on the training matrix and
// returns the normalized copy together with the fit.
func FitTransform(train *expr.Matrix, method Method) (*expr.Matrix, *Fit, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, nil, err
	}
	n, g := train.Data.Dims()
	fit := &Fit{
		Method: method,
		Center: make([]float64, g),
		Scale:  make([]float64, g),
	}
	col := make([]float64, n)
	for j := 0; j < g; j++ {
		mat.Col(col, j, train.Data)
		switch method {
		case MethodZScore:
			mean, _ := stats.Mean(col)
			sd, _ := stats.StandardDeviation(col) // population stddev
			fit.Center[j] = mean
			fit.Scale[j] = sd
		case MethodMinMax:
			lo, _ := stats.Min(col)
			hi, _ := stats.Max(col)
			fit.Center[j] = lo
			fit.Scale[j] = hi - lo
		}
		// Constant features scale by 1 so they map to zero, not NaN.
		if fit.Scale[j] == 0 {
			fit.Scale[j] = 1
		}
	}
	out, err := Apply(train, fit)
	if err != nil {
		return nil, nil, err
	}
	return out, fit, nil
}

// Apply normalizes a matrix using an existing fit. The matrix contributes
// nothing to the parameters.
func Apply(m *expr.Matrix, fit *Fit) (*expr.Matrix, error) {
	n, g := m.Data.Dims()
	if g != len(fit.Center) {
		return nil, errors.DimensionMismatch(
			fmt.Sprintf("normalization fit covers %d features but matrix has %d", len(fit.Center), g))
	}
	data := mat.NewDense(n, g, nil)
	for j := 0; j < g; j++ {
		for i := 0; i < n; i++ {
			data.Set(i, j, (m.Data.At(i, j)-fit.Center[j])/fit.Scale[j])
		}
	}
	return expr.New(append([]string(nil), m.SampleIDs...), append([]string(nil), m.GeneIDs...), data)
}
