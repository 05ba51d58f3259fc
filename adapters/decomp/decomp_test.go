package decomp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"golatent/domain/expr"
	"golatent/domain/model"
	"golatent/internal/errors"
	"golatent/internal/norm"
	"golatent/internal/testkit"
	"golatent/ports"
)

func fixturePair(t *testing.T, method norm.Method) (*expr.Matrix, *expr.Matrix) {
	t.Helper()
	pair := testkit.GeneratePair(testkit.DefaultExpressionConfig())
	train, fit, err := norm.FitTransform(pair.Train, method)
	require.NoError(t, err)
	test, err := norm.Apply(pair.Test, fit)
	require.NoError(t, err)
	return train, test
}

func TestCheckRank(t *testing.T) {
	tests := []struct {
		name    string
		k       int
		wantErr bool
	}{
		{"k zero", 0, true},
		{"k negative", -1, true},
		{"k one", 1, false},
		{"k at bound", 8, false},
		{"k above bound", 9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkRank(tt.k, 8, 20)
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.CodeInvalidRank))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPCA_FitShapes(t *testing.T) {
	train, _ := fixturePair(t, norm.MethodZScore)
	p := NewPCA()

	require.NoError(t, p.Fit(context.Background(), train, 5, 0))
	assert.Equal(t, model.AlgPCA, p.Algorithm())
	assert.True(t, p.Invertible())

	er, ec := p.Embedding().Dims()
	assert.Equal(t, train.NumSamples(), er)
	assert.Equal(t, 5, ec)

	wr, wc := p.Weights().Dims()
	assert.Equal(t, 5, wr)
	assert.Equal(t, train.NumGenes(), wc)
	assert.Equal(t, train.GeneIDs, p.Genes())
}

func TestPCA_TransformMatchesFitEmbedding(t *testing.T) {
	train, _ := fixturePair(t, norm.MethodZScore)
	p := NewPCA()
	require.NoError(t, p.Fit(context.Background(), train, 4, 0))

	z, err := p.Transform(train)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(p.Embedding(), z, 1e-8),
		"projecting the training data reproduces the fit embedding")
}

func TestPCA_RoundTrip(t *testing.T) {
	train, test := fixturePair(t, norm.MethodZScore)
	p := NewPCA()
	require.NoError(t, p.Fit(context.Background(), train, 4, 0))

	z, err := p.Transform(test)
	require.NoError(t, err)
	recon, err := p.Reconstruct(z)
	require.NoError(t, err)

	rr, rc := recon.Dims()
	assert.Equal(t, test.NumSamples(), rr)
	assert.Equal(t, test.NumGenes(), rc)

	// Projecting the reconstruction lands on the same embedding: the
	// subspace round trip is idempotent.
	reconM, err := expr.New(test.SampleIDs, test.GeneIDs, recon)
	require.NoError(t, err)
	z2, err := p.Transform(reconM)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(z, z2, 1e-8))
}

func TestPCA_SeedIrrelevant(t *testing.T) {
	train, _ := fixturePair(t, norm.MethodZScore)
	a, b := NewPCA(), NewPCA()
	require.NoError(t, a.Fit(context.Background(), train, 3, 1))
	require.NoError(t, b.Fit(context.Background(), train, 3, 999))
	assert.True(t, mat.EqualApprox(a.Embedding(), b.Embedding(), 1e-10))
}

func TestICA_FitShapesAndDeterminism(t *testing.T) {
	train, test := fixturePair(t, norm.MethodZScore)

	a, b := NewICA(), NewICA()
	require.NoError(t, a.Fit(context.Background(), train, 4, 7))
	require.NoError(t, b.Fit(context.Background(), train, 4, 7))
	assert.True(t, mat.EqualApprox(a.Embedding(), b.Embedding(), 1e-10),
		"identical seeds reproduce identical components")

	wr, wc := a.Weights().Dims()
	assert.Equal(t, 4, wr)
	assert.Equal(t, train.NumGenes(), wc)

	z, err := a.Transform(test)
	require.NoError(t, err)
	zr, zc := z.Dims()
	assert.Equal(t, test.NumSamples(), zr)
	assert.Equal(t, 4, zc)

	recon, err := a.Reconstruct(z)
	require.NoError(t, err)
	_, rc := recon.Dims()
	assert.Equal(t, test.NumGenes(), rc)
}

func TestICA_UnmixingRecoversSubspace(t *testing.T) {
	train, _ := fixturePair(t, norm.MethodZScore)
	c := NewICA()
	require.NoError(t, c.Fit(context.Background(), train, 3, 11))

	// mixing is the pseudo-inverse of unmixing, so their product is close
	// to the identity on the latent side.
	var prod mat.Dense
	prod.Mul(c.unmixing, c.mixing)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, prod.At(i, j), 1e-6)
		}
	}
}

func TestNMF_RejectsNegativeInput(t *testing.T) {
	train, _ := fixturePair(t, norm.MethodZScore) // zscore produces negatives
	n := NewNMF(NMFConfig{})
	err := n.Fit(context.Background(), train, 3, 0)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestNMF_FitNonnegativeFactors(t *testing.T) {
	train, test := fixturePair(t, norm.MethodMinMax)
	n := NewNMF(NMFConfig{})
	require.NoError(t, n.Fit(context.Background(), train, 4, 5))

	checkNonneg := func(m *mat.Dense) {
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				assert.GreaterOrEqual(t, m.At(i, j), 0.0)
			}
		}
	}
	checkNonneg(n.Embedding())
	checkNonneg(n.Weights())

	z, err := n.Transform(test)
	require.NoError(t, err)
	checkNonneg(z)

	recon, err := n.Reconstruct(z)
	require.NoError(t, err)
	rr, rc := recon.Dims()
	assert.Equal(t, test.NumSamples(), rr)
	assert.Equal(t, test.NumGenes(), rc)
}

func TestNMF_SeedDeterminism(t *testing.T) {
	train, _ := fixturePair(t, norm.MethodMinMax)
	a, b := NewNMF(NMFConfig{}), NewNMF(NMFConfig{})
	require.NoError(t, a.Fit(context.Background(), train, 3, 21))
	require.NoError(t, b.Fit(context.Background(), train, 3, 21))
	assert.True(t, mat.EqualApprox(a.Embedding(), b.Embedding(), 1e-10))
}

func TestAdapters_RejectOversizedRank(t *testing.T) {
	train, _ := fixturePair(t, norm.MethodMinMax)
	k := train.NumSamples() + 1

	for _, c := range []ports.Compressor{NewPCA(), NewICA(), NewNMF(NMFConfig{})} {
		err := c.Fit(context.Background(), train, k, 0)
		assert.True(t, errors.HasCode(err, errors.CodeInvalidRank), "%s", c.Algorithm())
	}
}

func TestAdapters_TransformBeforeFit(t *testing.T) {
	_, test := fixturePair(t, norm.MethodMinMax)
	for _, c := range []ports.Compressor{NewPCA(), NewICA(), NewNMF(NMFConfig{})} {
		_, err := c.Transform(test)
		assert.Error(t, err, "%s", c.Algorithm())
	}
}
