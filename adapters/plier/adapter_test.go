package plier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"golatent/domain/expr"
	"golatent/domain/model"
	"golatent/internal/errors"
	"golatent/ports"
)

type stubFactorizer struct {
	res *ports.PathwayFitResult
	err error
	got ports.PathwayFitRequest
}

func (s *stubFactorizer) Factorize(_ context.Context, req ports.PathwayFitRequest) (*ports.PathwayFitResult, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func trainMatrix(t *testing.T) *expr.Matrix {
	t.Helper()
	m, err := expr.New(
		[]string{"s1", "s2", "s3", "s4"},
		[]string{"a", "b", "c"},
		mat.NewDense(4, 3, []float64{
			0.1, 0.2, 0.3,
			0.4, 0.5, 0.6,
			0.7, 0.8, 0.9,
			0.2, 0.9, 0.1,
		}))
	require.NoError(t, err)
	return m
}

func writePathways(t *testing.T, genes ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pathways.tsv")
	content := "gene\tPATHWAY\n"
	for _, g := range genes {
		content += fmt.Sprintf("%s\t1\n", g)
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPLIER_FitRestrictsToSharedGenes(t *testing.T) {
	train := trainMatrix(t)
	stub := &stubFactorizer{res: &ports.PathwayFitResult{
		// Solver reports a gene ("x") the training data does not carry.
		Weights:   mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}),
		Genes:     []string{"b", "c", "x"},
		Embedding: mat.NewDense(4, 2, []float64{1, 0, 0, 1, 1, 1, 0, 0}),
		L2:        2.5,
	}}

	p := New(Config{PathwaysFile: writePathways(t, "b", "c", "x"), Shuffled: true}, stub)
	require.NoError(t, p.Fit(context.Background(), train, 2, 77))

	assert.Equal(t, model.AlgPLIER, p.Algorithm())
	assert.False(t, p.Invertible())
	assert.Equal(t, []string{"b", "c"}, p.Genes())

	wr, wc := p.Weights().Dims()
	assert.Equal(t, 2, wr)
	assert.Equal(t, 2, wc)
	assert.Equal(t, 1.0, p.Weights().At(0, 0), "column for dropped gene is removed, others keep order")
	assert.Equal(t, 2.0, p.Weights().At(0, 1))
	assert.Equal(t, 4.0, p.Weights().At(1, 0))

	// The request forwards the cache key fields.
	assert.Equal(t, 2, stub.got.K)
	assert.Equal(t, int64(77), stub.got.Seed)
	assert.True(t, stub.got.Shuffled)
}

func TestPLIER_EmptyGeneOverlap(t *testing.T) {
	p := New(Config{PathwaysFile: writePathways(t, "zzz", "yyy")}, &stubFactorizer{})
	err := p.Fit(context.Background(), trainMatrix(t), 2, 0)
	assert.True(t, errors.HasCode(err, errors.CodeEmptyGeneOverlap))
}

func TestPLIER_InvalidRank(t *testing.T) {
	p := New(Config{PathwaysFile: writePathways(t, "a")}, &stubFactorizer{})
	train := trainMatrix(t)

	err := p.Fit(context.Background(), train, 0, 0)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidRank))

	err = p.Fit(context.Background(), train, 4, 0)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidRank), "k above min(samples, genes)")
}

func TestPLIER_ExternalFailurePassthrough(t *testing.T) {
	stub := &stubFactorizer{err: errors.ExternalFitFailure("plier", fmt.Errorf("exit status 1"))}
	p := New(Config{PathwaysFile: writePathways(t, "a", "b")}, stub)
	err := p.Fit(context.Background(), trainMatrix(t), 2, 0)
	assert.True(t, errors.HasCode(err, errors.CodeExternalFitFailure))
}

func TestPLIER_TransformProjectsRestrictedGenes(t *testing.T) {
	train := trainMatrix(t)
	stub := &stubFactorizer{res: &ports.PathwayFitResult{
		Weights:   mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		Genes:     []string{"b", "c"},
		Embedding: mat.NewDense(4, 2, nil),
		L2:        0.5,
	}}
	p := New(Config{PathwaysFile: writePathways(t, "b", "c")}, stub)
	require.NoError(t, p.Fit(context.Background(), train, 2, 0))

	test, err := expr.New(
		[]string{"t1", "t2", "t3"},
		[]string{"a", "b", "c"},
		mat.NewDense(3, 3, []float64{
			0.5, 0.1, 0.9,
			0.5, 0.5, 0.5,
			0.5, 0.9, 0.1,
		}))
	require.NoError(t, err)

	z, err := p.Transform(test)
	require.NoError(t, err)
	zr, zc := z.Dims()
	assert.Equal(t, 3, zr)
	assert.Equal(t, 2, zc)

	z2, err := p.Transform(test)
	require.NoError(t, err)
	assert.True(t, mat.Equal(z, z2), "projection is deterministic")

	recon, err := p.Reconstruct(z)
	require.NoError(t, err)
	_, rc := recon.Dims()
	assert.Equal(t, 2, rc, "reconstruction spans the restricted gene set")
}

func TestRidgeProject_OrthonormalLoadings(t *testing.T) {
	// Rows of w are orthonormal, so with lambda=0 the ridge solution is the
	// plain projection x wᵀ.
	w := mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 1, 0,
	})
	x := mat.NewDense(2, 3, []float64{
		0.5, -1, 4,
		2, 3, -7,
	})

	z, err := ridgeProject(w, x, 0)
	require.NoError(t, err)

	var want mat.Dense
	want.Mul(x, w.T())
	assert.True(t, mat.EqualApprox(&want, z, 1e-10))
}

func TestRidgeProject_ShrinksWithLambda(t *testing.T) {
	w := mat.NewDense(1, 2, []float64{1, 0})
	x := mat.NewDense(1, 2, []float64{10, 0})

	small, err := ridgeProject(w, x, 0.01)
	require.NoError(t, err)
	large, err := ridgeProject(w, x, 100)
	require.NoError(t, err)

	assert.Less(t, large.At(0, 0), small.At(0, 0))
	assert.Greater(t, small.At(0, 0), 0.0)
}

func TestRidgeProject_DimensionCheck(t *testing.T) {
	w := mat.NewDense(2, 3, nil)
	x := mat.NewDense(2, 4, nil)
	_, err := ridgeProject(w, x, 1)
	assert.True(t, errors.HasCode(err, errors.CodeDimensionMismatch))
}

func TestReadPathwayGenes(t *testing.T) {
	path := writePathways(t, "g1", "g2", "g1")
	genes, err := readPathwayGenes(path)
	require.NoError(t, err)
	assert.Len(t, genes, 2)
	_, ok := genes["g1"]
	assert.True(t, ok)

	empty := filepath.Join(t.TempDir(), "empty.tsv")
	require.NoError(t, os.WriteFile(empty, []byte("gene\tP\n"), 0o644))
	_, err = readPathwayGenes(empty)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	_, err = readPathwayGenes(filepath.Join(t.TempDir(), "missing.tsv"))
	assert.Error(t, err)
}
