package ensemble

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golatent/adapters/decomp"
	"golatent/domain/expr"
	"golatent/domain/model"
	"golatent/internal/errors"
	"golatent/internal/norm"
	"golatent/internal/storage"
	"golatent/internal/testkit"
	"golatent/ports"
)

func decompFactory(alg model.Algorithm, _ bool) (ports.Compressor, error) {
	switch alg {
	case model.AlgPCA:
		return decomp.NewPCA(), nil
	case model.AlgICA:
		return decomp.NewICA(), nil
	case model.AlgNMF:
		return decomp.NewNMF(decomp.NMFConfig{}), nil
	}
	return nil, fmt.Errorf("no compressor for %q", alg)
}

func scenarioPair(t *testing.T) *expr.Pair {
	t.Helper()
	cfg := testkit.DefaultExpressionConfig()
	cfg.Samples = 20
	cfg.TestSamples = 6
	cfg.Genes = 100
	cfg.Modules = 5
	return testkit.GeneratePair(cfg)
}

func TestMasterSeedSource_Draw(t *testing.T) {
	src := MasterSeedSource{}
	seeds := src.Draw(42, 10)
	require.Len(t, seeds, 10)

	seen := make(map[int64]bool)
	for _, s := range seeds {
		assert.False(t, seen[s], "seed %d drawn twice", s)
		seen[s] = true
		assert.GreaterOrEqual(t, s, int64(0))
		assert.Less(t, s, int64(seedSpace))
	}

	assert.Equal(t, seeds, src.Draw(42, 10), "same master seed reproduces the draw")
	assert.NotEqual(t, seeds, src.Draw(43, 10))
}

func TestRun_SingleSeedSingleVariant(t *testing.T) {
	pair := scenarioPair(t)
	store := storage.NewStore(t.TempDir())
	d := NewDriver(store, decompFactory, nil)

	result, err := d.Run(context.Background(), pair, Params{
		Algorithms:    []model.Algorithm{model.AlgPCA},
		K:             5,
		NumSeeds:      1,
		MasterSeed:    42,
		Normalization: norm.MethodZScore,
	})
	require.NoError(t, err)
	require.Empty(t, result.Failures)
	require.Len(t, result.Seeds, 1)
	require.Len(t, result.Rows, 2, "one train row and one test row")

	splits := map[model.Split]bool{}
	for _, row := range result.Rows {
		assert.Equal(t, model.AlgPCA, row.Algorithm)
		assert.Equal(t, result.Seeds[0], row.Seed)
		assert.False(t, row.Shuffled)
		assert.False(t, math.IsNaN(row.Score))
		assert.False(t, math.IsInf(row.Score, 0))
		splits[row.Split] = true
	}
	assert.True(t, splits[model.SplitTrain])
	assert.True(t, splits[model.SplitTest])

	// Persisted embeddings have the expected shapes.
	dir, err := store.ComponentsDir(5)
	require.NoError(t, err)
	seed := result.Seeds[0]

	_, _, z, err := storage.ReadMatrixFile(store.EmbeddingPath(dir, model.AlgPCA, seed, false))
	require.NoError(t, err)
	zr, zc := z.Dims()
	assert.Equal(t, 20, zr)
	assert.Equal(t, 5, zc)

	_, _, zt, err := storage.ReadMatrixFile(store.TestEmbeddingPath(dir, model.AlgPCA, seed, false))
	require.NoError(t, err)
	tr, tc := zt.Dims()
	assert.Equal(t, 6, tr)
	assert.Equal(t, 5, tc)

	assert.FileExists(t, store.ReconstructionPath(5, false))
}

func TestRun_ZeroOneScoresArePositive(t *testing.T) {
	pair := scenarioPair(t)
	d := NewDriver(storage.NewStore(t.TempDir()), decompFactory, nil)

	result, err := d.Run(context.Background(), pair, Params{
		Algorithms:    []model.Algorithm{model.AlgPCA, model.AlgNMF},
		K:             4,
		NumSeeds:      1,
		MasterSeed:    7,
		Normalization: norm.MethodMinMax,
	})
	require.NoError(t, err)
	require.Empty(t, result.Failures)
	require.Len(t, result.Rows, 4)
	for _, row := range result.Rows {
		assert.Greater(t, row.Score, 0.0, "%s/%s", row.Algorithm, row.Split)
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	pair := scenarioPair(t)
	d := NewDriver(storage.NewStore(t.TempDir()), decompFactory, nil)

	// NMF on z-scored data violates nonnegativity and must fail, while PCA
	// on the same data still contributes its rows.
	result, err := d.Run(context.Background(), pair, Params{
		Algorithms:    []model.Algorithm{model.AlgNMF, model.AlgPCA},
		K:             3,
		NumSeeds:      2,
		MasterSeed:    11,
		Normalization: norm.MethodZScore,
	})
	require.NoError(t, err)

	assert.Len(t, result.Rows, 4, "PCA rows for both seeds survive")
	require.Len(t, result.Failures, 2, "one NMF failure per seed")
	for _, fail := range result.Failures {
		assert.Equal(t, model.AlgNMF, fail.Algorithm)
		assert.True(t, errors.HasCode(fail.Err, errors.CodeInvalidInput))
	}
}

func TestRun_ShuffleChangesScores(t *testing.T) {
	pair := scenarioPair(t)

	run := func(shuffle bool) *RunResult {
		d := NewDriver(storage.NewStore(t.TempDir()), decompFactory, nil)
		result, err := d.Run(context.Background(), pair, Params{
			Algorithms:    []model.Algorithm{model.AlgPCA},
			K:             3,
			NumSeeds:      1,
			MasterSeed:    5,
			Normalization: norm.MethodZScore,
			Shuffle:       shuffle,
		})
		require.NoError(t, err)
		require.Empty(t, result.Failures)
		return result
	}

	plain := run(false)
	shuffled := run(true)

	assert.Equal(t, plain.Seeds, shuffled.Seeds, "the seed draw ignores the shuffle flag")

	var plainTrain, shuffledTrain float64
	for _, row := range plain.Rows {
		if row.Split == model.SplitTrain {
			plainTrain = row.Score
		}
	}
	for _, row := range shuffled.Rows {
		assert.True(t, row.Shuffled)
		if row.Split == model.SplitTrain {
			shuffledTrain = row.Score
		}
	}
	assert.NotEqual(t, plainTrain, shuffledTrain,
		"destroying gene structure moves the reconstruction score")
}

func TestRun_ParameterValidation(t *testing.T) {
	pair := scenarioPair(t)
	d := NewDriver(storage.NewStore(t.TempDir()), decompFactory, nil)
	base := Params{
		Algorithms:    []model.Algorithm{model.AlgPCA},
		K:             3,
		NumSeeds:      1,
		Normalization: norm.MethodZScore,
	}

	p := base
	p.K = 0
	_, err := d.Run(context.Background(), pair, p)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidRank))

	p = base
	p.NumSeeds = 0
	_, err = d.Run(context.Background(), pair, p)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	p = base
	p.Algorithms = nil
	_, err = d.Run(context.Background(), pair, p)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	p = base
	p.Normalization = norm.Method("median")
	_, err = d.Run(context.Background(), pair, p)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidMethod),
		"an unknown normalization is fatal before any seed work")
}
