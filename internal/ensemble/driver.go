// Package ensemble orchestrates repeated compression fits across algorithms
// and seeds, persists every fitted model, and aggregates reconstruction
// scores into a single result table.
package ensemble

import (
	"context"
	"fmt"
	"math/rand"

	"golatent/domain/expr"
	"golatent/domain/model"
	"golatent/internal"
	"golatent/internal/errors"
	"golatent/internal/eval"
	"golatent/internal/norm"
	"golatent/internal/storage"
	"golatent/ports"
)

// Factory builds a fresh, unfitted compressor for one (algorithm, seed)
// iteration. A new instance per iteration keeps fits independent.
type Factory func(alg model.Algorithm, shuffled bool) (ports.Compressor, error)

// Params describes one ensemble run: a single latent dimensionality swept
// over algorithms and seeds.
type Params struct {
	Algorithms    []model.Algorithm
	K             int
	NumSeeds      int
	MasterSeed    int64
	Normalization norm.Method

	// Shuffle permutes gene values within each training sample before
	// fitting, turning the run into a negative control.
	Shuffle bool

	// Epsilon clips reconstructions before the logit transform. Zero means
	// eval.DefaultEpsilon.
	Epsilon float64
}

// RunResult aggregates everything a run produced. Failures are per-variant:
// one algorithm failing on one seed never aborts the rest of the sweep.
type RunResult struct {
	Rows     []model.ReconstructionRow
	Failures []model.VariantFailure
	Seeds    []int64
}

// Driver runs ensembles against a store and a compressor factory.
type Driver struct {
	store   *storage.Store
	factory Factory
	seeds   ports.SeedSource
	log     *internal.Logger
}

// NewDriver creates a driver. A nil logger falls back to the package default;
// seeds come from MasterSeedSource unless replaced with UseSeedSource.
func NewDriver(store *storage.Store, factory Factory, log *internal.Logger) *Driver {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Driver{store: store, factory: factory, seeds: MasterSeedSource{}, log: log}
}

// UseSeedSource replaces the seed derivation, mainly for tests that need a
// fixed seed list.
func (d *Driver) UseSeedSource(s ports.SeedSource) { d.seeds = s }

const seedSpace = 1_000_000

// MasterSeedSource is the default ports.SeedSource: n distinct seeds in
// [0, 1e6) drawn from a source seeded by the master seed, so a run is
// reproducible from a single integer and no seed is fitted twice.
type MasterSeedSource struct{}

func (MasterSeedSource) Draw(master int64, n int) []int64 {
	rng := rand.New(rand.NewSource(master))
	seen := make(map[int64]struct{}, n)
	seeds := make([]int64, 0, n)
	for len(seeds) < n {
		s := rng.Int63n(seedSpace)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		seeds = append(seeds, s)
	}
	return seeds
}

// Run executes the full sweep. Fit, projection and scoring errors are
// isolated per (algorithm, seed); persistence errors of the aggregate table
// abort the run because losing the table loses the run's output.
func (d *Driver) Run(ctx context.Context, pair *expr.Pair, p Params) (*RunResult, error) {
	if p.K < 1 {
		return nil, errors.InvalidRank(fmt.Sprintf("latent dimensionality %d must be positive", p.K))
	}
	if p.NumSeeds < 1 {
		return nil, errors.InvalidInput(fmt.Sprintf("seed count %d must be positive", p.NumSeeds))
	}
	if len(p.Algorithms) == 0 {
		return nil, errors.InvalidInput("no algorithms selected")
	}
	if _, err := norm.ParseMethod(string(p.Normalization)); err != nil {
		return nil, err
	}
	epsilon := p.Epsilon
	if epsilon == 0 {
		epsilon = eval.DefaultEpsilon
	}

	result := &RunResult{Seeds: d.seeds.Draw(p.MasterSeed, p.NumSeeds)}
	d.log.Info("ensemble run: k=%d seeds=%v shuffle=%t algorithms=%v",
		p.K, result.Seeds, p.Shuffle, p.Algorithms)

	for _, seed := range result.Seeds {
		train := pair.Train
		if p.Shuffle {
			// The permutation is seeded per iteration so shuffled runs are
			// as reproducible as real ones.
			train = train.ShuffleGenes(rand.New(rand.NewSource(seed)))
		}

		normTrain, fit, err := norm.FitTransform(train, p.Normalization)
		if err != nil {
			return nil, err
		}
		normTest, err := norm.Apply(pair.Test, fit)
		if err != nil {
			return nil, err
		}

		for _, alg := range p.Algorithms {
			rows, fail := d.runVariant(ctx, alg, seed, p, normTrain, normTest, epsilon)
			result.Rows = append(result.Rows, rows...)
			if fail != nil {
				d.log.Warn("variant failed: %s", fail)
				result.Failures = append(result.Failures, *fail)
			}
		}
	}

	if err := d.store.SaveReconstructionTable(p.K, p.Shuffle, result.Rows); err != nil {
		return nil, err
	}
	return result, nil
}

// runVariant fits, projects, persists and scores one (algorithm, seed)
// combination. It returns the rows it managed to score and at most one
// failure; a fit-stage error yields no rows at all.
func (d *Driver) runVariant(
	ctx context.Context,
	alg model.Algorithm,
	seed int64,
	p Params,
	normTrain, normTest *expr.Matrix,
	epsilon float64,
) ([]model.ReconstructionRow, *model.VariantFailure) {
	c, err := d.factory(alg, p.Shuffle)
	if err != nil {
		return nil, &model.VariantFailure{Algorithm: alg, Seed: seed, Err: err}
	}
	if err := c.Fit(ctx, normTrain, p.K, seed); err != nil {
		return nil, &model.VariantFailure{Algorithm: alg, Seed: seed, Err: err}
	}
	testZ, err := c.Transform(normTest)
	if err != nil {
		return nil, &model.VariantFailure{Algorithm: alg, Seed: seed, Err: err}
	}

	fm := &model.FittedModel{
		Algorithm:     alg,
		Seed:          seed,
		K:             p.K,
		Embedding:     c.Embedding(),
		Weights:       c.Weights(),
		Genes:         c.Genes(),
		TestEmbedding: testZ,
	}
	if err := d.store.SaveFit(fm, normTrain.SampleIDs, normTest.SampleIDs, p.Shuffle); err != nil {
		return nil, &model.VariantFailure{Algorithm: alg, Seed: seed, Err: err}
	}

	// Scores compare reconstructions against the normalized originals over
	// the gene set the model actually spans, so prior-restricted variants
	// stay comparable on their own subset.
	genes := c.Genes()
	origTrain, err := normTrain.SelectGenes(genes)
	if err != nil {
		return nil, &model.VariantFailure{Algorithm: alg, Seed: seed, Err: err}
	}
	origTest, err := normTest.SelectGenes(genes)
	if err != nil {
		return nil, &model.VariantFailure{Algorithm: alg, Seed: seed, Err: err}
	}

	var rows []model.ReconstructionRow
	trainRecon, err := c.Reconstruct(fm.Embedding)
	if err != nil {
		return rows, &model.VariantFailure{Algorithm: alg, Seed: seed, Split: model.SplitTrain, Err: err}
	}
	trainScore, err := eval.Score(trainRecon, origTrain.Data, len(genes), epsilon)
	if err != nil {
		return rows, &model.VariantFailure{Algorithm: alg, Seed: seed, Split: model.SplitTrain, Err: err}
	}
	rows = append(rows, model.ReconstructionRow{
		Algorithm: alg, Seed: seed, Shuffled: p.Shuffle, Split: model.SplitTrain, Score: trainScore,
	})

	testRecon, err := c.Reconstruct(testZ)
	if err != nil {
		return rows, &model.VariantFailure{Algorithm: alg, Seed: seed, Split: model.SplitTest, Err: err}
	}
	testScore, err := eval.Score(testRecon, origTest.Data, len(genes), epsilon)
	if err != nil {
		return rows, &model.VariantFailure{Algorithm: alg, Seed: seed, Split: model.SplitTest, Err: err}
	}
	rows = append(rows, model.ReconstructionRow{
		Algorithm: alg, Seed: seed, Shuffled: p.Shuffle, Split: model.SplitTest, Score: testScore,
	})
	return rows, nil
}
