// Package app wires configuration, storage and adapters into runnable
// services.
package app

import (
	"context"
	"fmt"

	"golatent/adapters/decomp"
	"golatent/adapters/plier"
	"golatent/domain/expr"
	"golatent/domain/model"
	"golatent/internal"
	"golatent/internal/config"
	"golatent/internal/ensemble"
	"golatent/internal/errors"
	"golatent/internal/storage"
	"golatent/ports"
)

// EnsembleService runs the full compression sweep from configuration: load
// the train/test pair, fit every (algorithm, seed) combination, persist the
// models and write the aggregate reconstruction table.
type EnsembleService struct {
	cfg    *config.Config
	driver *ensemble.Driver
	log    *internal.Logger
}

// NewEnsembleService builds the service and its adapter graph.
func NewEnsembleService(cfg *config.Config, log *internal.Logger) *EnsembleService {
	if log == nil {
		log = internal.DefaultLogger
	}
	store := storage.NewStore(cfg.Paths.ModelsDir)
	runner := plier.NewScriptRunner(plier.RunnerConfig{
		Rscript:   cfg.Plier.Rscript,
		Script:    cfg.Plier.Script,
		OutputDir: cfg.Plier.OutputDir,
		Verbose:   cfg.Plier.Verbose,
	}, log)

	factory := func(alg model.Algorithm, shuffled bool) (ports.Compressor, error) {
		switch alg {
		case model.AlgPCA:
			return decomp.NewPCA(), nil
		case model.AlgICA:
			return decomp.NewICA(), nil
		case model.AlgNMF:
			return decomp.NewNMF(decomp.NMFConfig{}), nil
		case model.AlgPLIER:
			return plier.New(plier.Config{
				PathwaysFile: cfg.Plier.PathwaysFile,
				Shuffled:     shuffled,
				ForceRefresh: cfg.Plier.ForceRefresh,
			}, runner), nil
		}
		return nil, errors.InvalidMethod(fmt.Sprintf("no compressor registered for algorithm %q", alg))
	}

	return &EnsembleService{
		cfg:    cfg,
		driver: ensemble.NewDriver(store, factory, log),
		log:    log,
	}
}

// LoadPair reads the configured train and test matrices from disk, applies
// the optional MAD gene restriction to both halves, and validates that they
// share a gene set.
func (s *EnsembleService) LoadPair() (*expr.Pair, error) {
	train, err := readExpressionFile(s.cfg.Data.TrainFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load training matrix")
	}
	test, err := readExpressionFile(s.cfg.Data.TestFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load test matrix")
	}

	if top := s.cfg.Data.MADGenes; top > 0 {
		// Gene variability is ranked on the training half only; the test
		// half follows the training selection.
		train, err = train.SubsetMADGenes(top)
		if err != nil {
			return nil, err
		}
		test, err = test.SelectGenes(train.GeneIDs)
		if err != nil {
			return nil, err
		}
	}
	return expr.NewPair(train, test)
}

// Run executes the configured sweep and returns its aggregate result.
func (s *EnsembleService) Run(ctx context.Context) (*ensemble.RunResult, error) {
	pair, err := s.LoadPair()
	if err != nil {
		return nil, err
	}
	s.log.Info("loaded pair: train %dx%d, test %dx%d",
		pair.Train.NumSamples(), pair.Train.NumGenes(),
		pair.Test.NumSamples(), pair.Test.NumGenes())

	result, err := s.driver.Run(ctx, pair, ensemble.Params{
		Algorithms:    s.cfg.Run.Algorithms,
		K:             s.cfg.Run.K,
		NumSeeds:      s.cfg.Run.NumSeeds,
		MasterSeed:    s.cfg.Run.MasterSeed,
		Normalization: s.cfg.Run.Normalization,
		Shuffle:       s.cfg.Run.Shuffle,
		Epsilon:       s.cfg.Run.Epsilon,
	})
	if err != nil {
		return nil, err
	}
	for _, fail := range result.Failures {
		s.log.Warn("isolated failure: %s", fail.String())
	}
	s.log.Info("run complete: %d score rows, %d failures", len(result.Rows), len(result.Failures))
	return result, nil
}

func readExpressionFile(path string) (*expr.Matrix, error) {
	sampleIDs, geneIDs, data, err := storage.ReadMatrixFile(path)
	if err != nil {
		return nil, err
	}
	return expr.New(sampleIDs, geneIDs, data)
}
