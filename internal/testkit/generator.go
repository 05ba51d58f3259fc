// Package testkit generates synthetic expression fixtures for tests: module
// structured gene matrices, matched train/test pairs, and pathway prior
// files on disk.
package testkit

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"golatent/domain/expr"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// drawNormal samples a standard normal through the inverse CDF so the only
// randomness source is the caller's seeded rng.
func drawNormal(rng *rand.Rand) float64 {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return stdNormal.Quantile(u)
}

// ExpressionGeneratorConfig configures the synthetic expression generator.
// Genes are partitioned into modules; every gene in a module follows the
// same latent activity up to its own loading and noise, so structure-seeking
// methods have real structure to find.
type ExpressionGeneratorConfig struct {
	Samples     int
	TestSamples int
	Genes       int
	Modules     int
	Noise       float64
	Seed        int64
}

// DefaultExpressionConfig returns sensible defaults for small test fixtures.
func DefaultExpressionConfig() ExpressionGeneratorConfig {
	return ExpressionGeneratorConfig{
		Samples:     40,
		TestSamples: 15,
		Genes:       60,
		Modules:     4,
		Noise:       0.25,
		Seed:        42,
	}
}

// GeneID names the j-th synthetic gene.
func GeneID(j int) string { return fmt.Sprintf("GENE_%04d", j) }

type moduleModel struct {
	assignment []int
	loading    []float64
}

func newModuleModel(cfg ExpressionGeneratorConfig, rng *rand.Rand) moduleModel {
	m := moduleModel{
		assignment: make([]int, cfg.Genes),
		loading:    make([]float64, cfg.Genes),
	}
	for j := 0; j < cfg.Genes; j++ {
		m.assignment[j] = j % cfg.Modules
		m.loading[j] = 0.5 + rng.Float64()
	}
	return m
}

func (m moduleModel) sample(cfg ExpressionGeneratorConfig, rng *rand.Rand, samples int, prefix string) *expr.Matrix {
	sampleIDs := make([]string, samples)
	data := mat.NewDense(samples, cfg.Genes, nil)
	activity := make([]float64, cfg.Modules)
	for i := 0; i < samples; i++ {
		sampleIDs[i] = fmt.Sprintf("%s_SAMPLE_%04d", prefix, i)
		for g := range activity {
			activity[g] = drawNormal(rng)
		}
		for j := 0; j < cfg.Genes; j++ {
			v := m.loading[j]*activity[m.assignment[j]] + cfg.Noise*drawNormal(rng)
			// Squash into (0, 1) so the same fixture feeds zscore, zeroone
			// and nonnegative-only consumers.
			data.Set(i, j, sigmoid(v))
		}
	}
	geneIDs := make([]string, cfg.Genes)
	for j := range geneIDs {
		geneIDs[j] = GeneID(j)
	}
	out, err := expr.New(sampleIDs, geneIDs, data)
	if err != nil {
		panic(err) // dimensions are constructed to agree
	}
	return out
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

// GenerateMatrix produces one synthetic expression matrix.
func GenerateMatrix(cfg ExpressionGeneratorConfig, prefix string) *expr.Matrix {
	rng := rand.New(rand.NewSource(cfg.Seed))
	m := newModuleModel(cfg, rng)
	return m.sample(cfg, rng, cfg.Samples, prefix)
}

// GeneratePair produces a train/test pair that shares gene loadings, so a
// model fit on the training half generalizes to the test half.
func GeneratePair(cfg ExpressionGeneratorConfig) *expr.Pair {
	rng := rand.New(rand.NewSource(cfg.Seed))
	m := newModuleModel(cfg, rng)
	train := m.sample(cfg, rng, cfg.Samples, "TRAIN")
	test := m.sample(cfg, rng, cfg.TestSamples, "TEST")
	pair, err := expr.NewPair(train, test)
	if err != nil {
		panic(err)
	}
	return pair
}

// WritePathwaysFile writes a pathway prior TSV covering the given genes, one
// gene per row with a binary membership column, and returns its path.
func WritePathwaysFile(dir string, genes []string) (string, error) {
	path := filepath.Join(dir, "pathways.tsv")
	var b strings.Builder
	b.WriteString("gene\tPATHWAY_A\n")
	for i, g := range genes {
		fmt.Fprintf(&b, "%s\t%d\n", g, i%2)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
