package plier

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"

	"golatent/domain/expr"
	"golatent/domain/model"
	"golatent/internal/errors"
	"golatent/internal/norm"
	"golatent/ports"
)

// Config selects the pathway prior and cache behavior for one fit.
type Config struct {
	PathwaysFile string
	Shuffled     bool
	ForceRefresh bool
}

// PLIER is the pathway-regularized adapter. The factorization runs in an
// external solver; the adapter restricts the model to the genes shared by
// the training data and the pathway prior, and projects held-out samples by
// ridge regression against the learned loadings because the variant has no
// native forward map.
type PLIER struct {
	cfg        Config
	factorizer ports.PathwayFactorizer

	k         int
	weights   *mat.Dense // k × len(genes)
	embedding *mat.Dense // samples × k
	genes     []string
	l2        float64
}

// New creates an unfitted PLIER adapter backed by the given factorizer.
func New(cfg Config, factorizer ports.PathwayFactorizer) *PLIER {
	return &PLIER{cfg: cfg, factorizer: factorizer}
}

// Algorithm returns the variant tag.
func (p *PLIER) Algorithm() model.Algorithm { return model.AlgPLIER }

// Invertible reports the native inverse map. PLIER has none; reconstruction
// goes through the weight matrix and projection through ridge regression.
func (p *PLIER) Invertible() bool { return false }

// Fit runs the external solver and keeps the weights restricted to genes
// present in the training data.
func (p *PLIER) Fit(ctx context.Context, train *expr.Matrix, k int, seed int64) error {
	n, g := train.Data.Dims()
	min := n
	if g < min {
		min = g
	}
	if k < 1 || k > min {
		return errors.InvalidRank(
			fmt.Sprintf("latent dimensionality %d out of range [1, %d] for %d×%d training matrix", k, min, n, g))
	}

	pathwayGenes, err := readPathwayGenes(p.cfg.PathwaysFile)
	if err != nil {
		return err
	}
	trainIdx := train.GeneIndex()
	overlap := 0
	for gene := range pathwayGenes {
		if _, ok := trainIdx[gene]; ok {
			overlap++
		}
	}
	if overlap == 0 {
		return errors.EmptyGeneOverlap(
			fmt.Sprintf("no genes shared between training data and pathway prior %s", p.cfg.PathwaysFile))
	}

	res, err := p.factorizer.Factorize(ctx, ports.PathwayFitRequest{
		Train:        train,
		K:            k,
		Seed:         seed,
		Shuffled:     p.cfg.Shuffled,
		PathwaysFile: p.cfg.PathwaysFile,
		ForceRefresh: p.cfg.ForceRefresh,
	})
	if err != nil {
		return err
	}

	// The solver works on its own intersection of data and prior; keep only
	// the columns whose genes the training data actually carries so the
	// evaluator can line reconstructions up against the original matrix.
	keep := make([]int, 0, len(res.Genes))
	genes := make([]string, 0, len(res.Genes))
	for j, gene := range res.Genes {
		if _, ok := trainIdx[gene]; ok {
			keep = append(keep, j)
			genes = append(genes, gene)
		}
	}
	if len(keep) == 0 {
		return errors.EmptyGeneOverlap("solver returned no genes present in the training data")
	}

	wr, _ := res.Weights.Dims()
	if wr != k {
		return errors.DimensionMismatch(
			fmt.Sprintf("solver returned %d latent dimensions, requested %d", wr, k))
	}
	weights := mat.NewDense(k, len(keep), nil)
	for i := 0; i < k; i++ {
		for jj, j := range keep {
			weights.Set(i, jj, res.Weights.At(i, j))
		}
	}

	p.k = k
	p.weights = weights
	p.embedding = res.Embedding
	p.genes = genes
	p.l2 = res.L2
	return nil
}

// Embedding returns the samples × k training embedding.
func (p *PLIER) Embedding() *mat.Dense { return p.embedding }

// Weights returns the k × genes loading matrix over the restricted gene set.
func (p *PLIER) Weights() *mat.Dense { return p.weights }

// Genes returns the restricted gene set the model spans.
func (p *PLIER) Genes() []string { return p.genes }

// Transform projects new samples into the latent space by ridge regression:
// the test slab is restricted to the model's gene set, re-standardized per
// feature, and solved against the loadings with the solver's own L2 penalty.
func (p *PLIER) Transform(x *expr.Matrix) (*mat.Dense, error) {
	if p.weights == nil {
		return nil, errors.InternalError("plier transform before fit")
	}
	sub, err := x.SelectGenes(p.genes)
	if err != nil {
		return nil, err
	}
	std, _, err := norm.FitTransform(sub, norm.MethodZScore)
	if err != nil {
		return nil, err
	}
	return ridgeProject(p.weights, std.Data, p.l2)
}

// Reconstruct maps an embedding back through the loadings, yielding values
// in the standardized gene space of the restricted set.
func (p *PLIER) Reconstruct(z *mat.Dense) (*mat.Dense, error) {
	if p.weights == nil {
		return nil, errors.InternalError("plier reconstruct before fit")
	}
	_, zk := z.Dims()
	if zk != p.k {
		return nil, errors.DimensionMismatch("plier reconstruct embedding width differs from k")
	}
	var out mat.Dense
	out.Mul(z, p.weights)
	return &out, nil
}

// ridgeProject solves min_B ||Xᵀ - Wᵀ B||²_F + λ||B||²_F through the SVD of
// Wᵀ and returns Bᵀ, the samples × k embedding. W is k × genes and x is
// samples × genes over the same gene order.
func ridgeProject(w, x *mat.Dense, lambda float64) (*mat.Dense, error) {
	k, g := w.Dims()
	n, xg := x.Dims()
	if xg != g {
		return nil, errors.DimensionMismatch(
			fmt.Sprintf("projection input spans %d genes, loadings span %d", xg, g))
	}

	var svd mat.SVD
	if ok := svd.Factorize(w.T(), mat.SVDThin); !ok {
		return nil, errors.InternalError("SVD failed during ridge projection")
	}
	var u, v mat.Dense
	svd.UTo(&u) // g × k
	svd.VTo(&v) // k × k
	s := svd.Values(nil)

	// B = V diag(σ/(σ²+λ)) Uᵀ Xᵀ, computed as (X U) scaled then times Vᵀ,
	// transposed into sample-major order.
	var xu mat.Dense
	xu.Mul(x, &u) // n × k
	for j := 0; j < k; j++ {
		f := s[j] / (s[j]*s[j] + lambda)
		for i := 0; i < n; i++ {
			xu.Set(i, j, xu.At(i, j)*f)
		}
	}
	var z mat.Dense
	z.Mul(&xu, v.T())
	return &z, nil
}

// readPathwayGenes collects the gene universe of a pathway prior file: a
// TSV whose first column after the header row holds gene IDs.
func readPathwayGenes(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open pathways file %s", path)
	}
	defer f.Close()

	genes := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		gene := line
		if i := strings.IndexByte(line, '\t'); i >= 0 {
			gene = line[:i]
		}
		if gene != "" {
			genes[gene] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read pathways file %s", path)
	}
	if len(genes) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("pathways file %s lists no genes", path))
	}
	return genes, nil
}
