// Package plier adapts the external prior-informed factorization solver
// (PLIER, an R process) into the uniform compression contract. The fit
// itself is an opaque subprocess; this package owns the cache around it and
// the ridge machinery that projects held-out samples into the latent space
// the solver produced.
package plier

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"golatent/domain/expr"
	"golatent/internal"
	"golatent/internal/errors"
	"golatent/internal/storage"
	"golatent/ports"
)

// RunnerConfig locates the external solver and its cache directory.
type RunnerConfig struct {
	Rscript   string // interpreter, default "Rscript"
	Script    string // path to the run_plier.R driver script
	OutputDir string // cache directory for solver outputs
	Verbose   bool
}

// ScriptRunner implements ports.PathwayFactorizer by shelling out to the R
// solver. Outputs are cached on disk keyed by (k, seed, shuffled); two
// concurrent runs over the same key would race on the cache files, which is
// the caller's responsibility to avoid.
type ScriptRunner struct {
	cfg RunnerConfig
	log *internal.Logger
}

// NewScriptRunner creates a runner with defaults filled in.
func NewScriptRunner(cfg RunnerConfig, log *internal.Logger) *ScriptRunner {
	if cfg.Rscript == "" {
		cfg.Rscript = "Rscript"
	}
	if log == nil {
		log = internal.DefaultLogger
	}
	return &ScriptRunner{cfg: cfg, log: log}
}

// CachePrefix returns the deterministic per-key file prefix inside the
// output directory.
func (r *ScriptRunner) CachePrefix(k int, seed int64, shuffled bool) string {
	prefix := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("plier_k%d_s%d", k, seed))
	if shuffled {
		prefix += "_shuffled"
	}
	return prefix
}

// Factorize runs (or reuses) one external fit and returns its three output
// matrices reoriented to the module conventions: weights k × genes,
// embedding samples × k.
func (r *ScriptRunner) Factorize(ctx context.Context, req ports.PathwayFitRequest) (*ports.PathwayFitResult, error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create plier output directory %s", r.cfg.OutputDir)
	}

	prefix := r.CachePrefix(req.K, req.Seed, req.Shuffled)
	// The solver writes Z (genes × k) to _z.tsv and B (k × samples) to
	// _b.tsv; everything here is backwards relative to our conventions and
	// gets transposed on read.
	zPath := prefix + "_z.tsv"
	bPath := prefix + "_b.tsv"
	l2Path := prefix + "_l2.tsv"

	cached := fileExists(zPath) && fileExists(bPath) && fileExists(l2Path)
	if req.ForceRefresh || !cached {
		if err := r.invoke(ctx, req, prefix); err != nil {
			return nil, err
		}
	} else {
		r.log.Debug("reusing cached plier fit %s", prefix)
	}

	geneIDs, _, zNative, err := storage.ReadMatrixFile(zPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read plier weights output")
	}
	_, _, bNative, err := storage.ReadMatrixFile(bPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read plier embedding output")
	}
	l2, err := storage.ReadScalarFile(l2Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read plier regularization output")
	}

	if req.ForceRefresh {
		// Evaluation runs with the cache bypassed must not leave
		// side-effect files behind.
		for _, p := range []string{zPath, bPath, l2Path} {
			os.Remove(p)
		}
	}

	weights := mat.DenseCopyOf(zNative.T())   // k × genes
	embedding := mat.DenseCopyOf(bNative.T()) // samples × k
	return &ports.PathwayFitResult{
		Weights:   weights,
		Genes:     geneIDs,
		Embedding: embedding,
		L2:        l2,
	}, nil
}

// invoke writes the training matrix to a transient file and runs the
// external process. The matrix goes out features × samples, the orientation
// the solver expects.
func (r *ScriptRunner) invoke(ctx context.Context, req ports.PathwayFitRequest, prefix string) error {
	exprPath := filepath.Join(os.TempDir(), "golatent_expr_"+uuid.New().String()+".tsv")
	if err := writeTransposed(exprPath, req.Train); err != nil {
		return err
	}
	defer os.Remove(exprPath)

	args := []string{
		r.cfg.Script,
		"--data", exprPath,
		"--k", strconv.Itoa(req.K),
		"--seed", strconv.FormatInt(req.Seed, 10),
		"--pathways_file", req.PathwaysFile,
		"--output_prefix", prefix,
	}
	if r.cfg.Verbose {
		args = append(args, "--verbose")
	}

	r.log.Debug("running plier: %s %v", r.cfg.Rscript, args)
	cmd := exec.CommandContext(ctx, r.cfg.Rscript, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.ExternalFitFailure("plier",
			fmt.Errorf("%w: %s", err, truncate(string(out), 512)))
	}
	return nil
}

func writeTransposed(path string, m *expr.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create transient expression file %s", path)
	}
	defer f.Close()
	return storage.WriteMatrixTSV(f, m.GeneIDs, m.SampleIDs, m.Data.T())
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
