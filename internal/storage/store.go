package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golatent/domain/model"
	"golatent/internal/errors"
)

// Store manages the on-disk layout of a run: per-seed embedding and weight
// matrices under <models>/ensemble_z_matrices/components_<k>/ and one
// aggregate reconstruction table per (k, shuffled) run. File names are
// deterministic in (algorithm, k, seed, shuffled) so concurrent runs over
// disjoint seeds never collide.
type Store struct {
	ModelsDir string
}

// NewStore creates a store rooted at the given models directory.
func NewStore(modelsDir string) *Store {
	return &Store{ModelsDir: modelsDir}
}

// ComponentsDir returns the per-k output directory, creating it if needed.
func (s *Store) ComponentsDir(k int) (string, error) {
	dir := filepath.Join(s.ModelsDir, "ensemble_z_matrices", fmt.Sprintf("components_%d", k))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create output directory %s", dir)
	}
	return dir, nil
}

func seedName(seed int64, shuffled bool) string {
	name := strconv.FormatInt(seed, 10)
	if shuffled {
		name += "_shuffled"
	}
	return name
}

// EmbeddingPath names the training embedding file for one fit.
func (s *Store) EmbeddingPath(dir string, alg model.Algorithm, seed int64, shuffled bool) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_z_matrix.tsv.gz", alg, seedName(seed, shuffled)))
}

// TestEmbeddingPath names the test embedding file for one fit.
func (s *Store) TestEmbeddingPath(dir string, alg model.Algorithm, seed int64, shuffled bool) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_z_test_matrix.tsv.gz", alg, seedName(seed, shuffled)))
}

// WeightsPath names the weight matrix file for one fit.
func (s *Store) WeightsPath(dir string, alg model.Algorithm, seed int64, shuffled bool) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_weight_matrix.tsv.gz", alg, seedName(seed, shuffled)))
}

// SaveFit persists the three matrices of one fitted model.
func (s *Store) SaveFit(fit *model.FittedModel, sampleIDs, testSampleIDs []string, shuffled bool) error {
	dir, err := s.ComponentsDir(fit.K)
	if err != nil {
		return err
	}
	latent := fit.LatentNames()

	if err := WriteMatrixGzip(s.EmbeddingPath(dir, fit.Algorithm, fit.Seed, shuffled),
		sampleIDs, latent, fit.Embedding); err != nil {
		return err
	}
	if fit.TestEmbedding != nil {
		if err := WriteMatrixGzip(s.TestEmbeddingPath(dir, fit.Algorithm, fit.Seed, shuffled),
			testSampleIDs, latent, fit.TestEmbedding); err != nil {
			return err
		}
	}
	return WriteMatrixGzip(s.WeightsPath(dir, fit.Algorithm, fit.Seed, shuffled),
		latent, fit.Genes, fit.Weights)
}

// ReconstructionPath names the aggregate score table for a run.
func (s *Store) ReconstructionPath(k int, shuffled bool) string {
	prefix := fmt.Sprintf("%d_components_", k)
	if shuffled {
		prefix = fmt.Sprintf("%d_components_shuffled_", k)
	}
	return filepath.Join(s.ModelsDir, prefix+"reconstruction.tsv")
}

// SaveReconstructionTable writes the aggregate result rows as TSV with
// columns {algorithm, seed, shuffled, split, score}.
func (s *Store) SaveReconstructionTable(k int, shuffled bool, rows []model.ReconstructionRow) error {
	if err := os.MkdirAll(s.ModelsDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create models directory %s", s.ModelsDir)
	}
	path := s.ReconstructionPath(k, shuffled)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "algorithm\tseed\tshuffled\tsplit\tscore")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\t%s\n",
			row.Algorithm, row.Seed, row.Shuffled, row.Split,
			strconv.FormatFloat(row.Score, 'g', -1, 64))
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed writing %s", path)
	}
	return nil
}
