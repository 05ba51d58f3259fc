package expr

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"golatent/internal/errors"
)

// Matrix is a samples × genes expression matrix with row and column identity.
// Rows are sample IDs, columns are gene IDs. The backing storage is a gonum
// Dense so the decomposition adapters can operate on it directly.
type Matrix struct {
	SampleIDs []string
	GeneIDs   []string
	Data      *mat.Dense
}

// New builds an expression matrix and validates that the identity vectors
// agree with the data dimensions.
func New(sampleIDs, geneIDs []string, data *mat.Dense) (*Matrix, error) {
	r, c := data.Dims()
	if r != len(sampleIDs) {
		return nil, errors.DimensionMismatch(
			fmt.Sprintf("expression matrix has %d rows but %d sample IDs", r, len(sampleIDs)))
	}
	if c != len(geneIDs) {
		return nil, errors.DimensionMismatch(
			fmt.Sprintf("expression matrix has %d columns but %d gene IDs", c, len(geneIDs)))
	}
	return &Matrix{SampleIDs: sampleIDs, GeneIDs: geneIDs, Data: data}, nil
}

// NumSamples returns the number of rows.
func (m *Matrix) NumSamples() int {
	r, _ := m.Data.Dims()
	return r
}

// NumGenes returns the number of columns.
func (m *Matrix) NumGenes() int {
	_, c := m.Data.Dims()
	return c
}

// Clone returns a deep copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	data := mat.DenseCopyOf(m.Data)
	return &Matrix{
		SampleIDs: append([]string(nil), m.SampleIDs...),
		GeneIDs:   append([]string(nil), m.GeneIDs...),
		Data:      data,
	}
}

// GeneIndex returns a lookup from gene ID to column index.
func (m *Matrix) GeneIndex() map[string]int {
	idx := make(map[string]int, len(m.GeneIDs))
	for i, g := range m.GeneIDs {
		idx[g] = i
	}
	return idx
}

// SelectGenes returns a new matrix restricted to the given genes, in the
// given order. Unknown genes are an error.
func (m *Matrix) SelectGenes(genes []string) (*Matrix, error) {
	idx := m.GeneIndex()
	n := m.NumSamples()
	out := mat.NewDense(n, len(genes), nil)
	for j, g := range genes {
		col, ok := idx[g]
		if !ok {
			return nil, errors.DimensionMismatch(fmt.Sprintf("gene %q not present in matrix", g))
		}
		for i := 0; i < n; i++ {
			out.Set(i, j, m.Data.At(i, col))
		}
	}
	return &Matrix{
		SampleIDs: append([]string(nil), m.SampleIDs...),
		GeneIDs:   append([]string(nil), genes...),
		Data:      out,
	}, nil
}

// ShuffleGenes permutes the gene values within each sample independently.
// Every sample keeps its value distribution but gene-gene associations are
// destroyed, which makes the result a negative control for structure-seeking
// methods.
func (m *Matrix) ShuffleGenes(rng *rand.Rand) *Matrix {
	n, g := m.Data.Dims()
	out := mat.NewDense(n, g, nil)
	for i := 0; i < n; i++ {
		perm := rng.Perm(g)
		for j, p := range perm {
			out.Set(i, j, m.Data.At(i, p))
		}
	}
	return &Matrix{
		SampleIDs: append([]string(nil), m.SampleIDs...),
		GeneIDs:   append([]string(nil), m.GeneIDs...),
		Data:      out,
	}
}

// SubsetMADGenes keeps the top-m genes ranked by mean absolute deviation.
// Ties break toward the original column order so the selection is stable.
func (m *Matrix) SubsetMADGenes(top int) (*Matrix, error) {
	g := m.NumGenes()
	if top <= 0 || top > g {
		return nil, errors.InvalidInput(
			fmt.Sprintf("MAD subset size %d out of range for %d genes", top, g))
	}
	type ranked struct {
		col int
		mad float64
	}
	scores := make([]ranked, g)
	n := m.NumSamples()
	col := make([]float64, n)
	for j := 0; j < g; j++ {
		mat.Col(col, j, m.Data)
		mean, _ := stats.Mean(col)
		dev := 0.0
		for _, v := range col {
			d := v - mean
			if d < 0 {
				d = -d
			}
			dev += d
		}
		scores[j] = ranked{col: j, mad: dev / float64(n)}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].mad > scores[b].mad })
	keep := make([]int, top)
	for i := 0; i < top; i++ {
		keep[i] = scores[i].col
	}
	sort.Ints(keep)
	genes := make([]string, top)
	for i, c := range keep {
		genes[i] = m.GeneIDs[c]
	}
	return m.SelectGenes(genes)
}
