package storage

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"golatent/internal/errors"
)

// WriteMatrixTSV writes a labelled matrix as tab-separated text. The header
// row carries an empty leading cell followed by the column IDs, matching
// the layout the downstream analysis notebooks expect.
func WriteMatrixTSV(w io.Writer, rowIDs, colIDs []string, data mat.Matrix) error {
	r, c := data.Dims()
	if r != len(rowIDs) || c != len(colIDs) {
		return errors.DimensionMismatch(
			fmt.Sprintf("matrix is %dx%d but %d row IDs and %d column IDs given", r, c, len(rowIDs), len(colIDs)))
	}
	bw := bufio.NewWriter(w)
	bw.WriteString("\t" + strings.Join(colIDs, "\t") + "\n")
	for i := 0; i < r; i++ {
		bw.WriteString(rowIDs[i])
		for j := 0; j < c; j++ {
			bw.WriteByte('\t')
			bw.WriteString(strconv.FormatFloat(data.At(i, j), 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteMatrixGzip writes a labelled matrix as a gzip-compressed TSV file.
func WriteMatrixGzip(path string, rowIDs, colIDs []string, data mat.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	if err := WriteMatrixTSV(gz, rowIDs, colIDs, data); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// ReadMatrixTSV parses a labelled TSV matrix from a reader.
func ReadMatrixTSV(r io.Reader) (rowIDs, colIDs []string, data *mat.Dense, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	if !scanner.Scan() {
		return nil, nil, nil, errors.InvalidInput("matrix file is empty")
	}
	header := strings.Split(scanner.Text(), "\t")
	colIDs = header[1:]

	var values []float64
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(colIDs)+1 {
			return nil, nil, nil, errors.InvalidInput(
				fmt.Sprintf("row %q has %d fields, expected %d", fields[0], len(fields)-1, len(colIDs)))
		}
		rowIDs = append(rowIDs, fields[0])
		for _, field := range fields[1:] {
			v, perr := strconv.ParseFloat(field, 64)
			if perr != nil {
				return nil, nil, nil, errors.Wrapf(perr, "bad value in row %q", fields[0])
			}
			values = append(values, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed reading matrix")
	}
	if len(rowIDs) == 0 {
		return nil, nil, nil, errors.InvalidInput("matrix file has no data rows")
	}
	return rowIDs, colIDs, mat.NewDense(len(rowIDs), len(colIDs), values), nil
}

// ReadMatrixFile reads a labelled TSV matrix, transparently decompressing
// .gz files.
func ReadMatrixFile(path string) (rowIDs, colIDs []string, data *mat.Dense, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, gerr := gzip.NewReader(f)
		if gerr != nil {
			return nil, nil, nil, errors.Wrapf(gerr, "failed to decompress %s", path)
		}
		defer gz.Close()
		r = gz
	}
	return ReadMatrixTSV(r)
}

// ReadScalarFile reads a file holding a single float, as written by the
// external factorization process for its regularization value.
func ReadScalarFile(path string) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", path)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad scalar in %s", path)
	}
	return v, nil
}
