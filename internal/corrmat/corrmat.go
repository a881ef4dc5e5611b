// Package corrmat loads and validates the per-arm correlation structures
// that drive longitudinal data generation. A Structure is loaded once at run
// start and is read-only thereafter.
package corrmat

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// #region errors
var (
	ErrDimension    = errors.New("correlation matrix has wrong dimension")
	ErrNotSymmetric = errors.New("correlation matrix is not symmetric")
	ErrNotPSD       = errors.New("correlation matrix is not positive semi-definite")
)

// #endregion errors

const symTol = 1e-9

// #region structure
// Structure is a symmetric positive-semi-definite covariance over a fixed
// ordered set of visits.
type Structure struct {
	visits int
	sym    *mat.SymDense
}

// Visits returns the number of ordered time points.
func (s *Structure) Visits() int { return s.visits }

// Sym exposes the matrix for samplers. Callers must not mutate it.
func (s *Structure) Sym() mat.Symmetric { return s.sym }

// #endregion structure

// #region from-rows
// FromRows builds and validates a Structure from a visits×visits grid.
func FromRows(rows [][]float64, visits int) (*Structure, error) {
	if len(rows) != visits {
		return nil, fmt.Errorf("%w: got %d rows, want %d", ErrDimension, len(rows), visits)
	}
	for i, r := range rows {
		if len(r) != visits {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimension, i+1, len(r), visits)
		}
	}
	for i := 0; i < visits; i++ {
		for j := i + 1; j < visits; j++ {
			if math.Abs(rows[i][j]-rows[j][i]) > symTol {
				return nil, fmt.Errorf("%w: [%d,%d]=%g vs [%d,%d]=%g",
					ErrNotSymmetric, i+1, j+1, rows[i][j], j+1, i+1, rows[j][i])
			}
		}
	}

	sym := mat.NewSymDense(visits, nil)
	for i := 0; i < visits; i++ {
		for j := i; j < visits; j++ {
			sym.SetSym(i, j, (rows[i][j]+rows[j][i])/2)
		}
	}

	var ch mat.Cholesky
	if ok := ch.Factorize(sym); !ok {
		return nil, ErrNotPSD
	}

	return &Structure{visits: visits, sym: sym}, nil
}

// #endregion from-rows

// #region from-csv
// FromCSV reads a visits×visits numeric grid, one visit per row and column.
func FromCSV(path string, visits int) (*Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open correlation file: %w", err)
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = visits
	records, err := rd.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	rows := make([][]float64, len(records))
	for i, rec := range records {
		rows[i] = make([]float64, len(rec))
		for j, cell := range rec {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s row %d col %d: %w", path, i+1, j+1, err)
			}
			rows[i][j] = v
		}
	}
	return FromRows(rows, visits)
}

// #endregion from-csv

// #region ar1
// AR1 builds a first-order autoregressive covariance: sigma2 * rho^|i-j|.
// Used by fixtures and as the built-in default scenario.
func AR1(visits int, rho, sigma2 float64) (*Structure, error) {
	if rho <= -1 || rho >= 1 {
		return nil, fmt.Errorf("%w: ar1 rho %g outside (-1,1)", ErrNotPSD, rho)
	}
	if sigma2 <= 0 {
		return nil, fmt.Errorf("%w: ar1 sigma2 %g not positive", ErrNotPSD, sigma2)
	}
	rows := make([][]float64, visits)
	for i := range rows {
		rows[i] = make([]float64, visits)
		for j := range rows[i] {
			rows[i][j] = sigma2 * math.Pow(rho, math.Abs(float64(i-j)))
		}
	}
	return FromRows(rows, visits)
}

// #endregion ar1
