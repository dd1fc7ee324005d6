package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/TFMV/bikedash/db"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNoColumns is returned when a correlation is requested over no columns.
var ErrNoColumns = errors.New("no columns")

// CorrMatrix holds the pairwise Pearson coefficients of a set of columns.
//
// The diagonal is always 1. A pair involving a column with zero variance has
// no defined coefficient and holds NaN; such columns are listed in Degenerate.
type CorrMatrix struct {
	Columns    []string
	Values     *mat.SymDense
	Degenerate []string
}

// At returns the coefficient for the named pair.
func (m *CorrMatrix) At(a, b string) (float64, error) {
	i, j := m.indexOf(a), m.indexOf(b)
	if i < 0 {
		return 0, &db.ColumnError{Column: a, Err: db.ErrColumnNotFound}
	}
	if j < 0 {
		return 0, &db.ColumnError{Column: b, Err: db.ErrColumnNotFound}
	}
	return m.Values.At(i, j), nil
}

// Rows returns the matrix as a dense row-major slice.
func (m *CorrMatrix) Rows() [][]float64 {
	n := len(m.Columns)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = m.Values.At(i, j)
		}
	}
	return out
}

func (m *CorrMatrix) indexOf(col string) int {
	for i, c := range m.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// MarshalJSON encodes undefined coefficients as null.
func (m *CorrMatrix) MarshalJSON() ([]byte, error) {
	rows := m.Rows()
	values := make([][]*float64, len(rows))
	for i, row := range rows {
		values[i] = make([]*float64, len(row))
		for j := range row {
			if !math.IsNaN(row[j]) {
				values[i][j] = &row[j]
			}
		}
	}
	return json.Marshal(struct {
		Columns    []string     `json:"columns"`
		Values     [][]*float64 `json:"values"`
		Degenerate []string     `json:"degenerate,omitempty"`
	}{m.Columns, values, m.Degenerate})
}

// CorrelationMatrix computes the Pearson correlation between every pair of
// cols over all rows of t.
func CorrelationMatrix(t *db.Table, cols []string) (*CorrMatrix, error) {
	start := time.Now()
	defer func() {
		queryLatency.WithLabelValues("correlation").Observe(time.Since(start).Seconds())
	}()

	if len(cols) == 0 {
		return nil, ErrNoColumns
	}

	data := make([][]float64, len(cols))
	for i, col := range cols {
		vals, err := t.Float64s(col)
		if err != nil {
			return nil, fmt.Errorf("correlate %q: %w", col, err)
		}
		data[i] = vals
	}
	if rows := t.NumRows(); rows < 2 {
		return nil, fmt.Errorf("%w: correlation needs at least 2 rows, have %d", db.ErrInsufficientData, rows)
	}

	m := &CorrMatrix{
		Columns: append([]string(nil), cols...),
		Values:  mat.NewSymDense(len(cols), nil),
	}
	flat := make([]bool, len(cols))
	for i, x := range data {
		_, variance := stat.MeanVariance(x, nil)
		if !(variance > 0) {
			flat[i] = true
			m.Degenerate = append(m.Degenerate, cols[i])
		}
	}

	for i := range data {
		m.Values.SetSym(i, i, 1)
		for j := i + 1; j < len(data); j++ {
			r := math.NaN()
			if !flat[i] && !flat[j] {
				r = clamp(stat.Correlation(data[i], data[j], nil))
			}
			m.Values.SetSym(i, j, r)
		}
	}
	return m, nil
}

func clamp(r float64) float64 {
	switch {
	case math.IsNaN(r):
		return r
	case r > 1:
		return 1
	case r < -1:
		return -1
	}
	return r
}
