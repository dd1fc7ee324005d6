// Package db implements the in-memory daily rentals table on top of Apache
// Arrow records, together with its loader and the single-slot load cache.
package db

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/prometheus/client_golang/prometheus"
)

// ---------------------------------------------------------------------
// Prometheus Metrics
// ---------------------------------------------------------------------

var (
	loadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "bikedash_load_latency_seconds",
		Help: "Dataset load latency distribution",
	})
	cacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bikedash_cache_requests_total",
		Help: "Table cache lookups by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(loadLatency, cacheRequests)
}

// ---------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------

// Table is an immutable, column-addressable view over a single Arrow record.
type Table struct {
	rec arrow.Record
}

// NewTable wraps rec. The table takes its own reference on the record.
func NewTable(rec arrow.Record) *Table {
	rec.Retain()
	return &Table{rec: rec}
}

// Record returns the underlying Arrow record.
func (t *Table) Record() arrow.Record { return t.rec }

// Schema returns the table schema.
func (t *Table) Schema() *arrow.Schema { return t.rec.Schema() }

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return int(t.rec.NumRows()) }

// Release drops the table's reference on its record.
func (t *Table) Release() { t.rec.Release() }

// Has reports whether the table carries a column called name.
func (t *Table) Has(name string) bool {
	return len(t.rec.Schema().FieldIndices(name)) > 0
}

// Column returns the named column, or a ColumnError matching ErrColumnNotFound.
func (t *Table) Column(name string) (arrow.Array, error) {
	idx := t.rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, missingColumn(name)
	}
	return t.rec.Column(idx[0]), nil
}

// Float64s returns the named numeric column converted to float64.
func (t *Table) Float64s(name string) ([]float64, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if col.NullN() > 0 {
		return nil, &ColumnError{Column: name, Err: ErrDataUnavailable}
	}

	out := make([]float64, col.Len())
	switch a := col.(type) {
	case *array.Float64:
		copy(out, a.Float64Values())
	case *array.Float32:
		for i, v := range a.Float32Values() {
			out[i] = float64(v)
		}
	default:
		ints, err := t.Int64s(name)
		if err != nil {
			return nil, err
		}
		for i, v := range ints {
			out[i] = float64(v)
		}
	}
	return out, nil
}

// Int64s returns the named integer or boolean column as int64 values.
// Floating point columns are rejected with ErrUnsupportedType.
func (t *Table) Int64s(name string) ([]int64, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if col.NullN() > 0 {
		return nil, &ColumnError{Column: name, Err: ErrDataUnavailable}
	}

	out := make([]int64, col.Len())
	switch a := col.(type) {
	case *array.Int64:
		copy(out, a.Int64Values())
	case *array.Int32:
		for i, v := range a.Int32Values() {
			out[i] = int64(v)
		}
	case *array.Int16:
		for i, v := range a.Int16Values() {
			out[i] = int64(v)
		}
	case *array.Int8:
		for i, v := range a.Int8Values() {
			out[i] = int64(v)
		}
	case *array.Uint32:
		for i, v := range a.Uint32Values() {
			out[i] = int64(v)
		}
	case *array.Uint16:
		for i, v := range a.Uint16Values() {
			out[i] = int64(v)
		}
	case *array.Uint8:
		for i, v := range a.Uint8Values() {
			out[i] = int64(v)
		}
	case *array.Boolean:
		for i := 0; i < a.Len(); i++ {
			if a.Value(i) {
				out[i] = 1
			}
		}
	default:
		return nil, unsupportedColumn(name)
	}
	return out, nil
}

// WithColumn returns a new table with col stored under name. An existing
// column of that name is replaced in place; otherwise col is appended.
// The receiver is left untouched.
func (t *Table) WithColumn(name string, col arrow.Array) (*Table, error) {
	if col.Len() != t.NumRows() {
		return nil, fmt.Errorf("column %q has %d rows, table has %d", name, col.Len(), t.NumRows())
	}

	schema := t.rec.Schema()
	fields := make([]arrow.Field, 0, schema.NumFields()+1)
	cols := make([]arrow.Array, 0, schema.NumFields()+1)
	replaced := false
	for i, f := range schema.Fields() {
		if f.Name == name {
			fields = append(fields, arrow.Field{Name: name, Type: col.DataType()})
			cols = append(cols, col)
			replaced = true
			continue
		}
		fields = append(fields, f)
		cols = append(cols, t.rec.Column(i))
	}
	if !replaced {
		fields = append(fields, arrow.Field{Name: name, Type: col.DataType()})
		cols = append(cols, col)
	}

	meta := schema.Metadata()
	rec := array.NewRecord(arrow.NewSchema(fields, &meta), cols, t.rec.NumRows())
	return &Table{rec: rec}, nil
}

// Preview is a printable slice of the first rows of a table.
type Preview struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Head returns up to n leading rows rendered as strings.
func (t *Table) Head(n int) Preview {
	if n > t.NumRows() {
		n = t.NumRows()
	}
	schema := t.rec.Schema()
	p := Preview{
		Columns: make([]string, schema.NumFields()),
		Rows:    make([][]string, n),
	}
	for j, f := range schema.Fields() {
		p.Columns[j] = f.Name
	}
	for i := 0; i < n; i++ {
		row := make([]string, schema.NumFields())
		for j := range row {
			col := t.rec.Column(j)
			if col.IsNull(i) {
				row[j] = ""
				continue
			}
			row[j] = col.ValueStr(i)
		}
		p.Rows[i] = row
	}
	return p
}

// validate checks that t carries every required column, readable with its
// declared type and without nulls.
func validate(t *Table) error {
	if t.NumRows() == 0 {
		return unavailable("table has no rows")
	}
	for name := range RequiredColumns {
		col, err := t.Column(name)
		if err != nil {
			return unavailable("missing required column %q", name)
		}
		if !compatible(col.DataType(), RequiredColumns[name]) {
			return unavailable("column %q has type %s, want %s", name, col.DataType(), RequiredColumns[name])
		}
		if col.NullN() > 0 {
			return unavailable("column %q has %d empty values", name, col.NullN())
		}
	}
	return nil
}

// compatible reports whether a column of type got can be read as want by
// Int64s or Float64s.
func compatible(got, want arrow.DataType) bool {
	switch got.ID() {
	case arrow.INT64, arrow.INT32, arrow.INT16, arrow.INT8,
		arrow.UINT32, arrow.UINT16, arrow.UINT8, arrow.BOOL:
		return true
	case arrow.FLOAT64, arrow.FLOAT32:
		return want.ID() == arrow.FLOAT64
	default:
		return false
	}
}
