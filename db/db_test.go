package db_test

import (
	"testing"

	"github.com/TFMV/bikedash/db"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestTable() *db.Table {
	return db.BuildTable(memory.DefaultAllocator, []db.DailyRow{
		{Weekday: 0, Workingday: 0, Temp: 0.34, Atemp: 0.36, Hum: 0.80, Windspeed: 0.16, Cnt: 985},
		{Weekday: 1, Workingday: 1, Temp: 0.36, Atemp: 0.35, Hum: 0.69, Windspeed: 0.24, Cnt: 801},
		{Weekday: 2, Workingday: 1, Holiday: 1, Temp: 0.19, Atemp: 0.18, Hum: 0.43, Windspeed: 0.24, Cnt: 1349},
	})
}

func TestTableColumns(t *testing.T) {
	t.Parallel()

	table := createTestTable()
	defer table.Release()

	assert.Equal(t, 3, table.NumRows())
	assert.True(t, table.Has(db.ColCount))
	assert.False(t, table.Has("casual"))

	cnt, err := table.Int64s(db.ColCount)
	require.NoError(t, err)
	assert.Equal(t, []int64{985, 801, 1349}, cnt)

	asFloat, err := table.Float64s(db.ColCount)
	require.NoError(t, err)
	assert.Equal(t, []float64{985, 801, 1349}, asFloat)

	temp, err := table.Float64s(db.ColTemp)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.34, 0.36, 0.19}, temp)
}

func TestTableColumnErrors(t *testing.T) {
	t.Parallel()

	table := createTestTable()
	defer table.Release()

	_, err := table.Column("registered")
	assert.ErrorIs(t, err, db.ErrColumnNotFound)

	var colErr *db.ColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, "registered", colErr.Column)

	_, err = table.Int64s(db.ColTemp)
	assert.ErrorIs(t, err, db.ErrUnsupportedType)
}

func TestTableWithColumn(t *testing.T) {
	t.Parallel()

	table := createTestTable()
	defer table.Release()

	b := array.NewInt64Builder(memory.DefaultAllocator)
	defer b.Release()
	b.AppendValues([]int64{7, 8, 9}, nil)
	col := b.NewArray()
	defer col.Release()

	t.Run("Append", func(t *testing.T) {
		out, err := table.WithColumn("extra", col)
		require.NoError(t, err)
		defer out.Release()

		assert.Equal(t, table.Schema().NumFields()+1, out.Schema().NumFields())
		assert.False(t, table.Has("extra"), "input table must not change")
		vals, err := out.Int64s("extra")
		require.NoError(t, err)
		assert.Equal(t, []int64{7, 8, 9}, vals)
	})

	t.Run("Replace", func(t *testing.T) {
		out, err := table.WithColumn(db.ColCount, col)
		require.NoError(t, err)
		defer out.Release()

		assert.Equal(t, table.Schema().NumFields(), out.Schema().NumFields())
		vals, err := out.Int64s(db.ColCount)
		require.NoError(t, err)
		assert.Equal(t, []int64{7, 8, 9}, vals)

		orig, err := table.Int64s(db.ColCount)
		require.NoError(t, err)
		assert.Equal(t, []int64{985, 801, 1349}, orig)
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		short := array.NewSlice(col, 0, 2)
		defer short.Release()
		_, err := table.WithColumn("extra", short)
		assert.Error(t, err)
	})
}

func TestTableHead(t *testing.T) {
	t.Parallel()

	table := createTestTable()
	defer table.Release()

	p := table.Head(2)
	assert.Equal(t, []string{"holiday", "weekday", "workingday", "temp", "atemp", "hum", "windspeed", "cnt"}, p.Columns)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, "0", p.Rows[0][1])
	assert.Equal(t, "985", p.Rows[0][7])

	assert.Len(t, table.Head(10).Rows, 3)
}

func TestFromRecords(t *testing.T) {
	t.Parallel()

	a := createTestTable()
	defer a.Release()
	b := createTestTable()
	defer b.Release()

	merged, err := db.FromRecords([]arrow.Record{a.Record(), b.Record()}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer merged.Release()

	assert.Equal(t, 6, merged.NumRows())
	cnt, err := merged.Int64s(db.ColCount)
	require.NoError(t, err)
	assert.Equal(t, []int64{985, 801, 1349, 985, 801, 1349}, cnt)
}
