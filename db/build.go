package db

import (
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// DailyRow is one day of the rentals dataset, restricted to the required columns.
type DailyRow struct {
	Holiday    int64
	Weekday    int64
	Workingday int64
	Temp       float64
	Atemp      float64
	Hum        float64
	Windspeed  float64
	Cnt        int64
}

// BuildTable creates a table with DailySchema from rows.
func BuildTable(mem memory.Allocator, rows []DailyRow) *Table {
	builder := array.NewRecordBuilder(mem, DailySchema)
	defer builder.Release()

	holiday := builder.Field(0).(*array.Int64Builder)
	weekday := builder.Field(1).(*array.Int64Builder)
	workingday := builder.Field(2).(*array.Int64Builder)
	temp := builder.Field(3).(*array.Float64Builder)
	atemp := builder.Field(4).(*array.Float64Builder)
	hum := builder.Field(5).(*array.Float64Builder)
	windspeed := builder.Field(6).(*array.Float64Builder)
	cnt := builder.Field(7).(*array.Int64Builder)

	for _, r := range rows {
		holiday.Append(r.Holiday)
		weekday.Append(r.Weekday)
		workingday.Append(r.Workingday)
		temp.Append(r.Temp)
		atemp.Append(r.Atemp)
		hum.Append(r.Hum)
		windspeed.Append(r.Windspeed)
		cnt.Append(r.Cnt)
	}

	rec := builder.NewRecord()
	return &Table{rec: rec}
}
