package db

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Pool is the Go memory allocator used by Arrow.
var Pool = memory.NewGoAllocator()

// Column names of the daily rentals dataset.
const (
	ColWeekday    = "weekday"
	ColWorkingday = "workingday"
	ColHoliday    = "holiday"
	ColTemp       = "temp"
	ColAtemp      = "atemp"
	ColHum        = "hum"
	ColWindspeed  = "windspeed"
	ColCount      = "cnt"
	ColWeekend    = "weekend"
)

// RequiredColumns lists the columns every daily table must carry, with the
// Arrow type they are parsed as. Other CSV columns are carried as strings.
var RequiredColumns = map[string]arrow.DataType{
	ColWeekday:    arrow.PrimitiveTypes.Int64,
	ColWorkingday: arrow.PrimitiveTypes.Int64,
	ColHoliday:    arrow.PrimitiveTypes.Int64,
	ColTemp:       arrow.PrimitiveTypes.Float64,
	ColAtemp:      arrow.PrimitiveTypes.Float64,
	ColHum:        arrow.PrimitiveTypes.Float64,
	ColWindspeed:  arrow.PrimitiveTypes.Float64,
	ColCount:      arrow.PrimitiveTypes.Int64,
}

// WeatherColumns are the numeric columns correlated on the weather view.
var WeatherColumns = []string{ColTemp, ColAtemp, ColHum, ColWindspeed, ColCount}

// DailySchema is the minimal schema of a daily table, in the order the
// columns appear in the published dataset.
var DailySchema = arrow.NewSchema([]arrow.Field{
	{Name: ColHoliday, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColWeekday, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColWorkingday, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColTemp, Type: arrow.PrimitiveTypes.Float64},
	{Name: ColAtemp, Type: arrow.PrimitiveTypes.Float64},
	{Name: ColHum, Type: arrow.PrimitiveTypes.Float64},
	{Name: ColWindspeed, Type: arrow.PrimitiveTypes.Float64},
	{Name: ColCount, Type: arrow.PrimitiveTypes.Int64},
}, nil)
