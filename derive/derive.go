// Package derive computes feature columns on top of a loaded daily table.
package derive

import (
	"github.com/TFMV/bikedash/db"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Weekday codes that count as weekend: Sunday and Saturday.
const (
	Sunday   = 0
	Saturday = 6
)

// IsWeekend reports whether a weekday code falls on a weekend. Codes outside
// 0..6 are not validated and count as weekdays.
func IsWeekend(weekday int64) bool {
	return weekday == Sunday || weekday == Saturday
}

// AddWeekendFlag returns a copy of t with an int64 "weekend" column that is 1
// where weekday is 0 or 6 and 0 otherwise. An existing weekend column is
// recomputed. t itself is not modified.
func AddWeekendFlag(t *db.Table) (*db.Table, error) {
	weekdays, err := t.Int64s(db.ColWeekday)
	if err != nil {
		return nil, err
	}

	b := array.NewInt64Builder(db.Pool)
	defer b.Release()
	b.Reserve(len(weekdays))
	for _, wd := range weekdays {
		if IsWeekend(wd) {
			b.UnsafeAppend(1)
		} else {
			b.UnsafeAppend(0)
		}
	}
	col := b.NewArray()
	defer col.Release()

	return t.WithColumn(db.ColWeekend, col)
}

// OutOfRange counts weekday values outside 0..6.
func OutOfRange(t *db.Table) (int, error) {
	weekdays, err := t.Int64s(db.ColWeekday)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, wd := range weekdays {
		if wd < 0 || wd > 6 {
			n++
		}
	}
	return n, nil
}
