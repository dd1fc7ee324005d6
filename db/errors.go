package db

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable is returned when the dataset is missing, unreadable or malformed.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrColumnNotFound is returned when a requested column is absent from a table.
	ErrColumnNotFound = errors.New("column not found")
	// ErrInsufficientData is returned when there are too few rows for a computation.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnsupportedType is returned when a column has a type an operation cannot use.
	ErrUnsupportedType = errors.New("unsupported column type")
)

// ColumnError names the column an operation failed on.
type ColumnError struct {
	Column string
	Err    error
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("%s: %q", e.Err, e.Column)
}

func (e *ColumnError) Unwrap() error {
	return e.Err
}

func missingColumn(name string) error {
	return &ColumnError{Column: name, Err: ErrColumnNotFound}
}

func unsupportedColumn(name string) error {
	return &ColumnError{Column: name, Err: ErrUnsupportedType}
}

// unavailable wraps err so it matches ErrDataUnavailable.
func unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDataUnavailable, fmt.Sprintf(format, args...))
}
