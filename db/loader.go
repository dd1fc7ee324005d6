package db

import (
	"bytes"
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadFunc reads a whole dataset file into a table.
type ReadFunc func(path string) (*Table, error)

// LoaderSettings tunes the loader's circuit breaker.
type LoaderSettings struct {
	// MaxFailures is the number of consecutive failed loads that opens the breaker.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before a trial load is allowed.
	Timeout time.Duration
}

// DefaultLoaderSettings returns the settings used when none are given.
func DefaultLoaderSettings() LoaderSettings {
	return LoaderSettings{MaxFailures: 3, Timeout: 5 * time.Second}
}

// Loader reads daily tables from disk. Reads go through a circuit breaker so
// a persistently missing or broken file fails fast instead of being re-read
// on every request.
type Loader struct {
	logger  *zap.Logger
	cb      *gobreaker.CircuitBreaker[*Table]
	readers map[string]ReadFunc
}

// NewLoader creates a loader that parses CSV by default.
func NewLoader(logger *zap.Logger, settings LoaderSettings) *Loader {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = DefaultLoaderSettings().MaxFailures
	}
	l := &Loader{
		logger:  logger.With(zap.String("component", "loader")),
		readers: make(map[string]ReadFunc),
	}
	l.cb = gobreaker.NewCircuitBreaker[*Table](gobreaker.Settings{
		Name:    "DatasetLoader",
		Timeout: settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return l
}

// Register makes files with the given extension (e.g. ".arrow") load through fn.
func (l *Loader) Register(ext string, fn ReadFunc) {
	l.readers[strings.ToLower(ext)] = fn
}

// Load reads the dataset at path and checks it carries the required columns.
// Every failure matches ErrDataUnavailable.
func (l *Loader) Load(ctx context.Context, path string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	t, err := l.cb.Execute(func() (*Table, error) {
		t, err := l.reader(path)(path)
		if err != nil {
			return nil, err
		}
		if err := validate(t); err != nil {
			t.Release()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return t, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = unavailable("%s: %v", path, err)
		}
		l.logger.Error("failed to load dataset", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	loadLatency.Observe(time.Since(start).Seconds())

	l.logger.Info("loaded dataset",
		zap.String("path", path),
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.Schema().NumFields()),
		zap.Duration("elapsed", time.Since(start)))
	return t, nil
}

func (l *Loader) reader(path string) ReadFunc {
	if fn, ok := l.readers[strings.ToLower(filepath.Ext(path))]; ok {
		return fn
	}
	return ReadCSV
}

// ReadCSV parses a delimited file with a header row. Required columns are
// parsed with their fixed types; any other column is carried as text.
func ReadCSV(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, unavailable("open %q: %v", path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	header, err := stdcsv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, unavailable("read header of %q: %v", path, err)
	}

	reader := csv.NewInferringReader(bytes.NewReader(data),
		csv.WithHeader(true),
		csv.WithChunk(-1),
		csv.WithColumnTypes(columnTypes(header)),
		csv.WithAllocator(Pool),
	)
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		records = append(records, rec)
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		releaseAll(records)
		return nil, unavailable("parse %q: %v", path, err)
	}
	if len(records) == 0 {
		return nil, unavailable("%q has no rows", path)
	}

	t, err := FromRecords(records, Pool)
	releaseAll(records)
	if err != nil {
		return nil, unavailable("%q: %v", path, err)
	}
	return t, nil
}

// columnTypes pins every header column: required ones to their fixed type,
// the rest to string so their contents never fail a load.
func columnTypes(header []string) map[string]arrow.DataType {
	types := make(map[string]arrow.DataType, len(header))
	for _, name := range header {
		if dt, ok := RequiredColumns[name]; ok {
			types[name] = dt
			continue
		}
		types[name] = arrow.BinaryTypes.String
	}
	return types
}

// FromRecords concatenates record batches sharing one schema into a table.
// The caller keeps ownership of the input records.
func FromRecords(records []arrow.Record, mem memory.Allocator) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New("no records")
	}
	if len(records) == 1 {
		return NewTable(records[0]), nil
	}

	schema := records[0].Schema()
	var rows int64
	for _, rec := range records {
		if !rec.Schema().Equal(schema) {
			return nil, errors.New("record batches have different schemas")
		}
		rows += rec.NumRows()
	}

	cols := make([]arrow.Array, schema.NumFields())
	for j := range cols {
		parts := make([]arrow.Array, len(records))
		for i, rec := range records {
			parts[i] = rec.Column(j)
		}
		col, err := array.Concatenate(parts, mem)
		if err != nil {
			releaseArrays(cols[:j])
			return nil, fmt.Errorf("concatenate column %q: %w", schema.Field(j).Name, err)
		}
		cols[j] = col
	}
	rec := array.NewRecord(schema, cols, rows)
	releaseArrays(cols)
	return &Table{rec: rec}, nil
}

func releaseAll(records []arrow.Record) {
	for _, rec := range records {
		rec.Release()
	}
}

func releaseArrays(arrs []arrow.Array) {
	for _, a := range arrs {
		if a != nil {
			a.Release()
		}
	}
}
