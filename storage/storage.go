// Package storage keeps table snapshots on disk in the Arrow IPC file format.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/TFMV/bikedash/db"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Compression selects the buffer codec of a snapshot.
type Compression string

const (
	None Compression = "none"
	Zstd Compression = "zstd"
	LZ4  Compression = "lz4"
)

// Options configures Save.
type Options struct {
	Compression Compression
}

func (o Options) writerOptions(schema *arrow.Schema) ([]ipc.Option, error) {
	opts := []ipc.Option{
		ipc.WithSchema(schema),
		ipc.WithAllocator(memory.NewGoAllocator()),
	}
	switch o.Compression {
	case "", None:
	case Zstd:
		opts = append(opts, ipc.WithZstd())
	case LZ4:
		opts = append(opts, ipc.WithLZ4())
	default:
		return nil, fmt.Errorf("unknown compression %q", o.Compression)
	}
	return opts, nil
}

// Save writes t to path as a single-record Arrow IPC file. The file is
// written next to path and renamed into place, so readers never observe a
// partial snapshot.
func Save(path string, t *db.Table, o Options) error {
	opts, err := o.writerOptions(t.Schema())
	if err != nil {
		return err
	}

	// 1. Open a temporary file beside the target
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file for %q: %w", path, err)
	}
	tmp := file.Name()
	defer func() {
		_ = file.Close()
		_ = os.Remove(tmp)
	}()

	// 2. Create an Arrow IPC FileWriter with the table's schema and write it out
	writer, err := ipc.NewFileWriter(file, opts...)
	if err != nil {
		return fmt.Errorf("failed to create Arrow file writer: %w", err)
	}
	if err := writer.Write(t.Record()); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write record to Arrow file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish Arrow file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %q: %w", tmp, err)
	}

	// 3. Move the finished snapshot into place
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move snapshot to %q: %w", path, err)
	}
	return nil
}

// Load reads an Arrow IPC file into a table, concatenating its record
// batches. Failures match db.ErrDataUnavailable.
func Load(path string) (*db.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open file %q: %v", db.ErrDataUnavailable, path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	mem := memory.NewGoAllocator()
	reader, err := ipc.NewFileReader(file, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Arrow file reader for %q: %v", db.ErrDataUnavailable, path, err)
	}
	defer func() {
		_ = reader.Close()
	}()

	n := reader.NumRecords()
	records := make([]arrow.Record, 0, n)
	defer func() {
		for _, rec := range records {
			rec.Release()
		}
	}()
	for i := 0; i < n; i++ {
		rec, err := reader.RecordAt(i)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read record %d from %q: %v", db.ErrDataUnavailable, i, path, err)
		}
		records = append(records, rec)
	}

	t, err := db.FromRecords(records, mem)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", db.ErrDataUnavailable, path, err)
	}
	return t, nil
}
