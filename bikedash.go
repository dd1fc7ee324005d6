// Package bikedash wires the rentals pipeline together: load, derive the
// weekend flag, then aggregate and present one view at a time.
package bikedash

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/TFMV/bikedash/db"
	"github.com/TFMV/bikedash/derive"
	"github.com/TFMV/bikedash/present"
	"github.com/TFMV/bikedash/storage"
	"go.uber.org/zap"
)

// Session owns the dataset location and the cached derived table.
type Session struct {
	path   string
	loader *db.Loader
	cache  *db.Cache
	logger *zap.Logger
}

// NewSession creates a session over the dataset at path. CSV files and
// Arrow IPC snapshots (.arrow, .ipc) are both accepted.
func NewSession(path string, settings db.LoaderSettings, logger *zap.Logger) *Session {
	loader := db.NewLoader(logger, settings)
	loader.Register(".arrow", storage.Load)
	loader.Register(".ipc", storage.Load)
	return &Session{
		path:   path,
		loader: loader,
		cache:  db.NewCache(),
		logger: logger.With(zap.String("component", "session")),
	}
}

// Path returns the dataset location.
func (s *Session) Path() string { return s.path }

// Table returns the derived table, loading it on first use. The returned
// table is shared and must not be released by the caller.
func (s *Session) Table(ctx context.Context) (*db.Table, error) {
	return s.cache.Get(s.path, func() (*db.Table, error) {
		raw, err := s.loader.Load(ctx, s.path)
		if err != nil {
			return nil, err
		}
		defer raw.Release()

		if n, err := derive.OutOfRange(raw); err == nil && n > 0 {
			s.logger.Warn("weekday values outside 0-6 treated as weekdays",
				zap.String("path", s.path), zap.Int("rows", n))
		}
		return derive.AddWeekendFlag(raw)
	})
}

// Page builds the charts of view v.
func (s *Session) Page(ctx context.Context, v present.View) (*present.Page, error) {
	t, err := s.Table(ctx)
	if err != nil {
		return nil, err
	}
	return present.Build(v, t)
}

// Preview returns the leading rows of the derived table.
func (s *Session) Preview(ctx context.Context) (db.Preview, error) {
	t, err := s.Table(ctx)
	if err != nil {
		return db.Preview{}, err
	}
	return present.Preview(t), nil
}

// Export writes the derived table to path as an Arrow IPC snapshot.
func (s *Session) Export(ctx context.Context, path string, opts storage.Options) error {
	t, err := s.Table(ctx)
	if err != nil {
		return err
	}
	if err := storage.Save(path, t, opts); err != nil {
		return err
	}
	s.logger.Info("exported snapshot",
		zap.String("path", path),
		zap.String("compression", string(opts.Compression)),
		zap.Int("rows", t.NumRows()))
	return nil
}

// Reload drops the cached table; the next access reads the dataset again.
func (s *Session) Reload() {
	s.cache.Invalidate()
}

// Watch polls the dataset's modification time every interval and reloads
// the table when it changes. It returns when ctx is done.
func (s *Session) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %v", interval)
	}

	last := s.modTime()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watch: context cancelled")
			return nil
		case <-ticker.C:
			mt := s.modTime()
			if mt.Equal(last) {
				continue
			}
			last = mt
			s.logger.Info("dataset changed, reloading", zap.String("path", s.path), zap.Time("modified", mt))
			s.Reload()
			if _, err := s.Table(ctx); err != nil {
				s.logger.Error("failed to reload dataset", zap.Error(err))
			}
		}
	}
}

func (s *Session) modTime() time.Time {
	fi, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}
