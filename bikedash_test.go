package bikedash

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TFMV/bikedash/db"
	"github.com/TFMV/bikedash/present"
	"github.com/TFMV/bikedash/storage"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const dayCSV = `instant,dteday,season,yr,mnth,holiday,weekday,workingday,weathersit,temp,atemp,hum,windspeed,casual,registered,cnt
1,2011-01-01,1,0,1,0,6,0,2,0.344167,0.363625,0.805833,0.160446,331,654,985
2,2011-01-02,1,0,1,0,0,0,2,0.363478,0.353739,0.696087,0.248539,131,670,801
3,2011-01-03,1,0,1,0,1,1,1,0.196364,0.189405,0.437273,0.248309,120,1229,1349
4,2011-01-04,1,0,1,0,2,1,1,0.2,0.212122,0.590435,0.160296,108,1454,1562
5,2011-01-05,1,0,1,0,3,1,1,0.226957,0.22927,0.436957,0.1869,82,1518,1600
6,2011-01-06,1,0,1,0,4,1,1,0.204348,0.233209,0.518261,0.0895652,88,1518,1606
7,2011-01-17,1,0,1,1,1,0,2,0.175833,0.176771,0.5375,0.194017,117,883,1000
`

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "day.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newSession(path string) *Session {
	return NewSession(path, db.DefaultLoaderSettings(), zap.NewNop())
}

func TestSessionTable(t *testing.T) {
	s := newSession(writeDataset(t, dayCSV))
	ctx := context.Background()

	first, err := s.Table(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, first.NumRows())

	weekend, err := first.Int64s(db.ColWeekend)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 0, 0, 0, 0, 0}, weekend)

	// The loaded table is cached; removing the file does not affect it.
	require.NoError(t, os.Remove(s.Path()))
	second, err := s.Table(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	s.Reload()
	_, err = s.Table(ctx)
	assert.ErrorIs(t, err, db.ErrDataUnavailable)
}

func TestSessionPages(t *testing.T) {
	s := newSession(writeDataset(t, dayCSV))
	ctx := context.Background()

	for _, v := range present.Views() {
		page, err := s.Page(ctx, v)
		require.NoError(t, err, v.String())
		assert.Equal(t, v, page.View)
		assert.NotEmpty(t, page.Charts)
	}

	page, err := s.Page(ctx, present.HolidaysAndWeekends)
	require.NoError(t, err)
	weekend := page.Charts[1].Bars
	require.Len(t, weekend, 2)
	assert.InDelta(t, (1349.0+1562+1600+1606+1000)/5, weekend[0].Value, 1e-9)
	assert.InDelta(t, (985.0+801)/2, weekend[1].Value, 1e-9)

	preview, err := s.Preview(ctx)
	require.NoError(t, err)
	assert.Len(t, preview.Rows, present.PreviewRows)
}

func TestSessionMissingDataset(t *testing.T) {
	s := newSession(filepath.Join(t.TempDir(), "day.csv"))
	ctx := context.Background()

	for _, v := range present.Views() {
		_, err := s.Page(ctx, v)
		assert.ErrorIs(t, err, db.ErrDataUnavailable)
	}
	_, err := s.Preview(ctx)
	assert.ErrorIs(t, err, db.ErrDataUnavailable)
}

func TestSessionExport(t *testing.T) {
	s := newSession(writeDataset(t, dayCSV))
	ctx := context.Background()

	out := filepath.Join(t.TempDir(), "daily.arrow")
	require.NoError(t, s.Export(ctx, out, storage.Options{Compression: storage.Zstd}))

	orig, err := s.Table(ctx)
	require.NoError(t, err)

	snap := newSession(out)
	got, err := snap.Table(ctx)
	require.NoError(t, err)
	assert.True(t, array.RecordEqual(orig.Record(), got.Record()))
}

func TestSessionWatch(t *testing.T) {
	path := writeDataset(t, dayCSV)
	s := newSession(path)
	ctx, cancel := context.WithCancel(context.Background())

	before, err := s.Table(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, before.NumRows())

	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, 10*time.Millisecond) }()

	lines := dayCSV[:len(dayCSV)-1]
	shorter := lines[:len(lines)-len("7,2011-01-17,1,0,1,1,1,0,2,0.175833,0.176771,0.5375,0.194017,117,883,1000")]
	require.NoError(t, os.WriteFile(path, []byte(shorter), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		tbl, err := s.Table(ctx)
		return err == nil && tbl.NumRows() == 6
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Error(t, s.Watch(context.Background(), 0))
}
