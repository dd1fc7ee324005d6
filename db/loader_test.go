package db_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TFMV/bikedash/db"
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
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newLoader() *db.Loader {
	return db.NewLoader(zap.NewNop(), db.DefaultLoaderSettings())
}

func TestLoaderLoadCSV(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "day.csv", dayCSV)
	table, err := newLoader().Load(context.Background(), path)
	require.NoError(t, err)
	defer table.Release()

	assert.Equal(t, 5, table.NumRows())
	assert.Equal(t, 16, table.Schema().NumFields(), "extra columns are kept")

	weekday, err := table.Int64s(db.ColWeekday)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 0, 1, 2, 3}, weekday)

	temp, err := table.Float64s(db.ColTemp)
	require.NoError(t, err)
	assert.InDelta(t, 0.344167, temp[0], 1e-12)
	assert.InDelta(t, 0.2, temp[3], 1e-12)

	cnt, err := table.Int64s(db.ColCount)
	require.NoError(t, err)
	assert.Equal(t, []int64{985, 801, 1349, 1562, 1600}, cnt)
}

func TestLoaderSkipsBOM(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "day.csv", "\xEF\xBB\xBF"+dayCSV)
	table, err := newLoader().Load(context.Background(), path)
	require.NoError(t, err)
	defer table.Release()

	assert.True(t, table.Has("instant"))
}

func TestLoaderExtraColumnsTolerated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		column  string
		content string
		want    []string
	}{
		{
			name:   "mixed integer and decimal",
			column: "casual",
			content: "holiday,weekday,workingday,temp,atemp,hum,windspeed,cnt,casual\n" +
				"0,6,0,0.3,0.3,0.8,0.1,985,331\n" +
				"0,0,0,0.3,0.3,0.6,0.2,801,12.5\n",
			want: []string{"331", "12.5"},
		},
		{
			name:   "empty cell",
			column: "note",
			content: "holiday,weekday,workingday,temp,atemp,hum,windspeed,cnt,note\n" +
				"0,6,0,0.3,0.3,0.8,0.1,985,storm\n" +
				"0,0,0,0.3,0.3,0.6,0.2,801,\n",
			want: []string{"storm", ""},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "day.csv", tt.content)
			table, err := newLoader().Load(context.Background(), path)
			require.NoError(t, err)
			defer table.Release()

			cnt, err := table.Int64s(db.ColCount)
			require.NoError(t, err)
			assert.Equal(t, []int64{985, 801}, cnt)

			col, err := table.Column(tt.column)
			require.NoError(t, err)
			for i, want := range tt.want {
				assert.Equal(t, want, col.ValueStr(i))
			}
		})
	}
}

func TestLoaderDataUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "column count mismatch",
			content: "holiday,weekday,workingday,temp,atemp,hum,windspeed,cnt\n" +
				"0,6,0,0.3,0.3,0.8,0.1,985\n" +
				"0,0,0,0.3,0.3,0.6\n",
		},
		{
			name: "missing required column",
			content: "holiday,weekday,workingday,temp,atemp,hum,cnt\n" +
				"0,6,0,0.3,0.3,0.8,985\n",
		},
		{
			name: "unparsable value",
			content: "holiday,weekday,workingday,temp,atemp,hum,windspeed,cnt\n" +
				"0,six,0,0.3,0.3,0.8,0.1,985\n",
		},
		{
			name: "empty required value",
			content: "holiday,weekday,workingday,temp,atemp,hum,windspeed,cnt\n" +
				"0,6,0,0.3,0.3,0.8,0.1,985\n" +
				"0,0,0,,0.3,0.6,0.2,801\n",
		},
		{
			name:    "header only",
			content: "holiday,weekday,workingday,temp,atemp,hum,windspeed,cnt\n",
		},
		{
			name:    "empty file",
			content: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "day.csv", tt.content)
			_, err := newLoader().Load(context.Background(), path)
			assert.ErrorIs(t, err, db.ErrDataUnavailable)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := newLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
		assert.ErrorIs(t, err, db.ErrDataUnavailable)
	})
}

func TestLoaderCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newLoader().Load(ctx, "day.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoaderCircuitBreaker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "day.csv")
	loader := db.NewLoader(zap.NewNop(), db.LoaderSettings{MaxFailures: 2, Timeout: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := loader.Load(context.Background(), path)
		require.ErrorIs(t, err, db.ErrDataUnavailable)
	}

	// The file now exists, but the breaker is open and fails fast.
	require.NoError(t, os.WriteFile(path, []byte(dayCSV), 0o644))
	_, err := loader.Load(context.Background(), path)
	assert.ErrorIs(t, err, db.ErrDataUnavailable)
	assert.Contains(t, err.Error(), "open")
}

func TestLoaderRegister(t *testing.T) {
	t.Parallel()

	loader := newLoader()
	called := false
	loader.Register(".fake", func(path string) (*db.Table, error) {
		called = true
		return createTestTable(), nil
	})

	table, err := loader.Load(context.Background(), "dataset.FAKE")
	require.NoError(t, err)
	defer table.Release()
	assert.True(t, called)
	assert.Equal(t, 3, table.NumRows())
}
