package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bikedash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), *cfg)
				assert.Equal(t, "day.csv", cfg.Data.Path)
				assert.Empty(t, cfg.Flight.Addr)
			},
		},
		{
			name: "file over defaults",
			file: `
data:
  path: /srv/data/day.arrow
  breaker_timeout: 1m
server:
  addr: 127.0.0.1:9000
flight:
  addr: localhost:8815
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/srv/data/day.arrow", cfg.Data.Path)
				assert.Equal(t, time.Minute, cfg.Data.BreakerTimeout)
				assert.Equal(t, uint32(3), cfg.Data.MaxFailures, "unset keys keep defaults")
				assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
				assert.Equal(t, "localhost:8815", cfg.Flight.Addr)
			},
		},
		{
			name: "env over file",
			file: "data:\n  path: from-file.csv\n",
			env: map[string]string{
				"BIKEDASH_DATA_PATH":           "from-env.csv",
				"BIKEDASH_DATA_MAX_FAILURES":   "7",
				"BIKEDASH_DATA_WATCH_INTERVAL": "30s",
				"BIKEDASH_LOGGING_LEVEL":       "debug",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "from-env.csv", cfg.Data.Path)
				assert.Equal(t, uint32(7), cfg.Data.MaxFailures)
				assert.Equal(t, 30*time.Second, cfg.Data.WatchInterval)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name:    "invalid compression",
			env:     map[string]string{"BIKEDASH_DATA_COMPRESSION": "brotli"},
			wantErr: true,
		},
		{
			name:    "invalid address",
			file:    "server:\n  addr: not-an-address\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			file:    "data: [",
			wantErr: true,
		},
		{
			name:    "chart too small",
			file:    "charts:\n  width: 10\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var file string
			if tt.file != "" {
				file = writeConfig(t, tt.file)
			}

			cfg, err := Load(file)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Logging.Level = "loud"
	_, err = cfg.Logger()
	assert.Error(t, err)
}
