// Package config assembles dashboard settings from defaults, an optional
// YAML file and BIKEDASH_* environment variables, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BIKEDASH"

// Config represents the complete application configuration
type Config struct {
	Data    DataConfig    `yaml:"data" envconfig:"DATA"`
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Flight  FlightConfig  `yaml:"flight" envconfig:"FLIGHT"`
	Charts  ChartConfig   `yaml:"charts" envconfig:"CHARTS"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// DataConfig locates the dataset and tunes how it is read.
type DataConfig struct {
	Path           string        `yaml:"path" validate:"required"`
	MaxFailures    uint32        `yaml:"max_failures" split_words:"true" validate:"gt=0"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout" split_words:"true" validate:"gt=0"`
	Compression    string        `yaml:"compression" validate:"oneof=none zstd lz4"`
	// WatchInterval is how often the dataset is checked for changes; zero disables it.
	WatchInterval time.Duration `yaml:"watch_interval" split_words:"true" validate:"gte=0"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" validate:"gt=0"`
}

// FlightConfig enables the Arrow Flight endpoint when Addr is set.
type FlightConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// ChartConfig sizes rendered chart images in pixels.
type ChartConfig struct {
	Width  int `yaml:"width" validate:"gte=200,lte=4096"`
	Height int `yaml:"height" validate:"gte=150,lte=4096"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Data: DataConfig{
			Path:           "day.csv",
			MaxFailures:    3,
			BreakerTimeout: 5 * time.Second,
			Compression:    "zstd",
		},
		Server: ServerConfig{
			Addr:            ":8501",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Charts:  ChartConfig{Width: 800, Height: 480},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration. A non-empty file must exist and is applied
// over the defaults; environment variables are applied last.
func Load(file string) (*Config, error) {
	cfg := Default()

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", file, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Logger builds a zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
