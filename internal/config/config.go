package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pcaplot/internal/engine/aggregate"
)

// PlotConfig holds options for the gnuplot script output.
type PlotConfig struct {
	Title string `yaml:"title"`
}

// ClickHouseConfig holds connection settings for the ClickHouse sink.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ParquetConfig holds settings for the Parquet sink.
type ParquetConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	Compression string `yaml:"compression"`
}

// NATSConfig holds settings for the NATS summary publisher.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// SinkConfig groups the optional summary sinks.
type SinkConfig struct {
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Parquet    ParquetConfig    `yaml:"parquet"`
	NATS       NATSConfig       `yaml:"nats"`
}

// APIConfig holds settings for the HTTP analysis service.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Interval string     `yaml:"interval"`
	Plot     PlotConfig `yaml:"plot"`
	Sinks    SinkConfig `yaml:"sinks"`
	API      APIConfig  `yaml:"api"`
}

// Default returns the built-in configuration: one-second buckets, plot
// output only, API on :8080.
func Default() *Config {
	return &Config{
		Interval: "1s",
		Sinks: SinkConfig{
			NATS:    NATSConfig{URL: "nats://127.0.0.1:4222", Subject: "pcaplot.summaries"},
			Parquet: ParquetConfig{Path: "summaries.parquet", Compression: "zstd"},
		},
		API: APIConfig{ListenAddr: ":8080"},
	}
}

// Load reads the configuration from a YAML file on top of the defaults.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return cfg, nil
}

// ParseInterval validates and returns the aggregation interval. A zero or
// negative interval is a configuration error, rejected here before any
// file is opened.
func (c *Config) ParseInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", aggregate.ErrInvalidInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: got %v", aggregate.ErrInvalidInterval, d)
	}
	return d, nil
}
