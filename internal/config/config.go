// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Store spec values.
const (
	StoreMemory       = "memory"
	StoreSQLitePrefix = "sqlite:"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Precision is the default IRR precision when a request omits one.
	Precision float64 `koanf:"precision"`

	// MaxFlowEntries caps the number of dated amounts in one cash flow.
	MaxFlowEntries int `koanf:"max_flow_entries"`

	// MaxBatchSize caps the number of cash flows in POST /irr/batch.
	MaxBatchSize int `koanf:"max_batch_size"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of job workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the job ID deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// Store selects the job store: "memory" or "sqlite:<path>".
	Store string `koanf:"store"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		Precision:      0.001,
		MaxFlowEntries: 10_000,
		MaxBatchSize:   100,
		QueueSize:      10_000,
		WorkerCount:    runtime.NumCPU(),
		DedupeSize:     100_000,
		Store:          StoreMemory,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !(c.Precision > 0):
		return fmt.Errorf("%w: precision must be positive, got %g", ErrInvalidConfig, c.Precision)
	case c.MaxFlowEntries < 2:
		return fmt.Errorf("%w: max_flow_entries must be at least 2, got %d", ErrInvalidConfig, c.MaxFlowEntries)
	case c.MaxBatchSize < 1:
		return fmt.Errorf("%w: max_batch_size must be positive, got %d", ErrInvalidConfig, c.MaxBatchSize)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.DedupeSize < 1:
		return fmt.Errorf("%w: dedupe_size must be positive, got %d", ErrInvalidConfig, c.DedupeSize)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.Store != StoreMemory {
		path, ok := strings.CutPrefix(c.Store, StoreSQLitePrefix)
		if !ok || strings.TrimSpace(path) == "" {
			return fmt.Errorf("%w: store must be %q or %q<path>, got %q", ErrInvalidConfig, StoreMemory, StoreSQLitePrefix, c.Store)
		}
	}
	return nil
}
