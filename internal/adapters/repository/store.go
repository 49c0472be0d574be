// Package repository stores asynchronous IRR jobs.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/irr/internal/domain/model"
)

// Backend names used for metrics labels and store specs.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Store provides read/write access to submitted jobs.
type Store interface {
	// Put inserts or replaces the job with the same ID.
	Put(ctx context.Context, job model.Job) error

	// Get returns the job with the given ID.
	// Returns ErrNotFound if the job is unknown.
	Get(ctx context.Context, id string) (model.Job, error)

	// Delete removes a job. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored jobs.
	Count(ctx context.Context) int

	// Close releases resources held by the store.
	Close() error
}

// Open builds a store from a spec string: "memory" or "sqlite:<path>".
func Open(ctx context.Context, spec string, opts ...Option) (Store, error) {
	switch {
	case spec == "" || spec == BackendMemory:
		return NewMemoryStore(ctx, opts...), nil
	case strings.HasPrefix(spec, BackendSQLite+":"):
		path := strings.TrimPrefix(spec, BackendSQLite+":")
		if path == "" {
			return nil, fmt.Errorf("%w: empty sqlite path", ErrInvalidSpec)
		}
		return NewSQLiteStore(ctx, path, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSpec, spec)
	}
}
