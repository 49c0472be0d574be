package repository

import (
	"context"
	"time"

	"github.com/okian/irr/pkg/metrics"
)

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	metricsUpdateInterval time.Duration
	shards                int
}

func defaultOptions() options {
	return options{
		metricsUpdateInterval: 5 * time.Second,
		shards:                16,
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.metricsUpdateInterval = interval
		}
	}
}

// WithShards sets the number of lock shards of the in-memory store.
func WithShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}

// publishCount reports count() as the backend's record gauge every interval
// until ctx is done or stop is closed.
func publishCount(ctx context.Context, stop <-chan struct{}, interval time.Duration, backend string, count func() int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	metrics.UpdateStoreRecords(backend, count())
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			metrics.UpdateStoreRecords(backend, count())
		}
	}
}
