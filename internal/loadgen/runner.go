package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/irr/internal/domain/model"
	"github.com/okian/irr/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

const percentageMultiplier = 100

// ErrVerificationFailed is returned when any flow came back with a wrong or
// missing IRR.
var ErrVerificationFailed = errors.New("verification failed")

// Run generates cfg.NumFlows flows, submits them with cfg.Workers concurrent
// workers and checks every returned IRR against the generating rate.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logger.Named("loadgen")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting irr load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("mode", cfg.Mode),
		logger.Int("flows", cfg.NumFlows),
		logger.Int("workers", cfg.Workers),
		logger.Float64("precision", cfg.Precision),
		logger.Duration("timeout", cfg.Timeout))

	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	flows := NewGenerator(cfg.Seed).Generate(cfg.NumFlows)
	stats.FlowsGenerated = len(flows)
	log.Info(ctx, "generated flows", logger.Int("count", len(flows)))

	if cfg.OutputFile != "" {
		if err := saveFlows(cfg.OutputFile, flows); err != nil {
			log.Warn(ctx, "failed to save flows to file", logger.Error(err))
		}
	}

	submitFlows(ctx, cfg, client, flows, stats, log)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logFinalStats(ctx, log, stats)

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("run interrupted: %w", err)
	}
	if bad := stats.Mismatched + stats.NoSolution + stats.Failed; bad > 0 {
		return stats, fmt.Errorf("%w: %d of %d flows", ErrVerificationFailed, bad, stats.Submitted)
	}
	return stats, nil
}

func submitFlows(ctx context.Context, cfg *Config, client *HTTPClient, flows []Flow, stats *Stats, log logger.Logger) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	flowChan := make(chan Flow, cfg.Workers*2)

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range flowChan {
				if ctx.Err() != nil {
					return
				}
				outcome, got := submitOne(ctx, cfg, client, f)
				diff := math.Abs(got - f.Rate)
				if outcome == OutcomeMismatched && cfg.Verbose {
					log.Warn(ctx, "irr mismatch",
						logger.String("id", f.ID),
						logger.Float64("expected", f.Rate),
						logger.Float64("got", got))
				}

				mu.Lock()
				stats.add(outcome)
				if outcome == OutcomeMatched || outcome == OutcomeMismatched {
					stats.MaxError = math.Max(stats.MaxError, diff)
				}
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(flowChan)
		for _, f := range flows {
			select {
			case <-ctx.Done():
				return
			case flowChan <- f:
			}
		}
	}()

	wg.Wait()
}

// submitOne returns the outcome of one flow and the IRR the service reported.
func submitOne(ctx context.Context, cfg *Config, client *HTTPClient, f Flow) (Outcome, float64) {
	if cfg.Mode == ModeJobs {
		return submitJob(ctx, cfg, client, f)
	}

	res, apiErr, status, err := client.Compute(ctx, f, cfg.Precision)
	switch {
	case err != nil:
		return OutcomeFailed, 0
	case res != nil:
		return Verify(f, res.IRR, cfg.Precision), res.IRR
	case apiErr != nil && apiErr.Code == "no_solution":
		return OutcomeNoSolution, 0
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return OutcomeRejected, 0
	default:
		return OutcomeFailed, 0
	}
}

func submitJob(ctx context.Context, cfg *Config, client *HTTPClient, f Flow) (Outcome, float64) {
	_, status, err := client.SubmitJob(ctx, f, cfg.Precision)
	switch {
	case err != nil:
		return OutcomeFailed, 0
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return OutcomeRejected, 0
	case status != http.StatusAccepted && status != http.StatusOK:
		return OutcomeFailed, 0
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		job, status, err := client.GetJob(ctx, f.ID)
		if err != nil || status != http.StatusOK {
			return OutcomeFailed, 0
		}
		switch model.Status(job.Status) {
		case model.StatusPending:
		case model.StatusDone:
			if job.IRR == nil {
				return OutcomeFailed, 0
			}
			return Verify(f, *job.IRR, cfg.Precision), *job.IRR
		case model.StatusNoSolution:
			return OutcomeNoSolution, 0
		default:
			return OutcomeFailed, 0
		}

		select {
		case <-ctx.Done():
			return OutcomeFailed, 0
		case <-ticker.C:
		}
	}
}

// Verify reports whether got is within precision of the rate f was built from.
func Verify(f Flow, got, precision float64) Outcome {
	if math.Abs(got-f.Rate) <= precision {
		return OutcomeMatched
	}
	return OutcomeMismatched
}

// saveFlows writes the generated flows as a JSON array.
func saveFlows(filename string, flows []Flow) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(flows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flows: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func logFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var matchRate, flowsPerSecond float64
	if stats.Submitted > 0 {
		matchRate = float64(stats.Matched) / float64(stats.Submitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		flowsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("flowsGenerated", stats.FlowsGenerated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("matched", stats.Matched),
		logger.Int("mismatched", stats.Mismatched),
		logger.Int("noSolution", stats.NoSolution),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Float64("maxError", stats.MaxError),
		logger.Duration("duration", stats.Duration),
		logger.Float64("matchRate", matchRate),
		logger.Float64("flowsPerSecond", flowsPerSecond))
}
