package loadgen

import (
	"errors"
	"fmt"
	"time"
)

// Submission modes.
const (
	ModeSync = "sync" // POST /irr and read the result inline
	ModeJobs = "jobs" // POST /jobs, then poll GET /jobs/{id}
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service
	NumFlows     int           // Number of cash flows to generate
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	Precision    float64       // Precision sent with every request and used to verify
	Mode         string        // ModeSync or ModeJobs
	PollInterval time.Duration // Job polling interval in ModeJobs
	Seed         uint64        // Generator seed; runs with the same seed send the same flows
	OutputFile   string        // Optional JSON dump of generated flows
	Verbose      bool          // Log every mismatch
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base URL is required"))
	}
	if c.NumFlows < 1 {
		errs = append(errs, fmt.Errorf("flows must be positive, got %d", c.NumFlows))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if !(c.Precision > 0) {
		errs = append(errs, fmt.Errorf("precision must be positive, got %g", c.Precision))
	}
	if c.Mode != ModeSync && c.Mode != ModeJobs {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeSync, ModeJobs, c.Mode))
	}
	if c.Mode == ModeJobs && c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	return errors.Join(errs...)
}

// Flow is a generated cash flow with the rate it was built from.
type Flow struct {
	ID       string             `json:"id"`
	Rate     float64            `json:"rate"`
	Cashflow map[string]float64 `json:"cashflow"`
}

// Outcome classifies one submitted flow.
type Outcome string

// Outcomes.
const (
	OutcomeMatched    Outcome = "matched"
	OutcomeMismatched Outcome = "mismatched"
	OutcomeNoSolution Outcome = "no_solution"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
)

// Stats holds run statistics.
type Stats struct {
	FlowsGenerated int
	Submitted      int
	Matched        int
	Mismatched     int
	NoSolution     int
	Rejected       int
	Failed         int
	MaxError       float64
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

func (s *Stats) add(o Outcome) {
	s.Submitted++
	switch o {
	case OutcomeMatched:
		s.Matched++
	case OutcomeMismatched:
		s.Mismatched++
	case OutcomeNoSolution:
		s.NoSolution++
	case OutcomeRejected:
		s.Rejected++
	default:
		s.Failed++
	}
}
