// Command loadgen drives a running IRR service with flows of known IRR and
// verifies every answer.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/irr/internal/loadgen"
	"github.com/okian/irr/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumFlows     = 10000
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultPrecision    = 0.001
	defaultPollInterval = 50 * time.Millisecond
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numFlows     = flag.Int("flows", defaultNumFlows, "Number of cash flows to generate and submit")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		precision    = flag.Float64("precision", defaultPrecision, "Precision requested and verified")
		mode         = flag.String("mode", loadgen.ModeSync, "Submission mode: sync (POST /irr) or jobs (POST /jobs and poll)")
		pollInterval = flag.Duration("poll", defaultPollInterval, "Job polling interval in jobs mode")
		seed         = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Generator seed")
		outputFile   = flag.String("output", "", "Write generated flows to this JSON file")
		logFormat    = flag.String("log-format", "text", "Log format (text|json)")
		verbose      = flag.Bool("verbose", false, "Log every mismatch")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &loadgen.Config{
		BaseURL:      *baseURL,
		NumFlows:     *numFlows,
		Workers:      *workers,
		Timeout:      *timeout,
		Precision:    *precision,
		Mode:         *mode,
		PollInterval: *pollInterval,
		Seed:         *seed,
		OutputFile:   *outputFile,
		Verbose:      *verbose,
	}

	if _, err := loadgen.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}
