// internal/app/tester.go
// Application orchestrator for the port tester

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aspnmy/porttester/internal/core"
	"github.com/aspnmy/porttester/internal/models"
	"github.com/aspnmy/porttester/internal/output"
	"github.com/aspnmy/porttester/internal/probeset"
	"github.com/aspnmy/porttester/internal/prober"
	"github.com/aspnmy/porttester/internal/results"
	"github.com/aspnmy/porttester/internal/scanner"
	"github.com/aspnmy/porttester/pkg/logger"
)

// ErrIncomplete is returned when the run ended with fewer outcomes than probes
var ErrIncomplete = errors.New("probe run incomplete")

// Tester runs one port test: build probes, dispatch, aggregate, finalize, present
type Tester struct {
	config    *core.Config
	prober    prober.Prober
	reporter  output.ProgressReporter
	presenter *output.Presenter
	outcomes  *output.OutcomeWriter
	log       *zap.Logger

	// Lifecycle management
	mu      sync.Mutex
	cancel  context.CancelFunc
	running chan struct{}
}

// TesterDeps holds dependencies for the tester. Reporter, Presenter and
// Outcomes are optional.
type TesterDeps struct {
	Config    *core.Config
	Prober    prober.Prober
	Reporter  output.ProgressReporter
	Presenter *output.Presenter
	Outcomes  *output.OutcomeWriter
}

// NewTester creates a new tester
func NewTester(deps TesterDeps) *Tester {
	return &Tester{
		config:    deps.Config,
		prober:    deps.Prober,
		reporter:  deps.Reporter,
		presenter: deps.Presenter,
		outcomes:  deps.Outcomes,
		log:       logger.Named("tester"),
	}
}

// Run probes every port of the configured range and returns the final list.
// An interrupted or failed run returns an error and no result.
func (t *Tester) Run(ctx context.Context) (*models.FinalResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	running := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.running = running
	t.mu.Unlock()

	defer func() {
		cancel()
		close(running)
	}()

	cfg := t.config
	r := cfg.PortRange()
	ep := cfg.Endpoint()
	runID := uuid.NewString()

	targets := probeset.Build(r, ep)
	total := len(targets)
	start := time.Now()

	t.log.Info("Starting port test",
		zap.String("run_id", runID),
		zap.String("protocol", ep.Protocol),
		zap.String("host", ep.Host),
		zap.String("range", r.String()),
		zap.Int("concurrent", cfg.Probe.Concurrent),
		zap.Duration("timeout", cfg.Probe.Timeout),
	)

	agg := results.NewAggregator(total, results.Options{
		Snapshots: cfg.Output.Debug,
		Notify: func(s results.Snapshot) {
			if t.reporter == nil {
				return
			}
			t.reporter.Update(models.Progress{
				RunID:   runID,
				Done:    s.Done,
				Total:   s.Total,
				Open:    s.Open,
				Elapsed: time.Since(start),
			})
		},
	})

	if t.reporter != nil {
		t.reporter.Update(models.Progress{RunID: runID, Total: total})
	}

	dispatcher, err := scanner.NewDispatcher(t.prober, scanner.Config{
		Concurrency: cfg.Probe.Concurrent,
		Timeout:     cfg.Probe.Timeout,
	})
	if err != nil {
		return nil, err
	}

	err = dispatcher.Dispatch(ctx, targets, func(o models.ProbeOutcome) error {
		if t.outcomes != nil {
			if err := t.outcomes.Write(o); err != nil {
				return fmt.Errorf("export outcome for port %d: %w", o.Port, err)
			}
		}
		_, err := agg.Record(o)
		return err
	})
	if err != nil {
		t.log.Error("Port test aborted",
			zap.String("run_id", runID),
			zap.Int("completed", agg.Completed()),
			zap.Int("total", total),
			zap.Error(err),
		)
		return nil, err
	}

	open, completed, err := agg.Drain()
	if err != nil {
		return nil, err
	}
	if completed != total {
		return nil, fmt.Errorf("%w: %d of %d probes completed", ErrIncomplete, completed, total)
	}

	ports := results.Finalize(open, r, cfg.Output.ListBlocked)
	elapsed := time.Since(start)

	if t.reporter != nil {
		t.reporter.Finish(models.Progress{RunID: runID, Done: completed, Total: total, Elapsed: elapsed})
	}
	if t.outcomes != nil {
		if err := t.outcomes.Flush(); err != nil {
			t.log.Error("Failed to flush outcomes", zap.Error(err))
		}
	}

	res := &models.FinalResult{
		RunID:    runID,
		Endpoint: ep,
		Range:    r,
		Blocked:  cfg.Output.ListBlocked,
		Ports:    ports,
		Probed:   completed,
		Elapsed:  elapsed,
	}

	stats := dispatcher.Stats()
	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.Int("probed", completed),
		zap.Int64("succeeded", stats.Succeeded),
		zap.Int64("peak_in_flight", stats.PeakInFlight),
		zap.Int("listed", len(ports)),
		zap.String("state", res.State()),
		zap.Duration("elapsed", elapsed),
	}
	if t.outcomes != nil {
		fields = append(fields, zap.Int("outcomes_written", t.outcomes.Written()))
	}
	t.log.Info("Port test complete", fields...)

	if t.presenter != nil {
		if err := t.presenter.Present(res); err != nil {
			return res, fmt.Errorf("failed to present result: %w", err)
		}
	}
	return res, nil
}

// Shutdown cancels a running test and waits for it to unwind
func (t *Tester) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	cancel, running := t.cancel, t.running
	t.mu.Unlock()

	if cancel != nil {
		t.log.Info("Shutting down port test...")
		cancel()
	}

	if running != nil {
		select {
		case <-running:
			t.log.Info("Graceful shutdown complete")
		case <-ctx.Done():
			t.log.Warn("Shutdown timeout exceeded")
			return ctx.Err()
		}
	}
	return nil
}

// Close releases the prober and the outcome export
func (t *Tester) Close() error {
	var errs []error
	if t.prober != nil {
		if err := t.prober.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close prober: %w", err))
		}
	}
	if t.outcomes != nil {
		if err := t.outcomes.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close outcomes: %w", err))
		}
	}
	return errors.Join(errs...)
}
