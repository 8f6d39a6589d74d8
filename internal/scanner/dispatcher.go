// internal/scanner/dispatcher.go
// Bounded concurrent probe dispatcher with sliding-window admission

package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/aspnmy/porttester/internal/models"
	"github.com/aspnmy/porttester/internal/prober"
	"github.com/aspnmy/porttester/pkg/logger"
)

// Config holds dispatcher configuration
type Config struct {
	Concurrency int           // max probes in flight, >= 1
	Timeout     time.Duration // per-probe deadline from admission, 0 = none
}

// OutcomeHandler receives every outcome from the goroutine that produced it,
// so it is called concurrently. A non-nil error aborts the run.
type OutcomeHandler func(outcome models.ProbeOutcome) error

// Stats are cumulative over the dispatcher's lifetime
type Stats struct {
	Dispatched   int64
	Completed    int64
	Succeeded    int64
	PeakInFlight int64
}

// Dispatcher runs probes with at most Concurrency in flight. As soon as one
// probe completes its slot goes to the next pending target.
type Dispatcher struct {
	prober      prober.Prober
	concurrency int
	timeout     time.Duration
	log         *zap.Logger

	inFlight   atomic.Int64
	peak       atomic.Int64
	dispatched atomic.Int64
	completed  atomic.Int64
	succeeded  atomic.Int64
}

// NewDispatcher creates a dispatcher around a shared prober
func NewDispatcher(p prober.Prober, cfg Config) (*Dispatcher, error) {
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("%w: concurrency %d (must be >= 1)", ErrInvalidConfig, cfg.Concurrency)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout %v", ErrInvalidConfig, cfg.Timeout)
	}

	return &Dispatcher{
		prober:      p,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
		log:         logger.Named("dispatcher"),
	}, nil
}

// Dispatch probes every target and hands each outcome to handle as it
// completes. It returns once all admitted probes have finished.
//
// Probe failures never surface here. Dispatch fails only when handle returns
// an error (admission stops and in-flight probes are cancelled) or when ctx
// ends first (ErrInterrupted).
func (d *Dispatcher) Dispatch(ctx context.Context, targets []models.ProbeTarget, handle OutcomeHandler) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(d.concurrency))

	var (
		wg        sync.WaitGroup
		fatal     error
		fatalOnce sync.Once
	)

	d.log.Debug("Dispatch started",
		logger.Int("targets", len(targets)),
		logger.Int("concurrency", d.concurrency),
		logger.Duration("timeout", d.timeout),
	)

	for _, target := range targets {
		target := target
		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}

		wg.Add(1)
		d.enter()

		go func() {
			defer wg.Done()
			defer sem.Release(1)

			outcome := d.probe(runCtx, target)
			d.leave(outcome)

			if runCtx.Err() != nil {
				return
			}
			if err := handle(outcome); err != nil {
				fatalOnce.Do(func() {
					fatal = err
					cancel()
				})
			}
		}()
	}

	wg.Wait()

	if fatal != nil {
		return &ScannerError{Message: "outcome handling failed", Cause: fatal}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

// probe runs a single probe under its own deadline
func (d *Dispatcher) probe(ctx context.Context, target models.ProbeTarget) models.ProbeOutcome {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := d.prober.Probe(ctx, target)

	outcome := models.ProbeOutcome{
		Port:      target.Port,
		Succeeded: err == nil,
		Latency:   time.Since(start),
	}
	if err != nil {
		outcome.Error = err.Error()
		d.log.Debug("Probe failed",
			logger.Int("port", target.Port),
			logger.Err(err),
		)
	}
	return outcome
}

func (d *Dispatcher) enter() {
	d.dispatched.Add(1)
	n := d.inFlight.Add(1)
	for {
		peak := d.peak.Load()
		if n <= peak || d.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (d *Dispatcher) leave(outcome models.ProbeOutcome) {
	d.inFlight.Add(-1)
	d.completed.Add(1)
	if outcome.Succeeded {
		d.succeeded.Add(1)
	}
}

// Stats returns cumulative statistics
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched:   d.dispatched.Load(),
		Completed:    d.completed.Load(),
		Succeeded:    d.succeeded.Load(),
		PeakInFlight: d.peak.Load(),
	}
}
