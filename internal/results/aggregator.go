// internal/results/aggregator.go
// Concurrent-safe accumulator of probe outcomes

package results

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aspnmy/porttester/internal/models"
)

var (
	// ErrDrained is returned when the state is used after Drain consumed it
	ErrDrained = errors.New("run state already drained")
	// ErrOverflow is returned when more outcomes arrive than probes were issued
	ErrOverflow = errors.New("more outcomes than probes")
)

// Snapshot is a consistent view of the state right after one Record
type Snapshot struct {
	Done  int
	Total int
	Open  []int // copy of the accumulator, nil unless Options.Snapshots
}

// Options configure an Aggregator
type Options struct {
	// Notify is called after every Record, outside the lock. Calls from
	// different probes may overlap or arrive out of order.
	Notify func(Snapshot)
	// Snapshots copies the open-port accumulator into every Snapshot
	Snapshots bool
}

// Aggregator is the single shared run state. Every Record updates the
// completed counter and the open list together under one lock.
type Aggregator struct {
	mu        sync.Mutex
	total     int
	completed int
	open      []int
	drained   bool
	opts      Options
}

// NewAggregator creates an aggregator expecting total outcomes
func NewAggregator(total int, opts Options) *Aggregator {
	return &Aggregator{
		total: total,
		open:  make([]int, 0, 64),
		opts:  opts,
	}
}

// Record accounts for one outcome. Errors are fatal to the run.
func (a *Aggregator) Record(o models.ProbeOutcome) (Snapshot, error) {
	snap, err := a.record(o)
	if err != nil {
		return Snapshot{}, err
	}
	if a.opts.Notify != nil {
		a.opts.Notify(snap)
	}
	return snap, nil
}

func (a *Aggregator) record(o models.ProbeOutcome) (Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.drained {
		return Snapshot{}, fmt.Errorf("%w: outcome for port %d", ErrDrained, o.Port)
	}
	if a.completed >= a.total {
		return Snapshot{}, fmt.Errorf("%w: outcome for port %d after %d/%d", ErrOverflow, o.Port, a.completed, a.total)
	}

	a.completed++
	if o.Succeeded {
		a.open = append(a.open, o.Port)
	}

	snap := Snapshot{Done: a.completed, Total: a.total}
	if a.opts.Snapshots {
		snap.Open = slices.Clone(a.open)
	}
	return snap, nil
}

// Completed returns the current completed count
func (a *Aggregator) Completed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.completed
}

// Drain hands over the raw open ports (completion order, unfiltered) and the
// completed count. The state can be drained only once.
func (a *Aggregator) Drain() ([]int, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.drained {
		return nil, 0, ErrDrained
	}
	a.drained = true

	open := a.open
	a.open = nil
	return open, a.completed, nil
}
