// pkg/throttle/throttle.go
// Non-blocking event throttle over golang.org/x/time/rate

package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle decides whether a frequent event (a redraw, a log line) may fire
// now. It never blocks: callers skip the event when Allow returns false.
type Throttle struct {
	limiter *rate.Limiter

	stats   Stats
	statsMu sync.Mutex
}

// Stats counts allowed and suppressed events
type Stats struct {
	Allowed    int64
	Suppressed int64
}

// Config holds throttle configuration
type Config struct {
	Interval time.Duration // minimum spacing between events; <= 0 allows everything
}

// New creates a throttle
func New(cfg Config) *Throttle {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1)}
}

// Allow reports whether the event may fire now and consumes a token if so
func (t *Throttle) Allow() bool {
	ok := t.limiter.Allow()

	t.statsMu.Lock()
	if ok {
		t.stats.Allowed++
	} else {
		t.stats.Suppressed++
	}
	t.statsMu.Unlock()

	return ok
}

// GetStats returns current statistics
func (t *Throttle) GetStats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}
