// internal/prober/interface.go
// Prober interface and protocol registry

package prober

import (
	"context"
	"sort"
	"time"

	"github.com/aspnmy/porttester/internal/models"
)

// Prober sends one reachability request to a target.
// Implementations must be safe for concurrent use.
type Prober interface {
	// Name returns the prober name (http, tcp)
	Name() string

	// Probe returns nil when the request lifecycle completed. Any error,
	// including a deadline, means the port is treated as closed.
	Probe(ctx context.Context, target models.ProbeTarget) error

	// Close releases pooled connections
	Close() error
}

// Options configure a prober at construction time
type Options struct {
	Timeout time.Duration // per-probe timeout, 0 = none
}

// Factory creates a prober
type Factory func(opts Options) (Prober, error)

// Registry maps protocol names to prober factories
var Registry = make(map[string]Factory)

// Register registers a factory under one or more protocol names
func Register(factory Factory, protocols ...string) {
	for _, p := range protocols {
		Registry[p] = factory
	}
}

// Get creates the prober for protocol
func Get(protocol string, opts Options) (Prober, error) {
	factory, ok := Registry[protocol]
	if !ok {
		return nil, &ProberError{Message: "unsupported protocol " + protocol, Cause: ErrUnknownProtocol}
	}
	return factory(opts)
}

// Protocols lists registered protocol names, sorted
func Protocols() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownProtocol is returned when no prober is registered for a protocol
var ErrUnknownProtocol = &ProberError{Message: "unknown protocol"}

// ProberError represents a prober-specific error
type ProberError struct {
	Message string
	Cause   error
}

func (e *ProberError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ProberError) Unwrap() error {
	return e.Cause
}
