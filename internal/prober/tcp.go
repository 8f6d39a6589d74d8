// internal/prober/tcp.go
// Plain TCP connect prober

package prober

import (
	"context"
	"net"

	"github.com/aspnmy/porttester/internal/models"
)

// TCPProber treats a completed TCP handshake as open
type TCPProber struct {
	dialer *net.Dialer
}

// NewTCPProber creates a TCP connect prober
func NewTCPProber(opts Options) *TCPProber {
	return &TCPProber{
		dialer: &net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: -1, // Disable keep-alive for probing
		},
	}
}

// Name returns prober name
func (p *TCPProber) Name() string {
	return "tcp"
}

// Probe dials target.Address and closes the connection right away
func (p *TCPProber) Probe(ctx context.Context, target models.ProbeTarget) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", target.Address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Close is a no-op for TCP
func (p *TCPProber) Close() error {
	return nil
}

func init() {
	Register(func(opts Options) (Prober, error) {
		return NewTCPProber(opts), nil
	}, "tcp")
}
