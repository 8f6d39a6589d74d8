// internal/prober/http.go
// HTTP(S) prober: one GET per port, any response counts as open

package prober

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aspnmy/porttester/internal/models"
)

// bodyDrainLimit bounds how much of a response body is read before closing
const bodyDrainLimit = 4 << 10

// HTTPProber issues GET requests through a shared http.Client
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProber creates an HTTP prober. Every port is a different origin,
// so connections are never reused.
func NewHTTPProber(opts Options) *HTTPProber {
	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: -1,
	}

	return &HTTPProber{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				// no proxy: the point is to test the local egress path
				Proxy:               nil,
				DialContext:         dialer.DialContext,
				DisableKeepAlives:   true,
				DisableCompression:  true,
				TLSHandshakeTimeout: opts.Timeout,
			},
			// a redirect answer already proves the port is reachable
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: opts.Timeout,
	}
}

// Name returns prober name
func (p *HTTPProber) Name() string {
	return "http"
}

// Probe sends GET target.URL and waits for the response headers
func (p *HTTPProber) Probe(ctx context.Context, target models.ProbeTarget) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "porttester")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, bodyDrainLimit))
	return resp.Body.Close()
}

// Close drops idle connections
func (p *HTTPProber) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func init() {
	Register(func(opts Options) (Prober, error) {
		return NewHTTPProber(opts), nil
	}, "http", "https")
}
