// internal/prober/prober_test.go
// Tests for the HTTP and TCP probers against local servers

package prober

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/aspnmy/porttester/internal/models"
)

// targetFor builds a probe target pointing at a local server URL
func targetFor(t *testing.T, rawURL string) models.ProbeTarget {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	port, _ := strconv.Atoi(u.Port())
	ep := models.Endpoint{Protocol: u.Scheme, Host: u.Hostname()}
	return models.ProbeTarget{Port: port, URL: ep.URL(port), Address: ep.Address(port)}
}

// closedPort returns a local port with nothing listening on it
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestGet(t *testing.T) {
	for _, proto := range []string{"http", "https", "tcp"} {
		p, err := Get(proto, Options{Timeout: time.Second})
		if err != nil {
			t.Fatalf("Get(%q) error = %v", proto, err)
		}
		p.Close()
	}

	_, err := Get("gopher", Options{})
	if !errors.Is(err, ErrUnknownProtocol) {
		t.Errorf("Get(gopher) error = %v, want ErrUnknownProtocol", err)
	}
}

func TestProtocols(t *testing.T) {
	got := Protocols()
	want := []string{"http", "https", "tcp"}
	if len(got) != len(want) {
		t.Fatalf("Protocols() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Protocols()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHTTPProber_AnyStatusIsOpen(t *testing.T) {
	statuses := []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError}

	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				w.Write([]byte("port test"))
			}))
			defer srv.Close()

			p := NewHTTPProber(Options{Timeout: 2 * time.Second})
			defer p.Close()

			if err := p.Probe(context.Background(), targetFor(t, srv.URL)); err != nil {
				t.Errorf("Probe() error = %v, want nil for status %d", err, status)
			}
		})
	}
}

func TestHTTPProber_RedirectNotFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://127.0.0.1:1/", http.StatusFound)
	}))
	defer srv.Close()

	p := NewHTTPProber(Options{Timeout: 2 * time.Second})
	defer p.Close()

	if err := p.Probe(context.Background(), targetFor(t, srv.URL)); err != nil {
		t.Errorf("Probe() error = %v, want nil for a redirect", err)
	}
}

func TestHTTPProber_ClosedPort(t *testing.T) {
	port := closedPort(t)
	ep := models.Endpoint{Protocol: "http", Host: "127.0.0.1"}

	p := NewHTTPProber(Options{Timeout: 2 * time.Second})
	defer p.Close()

	err := p.Probe(context.Background(), models.ProbeTarget{Port: port, URL: ep.URL(port), Address: ep.Address(port)})
	if err == nil {
		t.Error("Probe() of closed port error = nil, want error")
	}
}

func TestHTTPProber_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewHTTPProber(Options{Timeout: 100 * time.Millisecond})
	defer p.Close()

	start := time.Now()
	err := p.Probe(context.Background(), targetFor(t, srv.URL))
	if err == nil {
		t.Fatal("Probe() of hanging server error = nil, want timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Probe() took %v, want it bounded by the 100ms timeout", elapsed)
	}
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p := NewTCPProber(Options{Timeout: time.Second})
	defer p.Close()

	open := ln.Addr().(*net.TCPAddr).Port
	ep := models.Endpoint{Protocol: "tcp", Host: "127.0.0.1"}

	if err := p.Probe(context.Background(), models.ProbeTarget{Port: open, Address: ep.Address(open)}); err != nil {
		t.Errorf("Probe() of listening port error = %v", err)
	}

	closed := closedPort(t)
	if err := p.Probe(context.Background(), models.ProbeTarget{Port: closed, Address: ep.Address(closed)}); err == nil {
		t.Error("Probe() of closed port error = nil, want error")
	}
}

func TestProbe_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewHTTPProber(Options{Timeout: time.Second})
	defer p.Close()

	if err := p.Probe(ctx, targetFor(t, srv.URL)); err == nil {
		t.Error("Probe() with cancelled context error = nil, want error")
	}
}
