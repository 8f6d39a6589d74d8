// internal/app/tester_test.go
// Tests for the port test orchestrator

package app

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aspnmy/porttester/internal/core"
	"github.com/aspnmy/porttester/internal/models"
	"github.com/aspnmy/porttester/internal/output"
	"github.com/aspnmy/porttester/internal/prober"
	"github.com/aspnmy/porttester/internal/scanner"
)

var errRefused = errors.New("connection refused")

// stubProber answers from a fixed open set, or blocks until cancelled
type stubProber struct {
	open   map[int]bool
	block  bool
	closed bool
}

func newStubProber(open ...int) *stubProber {
	s := &stubProber{open: make(map[int]bool)}
	for _, p := range open {
		s.open[p] = true
	}
	return s
}

func (s *stubProber) Name() string { return "stub" }
func (s *stubProber) Close() error { s.closed = true; return nil }

func (s *stubProber) Probe(ctx context.Context, target models.ProbeTarget) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.open[target.Port] {
		return nil
	}
	return errRefused
}

// progressLog records every update and the final progress
type progressLog struct {
	mu       sync.Mutex
	done     []int
	open     [][]int
	finished *models.Progress
}

func (p *progressLog) Update(pr models.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = append(p.done, pr.Done)
	p.open = append(p.open, pr.Open)
}

func (p *progressLog) Finish(pr models.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = &pr
}

func testConfig(from, to int) *core.Config {
	cfg := core.Default()
	cfg.Target.Host = "127.0.0.1"
	cfg.Range.From, cfg.Range.To = from, to
	cfg.Probe.Concurrent = 4
	cfg.Probe.Timeout = 2 * time.Second
	return &cfg
}

func TestTester_Run(t *testing.T) {
	tests := []struct {
		name    string
		blocked bool
		want    []int
		listing string
	}{
		{name: "open ports", want: []int{2, 4}, listing: "List of ports opened\n  -     2\n  -     4\n"},
		{name: "blocked ports", blocked: true, want: []int{1, 3, 5}, listing: "List of ports closed\n  -     1\n  -     3\n  -     5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(1, 5)
			cfg.Output.ListBlocked = tt.blocked

			var out bytes.Buffer
			progress := &progressLog{}
			tester := NewTester(TesterDeps{
				Config:    cfg,
				Prober:    newStubProber(2, 4),
				Reporter:  progress,
				Presenter: output.NewPresenter("list", false, &out),
			})

			res, err := tester.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if !slices.Equal(res.Ports, tt.want) {
				t.Errorf("Ports = %v, want %v", res.Ports, tt.want)
			}
			if res.Probed != 5 || res.Blocked != tt.blocked || res.RunID == "" {
				t.Errorf("result = %+v", res)
			}
			if !strings.HasSuffix(out.String(), tt.listing) {
				t.Errorf("output = %q, want suffix %q", out.String(), tt.listing)
			}

			// initial (0/5) plus one update per completed probe
			done := slices.Clone(progress.done)
			slices.Sort(done)
			if !slices.Equal(done, []int{0, 1, 2, 3, 4, 5}) {
				t.Errorf("progress updates = %v, want 0..5", done)
			}
			if progress.finished == nil || progress.finished.Done != 5 || progress.finished.Total != 5 {
				t.Errorf("Finish = %+v, want 5/5", progress.finished)
			}
		})
	}
}

func TestTester_RunNothingOpen(t *testing.T) {
	var out bytes.Buffer
	tester := NewTester(TesterDeps{
		Config:    testConfig(1, 10),
		Prober:    newStubProber(),
		Presenter: output.NewPresenter("list", false, &out),
	})

	res, err := tester.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Ports == nil || len(res.Ports) != 0 {
		t.Errorf("Ports = %#v, want empty non-nil", res.Ports)
	}
	if !strings.Contains(out.String(), "None of port between 1 to 10 opened...") {
		t.Errorf("output = %q", out.String())
	}
}

// Scenario: [1,10], N=3, every probe fails
func TestTester_AllProbesFail(t *testing.T) {
	for _, blocked := range []bool{false, true} {
		cfg := testConfig(1, 10)
		cfg.Probe.Concurrent = 3
		cfg.Output.ListBlocked = blocked

		res, err := NewTester(TesterDeps{Config: cfg, Prober: newStubProber()}).Run(context.Background())
		if err != nil {
			t.Fatalf("Run(blocked=%v) error = %v", blocked, err)
		}

		want := []int{}
		if blocked {
			want = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
		}
		if !slices.Equal(res.Ports, want) {
			t.Errorf("blocked=%v: Ports = %v, want %v", blocked, res.Ports, want)
		}
	}
}

func TestTester_DebugSnapshots(t *testing.T) {
	cfg := testConfig(1, 3)
	cfg.Output.Debug = true
	cfg.Probe.Concurrent = 1

	progress := &progressLog{}
	tester := NewTester(TesterDeps{Config: cfg, Prober: newStubProber(1, 3), Reporter: progress})

	if _, err := tester.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// N=1 completes in port order
	want := [][]int{nil, {1}, {1}, {1, 3}}
	if len(progress.open) != len(want) {
		t.Fatalf("got %d snapshots, want %d", len(progress.open), len(want))
	}
	for i := range want {
		if !slices.Equal(progress.open[i], want[i]) {
			t.Errorf("snapshot %d = %v, want %v", i, progress.open[i], want[i])
		}
	}
}

func TestTester_OutcomeExport(t *testing.T) {
	var buf bytes.Buffer
	tester := NewTester(TesterDeps{
		Config:   testConfig(10, 19),
		Prober:   newStubProber(15),
		Outcomes: output.NewOutcomeWriter(&buf),
	})
	obs, logs := observer.New(zapcore.InfoLevel)
	tester.log = zap.New(obs)

	if _, err := tester.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	entries := logs.FilterMessage("Port test complete").All()
	if len(entries) != 1 {
		t.Fatalf("got %d completion entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["outcomes_written"]; got != int64(10) {
		t.Errorf("outcomes_written = %v, want 10", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 10 {
		t.Fatalf("exported %d outcomes, want 10", len(lines))
	}
	if n := strings.Count(buf.String(), `"succeeded":true`); n != 1 {
		t.Errorf("%d succeeded outcomes, want 1", n)
	}
}

func TestTester_Interrupted(t *testing.T) {
	stub := newStubProber()
	stub.block = true
	cfg := testConfig(1, 100)
	cfg.Probe.Timeout = 0

	var out bytes.Buffer
	tester := NewTester(TesterDeps{
		Config:    cfg,
		Prober:    stub,
		Presenter: output.NewPresenter("list", false, &out),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := tester.Run(ctx)
	if !errors.Is(err, scanner.ErrInterrupted) {
		t.Fatalf("Run() error = %v, want ErrInterrupted", err)
	}
	if res != nil {
		t.Errorf("Run() result = %+v, want nil on abort", res)
	}
	if out.Len() != 0 {
		t.Errorf("aborted run presented output: %q", out.String())
	}
}

func TestTester_Shutdown(t *testing.T) {
	stub := newStubProber()
	stub.block = true
	cfg := testConfig(1, 100)
	cfg.Probe.Timeout = 0

	tester := NewTester(TesterDeps{Config: cfg, Prober: stub})

	errCh := make(chan error, 1)
	go func() {
		_, err := tester.Run(context.Background())
		errCh <- err
	}()

	// wait until Run has registered its cancel func
	deadline := time.Now().Add(2 * time.Second)
	for {
		tester.mu.Lock()
		started := tester.cancel != nil
		tester.mu.Unlock()
		if started || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tester.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if err := <-errCh; !errors.Is(err, scanner.ErrInterrupted) {
		t.Errorf("Run() error = %v, want ErrInterrupted", err)
	}

	if err := tester.Close(); err != nil || !stub.closed {
		t.Errorf("Close() error = %v, prober closed = %v", err, stub.closed)
	}
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

func runAgainst(t *testing.T, protocol string, port int, blocked bool) []int {
	t.Helper()
	cfg := testConfig(port, port)
	cfg.Target.Protocol = protocol
	cfg.Output.ListBlocked = blocked

	p, err := prober.Get(protocol, prober.Options{Timeout: cfg.Probe.Timeout})
	if err != nil {
		t.Fatalf("prober.Get(%q) error = %v", protocol, err)
	}
	tester := NewTester(TesterDeps{Config: cfg, Prober: p})
	defer tester.Close()

	res, err := tester.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return res.Ports
}

func TestTester_AgainstLocalServers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("port test"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	open, _ := strconv.Atoi(u.Port())
	closed := closedPort(t)

	for _, protocol := range []string{"http", "tcp"} {
		t.Run(protocol, func(t *testing.T) {
			if got := runAgainst(t, protocol, open, false); !slices.Equal(got, []int{open}) {
				t.Errorf("open port: opened = %v, want [%d]", got, open)
			}
			if got := runAgainst(t, protocol, open, true); len(got) != 0 {
				t.Errorf("open port: closed = %v, want []", got)
			}
			if got := runAgainst(t, protocol, closed, false); len(got) != 0 {
				t.Errorf("closed port: opened = %v, want []", got)
			}
			if got := runAgainst(t, protocol, closed, true); !slices.Equal(got, []int{closed}) {
				t.Errorf("closed port: closed = %v, want [%d]", got, closed)
			}
		})
	}
}
