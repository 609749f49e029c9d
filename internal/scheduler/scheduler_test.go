package scheduler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/sync"
)

type call struct {
	profile string
	trigger sync.Trigger
}

type recordingSyncer struct {
	mu    stdsync.Mutex
	calls []call
}

func (r *recordingSyncer) Sync(_ context.Context, profileID string, trigger sync.Trigger) (*sync.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{profileID, trigger})
	return &sync.Outcome{ProfileID: profileID, Trigger: trigger, State: sync.StateSuccess}, nil
}

func (r *recordingSyncer) count(trigger sync.Trigger) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.trigger == trigger {
			n++
		}
	}
	return n
}

type stubProber struct {
	online atomic.Bool
}

func (p *stubProber) Probe(context.Context) bool { return p.online.Load() }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartupTrigger(t *testing.T) {
	syncer := &recordingSyncer{}
	var outcomes atomic.Int32
	s := New(syncer, []string{"a", "b"}, nil, Config{OnStartup: true})
	s.OnOutcome = func(out *sync.Outcome, err error) {
		if err != nil || out.State != sync.StateSuccess {
			t.Errorf("outcome = %v, %v", out, err)
		}
		outcomes.Add(1)
	}

	s.Start(context.Background())
	waitFor(t, "startup syncs", func() bool { return syncer.count(sync.TriggerStartup) == 2 })
	s.Stop()

	if outcomes.Load() != 2 {
		t.Errorf("OnOutcome called %d times, want 2", outcomes.Load())
	}
	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	if syncer.calls[0].profile != "a" || syncer.calls[1].profile != "b" {
		t.Errorf("calls = %v, want profiles in order", syncer.calls)
	}
}

func TestPeriodicTrigger(t *testing.T) {
	syncer := &recordingSyncer{}
	s := New(syncer, []string{"a"}, nil, Config{Interval: 10 * time.Millisecond})

	s.Start(context.Background())
	waitFor(t, "periodic syncs", func() bool { return syncer.count(sync.TriggerPeriodic) >= 2 })
	s.Stop()

	if n := syncer.count(sync.TriggerStartup); n != 0 {
		t.Errorf("startup syncs = %d with OnStartup disabled", n)
	}
}

func TestPeriodicSkippedWhileOffline(t *testing.T) {
	syncer := &recordingSyncer{}
	s := New(syncer, []string{"a"}, nil, Config{Interval: 5 * time.Millisecond})
	s.SetOnline(context.Background(), false)

	s.Start(context.Background())
	time.Sleep(40 * time.Millisecond)
	s.Stop()

	if n := syncer.count(sync.TriggerPeriodic); n != 0 {
		t.Errorf("periodic syncs while offline = %d", n)
	}
}

func TestReconnectTrigger(t *testing.T) {
	syncer := &recordingSyncer{}
	prober := &stubProber{}
	s := New(syncer, []string{"a"}, prober, Config{ProbeInterval: 5 * time.Millisecond})

	s.Start(context.Background())
	waitFor(t, "offline detected", func() bool { return !s.Online() })
	if n := syncer.count(sync.TriggerReconnect); n != 0 {
		t.Fatalf("reconnect fired while offline: %d", n)
	}

	prober.online.Store(true)
	waitFor(t, "reconnect sync", func() bool { return syncer.count(sync.TriggerReconnect) == 1 })

	// staying online does not fire again
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	if n := syncer.count(sync.TriggerReconnect); n != 1 {
		t.Errorf("reconnect syncs = %d, want 1", n)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(&recordingSyncer{}, nil, nil, Config{Interval: time.Hour})
	s.Stop()
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}

func TestContextCancelStopsLoops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(&recordingSyncer{}, []string{"a"}, &stubProber{}, Config{Interval: time.Millisecond, ProbeInterval: time.Millisecond})
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after context cancel")
	}
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	p := HTTPProber{URL: srv.URL, Timeout: time.Second}
	if !p.Probe(context.Background()) {
		t.Error("Probe() = false with a reachable server")
	}

	srv.Close()
	if p.Probe(context.Background()) {
		t.Error("Probe() = true with a closed server")
	}
	if (HTTPProber{URL: "://bad"}).Probe(context.Background()) {
		t.Error("Probe() = true with an invalid URL")
	}
}

// blockingSyncer holds every attempt until release is closed.
type blockingSyncer struct {
	recordingSyncer
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSyncer) Sync(ctx context.Context, profileID string, trigger sync.Trigger) (*sync.Outcome, error) {
	out, err := b.recordingSyncer.Sync(ctx, profileID, trigger)
	b.entered <- struct{}{}
	<-b.release
	return out, err
}

func TestTriggerDuringAttemptIsSkipped(t *testing.T) {
	syncer := &blockingSyncer{entered: make(chan struct{}, 4), release: make(chan struct{})}
	s := New(syncer, []string{"a"}, nil, Config{})
	ctx := context.Background()

	done := make(chan bool)
	go func() { done <- s.Trigger(ctx, sync.TriggerPeriodic) }()
	<-syncer.entered

	if s.Trigger(ctx, sync.TriggerReconnect) {
		t.Error("Trigger() ran while another attempt was in flight")
	}
	s.SetOnline(ctx, false)
	s.SetOnline(ctx, true)

	close(syncer.release)
	if !<-done {
		t.Error("first Trigger() reported it did not run")
	}

	syncer.mu.Lock()
	calls := len(syncer.calls)
	syncer.mu.Unlock()
	if calls != 1 {
		t.Errorf("Sync called %d times, want 1", calls)
	}
	if n := syncer.count(sync.TriggerReconnect); n != 0 {
		t.Errorf("reconnect attempts = %d, want 0", n)
	}

	// once idle, triggers run again
	if !s.Trigger(ctx, sync.TriggerManual) {
		t.Error("Trigger() skipped while idle")
	}
}

func TestSetOnlineLogsTransition(t *testing.T) {
	var buf bytes.Buffer
	logging.SetDefault(logging.New(logging.Options{Level: logging.LevelInfo, Output: &buf}))
	defer logging.SetDefault(logging.New(logging.DefaultOptions()))

	s := New(&recordingSyncer{}, nil, nil, Config{})
	s.SetOnline(context.Background(), true)
	if buf.Len() != 0 {
		t.Errorf("no transition should log nothing, got %q", buf.String())
	}
	s.SetOnline(context.Background(), false)
	if !strings.Contains(buf.String(), `msg="connectivity changed" online=false`) {
		t.Errorf("log = %q", buf.String())
	}
}
