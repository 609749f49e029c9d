// Package scheduler fires sync attempts on startup, on a fixed interval and
// when connectivity returns.
package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/sync"
)

// Syncer runs one sync attempt for a profile.
type Syncer interface {
	Sync(ctx context.Context, profileID string, trigger sync.Trigger) (*sync.Outcome, error)
}

// Prober reports whether the remote is reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Config holds scheduler settings. A zero interval disables that loop.
type Config struct {
	Interval      time.Duration
	ProbeInterval time.Duration
	OnStartup     bool
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:      15 * time.Minute,
		ProbeInterval: 30 * time.Second,
		OnStartup:     true,
	}
}

// Scheduler drives a Syncer for a fixed set of profiles.
type Scheduler struct {
	syncer   Syncer
	profiles []string
	prober   Prober
	cfg      Config

	// OnOutcome, if set, receives every finished attempt.
	OnOutcome func(*sync.Outcome, error)

	stopCh  chan struct{}
	wg      stdsync.WaitGroup
	mu      stdsync.Mutex
	running bool
	online  bool
	runMu   stdsync.Mutex
}

// New creates a scheduler. prober may be nil, which disables reconnect
// detection.
func New(syncer Syncer, profiles []string, prober Prober, cfg Config) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		profiles: profiles,
		prober:   prober,
		cfg:      cfg,
		online:   true,
	}
}

// Start launches the scheduler loops. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if s.cfg.OnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Trigger(ctx, sync.TriggerStartup)
		}()
	}
	if s.cfg.Interval > 0 {
		s.wg.Add(1)
		go s.periodicLoop(ctx)
	}
	if s.prober != nil && s.cfg.ProbeInterval > 0 {
		s.wg.Add(1)
		go s.probeLoop(ctx)
	}

	logging.Info("sync scheduler started",
		logging.Count(len(s.profiles)),
		slog.Duration("interval", s.cfg.Interval),
	)
}

// Stop signals the loops to exit and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info("sync scheduler stopped")
}

// Online reports the last observed connectivity.
func (s *Scheduler) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// SetOnline records connectivity. Going from offline to online fires a
// reconnect trigger.
func (s *Scheduler) SetOnline(ctx context.Context, online bool) {
	s.mu.Lock()
	was := s.online
	s.online = online
	s.mu.Unlock()

	if was == online {
		return
	}
	logging.Info("connectivity changed", slog.Bool("online", online))
	if online {
		s.Trigger(ctx, sync.TriggerReconnect)
	}
}

// Trigger runs one attempt per profile, in order. A trigger that arrives
// while another is still running is skipped, not queued. It reports whether
// the attempts ran.
func (s *Scheduler) Trigger(ctx context.Context, trigger sync.Trigger) bool {
	if !s.runMu.TryLock() {
		logging.Debug("sync already running, skipping trigger", logging.Trigger(string(trigger)))
		return false
	}
	defer s.runMu.Unlock()

	for _, id := range s.profiles {
		if ctx.Err() != nil {
			return true
		}
		out, err := s.syncer.Sync(ctx, id, trigger)
		if s.OnOutcome != nil {
			s.OnOutcome(out, err)
		}
	}
	return true
}

func (s *Scheduler) periodicLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.Online() {
				logging.Debug("offline, skipping periodic sync")
				continue
			}
			s.Trigger(ctx, sync.TriggerPeriodic)
		}
	}
}

func (s *Scheduler) probeLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.SetOnline(ctx, s.prober.Probe(ctx))
		}
	}
}

// HTTPProber treats any HTTP response from URL as connectivity.
type HTTPProber struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// Probe sends a HEAD request to the configured URL.
func (p HTTPProber) Probe(ctx context.Context) bool {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
