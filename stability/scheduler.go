package stability

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/lunexa/capture"
)

const (
	// DefaultInterval is the delay between samples after a soft failure.
	DefaultInterval = 2 * time.Second
	// DefaultStartDelay lets the assistant start answering before the first sample.
	DefaultStartDelay = 3 * time.Second
)

// Probe reads the current page state. An error means the page (or the
// browser behind it) is gone; the cycle is abandoned.
type Probe interface {
	Observe(ctx context.Context) (Observation, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (Observation, error)

func (f ProbeFunc) Observe(ctx context.Context) (Observation, error) { return f(ctx) }

// ReadyFunc receives the finalized pair of a completed cycle.
type ReadyFunc func(ctx context.Context, pair capture.Pair)

// Config for a Scheduler.
type Config struct {
	Mode       capture.Mode  // mode stamped on finalized pairs. Default: primary.
	Interval   time.Duration // Default: DefaultInterval.
	StartDelay time.Duration // Default: DefaultStartDelay. Negative means none.
	OnReady    ReadyFunc
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = capture.ModePrimary
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.StartDelay == 0 {
		c.StartDelay = DefaultStartDelay
	}
	if c.StartDelay < 0 {
		c.StartDelay = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler runs sampling cycles for one source. At most one sample is
// pending at a time: scheduling a new one stops the previous timer, and a
// generation counter discards timers that fire after being superseded.
type Scheduler struct {
	cfg   Config
	probe Probe

	mu      sync.Mutex
	ctx     context.Context
	state   State
	timer   *time.Timer
	gen     uint64
	tick    uint64
	stopped bool
}

// NewScheduler creates a Scheduler reading from probe.
func NewScheduler(probe Probe, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{cfg: cfg, probe: probe, ctx: context.Background()}
}

// Trigger starts a new cycle: bookkeeping is reset, any pending sample is
// discarded, and the first sample runs after StartDelay.
func (s *Scheduler) Trigger(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.ctx = ctx
	s.state = State{}
	s.scheduleLocked(s.cfg.StartDelay)
	s.cfg.Logger.Debug("stability: cycle started", "mode", s.cfg.Mode, "delay", s.cfg.StartDelay)
}

// Reset clears the sampling bookkeeping without touching the pending timer.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()
}

// Cancel discards the pending sample, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
}

// Stop cancels the pending sample and refuses further triggers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cancelLocked()
	s.mu.Unlock()
}

// Pending reports whether a sample is scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// State returns the current bookkeeping.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Scheduler) scheduleLocked(d time.Duration) {
	s.cancelLocked()
	gen := s.gen
	s.timer = time.AfterFunc(d, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	ctx := s.ctx
	s.mu.Unlock()

	log := s.cfg.Logger

	if err := ctx.Err(); err != nil {
		log.Warn("stability: cycle abandoned", "mode", s.cfg.Mode,
			"kind", capture.KindContextInvalidated, "error", err)
		return
	}

	obs, err := s.probe.Observe(ctx)
	if err != nil {
		if !errors.Is(err, capture.ErrContextInvalidated) {
			err = &capture.Error{Kind: capture.KindContextInvalidated, Op: "stability: observe", Err: err}
		}
		log.Warn("stability: cycle abandoned", "mode", s.cfg.Mode,
			"kind", capture.KindContextInvalidated, "error", err)
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.stopped {
		// Superseded while the probe was running.
		s.mu.Unlock()
		return
	}
	s.tick++
	verdict, next := Check(obs, s.state)
	sample := Sample{Length: next.LastLength, ObservedAt: s.tick}
	s.state = next
	if !verdict.Ready {
		s.scheduleLocked(s.cfg.Interval)
		s.mu.Unlock()
		log.Debug("stability: not ready", "mode", s.cfg.Mode, "kind", verdict.Kind,
			"stable_count", verdict.StableCount, "length", sample.Length, "tick", sample.ObservedAt)
		return
	}
	s.mu.Unlock()

	log.Info("stability: response settled", "mode", s.cfg.Mode, "length", len(verdict.Response))
	if s.cfg.OnReady != nil {
		s.cfg.OnReady(ctx, capture.Pair{
			Query:    verdict.Query,
			Response: verdict.Response,
			Mode:     s.cfg.Mode,
		})
	}
}
