package stability

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/lunexa/capture"
)

type scriptedProbe struct {
	mu    sync.Mutex
	steps []Observation
	calls int
	err   error
}

func (p *scriptedProbe) Observe(context.Context) (Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return Observation{}, p.err
	}
	if len(p.steps) == 0 {
		return Observation{}, nil
	}
	o := p.steps[0]
	if len(p.steps) > 1 {
		p.steps = p.steps[1:]
	}
	return o, nil
}

func (p *scriptedProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func fastConfig(ready ReadyFunc) Config {
	return Config{
		Interval:   5 * time.Millisecond,
		StartDelay: 5 * time.Millisecond,
		OnReady:    ready,
	}
}

func TestScheduler_DeliversSettledPair(t *testing.T) {
	probe := &scriptedProbe{steps: []Observation{
		{Query: "q", Response: "he", Generating: true},
		{Query: "q", Response: "hell"},
		{Query: "q", Response: "hello"},
		{Query: "q", Response: "hello"},
		{Query: "q", Response: "hello"},
	}}
	got := make(chan capture.Pair, 1)
	s := NewScheduler(probe, fastConfig(func(_ context.Context, p capture.Pair) { got <- p }))
	defer s.Stop()

	s.Trigger(context.Background())

	select {
	case p := <-got:
		if p.Query != "q" || p.Response != "hello" || p.Mode != capture.ModePrimary {
			t.Fatalf("pair = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pair delivered")
	}
	if s.State() != (State{}) {
		t.Errorf("state not reset: %+v", s.State())
	}
	time.Sleep(30 * time.Millisecond)
	if s.Pending() {
		t.Error("scheduler kept sampling after success")
	}
}

func TestScheduler_TriggerSupersedesPending(t *testing.T) {
	probe := &scriptedProbe{steps: []Observation{{Query: "q", Response: "a"}}}
	s := NewScheduler(probe, Config{StartDelay: time.Hour})
	defer s.Stop()

	s.Trigger(context.Background())
	if !s.Pending() {
		t.Fatal("expected a pending sample")
	}
	s.mu.Lock()
	first := s.gen
	s.mu.Unlock()

	s.Trigger(context.Background())
	s.mu.Lock()
	second := s.gen
	s.mu.Unlock()
	if second == first {
		t.Fatal("second trigger did not supersede the first")
	}

	// A superseded timer firing late is a no-op.
	s.fire(first)
	if probe.Calls() != 0 {
		t.Errorf("superseded sample ran the probe")
	}
}

func TestScheduler_ProbeErrorAbandonsCycle(t *testing.T) {
	probe := &scriptedProbe{err: errors.New("target closed")}
	var ready atomic.Int32
	s := NewScheduler(probe, fastConfig(func(context.Context, capture.Pair) { ready.Add(1) }))
	defer s.Stop()

	s.Trigger(context.Background())
	time.Sleep(60 * time.Millisecond)

	if probe.Calls() != 1 {
		t.Errorf("probe calls = %d, want 1", probe.Calls())
	}
	if s.Pending() {
		t.Error("cycle still pending after probe error")
	}
	if ready.Load() != 0 {
		t.Error("OnReady called")
	}
}

func TestScheduler_CancelledContext(t *testing.T) {
	probe := &scriptedProbe{steps: []Observation{{Query: "q", Response: "a"}}}
	s := NewScheduler(probe, fastConfig(nil))
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Trigger(ctx)
	time.Sleep(30 * time.Millisecond)
	if probe.Calls() != 0 {
		t.Errorf("probe ran on a cancelled context")
	}
}

func TestScheduler_StopRefusesTriggers(t *testing.T) {
	probe := &scriptedProbe{}
	s := NewScheduler(probe, fastConfig(nil))
	s.Stop()
	s.Trigger(context.Background())
	if s.Pending() {
		t.Fatal("stopped scheduler accepted a trigger")
	}
}

func TestConfig_Defaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.Interval != DefaultInterval || c.StartDelay != DefaultStartDelay || c.Mode != capture.ModePrimary {
		t.Fatalf("defaults = %+v", c)
	}
	c = Config{StartDelay: -1}
	c.defaults()
	if c.StartDelay != 0 {
		t.Errorf("negative start delay = %v, want 0", c.StartDelay)
	}
}
