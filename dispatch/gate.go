package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/internal/idgen"
	"github.com/hazyhaar/lunexa/scoring"
	"github.com/hazyhaar/lunexa/store"
)

// StatusWriter persists operation status. *store.Store implements it.
type StatusWriter interface {
	MarkStarted(ctx context.Context, mode capture.Mode) error
	MarkSucceeded(ctx context.Context, mode capture.Mode, res store.Result) error
	MarkFailed(ctx context.Context, mode capture.Mode, msg string) error
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(g *Gate) { g.logger = l } }

// WithOnAccept registers a hook run, under the gate lock, for every
// accepted dispatch. The browser daemon resets the mode's stability
// bookkeeping here.
func WithOnAccept(fn func(capture.Mode)) Option { return func(g *Gate) { g.onAccept = fn } }

// WithClock overrides the result timestamp source.
func WithClock(now func() time.Time) Option { return func(g *Gate) { g.now = now } }

// WithIDGenerator sets the ticket ID generator. Default: idgen.Default.
func WithIDGenerator(gen idgen.Generator) Option { return func(g *Gate) { g.newID = gen } }

// Gate serializes admission and status writes. Completions of requests
// superseded by a newer dispatch for the same mode are dropped, so the
// persisted status always reflects the latest accepted pair.
type Gate struct {
	scorer   scoring.Scorer
	status   StatusWriter
	logger   *slog.Logger
	onAccept func(capture.Mode)
	now      func() time.Time
	newID    idgen.Generator

	mu       sync.Mutex
	registry Registry
	seq      map[capture.Mode]uint64
	closed   bool

	wg sync.WaitGroup
}

// New creates a Gate.
func New(scorer scoring.Scorer, status StatusWriter, opts ...Option) *Gate {
	g := &Gate{
		scorer:   scorer,
		status:   status,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    idgen.Default,
		registry: Registry{},
		seq:      make(map[capture.Mode]uint64),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Ticket tracks one accepted dispatch.
type Ticket struct {
	ID   string
	Pair capture.Pair
	seq  uint64

	done   chan struct{}
	result *store.Result
	err    error
}

// Done is closed once the outcome is known.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Result returns the stored result, or nil on failure. Valid after Done.
func (t *Ticket) Result() *store.Result { return t.result }

// Err returns the failure, or nil on success. A completion dropped because
// it was superseded or the gate closed reports CONTEXT_INVALIDATED. Valid
// after Done.
func (t *Ticket) Err() error { return t.err }

// Wait blocks until the ticket completes or ctx ends.
func (t *Ticket) Wait(ctx context.Context) (*store.Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispatch admits pair and, when accepted, starts the scoring request in the
// background. Soft rejections (EMPTY, DUPLICATE, CONTEXT_INVALIDATED after
// Close) are returned as classified errors and have no side effects. An
// unset mode means primary; any other unknown mode is a hard error. The
// request ignores ctx cancellation; ctx only carries values.
func (g *Gate) Dispatch(ctx context.Context, pair capture.Pair) (*Ticket, error) {
	switch {
	case pair.Mode == "":
		pair.Mode = capture.ModePrimary
	case !pair.Mode.Valid():
		return nil, fmt.Errorf("dispatch: invalid mode %q", string(pair.Mode))
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, capture.ErrContextInvalidated
	}
	next, err := Admit(pair, g.registry)
	if err != nil {
		g.mu.Unlock()
		g.logger.Debug("dispatch: ignored", "mode", pair.Mode, "kind", capture.KindOf(err))
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	if err := g.status.MarkStarted(bg, pair.Mode); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	g.registry = next
	g.seq[pair.Mode]++
	t := &Ticket{
		ID:   g.newID(),
		Pair: pair,
		seq:  g.seq[pair.Mode],
		done: make(chan struct{}),
	}
	if g.onAccept != nil {
		g.onAccept(pair.Mode)
	}
	g.wg.Add(1)
	g.mu.Unlock()

	g.logger.Info("dispatch: accepted", "mode", pair.Mode, "id", t.ID,
		"query_len", len(pair.Query), "response_len", len(pair.Response))

	go g.run(bg, t)
	return t, nil
}

func (g *Gate) run(ctx context.Context, t *Ticket) {
	defer g.wg.Done()
	defer close(t.done)

	mode := t.Pair.Mode
	start := time.Now()
	resp, err := g.scorer.Score(ctx, scoring.RequestFor(t.Pair))

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		t.err = &capture.Error{Kind: capture.KindContextInvalidated, Op: "dispatch: gate closed"}
		g.logger.Warn("dispatch: completion dropped", "mode", mode, "id", t.ID, "error", t.err)
		return
	}
	if g.seq[mode] != t.seq {
		t.err = &capture.Error{Kind: capture.KindContextInvalidated, Op: "dispatch: superseded"}
		g.logger.Info("dispatch: stale completion dropped", "mode", mode, "id", t.ID)
		return
	}

	if err != nil {
		t.err = err
		g.logger.Error("dispatch: scoring failed", "mode", mode, "id", t.ID,
			"kind", capture.KindOf(err), "error", err, "duration", time.Since(start))
		if werr := g.status.MarkFailed(ctx, mode, err.Error()); werr != nil {
			g.logger.Error("dispatch: status write failed", "mode", mode, "error", werr)
		}
		return
	}

	res := store.Result{
		Scores:     resp.Scores,
		Details:    resp.Details,
		Mode:       mode,
		Timestamp:  g.now().UTC(),
		Query:      t.Pair.Query,
		Response:   t.Pair.Response,
		DispatchID: t.ID,
	}
	if werr := g.status.MarkSucceeded(ctx, mode, res); werr != nil {
		t.err = werr
		g.logger.Error("dispatch: status write failed", "mode", mode, "error", werr)
		return
	}
	t.result = &res
	g.logger.Info("dispatch: scored", "mode", mode, "id", t.ID, "duration", time.Since(start))
}

// Registry returns a copy of the dispatch registry.
func (g *Gate) Registry() Registry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.clone()
}

// Forget clears the record of mode so the same pair can be dispatched again.
func (g *Gate) Forget(mode capture.Mode) {
	g.mu.Lock()
	delete(g.registry, mode)
	g.mu.Unlock()
}

// Wait blocks until every in-flight request has completed.
func (g *Gate) Wait() { g.wg.Wait() }

// Close stops accepting dispatches. Requests already in flight still run,
// but their outcome is no longer written.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// IsSoft reports whether err is a silent rejection (not shown to the user).
func IsSoft(err error) bool {
	var ce *capture.Error
	return errors.As(err, &ce) && !ce.Kind.Surfaced()
}
