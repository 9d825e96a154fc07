// Package chatwatch drives the capture flow on a chat page: page triggers
// start a stability cycle, a settled pair goes to the dispatch gate,
// selections land in the store, and the page's article can be analyzed on
// request.
package chatwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/dispatch"
	"github.com/hazyhaar/lunexa/extract"
	"github.com/hazyhaar/lunexa/internal/browser"
	"github.com/hazyhaar/lunexa/stability"
)

// Page is the chat tab. *browser.ChatProbe implements it.
type Page interface {
	stability.Probe
	HTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
}

// EventSource delivers page events until ctx ends. *browser.Tab and
// *browser.ChatProbe implement it.
type EventSource interface {
	Listen(ctx context.Context, fn func(browser.Event), logger *slog.Logger)
}

// Dispatcher is the gate. *dispatch.Gate implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, pair capture.Pair) (*dispatch.Ticket, error)
}

// SelectionStore keeps the latest selection. *store.Store implements it.
type SelectionStore interface {
	SetSelectedText(ctx context.Context, text string) error
}

// Config configures a Watcher.
type Config struct {
	Page      Page
	Gate      Dispatcher
	Selection SelectionStore

	// HostContains restricts triggers to pages whose host contains it.
	// Empty accepts every host.
	HostContains string

	Interval   time.Duration
	StartDelay time.Duration

	Article extract.Options

	// Popup handles the floating button. Nil only logs.
	Popup func(ctx context.Context) error

	Logger *slog.Logger
}

// Watcher connects a chat page to the gate.
type Watcher struct {
	cfg   Config
	log   *slog.Logger
	sched *stability.Scheduler
}

// New creates a Watcher. Page and Gate are required.
func New(cfg Config) (*Watcher, error) {
	if cfg.Page == nil {
		return nil, fmt.Errorf("chatwatch: page is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("chatwatch: gate is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	w := &Watcher{cfg: cfg, log: cfg.Logger}
	w.sched = stability.NewScheduler(cfg.Page, stability.Config{
		Mode:       capture.ModePrimary,
		Interval:   cfg.Interval,
		StartDelay: cfg.StartDelay,
		OnReady:    w.onReady,
		Logger:     cfg.Logger,
	})
	return w, nil
}

// Scheduler exposes the primary-mode sampling scheduler.
func (w *Watcher) Scheduler() *stability.Scheduler { return w.sched }

// OnAccept is the gate's accept hook: an accepted primary dispatch resets
// the sampling bookkeeping.
func (w *Watcher) OnAccept(mode capture.Mode) {
	if mode == capture.ModePrimary {
		w.sched.Reset()
	}
}

// Run listens to src until ctx ends, then stops the scheduler.
func (w *Watcher) Run(ctx context.Context, src EventSource) {
	defer w.sched.Stop()
	src.Listen(ctx, func(ev browser.Event) { w.HandleEvent(ctx, ev) }, w.log)
}

// HandleEvent reacts to one page event.
func (w *Watcher) HandleEvent(ctx context.Context, ev browser.Event) {
	switch ev.Type {
	case browser.EventTrigger:
		ok, err := w.hostAllowed(ctx)
		if err != nil {
			w.log.Warn("chatwatch: read location", "error", err)
			return
		}
		if !ok {
			w.log.Debug("chatwatch: trigger ignored on foreign host")
			return
		}
		w.log.Debug("chatwatch: trigger", "reason", ev.Reason)
		w.sched.Trigger(ctx)

	case browser.EventSelection:
		if w.cfg.Selection == nil {
			return
		}
		text := extract.Selection(ev.Text)
		if text == "" {
			return
		}
		if err := w.cfg.Selection.SetSelectedText(ctx, text); err != nil {
			w.log.Error("chatwatch: store selection", "error", err)
		}

	case browser.EventPopup:
		w.log.Info("chatwatch: popup requested")
		if w.cfg.Popup != nil {
			if err := w.cfg.Popup(ctx); err != nil {
				w.log.Error("chatwatch: popup", "error", err)
			}
		}
	}
}

func (w *Watcher) hostAllowed(ctx context.Context) (bool, error) {
	if w.cfg.HostContains == "" {
		return true, nil
	}
	loc, err := w.cfg.Page.Location(ctx)
	if err != nil {
		return false, err
	}
	u, err := url.Parse(loc)
	if err != nil {
		return false, fmt.Errorf("chatwatch: parse location: %w", err)
	}
	return strings.Contains(u.Hostname(), w.cfg.HostContains), nil
}

func (w *Watcher) onReady(ctx context.Context, pair capture.Pair) {
	t, err := w.cfg.Gate.Dispatch(ctx, pair)
	if err != nil {
		logDispatchErr(w.log, pair.Mode, err)
		return
	}
	w.log.Info("chatwatch: pair dispatched", "mode", pair.Mode, "id", t.ID)
}

// AnalyzeArticle extracts the page's article and dispatches it in article
// mode. A page without article text fails with EMPTY.
func (w *Watcher) AnalyzeArticle(ctx context.Context) (*dispatch.Ticket, error) {
	raw, err := w.cfg.Page.HTML(ctx)
	if err != nil {
		return nil, capture.Errorf(capture.KindContextInvalidated, "chatwatch: article", "read page: %v", err)
	}
	opts := w.cfg.Article
	if opts.BaseURL == "" {
		if loc, err := w.cfg.Page.Location(ctx); err == nil {
			opts.BaseURL = loc
		}
	}
	art, err := extract.Article(raw, opts)
	if err != nil {
		return nil, err
	}
	t, err := w.cfg.Gate.Dispatch(ctx, art.Pair())
	if err != nil {
		logDispatchErr(w.log, capture.ModeArticle, err)
		return nil, err
	}
	w.log.Info("chatwatch: article dispatched", "title", art.Title, "source", art.Source, "id", t.ID)
	return t, nil
}

func logDispatchErr(log *slog.Logger, mode capture.Mode, err error) {
	var ce *capture.Error
	if errors.As(err, &ce) && !ce.Kind.Surfaced() && ce.Kind != capture.KindContextInvalidated {
		log.Debug("chatwatch: dispatch skipped", "mode", mode, "kind", ce.Kind)
		return
	}
	log.Warn("chatwatch: dispatch refused", "mode", mode, "error", err)
}
