// Package watch polls an SQLite database for a version token and runs an
// action once the token has changed and stayed quiet for a debounce window.
// The store uses it to notice writes made by another process (a second
// daemon, the status CLI) so that subscribers can re-read their keys.
//
//	w := watch.New(db, watch.Options{Interval: 200 * time.Millisecond})
//	go w.OnChange(ctx, func() error { return notify() })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token. Two different values mean something
// was written in between.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action fires.
	// Further changes inside the window restart it. 0 fires immediately.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector ChangeDetector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls a database and runs an action on change.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	fires   atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Fires           int64 `json:"fires"`
}

// New creates a Watcher. Call OnChange to start the loop.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Fires:           w.fires.Load(),
	}
}

// Version returns the last version for which the action succeeded.
func (w *Watcher) Version() int64 { return w.version.Load() }

// OnChange blocks until ctx is cancelled. If action returns an error the
// version is not advanced and the action runs again on the next poll.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				// Unchanged token; retry an action that failed earlier.
				if pending >= 0 && debounceCh == nil {
					w.fire(log, action, pending, &pending)
				}
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(log, action, cur, &pending)
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			if pending >= 0 {
				w.fire(log, action, pending, &pending)
			}
		}
	}
}

func (w *Watcher) fire(log *slog.Logger, action func() error, ver int64, pending *int64) {
	if err := action(); err != nil {
		w.errors.Add(1)
		log.Error("watch: action failed", "error", err, "version", ver)
		return
	}
	w.fires.Add(1)
	w.version.Store(ver)
	*pending = -1
	log.Debug("watch: change handled", "version", ver)
}

// PragmaDataVersion reads PRAGMA data_version, which moves whenever another
// connection commits to the same database file.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// PragmaUserVersion reads the application-controlled PRAGMA user_version.
func PragmaUserVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}

// MaxColumnDetector polls MAX(column) on table. Identifiers are quoted.
func MaxColumnDetector(table, column string) ChangeDetector {
	query := "SELECT COALESCE(MAX(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
