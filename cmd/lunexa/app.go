package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/dispatch"
	"github.com/hazyhaar/lunexa/httpapi"
	"github.com/hazyhaar/lunexa/internal/config"
	"github.com/hazyhaar/lunexa/messaging"
	"github.com/hazyhaar/lunexa/scoring"
	"github.com/hazyhaar/lunexa/store"
)

// app holds the components every command shares.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	scorer *scoring.Client
	gate   *dispatch.Gate
}

type appOption func(*appOptions)

type appOptions struct {
	onAccept func(capture.Mode)
}

func withOnAccept(fn func(capture.Mode)) appOption {
	return func(o *appOptions) { o.onAccept = fn }
}

func newApp(cfg config.Config, logger *slog.Logger, opts ...appOption) (*app, error) {
	var o appOptions
	for _, fn := range opts {
		fn(&o)
	}

	st, err := store.Open(cfg.Store.Path, store.Config{
		Logger:        logger,
		WatchInterval: cfg.Store.WatchInterval,
		WatchDebounce: cfg.Store.WatchDebounce,
	})
	if err != nil {
		return nil, err
	}
	scorer := scoring.New(scoring.Config{
		Endpoint: cfg.Scoring.Endpoint,
		Timeout:  cfg.Scoring.Timeout,
		Logger:   logger,
	})
	gateOpts := []dispatch.Option{dispatch.WithLogger(logger)}
	if o.onAccept != nil {
		gateOpts = append(gateOpts, dispatch.WithOnAccept(o.onAccept))
	}
	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		scorer: scorer,
		gate:   dispatch.New(scorer, st, gateOpts...),
	}, nil
}

// Close waits for in-flight requests, so their outcome is recorded, then
// closes the store.
func (a *app) Close() error {
	a.gate.Wait()
	a.gate.Close()
	return a.store.Close()
}

// serveHTTP runs the HTTP API, with the MCP tools, until ctx ends.
func (a *app) serveHTTP(ctx context.Context, router *messaging.Router) error {
	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "lunexa", Version: version}, nil)
	messaging.RegisterMCP(mcpSrv, router, a.store)

	srv := httpapi.New(httpapi.Config{
		Store:        a.store,
		Router:       router,
		MCP:          mcpSrv,
		PasswordHash: a.cfg.HTTP.PasswordHash,
		Article:      a.cfg.ArticleOptions(),
		Logger:       a.logger,
	})
	if err := srv.ListenAndServe(ctx, a.cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}
