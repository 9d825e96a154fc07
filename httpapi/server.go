// Package httpapi is the HTTP surface of lunexa. It replaces the browser
// popup: it reads and writes the shared store, forwards messages to the
// router, streams store changes and serves the MCP tools.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/extract"
	"github.com/hazyhaar/lunexa/internal/shield"
	"github.com/hazyhaar/lunexa/messaging"
	"github.com/hazyhaar/lunexa/report"
	"github.com/hazyhaar/lunexa/store"
)

// NoSelectionMessage is returned when a selection analysis is requested
// with nothing selected.
const NoSelectionMessage = "Please select some text on the page first."

// Config for a Server.
type Config struct {
	Store        *store.Store
	Router       *messaging.Router
	MCP          *mcp.Server // nil disables /mcp
	PasswordHash string      // bcrypt; empty disables auth
	Article      extract.Options
	Heartbeat    time.Duration // SSE keep-alive. Default: 15s.
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Heartbeat <= 0 {
		c.Heartbeat = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server serves the API.
type Server struct {
	cfg    Config
	store  *store.Store
	router *messaging.Router
	logger *slog.Logger
}

// New creates a Server.
func New(cfg Config) *Server {
	cfg.defaults()
	return &Server{cfg: cfg, store: cfg.Store, router: cfg.Router, logger: cfg.Logger}
}

// Handler returns the complete router with middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.logger) {
		r.Use(mw)
	}
	r.Use(shield.BasicAuth(s.cfg.PasswordHash, "/health"))
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the routes on r.
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", s.handleMessage)
		r.Get("/status", s.handleStatus)
		r.Get("/status/{mode}", s.handleStatus)
		r.Get("/mode", s.handleGetMode)
		r.Put("/mode", s.handlePutMode)
		r.Get("/selection", s.handleGetSelection)
		r.Put("/selection", s.handlePutSelection)
		r.Post("/selection/analyze", s.handleAnalyzeSelection)
		r.Post("/article", s.handleArticle)
		r.Get("/events", s.handleEvents)
	})

	if s.cfg.MCP != nil {
		srv := s.cfg.MCP
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
		r.Handle("/mcp", h)
		r.Handle("/mcp/*", h)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("httpapi: listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// StatusPayload is the body of GET /api/status.
type StatusPayload struct {
	Status store.OperationStatus `json:"status"`
	View   report.View           `json:"view"`
}

func (s *Server) statusPayload(ctx context.Context, mode capture.Mode) (StatusPayload, error) {
	st, err := s.store.Status(ctx, mode)
	if err != nil {
		return StatusPayload{}, err
	}
	return StatusPayload{Status: st, View: report.BuildView(mode, st)}, nil
}
