// Package shield is the HTTP middleware stack of the lunexa API: security
// headers, body limits, request tagging and optional password protection.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/lunexa/internal/idgen"
	"github.com/hazyhaar/lunexa/internal/kit"
)

type contextKey string

const loggerKey contextKey = "shield_logger"

// DefaultMaxBody caps request bodies. Article pages posted for analysis are
// the largest legitimate payload.
const DefaultMaxBody = 4 << 20

// Headers are set on every response.
type Headers struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
}

// DefaultHeaders suits a JSON API with no HTML of its own.
func DefaultHeaders() Headers {
	return Headers{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
	}
}

// SecurityHeaders sets cfg on every response.
func SecurityHeaders(cfg Headers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if cfg.XContentTypeOptions != "" {
				h.Set("X-Content-Type-Options", cfg.XContentTypeOptions)
			}
			if cfg.XFrameOptions != "" {
				h.Set("X-Frame-Options", cfg.XFrameOptions)
			}
			if cfg.ReferrerPolicy != "" {
				h.Set("Referrer-Policy", cfg.ReferrerPolicy)
			}
			if cfg.CSP != "" {
				h.Set("Content-Security-Policy", cfg.CSP)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBody limits every request body to n bytes.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID tags each request with an ID (taken from X-Request-ID when the
// client sends one), echoes it in the response and attaches a request
// logger to the context.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	gen := idgen.Prefixed("req_", idgen.Default)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" || len(id) > 128 {
				id = gen()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")
			l := logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx = context.WithValue(ctx, loggerKey, l)
			l.Debug("shield: request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLogger returns the request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// BasicAuth requires HTTP basic credentials whose password matches the
// bcrypt hash. The user name is ignored. An empty hash disables the check.
// Paths in open bypass it.
func BasicAuth(hash string, open ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range open {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}
			_, pass, ok := r.BasicAuth()
			if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="lunexa"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashPassword returns the bcrypt hash to store in http.password_hash.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

// DefaultStack returns the standard middleware for the lunexa API.
func DefaultStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultMaxBody),
		RequestID(logger),
	}
}
