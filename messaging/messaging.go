// Package messaging routes the inter-context messages that drive lunexa:
// captured pairs to check, article analysis requests, and popup requests.
// The same router backs the HTTP message endpoint and the MCP tools.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/dispatch"
	"github.com/hazyhaar/lunexa/store"
)

// Type names a message.
type Type string

const (
	TypeCheckHallucination Type = "CHECK_HALLUCINATION"
	TypeAnalyzeArticle     Type = "ANALYZE_ARTICLE"
	TypeOpenPopup          Type = "OPEN_POPUP"
)

// Reply statuses.
const (
	StatusAccepted = "accepted"
	StatusIgnored  = "ignored"
	StatusStarted  = "started"
	StatusOK       = "ok"
)

// ErrUnknownType is returned for messages the router does not handle.
var ErrUnknownType = errors.New("messaging: unknown message type")

// Message is one request.
type Message struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CheckPayload is the payload of CHECK_HALLUCINATION.
type CheckPayload struct {
	Query     string `json:"query"`
	Response  string `json:"response"`
	Mode      string `json:"mode,omitempty"`
	Message   string `json:"message,omitempty"`
	CheckType string `json:"checkType,omitempty"`
}

// Reply answers a Message. Kind names the soft failure of an ignored check.
type Reply struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// Dispatcher is the gate. *dispatch.Gate implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, pair capture.Pair) (*dispatch.Ticket, error)
}

// StatusReader reads operation status. *store.Store implements it.
type StatusReader interface {
	Status(ctx context.Context, mode capture.Mode) (store.OperationStatus, error)
}

// Option configures a Router.
type Option func(*Router)

// WithArticle sets the handler of ANALYZE_ARTICLE.
func WithArticle(fn func(ctx context.Context) error) Option {
	return func(r *Router) { r.article = fn }
}

// WithPopup sets the handler of OPEN_POPUP.
func WithPopup(fn func(ctx context.Context) error) Option {
	return func(r *Router) { r.popup = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.logger = l } }

// Router handles messages.
type Router struct {
	gate    Dispatcher
	article func(ctx context.Context) error
	popup   func(ctx context.Context) error
	logger  *slog.Logger
}

// NewRouter creates a Router dispatching through gate.
func NewRouter(gate Dispatcher, opts ...Option) *Router {
	r := &Router{gate: gate, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handle processes msg.
func (r *Router) Handle(ctx context.Context, msg Message) (Reply, error) {
	switch msg.Type {
	case TypeCheckHallucination:
		var p CheckPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return Reply{}, fmt.Errorf("messaging: decode %s payload: %w", msg.Type, err)
			}
		}
		reply, _, err := r.Check(ctx, p)
		return reply, err

	case TypeAnalyzeArticle:
		if r.article == nil {
			return Reply{}, fmt.Errorf("messaging: %s: no article source", msg.Type)
		}
		reply := Reply{Status: StatusStarted, Mode: string(capture.ModeArticle)}
		if err := r.article(ctx); err != nil {
			if !dispatch.IsSoft(err) {
				return Reply{}, fmt.Errorf("messaging: %s: %w", msg.Type, err)
			}
			reply.Kind = capture.KindOf(err).String()
			r.logger.Debug("messaging: article not dispatched", "kind", reply.Kind)
		}
		return reply, nil

	case TypeOpenPopup:
		if r.popup != nil {
			if err := r.popup(ctx); err != nil {
				return Reply{}, fmt.Errorf("messaging: %s: %w", msg.Type, err)
			}
		}
		return Reply{Status: StatusOK}, nil
	}
	return Reply{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
}

// Check dispatches a captured pair. The mode defaults to primary. Soft
// rejections yield an ignored reply and a nil ticket.
func (r *Router) Check(ctx context.Context, p CheckPayload) (Reply, *dispatch.Ticket, error) {
	mode, err := capture.ParseMode(p.Mode)
	if err != nil {
		return Reply{}, nil, fmt.Errorf("messaging: %w", err)
	}
	pair := capture.Pair{Query: p.Query, Response: p.Response, Mode: mode}

	t, err := r.gate.Dispatch(ctx, pair)
	if err != nil {
		if dispatch.IsSoft(err) {
			return Reply{Status: StatusIgnored, Mode: string(mode), Kind: capture.KindOf(err).String()}, nil, nil
		}
		return Reply{}, nil, fmt.Errorf("messaging: dispatch: %w", err)
	}
	return Reply{Status: StatusAccepted, Mode: string(mode), ID: t.ID}, t, nil
}
