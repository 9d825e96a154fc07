package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

//go:embed triggers.js
var triggersJS string

// BindingName is the page binding the trigger script reports through.
const BindingName = "__lunexa_binding"

// EventType identifies a page event.
type EventType string

const (
	EventTrigger   EventType = "trigger"    // send clicked or Enter pressed
	EventSelection EventType = "selection"  // user selected text
	EventPopup     EventType = "open_popup" // floating button clicked
)

// Event is one report from the trigger script.
type Event struct {
	Type   EventType `json:"type"`
	Reason string    `json:"reason,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// ParseEvent decodes a binding payload.
func ParseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("browser: parse event: %w", err)
	}
	switch ev.Type {
	case EventTrigger, EventPopup:
	case EventSelection:
		if strings.TrimSpace(ev.Text) == "" {
			return Event{}, fmt.Errorf("browser: selection event without text")
		}
	default:
		return Event{}, fmt.Errorf("browser: unknown event type %q", ev.Type)
	}
	return ev, nil
}

// TriggerOptions configures the injected script.
type TriggerOptions struct {
	SendSelector   string
	FloatingButton bool
}

func (o TriggerOptions) setupJS() string {
	sel := o.SendSelector
	if sel == "" {
		sel = DefaultSendSelector
	}
	cfg, _ := json.Marshal(map[string]any{
		"sendSelector":   sel,
		"floatingButton": o.FloatingButton,
	})
	return fmt.Sprintf("window.__lunexa_config = %s;\n%s", cfg, triggersJS)
}

// evalJS wraps the setup script as a function for Page.Eval.
func (o TriggerOptions) evalJS() string {
	return "() => {\n" + o.setupJS() + "\n}"
}

// InstallTriggers adds the binding and injects the trigger script into the
// current document and every document loaded afterwards.
func (t *Tab) InstallTriggers(opts TriggerOptions, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(t.Page); err != nil {
		logger.Warn("browser: addBinding failed (may already exist)", "error", err)
	}

	if _, err := t.Page.EvalOnNewDocument(opts.setupJS()); err != nil {
		return fmt.Errorf("browser: register triggers: %w", err)
	}
	if _, err := t.Page.Eval(opts.evalJS()); err != nil {
		return fmt.Errorf("browser: inject triggers: %w", err)
	}
	logger.Debug("browser: triggers installed", "url", t.PageURL)
	return nil
}

// Listen delivers trigger events to fn until ctx is done. Malformed
// payloads are logged and skipped.
func (t *Tab) Listen(ctx context.Context, fn func(Event), logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	t.Page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != BindingName {
			return
		}
		ev, err := ParseEvent(e.Payload)
		if err != nil {
			logger.Warn("browser: bad binding payload", "error", err)
			return
		}
		fn(ev)
	})()
}
