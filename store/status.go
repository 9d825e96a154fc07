package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/scoring"
)

const (
	KeySelectedText   = "selectedText"
	KeyCurrentMode    = "currentMode"
	KeyPopupRequested = "popupRequested"
)

// ResultKey, AnalyzingKey and ErrorKey name the per-mode status entries.
func ResultKey(m capture.Mode) string    { return "result_" + string(m) }
func AnalyzingKey(m capture.Mode) string { return "isAnalyzing_" + string(m) }
func ErrorKey(m capture.Mode) string     { return "error_" + string(m) }

// Result is a scoring reply augmented with the pair it scored.
type Result struct {
	Scores     scoring.Scores  `json:"scores"`
	Details    json.RawMessage `json:"details,omitempty"`
	Mode       capture.Mode    `json:"mode"`
	Timestamp  time.Time       `json:"timestamp"`
	Query      string          `json:"query"`
	Response   string          `json:"response"`
	DispatchID string          `json:"dispatch_id,omitempty"`
}

// OperationStatus is the per-mode state the presentation layer renders.
type OperationStatus struct {
	Mode     capture.Mode `json:"mode"`
	InFlight bool         `json:"isAnalyzing"`
	Result   *Result      `json:"result"`
	Error    *string      `json:"error"`
}

// Status reads the three status keys of mode.
func (s *Store) Status(ctx context.Context, mode capture.Mode) (OperationStatus, error) {
	st := OperationStatus{Mode: mode}
	if _, err := s.Get(ctx, AnalyzingKey(mode), &st.InFlight); err != nil {
		return st, err
	}
	if _, err := s.Get(ctx, ResultKey(mode), &st.Result); err != nil {
		return st, err
	}
	if _, err := s.Get(ctx, ErrorKey(mode), &st.Error); err != nil {
		return st, err
	}
	return st, nil
}

// MarkStarted records an accepted dispatch: in flight, error cleared.
func (s *Store) MarkStarted(ctx context.Context, mode capture.Mode) error {
	return s.Set(ctx, map[string]any{
		AnalyzingKey(mode): true,
		ErrorKey(mode):     nil,
	})
}

// MarkSucceeded stores res and clears the in-flight flag and the error.
func (s *Store) MarkSucceeded(ctx context.Context, mode capture.Mode, res Result) error {
	if res.Mode == "" {
		res.Mode = mode
	}
	return s.Set(ctx, map[string]any{
		ResultKey(mode):    res,
		AnalyzingKey(mode): false,
		ErrorKey(mode):     nil,
	})
}

// MarkFailed records msg and clears the in-flight flag. The previous result
// is kept.
func (s *Store) MarkFailed(ctx context.Context, mode capture.Mode, msg string) error {
	return s.Set(ctx, map[string]any{
		AnalyzingKey(mode): false,
		ErrorKey(mode):     msg,
	})
}

// ClearStatus removes every status key of mode.
func (s *Store) ClearStatus(ctx context.Context, mode capture.Mode) error {
	return s.Remove(ctx, ResultKey(mode), AnalyzingKey(mode), ErrorKey(mode))
}

// SelectedText returns the last stored selection, or "".
func (s *Store) SelectedText(ctx context.Context) (string, error) {
	var text string
	_, err := s.Get(ctx, KeySelectedText, &text)
	return text, err
}

// SetSelectedText stores the current selection.
func (s *Store) SetSelectedText(ctx context.Context, text string) error {
	return s.Set(ctx, map[string]any{KeySelectedText: text})
}

// CurrentMode returns the mode the presentation layer shows, primary when
// unset.
func (s *Store) CurrentMode(ctx context.Context) (capture.Mode, error) {
	var raw string
	ok, err := s.Get(ctx, KeyCurrentMode, &raw)
	if err != nil || !ok {
		return capture.ModePrimary, err
	}
	m, err := capture.ParseMode(raw)
	if err != nil {
		return capture.ModePrimary, fmt.Errorf("store: %s: %w", KeyCurrentMode, err)
	}
	return m, nil
}

// SetCurrentMode stores m.
func (s *Store) SetCurrentMode(ctx context.Context, m capture.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("store: invalid mode %q", m)
	}
	return s.Set(ctx, map[string]any{KeyCurrentMode: m})
}

// RequestPopup records that the page asked for the report view. Watchers
// of the store (the SSE stream) see the write and bring the view forward.
func (s *Store) RequestPopup(ctx context.Context) error {
	return s.Set(ctx, map[string]any{KeyPopupRequested: s.cfg.Now().UnixMilli()})
}
