package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/internal/shield"
	"github.com/hazyhaar/lunexa/store"
)

// Event is one server-sent event on /api/events.
type Event struct {
	Type      string                         `json:"type"` // snapshot or change
	Keys      []string                       `json:"keys,omitempty"`
	External  bool                           `json:"external,omitempty"`
	Mode      capture.Mode                   `json:"current_mode,omitempty"`
	Statuses  map[capture.Mode]StatusPayload `json:"statuses,omitempty"`
	Timestamp time.Time                      `json:"timestamp"`
}

// modesOf returns the modes whose status keys appear in keys. External
// changes carry no keys and affect every mode.
func modesOf(c store.Change) []capture.Mode {
	if c.External {
		return capture.Modes
	}
	var out []capture.Mode
	seen := map[capture.Mode]bool{}
	for _, k := range c.Keys {
		i := strings.LastIndexByte(k, '_')
		if i < 0 {
			continue
		}
		m := capture.Mode(k[i+1:])
		if m.Valid() && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonErr(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	log := shield.GetLogger(ctx)

	ch, cancel := s.store.Subscribe(32)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snapshot := s.buildEvent(ctx, "snapshot", store.Change{External: true})
	writeEvent(w, snapshot)
	flusher.Flush()
	log.Info("httpapi: event stream opened")

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("httpapi: event stream closed")
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case c, ok := <-ch:
			if !ok {
				return
			}
			ev := s.buildEvent(ctx, "change", c)
			ev.External = c.External
			writeEvent(w, ev)
			flusher.Flush()
		}
	}
}

func (s *Server) buildEvent(ctx context.Context, typ string, c store.Change) Event {
	ev := Event{Type: typ, Keys: c.Keys, Timestamp: time.Now().UTC()}
	if m, err := s.store.CurrentMode(ctx); err == nil {
		ev.Mode = m
	}
	modes := modesOf(c)
	if len(modes) > 0 {
		ev.Statuses = make(map[capture.Mode]StatusPayload, len(modes))
		for _, m := range modes {
			if p, err := s.statusPayload(ctx, m); err == nil {
				ev.Statuses[m] = p
			}
		}
	}
	return ev
}

func writeEvent(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
