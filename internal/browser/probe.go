package browser

import (
	"context"
	"fmt"

	"github.com/hazyhaar/lunexa/stability"
)

// Default page selectors for the chat service.
const (
	DefaultGeneratingSelector = `button[aria-label*="Stop generating"]`
	DefaultSendSelector       = `button.send-button, button[aria-label*="Send"]`
)

// ChatProbe reads the latest query, the latest response and the
// generating indicator from a chat tab. It implements stability.Probe.
type ChatProbe struct {
	*Tab

	// GeneratingSelector matches an element present only while the
	// assistant is streaming.
	GeneratingSelector string
}

// NewChatProbe returns a probe over tab. An empty selector uses
// DefaultGeneratingSelector.
func NewChatProbe(tab *Tab, generatingSelector string) *ChatProbe {
	if generatingSelector == "" {
		generatingSelector = DefaultGeneratingSelector
	}
	return &ChatProbe{Tab: tab, GeneratingSelector: generatingSelector}
}

// The latest query is the last short div holding a paragraph; the latest
// response is the last div with substantial text.
const observeJS = `(generatingSel) => {
	const divs = Array.from(document.querySelectorAll('div'));
	const queries = divs.filter(d => {
		const t = (d.innerText || '').trim();
		return t.length > 0 && t.length < 500 && d.querySelector('p');
	});
	const responses = divs.filter(d => (d.innerText || '').trim().length > 50);
	const last = xs => xs.length ? xs[xs.length - 1].innerText.trim() : '';
	return {
		query: last(queries),
		response: last(responses),
		generating: !!document.querySelector(generatingSel),
	};
}`

type observeResult struct {
	Query      string `json:"query"`
	Response   string `json:"response"`
	Generating bool   `json:"generating"`
}

// Observe samples the page once.
func (p *ChatProbe) Observe(ctx context.Context) (stability.Observation, error) {
	res, err := p.Page.Context(ctx).Eval(observeJS, p.GeneratingSelector)
	if err != nil {
		return stability.Observation{}, fmt.Errorf("browser: observe: %w", err)
	}
	var out observeResult
	if err := res.Value.Unmarshal(&out); err != nil {
		return stability.Observation{}, fmt.Errorf("browser: observe decode: %w", err)
	}
	return stability.Observation{
		Query:      out.Query,
		Response:   out.Response,
		Generating: out.Generating,
	}, nil
}
