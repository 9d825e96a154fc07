package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// NavigateTimeout bounds navigation and the initial load wait.
const NavigateTimeout = 30 * time.Second

// Tab wraps a Rod page opened on the chat service.
type Tab struct {
	Page    *rod.Page
	PageURL string
	router  *rod.HijackRouter
}

// OpenTab creates a tab, navigates to pageURL and waits for load.
// Stealth evasions and resource blocking follow the manager config.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, PageURL: pageURL}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.router = blockResources(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// HTML serialises the current document as outer HTML.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Location returns the page's current URL, which differs from PageURL
// once the chat service redirects or the user navigates.
func (t *Tab) Location(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", fmt.Errorf("browser: location: %w", err)
	}
	return res.Value.Str(), nil
}

// Host returns the hostname of the current page.
func (t *Tab) Host(ctx context.Context) (string, error) {
	loc, err := t.Location(ctx)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("browser: parse location: %w", err)
	}
	return u.Hostname(), nil
}

// Close stops resource blocking and closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		_ = t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
