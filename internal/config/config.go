// Package config loads lunexa's YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/lunexa/extract"
	"github.com/hazyhaar/lunexa/internal/browser"
	"github.com/hazyhaar/lunexa/scoring"
	"github.com/hazyhaar/lunexa/stability"
)

// Config is the full configuration.
type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Store    StoreConfig   `mapstructure:"store"`
	Scoring  ScoringConfig `mapstructure:"scoring"`
	Chat     ChatConfig    `mapstructure:"chat"`
	Browser  BrowserConfig `mapstructure:"browser"`
	HTTP     HTTPConfig    `mapstructure:"http"`
	Article  ArticleConfig `mapstructure:"article"`
}

type StoreConfig struct {
	Path          string        `mapstructure:"path"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

type ScoringConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ChatConfig struct {
	URL                string        `mapstructure:"url"`
	HostContains       string        `mapstructure:"host_contains"`
	GeneratingSelector string        `mapstructure:"generating_selector"`
	SendSelector       string        `mapstructure:"send_selector"`
	SampleInterval     time.Duration `mapstructure:"sample_interval"`
	StartDelay         time.Duration `mapstructure:"start_delay"`
	FloatingButton     bool          `mapstructure:"floating_button"`
}

type BrowserConfig struct {
	// Remote is a DevTools WebSocket URL. Empty launches a local Chrome.
	Remote           string   `mapstructure:"remote"`
	Headless         bool     `mapstructure:"headless"`
	Stealth          bool     `mapstructure:"stealth"`
	ResourceBlocking []string `mapstructure:"resource_blocking"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// PasswordHash is a bcrypt hash enabling basic auth. Empty disables it.
	PasswordHash string `mapstructure:"password_hash"`
}

type ArticleConfig struct {
	Format   string `mapstructure:"format"`
	MaxLen   int    `mapstructure:"max_len"`
	Selector string `mapstructure:"selector"`
}

// DefaultConfigPath returns ~/.config/lunexa/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate config dir: %w", err)
	}
	return filepath.Join(dir, "lunexa", "config.yaml"), nil
}

// defaults is the default configuration as a YAML-shaped tree. Durations
// are strings so the written file stays readable.
func defaults() map[string]any {
	return map[string]any{
		"log_level": "info",
		"store": map[string]any{
			"path":           "$HOME/.local/share/lunexa/lunexa.db",
			"watch_interval": "500ms",
			"watch_debounce": "100ms",
		},
		"scoring": map[string]any{
			"endpoint": scoring.DefaultEndpoint,
			"timeout":  scoring.DefaultTimeout.String(),
		},
		"chat": map[string]any{
			"url":                 "https://gemini.google.com/app",
			"host_contains":       "gemini.google.com",
			"generating_selector": browser.DefaultGeneratingSelector,
			"send_selector":       browser.DefaultSendSelector,
			"sample_interval":     stability.DefaultInterval.String(),
			"start_delay":         stability.DefaultStartDelay.String(),
			"floating_button":     true,
		},
		"browser": map[string]any{
			"remote":            "",
			"headless":          false,
			"stealth":           true,
			"resource_blocking": []string{"images", "fonts", "media"},
		},
		"http": map[string]any{
			"addr":          "127.0.0.1:8765",
			"password_hash": "",
		},
		"article": map[string]any{
			"format":   string(extract.FormatText),
			"max_len":  5000,
			"selector": "",
		},
	}
}

// flatten turns the tree into dotted keys.
func flatten(prefix string, tree map[string]any, out map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
}

// Validate checks values Load cannot type-check.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	u, err := url.Parse(strings.TrimSpace(c.Scoring.Endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("scoring.endpoint must be an absolute http(s) URL")
	}
	for name, d := range map[string]time.Duration{
		"scoring.timeout":      c.Scoring.Timeout,
		"chat.sample_interval": c.Chat.SampleInterval,
		"store.watch_interval": c.Store.WatchInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Chat.StartDelay < 0 {
		return fmt.Errorf("chat.start_delay must not be negative")
	}
	if _, err := extract.ParseFormat(c.Article.Format); err != nil {
		return fmt.Errorf("article.format: %w", err)
	}
	if c.Article.MaxLen < 0 {
		return fmt.Errorf("article.max_len must not be negative")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level %q: want debug, info, warn or error", s)
	}
	return l, nil
}

// ArticleOptions converts the article section.
func (c Config) ArticleOptions() extract.Options {
	f, _ := extract.ParseFormat(c.Article.Format)
	return extract.Options{Format: f, MaxLen: c.Article.MaxLen, Selector: c.Article.Selector}
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}
