package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/lunexa/extract"
	"github.com/hazyhaar/lunexa/scoring"
	"github.com/hazyhaar/lunexa/stability"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scoring.Endpoint != scoring.DefaultEndpoint {
		t.Errorf("endpoint = %q", cfg.Scoring.Endpoint)
	}
	if cfg.Chat.SampleInterval != stability.DefaultInterval || cfg.Chat.StartDelay != stability.DefaultStartDelay {
		t.Errorf("chat timings = %v / %v", cfg.Chat.SampleInterval, cfg.Chat.StartDelay)
	}
	if !cfg.Browser.Stealth || len(cfg.Browser.ResourceBlocking) != 3 {
		t.Errorf("browser = %+v", cfg.Browser)
	}
	if strings.Contains(cfg.Store.Path, "$HOME") {
		t.Errorf("store path not expanded: %q", cfg.Store.Path)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
scoring:
  endpoint: https://scores.example.com/check
  timeout: 5s
chat:
  sample_interval: 750ms
article:
  format: markdown
  max_len: 2000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scoring.Endpoint != "https://scores.example.com/check" || cfg.Scoring.Timeout != 5*time.Second {
		t.Errorf("scoring = %+v", cfg.Scoring)
	}
	if cfg.Chat.SampleInterval != 750*time.Millisecond {
		t.Errorf("sample interval = %v", cfg.Chat.SampleInterval)
	}
	if cfg.Chat.HostContains != "gemini.google.com" {
		t.Errorf("unset key lost its default: %q", cfg.Chat.HostContains)
	}
	opts := cfg.ArticleOptions()
	if opts.Format != extract.FormatMarkdown || opts.MaxLen != 2000 {
		t.Errorf("article options = %+v", opts)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LUNEXA_HTTP_ADDR", "0.0.0.0:9000")
	cfg, err := Load(writeConfig(t, `log_level: info`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != "0.0.0.0:9000" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"scoring.endpoint":     "scoring:\n  endpoint: localhost:5000/check",
		"chat.sample_interval": "chat:\n  sample_interval: 0s",
		"article.format":       "article:\n  format: pdf",
		"log_level":            "log_level: loud",
	}
	for want, content := range cases {
		t.Run(want, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil || !strings.Contains(err.Error(), want) {
				t.Fatalf("expected %s error, got %v", want, err)
			}
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	got, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if got != path {
		t.Errorf("path = %q", got)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "sample_interval: 2s") {
		t.Errorf("durations not written as strings:\n%s", data)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load written default: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Error("overwrote existing config")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Errorf("overwrite: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error", "INFO"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): %v", s, err)
		}
	}
}
