// Package capture defines what the detector produces and the gate consumes:
// the operating mode, the captured query/response pair, and the error
// taxonomy shared by every stage.
package capture

import (
	"fmt"
	"strings"
)

// Mode is the context a capture was taken in. It keys every piece of
// per-mode state (dispatch records, operation status).
type Mode string

const (
	ModePrimary   Mode = "primary"   // the chat assistant page
	ModeArticle   Mode = "article"   // article body of the active page
	ModeSelection Mode = "selection" // text the user selected
)

// Modes lists every valid mode.
var Modes = []Mode{ModePrimary, ModeArticle, ModeSelection}

// Valid reports whether m is one of Modes.
func (m Mode) Valid() bool {
	switch m {
	case ModePrimary, ModeArticle, ModeSelection:
		return true
	}
	return false
}

func (m Mode) String() string { return string(m) }

// ParseMode accepts the mode names plus the legacy "gemini" alias for the
// primary mode. The empty string is the primary mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "primary", "gemini":
		return ModePrimary, nil
	case "article":
		return ModeArticle, nil
	case "selection":
		return ModeSelection, nil
	}
	return "", fmt.Errorf("capture: unknown mode %q", s)
}

const (
	// MaxTextLen caps article and selection payloads, in runes.
	MaxTextLen = 5000

	SelectionQuery     = "Text Selection Analysis"
	ArticleQueryPrefix = "Article Analysis: "
)

// Pair is a finalized query/response capture.
type Pair struct {
	Query    string `json:"query"`
	Response string `json:"response"`
	Mode     Mode   `json:"mode"`
}

// Blank reports whether the query or the response is empty or whitespace.
func (p Pair) Blank() bool {
	return strings.TrimSpace(p.Query) == "" || strings.TrimSpace(p.Response) == ""
}

// Truncate returns s cut to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
