// Package stability decides when a streaming chat response has stopped
// changing. It samples the page passively: the response is final once its
// length has been observed unchanged Threshold times in a row.
//
// Check is pure and owns no timers; Scheduler drives it on a fixed delay and
// holds the single pending timer per source.
package stability

import (
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/lunexa/capture"
)

// Threshold is the number of consecutive unchanged samples, after the one
// that establishes the length, before a response is final.
const Threshold = 2

// Observation is what a probe reads from the page at one instant.
type Observation struct {
	Query      string
	Response   string
	Generating bool // the page exposes a busy indicator (stop button)
}

// Sample is the snapshot compared against the previous one.
type Sample struct {
	Length     int
	ObservedAt uint64 // logical tick
}

// State is the per-source bookkeeping. The zero value is the initial state.
type State struct {
	LastLength  int
	StableCount int
}

// Verdict is the outcome of one Check.
type Verdict struct {
	Ready       bool
	Kind        capture.Kind // set when !Ready
	StableCount int          // meaningful for KindUnstable
	Query       string       // set when Ready
	Response    string       // set when Ready
}

// Err returns the classified soft failure, or nil when Ready.
func (v Verdict) Err() error {
	if v.Ready {
		return nil
	}
	if v.Kind == capture.KindUnstable {
		return capture.Errorf(capture.KindUnstable, "stability", "%d/%d", v.StableCount, Threshold)
	}
	return &capture.Error{Kind: v.Kind, Op: "stability"}
}

// Check compares obs against st and returns the verdict and the next state.
//
//   - generating: GENERATING, state unchanged
//   - blank query or response: EMPTY, state unchanged
//   - length differs from st.LastLength: CHANGING, state {length, 0}
//   - otherwise StableCount+1; below Threshold: UNSTABLE(count)
//   - at Threshold: Ready with the trimmed texts, state reset
func Check(obs Observation, st State) (Verdict, State) {
	if obs.Generating {
		return Verdict{Kind: capture.KindGenerating}, st
	}

	query := strings.TrimSpace(obs.Query)
	response := strings.TrimSpace(obs.Response)
	if query == "" || response == "" {
		return Verdict{Kind: capture.KindEmpty}, st
	}

	n := utf8.RuneCountInString(response)
	if n != st.LastLength {
		return Verdict{Kind: capture.KindChanging}, State{LastLength: n}
	}

	count := st.StableCount + 1
	if count < Threshold {
		return Verdict{Kind: capture.KindUnstable, StableCount: count}, State{LastLength: n, StableCount: count}
	}
	return Verdict{Ready: true, StableCount: count, Query: query, Response: response}, State{}
}
