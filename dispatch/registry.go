// Package dispatch is the single-flight gate between finalized captures and
// the scoring service. It drops blank and repeated pairs, records the
// operation status around exactly one outbound request, and never retries.
package dispatch

import (
	"github.com/hazyhaar/lunexa/capture"
)

// Record is the last pair dispatched for a mode.
type Record struct {
	Mode         capture.Mode `json:"mode"`
	LastQuery    string       `json:"last_query"`
	LastResponse string       `json:"last_response"`
}

// Registry holds one Record per mode.
type Registry map[capture.Mode]Record

func (r Registry) clone() Registry {
	out := make(Registry, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Admit decides whether pair may be dispatched given reg. On acceptance it
// returns a copy of reg with pair recorded as the mode's last dispatch; reg
// itself is never modified. Blank pairs fail with EMPTY, and a pair equal to
// the last one dispatched for its mode fails with DUPLICATE.
func Admit(pair capture.Pair, reg Registry) (Registry, error) {
	if pair.Blank() {
		return reg, capture.ErrEmpty
	}
	if last, ok := reg[pair.Mode]; ok &&
		last.LastQuery == pair.Query && last.LastResponse == pair.Response {
		return reg, capture.ErrDuplicate
	}
	next := reg.clone()
	next[pair.Mode] = Record{Mode: pair.Mode, LastQuery: pair.Query, LastResponse: pair.Response}
	return next, nil
}
