// Package report turns an operation status into what the user sees: score
// strings, the CARS ring position, the reliability level and a terminal
// rendering of the whole card.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/lunexa/capture"
	"github.com/hazyhaar/lunexa/scoring"
	"github.com/hazyhaar/lunexa/store"
)

// RingRadius is the radius of the CARS ring.
const RingRadius = 54

// RingCircumference is the stroke length of a full ring.
var RingCircumference = 2 * math.Pi * RingRadius

// FormatScore renders a percentage with two decimals, "--" when absent.
func FormatScore(v *float64) string {
	if v == nil {
		return "--"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

// NormalizeCARS maps a CARS value from [-100, 100] onto [0, 100].
func NormalizeCARS(v float64) float64 {
	switch {
	case v >= 100:
		return 100
	case v <= -100:
		return 0
	}
	return (v + 100) / 200 * 100
}

// RingOffset is the stroke-dashoffset that fills the ring to v.
func RingOffset(v float64) float64 {
	return RingCircumference - NormalizeCARS(v)/100*RingCircumference
}

// Level is a reliability band.
type Level struct {
	Class string `json:"class"` // excellent, good, warning, danger
	Label string `json:"label"`
}

var (
	LevelExcellent = Level{"excellent", "Excellent Reliability"}
	LevelGood      = Level{"good", "Good Reliability"}
	LevelWarning   = Level{"warning", "Moderate Concerns"}
	LevelDanger    = Level{"danger", "High Risk Detected"}
)

// LevelFor classifies a CARS value.
func LevelFor(cars float64) Level {
	switch {
	case cars >= 8:
		return LevelExcellent
	case cars >= 5:
		return LevelGood
	case cars >= 0:
		return LevelWarning
	}
	return LevelDanger
}

// State of a card.
type State string

const (
	StateLoading State = "loading"
	StateEmpty   State = "empty"
	StateResult  State = "result"
	StateError   State = "error"
)

// Metric is one row of the detail table.
type Metric struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// View is the renderable state of one mode.
type View struct {
	Mode       capture.Mode `json:"mode"`
	State      State        `json:"state"`
	CARS       string       `json:"cars,omitempty"`
	RingOffset float64      `json:"ring_offset,omitempty"`
	Level      *Level       `json:"level,omitempty"`
	Metrics    []Metric     `json:"metrics,omitempty"`
	Query      string       `json:"query,omitempty"`
	Response   string       `json:"response,omitempty"`
	Timestamp  *time.Time   `json:"timestamp,omitempty"`
	Error      string       `json:"error,omitempty"`
}

func metrics(s scoring.Scores) []Metric {
	return []Metric{
		{"factual-accuracy", "Factual Accuracy", FormatScore(s.FactualAccuracy)},
		{"reasoning-integrity", "Reasoning Integrity", FormatScore(s.ReasoningIntegrity)},
		{"evidence-alignment", "Evidence Alignment", FormatScore(s.EvidenceAlignment)},
		{"consistency", "Consistency", FormatScore(s.Consistency)},
		{"fake-news", "Fake News Likelihood", FormatScore(s.FakeNewsLikelihood)},
		{"trust-confidence", "Trust Confidence", FormatScore(s.TrustConfidenceScore)},
		{"hallucination-prob", "Hallucination Probability", FormatScore(s.HallucinationProbability)},
	}
}

// BuildView derives the card for st. An in-flight operation shows the
// loader whatever else is stored; a failure shows the error above the
// previous result, if any.
func BuildView(mode capture.Mode, st store.OperationStatus) View {
	v := View{Mode: mode}
	switch {
	case st.InFlight:
		v.State = StateLoading
		return v
	case st.Error != nil:
		v.State = StateError
		v.Error = *st.Error
	case st.Result != nil:
		v.State = StateResult
	default:
		v.State = StateEmpty
		return v
	}

	if r := st.Result; r != nil {
		cars := 0.0
		if r.Scores.CARS != nil {
			cars = *r.Scores.CARS
		}
		lvl := LevelFor(cars)
		v.CARS = FormatScore(&cars)
		v.RingOffset = RingOffset(cars)
		v.Level = &lvl
		v.Metrics = metrics(r.Scores)
		v.Query = orNA(r.Query)
		v.Response = orNA(r.Response)
		if !r.Timestamp.IsZero() {
			ts := r.Timestamp
			v.Timestamp = &ts
		}
	}
	return v
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// PreviewLen is the number of runes shown of a selection.
const PreviewLen = 150

// Preview summarizes the stored selection.
type Preview struct {
	Text  string `json:"text"`
	Chars int    `json:"chars"`
	Words int    `json:"words"`
}

// SelectionPreview returns the preview of text, with a placeholder when
// nothing is selected.
func SelectionPreview(text string) Preview {
	if text == "" {
		return Preview{Text: "No text selected yet"}
	}
	p := Preview{
		Text:  text,
		Chars: utf8.RuneCountInString(text),
		Words: len(strings.Fields(text)),
	}
	if p.Chars > PreviewLen {
		p.Text = capture.Truncate(text, PreviewLen) + "..."
	}
	return p
}
