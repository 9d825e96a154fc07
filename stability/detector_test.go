package stability

import (
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/lunexa/capture"
)

func obs(resp string) Observation {
	return Observation{Query: "what is go?", Response: resp}
}

func TestCheck_Scenario(t *testing.T) {
	v, st := Check(obs(""), State{})
	if v.Ready || v.Kind != capture.KindEmpty {
		t.Fatalf("blank: got %+v", v)
	}
	if st != (State{}) {
		t.Fatalf("blank must not change state, got %+v", st)
	}

	v, st = Check(obs("hello"), st)
	if v.Kind != capture.KindChanging {
		t.Fatalf("first sample: got %v, want changing", v.Kind)
	}
	if st.LastLength != 5 || st.StableCount != 0 {
		t.Fatalf("state after first sample: %+v", st)
	}

	v, st = Check(obs("hello"), st)
	if v.Kind != capture.KindUnstable || v.StableCount != 1 {
		t.Fatalf("second sample: got %+v, want unstable(1)", v)
	}

	v, st = Check(obs("hello"), st)
	if !v.Ready {
		t.Fatalf("third sample: got %+v, want ready", v)
	}
	if v.Response != "hello" || v.Query != "what is go?" {
		t.Errorf("ready pair: %q / %q", v.Query, v.Response)
	}
	if st != (State{}) {
		t.Errorf("state not reset after success: %+v", st)
	}
}

func TestCheck_GeneratingLeavesState(t *testing.T) {
	st := State{LastLength: 7, StableCount: 1}
	o := obs("abcdefg")
	o.Generating = true
	v, next := Check(o, st)
	if v.Kind != capture.KindGenerating {
		t.Fatalf("got %v, want generating", v.Kind)
	}
	if next != st {
		t.Errorf("state changed: %+v", next)
	}
}

func TestCheck_EmptyQuery(t *testing.T) {
	v, _ := Check(Observation{Query: "  ", Response: "answer"}, State{})
	if v.Kind != capture.KindEmpty {
		t.Fatalf("got %v, want empty", v.Kind)
	}
}

func TestCheck_StrictlyIncreasingNeverReady(t *testing.T) {
	var st State
	var v Verdict
	for i := 1; i <= 50; i++ {
		v, st = Check(obs(strings.Repeat("x", i)), st)
		if v.Ready {
			t.Fatalf("ready at length %d", i)
		}
		if v.Kind != capture.KindChanging {
			t.Fatalf("length %d: got %v, want changing", i, v.Kind)
		}
	}
}

func TestCheck_TogglingNeverReady(t *testing.T) {
	var st State
	var v Verdict
	for i := 0; i < 100; i++ {
		resp := "abcd"
		if i%2 == 1 {
			resp = "abcde"
		}
		v, st = Check(obs(resp), st)
		if v.Ready {
			t.Fatalf("sample %d: ready while toggling", i)
		}
		if v.Kind != capture.KindChanging {
			t.Fatalf("sample %d: got %v, want changing", i, v.Kind)
		}
	}
}

func TestCheck_ChangeResetsCount(t *testing.T) {
	st := State{LastLength: 5, StableCount: 1}
	v, st := Check(obs("hello!"), st)
	if v.Kind != capture.KindChanging || st.StableCount != 0 || st.LastLength != 6 {
		t.Fatalf("got %+v %+v", v, st)
	}
}

func TestCheck_TrimsAndCountsRunes(t *testing.T) {
	st := State{LastLength: 3}
	v, st := Check(Observation{Query: " q ", Response: "  héé \n"}, st)
	if v.Kind != capture.KindUnstable {
		t.Fatalf("got %v, want unstable (3 runes)", v.Kind)
	}
	v, _ = Check(Observation{Query: " q ", Response: "héé"}, st)
	if !v.Ready || v.Response != "héé" || v.Query != "q" {
		t.Fatalf("got %+v", v)
	}
}

func TestVerdict_Err(t *testing.T) {
	if err := (Verdict{Ready: true}).Err(); err != nil {
		t.Fatalf("ready verdict has error: %v", err)
	}
	err := Verdict{Kind: capture.KindUnstable, StableCount: 1}.Err()
	if !errors.Is(err, capture.ErrUnstable) {
		t.Fatalf("err = %v", err)
	}
	if capture.KindOf(err).Surfaced() {
		t.Error("unstable must not be surfaced")
	}
}
