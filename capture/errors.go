package capture

import "fmt"

// Kind classifies a failure.
type Kind int

const (
	KindGenerating Kind = iota + 1
	KindEmpty
	KindChanging
	KindUnstable
	KindDuplicate
	KindNetwork
	KindDecode
	KindContextInvalidated
)

var kindNames = map[Kind]string{
	KindGenerating:         "generating",
	KindEmpty:              "empty",
	KindChanging:           "changing",
	KindUnstable:           "unstable",
	KindDuplicate:          "duplicate",
	KindNetwork:            "network_failure",
	KindDecode:             "decode_failure",
	KindContextInvalidated: "context_invalidated",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Surfaced reports whether failures of this kind are shown to the user
// (written to the operation status). All other kinds are silent.
func (k Kind) Surfaced() bool {
	return k == KindNetwork || k == KindDecode
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of Op and Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or 0 when err is not classified.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}

// Sentinels for errors.Is.
var (
	ErrGenerating         = &Error{Kind: KindGenerating}
	ErrEmpty              = &Error{Kind: KindEmpty}
	ErrChanging           = &Error{Kind: KindChanging}
	ErrUnstable           = &Error{Kind: KindUnstable}
	ErrDuplicate          = &Error{Kind: KindDuplicate}
	ErrNetwork            = &Error{Kind: KindNetwork}
	ErrDecode             = &Error{Kind: KindDecode}
	ErrContextInvalidated = &Error{Kind: KindContextInvalidated}
)
