package protocol

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories an operation can report.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidAddress
	KindInsufficientBalance
	KindExpired
	KindInvalidMapping
	KindInvalidProcessState
	KindUnauthorized
)

var kindNames = [...]string{
	KindUnknown:             "unknown",
	KindInvalidAddress:      "invalid_address",
	KindInsufficientBalance: "insufficient_balance",
	KindExpired:             "expired",
	KindInvalidMapping:      "invalid_mapping",
	KindInvalidProcessState: "invalid_process_state",
	KindUnauthorized:        "unauthorized",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Sentinels for errors.Is comparisons. An *Error matches the sentinel of its kind.
var (
	ErrInvalidAddress      = &Error{Kind: KindInvalidAddress}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrExpired             = &Error{Kind: KindExpired}
	ErrInvalidMapping      = &Error{Kind: KindInvalidMapping}
	ErrInvalidProcessState = &Error{Kind: KindInvalidProcessState}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
)

// Error is returned by every rejected engine operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

// KindOf extracts the kind of err, or KindUnknown if err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func fail(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func wrapFail(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}
