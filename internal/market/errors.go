package market

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable class of a caller-facing error.
type Kind string

const (
	KindConflict          Kind = "conflict"
	KindInvalidState      Kind = "invalid_state"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInsufficientPool  Kind = "insufficient_pool"
	KindBelowFloor        Kind = "below_floor"
	KindInvalidInput      Kind = "invalid_input"
	KindInternal          Kind = "internal"
)

// Error carries a Kind plus a human message. Two *Error values match under
// errors.Is when their kinds are equal, so the sentinels below can be used
// as targets regardless of message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrConflict          = &Error{Kind: KindConflict, Message: "conflict"}
	ErrInvalidState      = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden         = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrInsufficientPool  = &Error{Kind: KindInsufficientPool, Message: "insufficient free-agent pool"}
	ErrBelowFloor        = &Error{Kind: KindBelowFloor, Message: "bid below floor price"}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput, Message: "invalid input"}
)

// ErrInvariant marks a broken ledger invariant. It is never a caller-facing
// kind: KindOf reports it as KindInternal.
var ErrInvariant = errors.New("ledger invariant violated")

// Errorf builds a caller-facing error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal for anything that is not
// a market error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
