package orca

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindUnsupported  ErrorKind = "unsupported"
	KindCanceled     ErrorKind = "canceled"
	KindInternal     ErrorKind = "internal"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported parameter")
	ErrCanceled     = errors.New("computation canceled")
	ErrInternal     = errors.New("internal computation error")
)

// Error is returned by every exported operation of the package. Op names the
// operation that failed and Err keeps the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("orca %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("orca %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrUnsupported:
		return e.Kind == KindUnsupported
	case ErrCanceled:
		return e.Kind == KindCanceled
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return false
}

func invalidf(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

func unsupportedf(op, format string, args ...any) *Error {
	return &Error{Kind: KindUnsupported, Op: op, Err: fmt.Errorf(format, args...)}
}

func wrapContext(op string, err error) *Error {
	return &Error{Kind: KindCanceled, Op: op, Err: err}
}

// KindOf reports the failure kind of err. Errors wrapping one of the sentinels
// take its kind, context errors are canceled and anything else is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrCanceled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindInternal
}
