package cart

import (
	"errors"
	"fmt"
)

// Kind classifies a failed cart operation for the UI.
type Kind string

const (
	KindLoginRequired   Kind = "LOGIN_REQUIRED"
	KindNetwork         Kind = "NETWORK"
	KindServer          Kind = "SERVER"
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindPaymentDeclined Kind = "PAYMENT_DECLINED"
	// KindCanceled marks a request superseded by a reset or abandoned by its caller.
	// It is returned to the caller but never stored on the cart.
	KindCanceled Kind = "CANCELED"
)

// Error is the normalized failure of a cart operation.
type Error struct {
	Kind    Kind   `json:"kind"`
	Op      string `json:"op,omitempty"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func NewError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether offering a manual retry makes sense.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// KindOf returns the Kind of err, or KindServer for errors that were never normalized.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindServer
}
