package dispatch

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"

	"github.com/scrypster/luna-history/internal/storage"
)

// Status is the outcome of one tool call.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindInvalidInput     ErrorKind = "invalid_input"
	KindNotFound         ErrorKind = "not_found"
	KindStoreUnavailable ErrorKind = "store_unavailable"
)

// Error describes why a call did not produce data. Field names the
// offending parameter for invalid_input.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

// Result is the single response to a tool call.
type Result struct {
	Tool   string `json:"tool"`
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// IsError reports whether the caller should treat the result as a failed
// call. A missing entity is an ordinary answer, not a failure.
func (r Result) IsError() bool {
	return r.Error != nil && r.Error.Kind != KindNotFound
}

// classify converts an error from validation or a store into an Error.
func classify(err error) *Error {
	var fe *storage.FieldError
	switch {
	case errors.As(err, &fe):
		return &Error{Kind: KindInvalidInput, Field: fe.Field, Message: fe.Error()}
	case errors.Is(err, storage.ErrInvalidInput):
		return &Error{Kind: KindInvalidInput, Message: err.Error()}
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: err.Error()}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &Error{Kind: KindStoreUnavailable, Message: "store unavailable: " + err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindStoreUnavailable, Message: "store unavailable: " + err.Error()}
	default:
		return &Error{Kind: KindStoreUnavailable, Message: err.Error()}
	}
}

func statusFor(e *Error) Status {
	if e.Kind == KindNotFound {
		return StatusNotFound
	}
	return StatusError
}
