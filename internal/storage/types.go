package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable indicates a connection or schema failure in the
	// underlying database.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// FieldError is an ErrInvalidInput naming the offending parameter.
type FieldError struct {
	Field   string
	Message string
}

// InvalidField builds a *FieldError for field with a formatted message.
func InvalidField(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match.
func (e *FieldError) Unwrap() error { return ErrInvalidInput }

// StoreError wraps a database failure so that it matches ErrStoreUnavailable
// while keeping the driver error reachable.
type StoreError struct {
	Store string // "conversation" or "memory"
	Op    string
	Err   error
}

// Unavailable wraps err as a StoreError. A nil err yields nil.
func Unavailable(store, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Store: store, Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store unavailable: %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports true for ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// Page bounds a listing. Build one with query.Paginate so defaults and
// limits are applied consistently.
type Page struct {
	Limit  int
	Offset int
}
