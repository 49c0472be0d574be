package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrBatchTooLarge = errors.New("batch too large")
	ErrBackpressure  = errors.New("backpressure")
	ErrNotFound      = errors.New("not found")
	ErrUnavailable   = errors.New("service unavailable")
	ErrInternal      = errors.New("internal error")
)

// OpError ties an error to the handler operation and the API error kind.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	switch {
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *OpError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewKind returns an error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &OpError{Op: op, Kind: kind}
}

// WrapKind returns err classified as kind.
func WrapKind(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}

// Wrap adds the operation to err. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}
