package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error kinds. Every failure that crosses a component boundary unwraps to one of these.
var (
	ErrEmbeddingService = errors.New("embedding service error")
	ErrStoreQuery       = errors.New("store query error")
	ErrStoreWrite       = errors.New("store write error")
	ErrFetch            = errors.New("fetch error")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Causes that are terminal for the input that produced them.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrEmptyEmbedding    = errors.New("empty embedding")
	ErrBadEmbedding      = errors.New("malformed embedding response")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrInvalidAdID       = errors.New("invalid ad id")
)

var terminal = []error{
	ErrMalformedPayload,
	ErrNotFound,
	ErrConflict,
	ErrEmptyEmbedding,
	ErrBadEmbedding,
	ErrDimensionMismatch,
	ErrInvalidQuery,
	ErrInvalidAdID,
}

// OpError attaches an error kind and the failing operation to a cause.
// errors.Is matches both the kind and anything in the cause chain.
type OpError struct {
	Kind      error
	Op        string
	Status    int // upstream HTTP status, 0 when not applicable
	Temporary bool
	Err       error
}

// NewOpError wraps err as a failure of kind during op.
func NewOpError(kind error, op string, err error) *OpError {
	return &OpError{Kind: kind, Op: op, Err: err}
}

// WithStatus records the upstream HTTP status. 5xx and 429 are marked temporary.
func (e *OpError) WithStatus(code int) *OpError {
	e.Status = code
	if code >= 500 || code == http.StatusTooManyRequests {
		e.Temporary = true
	}
	return e
}

// Transient marks the failure as worth retrying.
func (e *OpError) Transient() *OpError {
	e.Temporary = true
	return e
}

func (e *OpError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether err is a transient failure of an external call.
// Network errors, timeouts, 5xx and 429 are retryable. Malformed input, empty or
// mis-sized embeddings, conflicts and other 4xx are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	for _, t := range terminal {
		if errors.Is(err, t) {
			return false
		}
	}
	var op *OpError
	if errors.As(err, &op) {
		if op.Status != 0 {
			return op.Status >= 500 || op.Status == http.StatusTooManyRequests
		}
		if op.Temporary {
			return true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
