package ledger

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrSessionExpired = errors.New("ledger: session expired (401)")
	ErrIntentNotFound = errors.New("ledger: intent not found")
	ErrUnavailable    = errors.New("ledger: host unreachable or transport failure")
	ErrServerError    = errors.New("ledger: internal error (5xx)")
	ErrBadResponse    = errors.New("ledger: invalid response format or malformed data")
)

// APIError is a rich error type that wraps the sentinel errors with context.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // Nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("ledger: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

// RejectionError is a semantic rejection from the ledger (HTTP 409/422).
// It always carries the server-supplied failure code and is non-retriable
// for the attempt that triggered it.
type RejectionError struct {
	Operation   string
	Status      int
	FailureCode string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("ledger: %s rejected (HTTP %d): %s", e.Operation, e.Status, e.FailureCode)
}

// AsRejection unwraps err into a *RejectionError if it is one.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
