/*
errors.go - Centralized error types for scheme costing

PURPOSE:
  All error kinds a costing request can end in, in one place. Every layer
  wraps these sentinels so the batch boundary can classify any failure with
  KindOf() and turn it into a per-request failure record.

ERROR KINDS:
  ConfigNotFound      no stored document for the scheme id
  ConfigMalformed     required section missing, bad date, non-numeric bound
  LoadError           the datastore failed while fetching sales
  EmptyScheme         no sales match the filters (reported as success, no data)
  Timeout             the request deadline expired
  InternalArithmetic  any arithmetic fault other than division by zero
  InvalidRequest      unknown calculation type, additional index out of range

SEE ALSO:
  - batch/batch.go: converts errors into Response records
*/
package scheme

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrConfigNotFound     = errors.New("scheme config not found")
	ErrConfigMalformed    = errors.New("scheme config malformed")
	ErrLoad               = errors.New("sales load failed")
	ErrEmptyScheme        = errors.New("no sales match the scheme filters")
	ErrTimeout            = errors.New("request timed out")
	ErrInternalArithmetic = errors.New("internal arithmetic fault")
	ErrInvalidRequest     = errors.New("invalid request")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MalformedError names the offending field of a scheme document.
type MalformedError struct {
	SchemeID string
	Field    string
	Reason   string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("scheme %s: malformed %s: %s", e.SchemeID, e.Field, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrConfigMalformed }

// LoadError wraps a datastore failure. Transient failures are retried once.
type LoadError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrLoad.Error(), e.Op, e.Err)
}

func (e *LoadError) Unwrap() []error { return []error{ErrLoad, e.Err} }

// NewLoadError classifies err and wraps it.
func NewLoadError(op string, err error) *LoadError {
	return &LoadError{Op: op, Transient: IsTransient(err), Err: err}
}

// =============================================================================
// ERROR KINDS
// =============================================================================

// ErrorKind is the stable name of an error class on the response surface.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindConfigNotFound     ErrorKind = "ConfigNotFound"
	KindConfigMalformed    ErrorKind = "ConfigMalformed"
	KindLoadError          ErrorKind = "LoadError"
	KindEmptyScheme        ErrorKind = "EmptyScheme"
	KindTimeout            ErrorKind = "Timeout"
	KindInternalArithmetic ErrorKind = "InternalArithmetic"
	KindInvalidRequest     ErrorKind = "InvalidRequest"
)

// KindOf classifies err. Unknown errors count as InternalArithmetic: the only
// faults that reach the boundary unclassified come from the calculation itself.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrConfigNotFound):
		return KindConfigNotFound
	case errors.Is(err, ErrConfigMalformed):
		return KindConfigMalformed
	case errors.Is(err, ErrLoad):
		return KindLoadError
	case errors.Is(err, ErrEmptyScheme):
		return KindEmptyScheme
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	default:
		return KindInternalArithmetic
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsTransient reports transport-level failures worth one retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var le *LoadError
	if errors.As(err, &le) {
		return le.Transient
	}
	return false
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLoad) && IsTransient(err)
}

// IsClientError returns true if the error is due to the request or stored config.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConfigMalformed) ||
		errors.Is(err, ErrInvalidRequest)
}

// IsNotFound returns true if the error indicates a missing scheme.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound)
}
