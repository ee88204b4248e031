package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// FailureKind classifies how a transport call failed.
type FailureKind int

const (
	// FailureTimeout means the attempt exceeded its time budget.
	FailureTimeout FailureKind = iota
	// FailureConnection means the service could not be reached.
	FailureConnection
	// FailureServiceRejected means the service answered with a transient
	// rejection (429, 5xx).
	FailureServiceRejected
	// FailureCancelled means the caller abandoned the request.
	FailureCancelled
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureConnection:
		return "connection"
	case FailureServiceRejected:
		return "service_rejected"
	case FailureCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TransportError wraps a transport-level failure with its kind. All kinds
// except FailureCancelled are safe to retry.
type TransportError struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps an error as a transport failure of the given kind.
func NewTransportError(kind FailureKind, err error) *TransportError {
	return &TransportError{Kind: kind, Err: err}
}

// FatalError marks a failure that must not be retried (auth rejection,
// malformed request). It propagates immediately through the retry loop.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return "fatal request failure"
	}
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError wraps an error as non-retryable.
func NewFatalError(err error) *FatalError {
	return &FatalError{Err: err}
}

// RetriesExhaustedError is returned after the last retry attempt fails. It
// wraps the final underlying failure.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error (or any error in its chain) is safe
// to retry: transport failures other than cancellation, network timeouts,
// connection resets, DNS failures. Fatal errors, circuit rejections, and
// caller cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Definitive non-retryable classes first.
	var fe *FatalError
	if errors.As(err, &fe) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind != FailureCancelled
	}

	// An attempt-level deadline is retryable; expiry of the request context
	// itself is caught by the retry loop's context check.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// ClassifyError returns a short label for the error's failure class, used in
// logs and metric labels.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	default:
	}

	var re *RetriesExhaustedError
	if errors.As(err, &re) {
		return "retries_exhausted"
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return "fatal"
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind.String()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
