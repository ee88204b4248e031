package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient_TransportErrorKinds(t *testing.T) {
	tests := []struct {
		kind FailureKind
		want bool
	}{
		{FailureTimeout, true},
		{FailureConnection, true},
		{FailureServiceRejected, true},
		{FailureCancelled, false},
	}
	for _, tt := range tests {
		err := NewTransportError(tt.kind, errors.New("boom"))
		assert.Equal(t, tt.want, IsTransient(err), "kind %s", tt.kind)
	}
}

func TestIsTransient_WrappedTransportError(t *testing.T) {
	inner := NewTransportError(FailureServiceRejected, errors.New("rate limited"))
	wrapped := fmt.Errorf("api call failed: %w", inner)
	assert.True(t, IsTransient(wrapped))
}

func TestIsTransient_NilError(t *testing.T) {
	assert.False(t, IsTransient(nil))
}

func TestIsTransient_RegularError(t *testing.T) {
	err := errors.New("invalid input: missing field")
	assert.False(t, IsTransient(err))
}

func TestIsTransient_FatalError(t *testing.T) {
	// Even when the wrapped cause looks transient, fatal wins.
	err := NewFatalError(fmt.Errorf("auth rejected: %w", syscall.ECONNRESET))
	assert.False(t, IsTransient(err))
}

func TestIsTransient_CircuitOpen(t *testing.T) {
	assert.False(t, IsTransient(ErrCircuitOpen), "circuit rejection must not be a retry trigger")
	wrapped := fmt.Errorf("call failed: %w", ErrCircuitOpen)
	assert.False(t, IsTransient(wrapped))
}

func TestIsTransient_ContextErrors(t *testing.T) {
	assert.False(t, IsTransient(context.Canceled), "caller cancellation should not be transient")
	assert.True(t, IsTransient(context.DeadlineExceeded), "attempt deadline should be transient")
}

func TestIsTransient_ConnectionReset(t *testing.T) {
	err := fmt.Errorf("write tcp: %w", syscall.ECONNRESET)
	assert.True(t, IsTransient(err))
}

func TestIsTransient_ConnectionRefused(t *testing.T) {
	err := fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	assert.True(t, IsTransient(err))
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	assert.True(t, IsTransient(err))
}

func TestIsTransient_StringPatterns(t *testing.T) {
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"TLS handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range patterns {
		assert.True(t, IsTransient(errors.New(p)), "expected %q to be transient", p)
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504}
	for _, code := range transient {
		assert.True(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}

	permanent := []int{200, 201, 400, 401, 403, 404, 405, 409, 422}
	for _, code := range permanent {
		assert.False(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := &TransportError{Kind: FailureServiceRejected, StatusCode: 500, Err: inner}

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 500, te.StatusCode)
}

func TestTransportError_ErrorMessage(t *testing.T) {
	te := NewTransportError(FailureTimeout, errors.New("deadline hit"))
	assert.Equal(t, "timeout: deadline hit", te.Error())

	bare := &TransportError{Kind: FailureConnection}
	assert.Equal(t, "connection", bare.Error())
}

func TestFatalError_Messages(t *testing.T) {
	fe := NewFatalError(errors.New("forbidden"))
	assert.Equal(t, "fatal: forbidden", fe.Error())
	assert.ErrorIs(t, fe, fe.Err)
}

func TestRetriesExhaustedError_WrapsLastFailure(t *testing.T) {
	last := NewTransportError(FailureTimeout, errors.New("deadline"))
	re := &RetriesExhaustedError{Attempts: 4, Err: last}

	assert.ErrorIs(t, re, last.Err)
	var te *TransportError
	require.ErrorAs(t, re, &te)
	assert.Equal(t, FailureTimeout, te.Kind)
	assert.Equal(t, "retries exhausted after 4 attempts: timeout: deadline", re.Error())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"circuit open", ErrCircuitOpen, "circuit_open"},
		{"wrapped circuit open", fmt.Errorf("x: %w", ErrCircuitOpen), "circuit_open"},
		{"retries exhausted", &RetriesExhaustedError{Attempts: 2, Err: errors.New("x")}, "retries_exhausted"},
		{"fatal", NewFatalError(errors.New("x")), "fatal"},
		{"timeout kind", NewTransportError(FailureTimeout, errors.New("x")), "timeout"},
		{"cancelled kind", NewTransportError(FailureCancelled, errors.New("x")), "cancelled"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"canceled ctx", context.Canceled, "cancelled"},
		{"conn reset", fmt.Errorf("w: %w", syscall.ECONNRESET), "transient"},
		{"plain", errors.New("nope"), "permanent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestFailureKind_String(t *testing.T) {
	tests := []struct {
		kind FailureKind
		want string
	}{
		{FailureTimeout, "timeout"},
		{FailureConnection, "connection"},
		{FailureServiceRejected, "service_rejected"},
		{FailureCancelled, "cancelled"},
		{FailureKind(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}
