package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Service:        "test",
		CallsPerSecond: 0, // no pacing in tests
		Breaker: CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2.0,
		},
	}
}

func TestPipeline_Success(t *testing.T) {
	var attempts atomic.Int64
	p := NewPipeline(testPipelineConfig(), func(_ context.Context, req CallRequest) (string, error) {
		attempts.Add(1)
		return "raw response for " + req.Payload, nil
	})

	text, err := p.Execute(context.Background(), CallRequest{Payload: "q1"})
	require.NoError(t, err)
	assert.Equal(t, "raw response for q1", text)
	assert.Equal(t, int64(1), attempts.Load())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Calls)
	assert.Equal(t, int64(1), stats.Successes)
	assert.Equal(t, int64(0), stats.Failures)
}

func TestPipeline_RetriesTimeoutsThenSucceeds(t *testing.T) {
	fenced := "```json\n{\"x\":5}\n```"
	var attempts atomic.Int64
	p := NewPipeline(testPipelineConfig(), func(_ context.Context, _ CallRequest) (string, error) {
		if attempts.Add(1) <= 2 {
			return "", NewTransportError(FailureTimeout, errors.New("deadline hit"))
		}
		return fenced, nil
	})

	text, err := p.Execute(context.Background(), CallRequest{Payload: "analysis"})
	require.NoError(t, err)
	assert.Equal(t, fenced, text, "pipeline must hand back the raw payload untouched")
	assert.Equal(t, int64(3), attempts.Load())

	// The two timeouts happened inside one logical call; the breaker saw
	// only its final success.
	failures, state := p.breaker.Counters()
	assert.Equal(t, 0, failures)
	assert.Equal(t, CircuitClosed, state)
}

func TestPipeline_AttemptBound(t *testing.T) {
	var attempts atomic.Int64
	p := NewPipeline(testPipelineConfig(), func(_ context.Context, _ CallRequest) (string, error) {
		attempts.Add(1)
		return "", NewTransportError(FailureConnection, errors.New("refused"))
	})

	_, err := p.Execute(context.Background(), CallRequest{Payload: "x"})
	require.Error(t, err)
	var re *RetriesExhaustedError
	require.ErrorAs(t, err, &re)
	// A single logical request never exceeds MaxRetries+1 attempts.
	assert.Equal(t, int64(4), attempts.Load())

	// One logical failure recorded on the breaker.
	failures, _ := p.breaker.Counters()
	assert.Equal(t, 1, failures)
}

func TestPipeline_FatalSkipsRetries(t *testing.T) {
	var attempts atomic.Int64
	p := NewPipeline(testPipelineConfig(), func(_ context.Context, _ CallRequest) (string, error) {
		attempts.Add(1)
		return "", NewFatalError(errors.New("401 unauthorized"))
	})

	_, err := p.Execute(context.Background(), CallRequest{Payload: "x"})
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int64(1), attempts.Load())
}

func TestPipeline_OpenCircuitCostsZeroAttempts(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Breaker.FailureThreshold = 1
	cfg.Retry.MaxRetries = 0

	var attempts atomic.Int64
	p := NewPipeline(cfg, func(_ context.Context, _ CallRequest) (string, error) {
		attempts.Add(1)
		return "", NewTransportError(FailureConnection, errors.New("down"))
	})

	// Trip the breaker with one failing call.
	_, _ = p.Execute(context.Background(), CallRequest{Payload: "x"})
	before := attempts.Load()

	_, err := p.Execute(context.Background(), CallRequest{Payload: "y"})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, attempts.Load(), "open circuit request must cost zero network attempts")

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.CircuitRejections)
	assert.Equal(t, "open", stats.CircuitState)
}

func TestPipeline_RecoversThroughProbe(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Breaker.FailureThreshold = 1
	cfg.Breaker.ResetTimeout = 100 * time.Millisecond
	cfg.Retry.MaxRetries = 0

	healthy := false
	p := NewPipeline(cfg, func(_ context.Context, _ CallRequest) (string, error) {
		if !healthy {
			return "", NewTransportError(FailureConnection, errors.New("down"))
		}
		return "ok", nil
	})

	now := time.Now()
	p.breaker.nowFunc = func() time.Time { return now }

	_, _ = p.Execute(context.Background(), CallRequest{Payload: "x"})
	require.Equal(t, CircuitOpen, p.State())

	// Service recovers; cooldown elapses; the probe closes the circuit.
	healthy = true
	p.breaker.nowFunc = func() time.Time { return now.Add(150 * time.Millisecond) }

	text, err := p.Execute(context.Background(), CallRequest{Payload: "probe"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, CircuitClosed, p.State())
}

func TestPipeline_RequestTimeoutAbortsAttempt(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Retry.MaxRetries = 3

	var attempts atomic.Int64
	p := NewPipeline(cfg, func(ctx context.Context, _ CallRequest) (string, error) {
		attempts.Add(1)
		select {
		case <-ctx.Done():
			return "", NewTransportError(FailureTimeout, ctx.Err())
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	})

	start := time.Now()
	_, err := p.Execute(context.Background(), CallRequest{Payload: "x", Timeout: 50 * time.Millisecond})
	require.Error(t, err, "expected timeout error")
	require.Less(t, time.Since(start), 2*time.Second, "request was not aborted by its timeout")
	// The dead request context also stops further retries.
	assert.Equal(t, int64(1), attempts.Load())

	// One failure recorded; other requests still flow.
	failures, state := p.breaker.Counters()
	assert.Equal(t, 1, failures)
	assert.Equal(t, CircuitClosed, state)
}

func TestPipeline_ConcurrentCallsShareBreaker(t *testing.T) {
	t.Parallel()
	cfg := testPipelineConfig()
	cfg.Breaker.FailureThreshold = 5
	cfg.Retry.MaxRetries = 0

	p := NewPipeline(cfg, func(_ context.Context, _ CallRequest) (string, error) {
		return "", NewTransportError(FailureConnection, errors.New("down"))
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Execute(context.Background(), CallRequest{Payload: "x"})
		}()
	}
	wg.Wait()

	assert.Equal(t, CircuitOpen, p.State())
	stats := p.Stats()
	assert.Equal(t, int64(20), stats.Calls)
	assert.Equal(t, int64(20), stats.Failures+stats.CircuitRejections, "failures plus rejections should cover all calls")
}

func TestPipeline_StatsFailureRate(t *testing.T) {
	healthy := true
	p := NewPipeline(testPipelineConfig(), func(_ context.Context, _ CallRequest) (string, error) {
		if healthy {
			return "ok", nil
		}
		return "", NewFatalError(errors.New("bad request"))
	})

	_, _ = p.Execute(context.Background(), CallRequest{Payload: "a"})
	healthy = false
	_, _ = p.Execute(context.Background(), CallRequest{Payload: "b"})

	stats := p.Stats()
	assert.Equal(t, 0.5, stats.FailureRate)
	assert.Equal(t, "test", stats.Service)
}

func TestNewPipeline_NilTransportPanics(t *testing.T) {
	assert.Panics(t, func() {
		_ = NewPipeline(testPipelineConfig(), nil)
	})
}
