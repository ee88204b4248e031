package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Transport is the underlying remote call the pipeline protects. It is
// injected so the pipeline stays transport-agnostic; implementations must
// honor ctx cancellation.
type Transport func(ctx context.Context, req CallRequest) (string, error)

// CallRequest carries one opaque payload through the pipeline. Timeout, when
// set, bounds the whole logical call including retries; zero falls back to
// the pipeline's configured request timeout. Requests are treated as
// immutable once submitted.
type CallRequest struct {
	Payload string
	Timeout time.Duration
}

// PipelineConfig assembles the protection layers around one service.
type PipelineConfig struct {
	// Service labels logs and stats.
	Service string

	// CallsPerSecond is the pacing rate. <= 0 disables pacing.
	CallsPerSecond float64

	Breaker CircuitBreakerConfig
	Retry   RetryConfig

	// RequestTimeout bounds each logical call when CallRequest.Timeout is
	// zero. Zero means no pipeline-imposed deadline.
	RequestTimeout time.Duration
}

// Pipeline composes pacing, circuit breaking, and retrying around a
// transport, in that order: Acquire a pacing permit, then run the
// retry-driven transport call under the breaker. One Pipeline instance is
// shared by all concurrent callers to a service; the breaker is the only
// shared mutable state. A logical call performs at most MaxRetries+1
// transport attempts, and zero while the circuit is open.
type Pipeline struct {
	service        string
	pacer          *Pacer
	breaker        *CircuitBreaker
	retry          RetryConfig
	transport      Transport
	requestTimeout time.Duration

	calls        atomic.Int64
	successes    atomic.Int64
	failures     atomic.Int64
	rejections   atomic.Int64
	attempts     atomic.Int64
	totalElapsed atomic.Int64 // ms across finished calls
}

// NewPipeline builds a pipeline for the given transport. The transport must
// be non-nil. Unset retry and breaker hooks get logging defaults.
func NewPipeline(cfg PipelineConfig, transport Transport) *Pipeline {
	if transport == nil {
		panic("resilience: nil transport")
	}
	if cfg.Service == "" {
		cfg.Service = "remote"
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = RetryLogger(cfg.Service, "call")
	}
	if cfg.Breaker.OnStateChange == nil {
		service := cfg.Service
		cfg.Breaker.OnStateChange = func(from, to CircuitState) {
			zap.L().Warn("circuit state change",
				zap.String("service", service),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return &Pipeline{
		service:        cfg.Service,
		pacer:          NewPacer(cfg.CallsPerSecond),
		breaker:        NewCircuitBreaker(cfg.Breaker),
		retry:          cfg.Retry,
		transport:      transport,
		requestTimeout: cfg.RequestTimeout,
	}
}

// Execute runs one logical call through the protection layers and returns
// the raw response text. Failures keep their kind: ErrCircuitOpen,
// *TransportError, *FatalError, or *RetriesExhaustedError wrapping the last
// underlying failure.
func (p *Pipeline) Execute(ctx context.Context, req CallRequest) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.requestTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := p.pacer.Acquire(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	text, err := ExecuteVal(ctx, p.breaker, func(ctx context.Context) (string, error) {
		return DoVal(ctx, p.retry, func(ctx context.Context) (string, error) {
			p.attempts.Add(1)
			return p.transport(ctx, req)
		})
	})

	p.calls.Add(1)
	p.totalElapsed.Add(time.Since(start).Milliseconds())
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			p.rejections.Add(1)
		} else {
			p.failures.Add(1)
		}
		return "", err
	}
	p.successes.Add(1)
	return text, nil
}

// Service returns the pipeline's service label.
func (p *Pipeline) Service() string {
	return p.service
}

// State returns the current circuit state.
func (p *Pipeline) State() CircuitState {
	return p.breaker.State()
}

// PipelineStats is a point-in-time snapshot of pipeline counters.
type PipelineStats struct {
	Service             string  `json:"service"`
	Calls               int64   `json:"calls"`
	Successes           int64   `json:"successes"`
	Failures            int64   `json:"failures"`
	CircuitRejections   int64   `json:"circuit_rejections"`
	Attempts            int64   `json:"attempts"`
	AvgCallMillis       int64   `json:"avg_call_ms"`
	FailureRate         float64 `json:"failure_rate"`
	CircuitState        string  `json:"circuit_state"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
}

// Stats assembles a snapshot of the pipeline's counters and circuit state.
func (p *Pipeline) Stats() PipelineStats {
	calls := p.calls.Load()
	successes := p.successes.Load()
	failures := p.failures.Load()

	var avgMs int64
	if calls > 0 {
		avgMs = p.totalElapsed.Load() / calls
	}
	var failRate float64
	if finished := successes + failures; finished > 0 {
		failRate = float64(failures) / float64(finished)
	}

	consecutive, _ := p.breaker.Counters()
	return PipelineStats{
		Service:             p.service,
		Calls:               calls,
		Successes:           successes,
		Failures:            failures,
		CircuitRejections:   p.rejections.Load(),
		Attempts:            p.attempts.Load(),
		AvgCallMillis:       avgMs,
		FailureRate:         failRate,
		CircuitState:        p.breaker.State().String(),
		ConsecutiveFailures: consecutive,
	}
}
