// Package invoke performs protected structured invocations: one call that
// runs prompt, pipeline-guarded transport, sanitizer, and parser end to end
// and hands back a JSON document or a typed failure.
package invoke

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zamong25/AIS2025-sub001/internal/monitoring"
	"github.com/zamong25/AIS2025-sub001/internal/resilience"
	"github.com/zamong25/AIS2025-sub001/internal/sanitize"
	"github.com/zamong25/AIS2025-sub001/pkg/inference"
)

// Result is one successful structured invocation.
type Result struct {
	ID        string         `json:"id"`
	Raw       string         `json:"raw"`
	Sanitized string         `json:"sanitized"`
	Document  map[string]any `json:"document"`
	Elapsed   time.Duration  `json:"elapsed"`
}

// Invoker asks the inference service for JSON answers through the protection
// pipeline. The system prompt, model, and sampling settings are fixed at
// construction, matching one configured agent; only the user prompt varies
// per call. Safe for concurrent use.
type Invoker struct {
	client   inference.Client
	pipeline *resilience.Pipeline

	system      string
	model       string
	maxTokens   int64
	temperature *float64
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithSystem sets the system prompt sent on every call.
func WithSystem(system string) Option {
	return func(inv *Invoker) { inv.system = system }
}

// WithModel overrides the client's default model.
func WithModel(model string) Option {
	return func(inv *Invoker) { inv.model = model }
}

// WithMaxTokens overrides the client's default completion budget.
func WithMaxTokens(n int64) Option {
	return func(inv *Invoker) { inv.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(inv *Invoker) { inv.temperature = &t }
}

// New builds an invoker whose transport is protected by a pipeline with the
// given config. The client must be non-nil.
func New(client inference.Client, cfg resilience.PipelineConfig, opts ...Option) *Invoker {
	if client == nil {
		panic("invoke: nil client")
	}
	inv := &Invoker{client: client}
	for _, opt := range opts {
		opt(inv)
	}
	inv.pipeline = resilience.NewPipeline(cfg, inv.transport)
	return inv
}

// Pipeline exposes the underlying pipeline for status reporting.
func (inv *Invoker) Pipeline() *resilience.Pipeline {
	return inv.pipeline
}

// AskJSON runs one protected invocation and parses the answer. Pipeline
// failures keep their kind (ErrCircuitOpen, *TransportError, *FatalError,
// *RetriesExhaustedError); an answer that cannot be parsed is a
// *sanitize.ParseError. The caller decides whether to re-invoke.
func (inv *Invoker) AskJSON(ctx context.Context, prompt string) (*Result, error) {
	if prompt == "" {
		return nil, eris.New("invoke: empty prompt")
	}

	id := uuid.NewString()
	service := inv.pipeline.Service()
	start := time.Now()

	raw, err := inv.pipeline.Execute(ctx, resilience.CallRequest{Payload: prompt})
	elapsed := time.Since(start)
	monitoring.RecordCall(service, elapsed, err)
	if err != nil {
		zap.L().Warn("invoke: call failed",
			zap.String("invocation_id", id),
			zap.String("failure_kind", resilience.ClassifyError(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	cleaned := sanitize.Sanitize(raw)
	doc, err := sanitize.Parse(cleaned)
	if err != nil {
		monitoring.RecordParseFailure(service)
		zap.L().Warn("invoke: unparseable answer",
			zap.String("invocation_id", id),
			zap.Int("raw_len", len(raw)),
			zap.Error(err),
		)
		return nil, err
	}

	zap.L().Info("invoke: structured answer",
		zap.String("invocation_id", id),
		zap.Int("fields", len(doc)),
		zap.Duration("elapsed", elapsed),
	)
	return &Result{
		ID:        id,
		Raw:       raw,
		Sanitized: cleaned,
		Document:  doc,
		Elapsed:   elapsed,
	}, nil
}

// transport is the single attempt the pipeline drives: one completion
// request, with provider errors classified into the pipeline's failure
// kinds.
func (inv *Invoker) transport(ctx context.Context, req resilience.CallRequest) (string, error) {
	monitoring.RecordAttempt(inv.pipeline.Service())

	resp, err := inv.client.Complete(ctx, inference.Request{
		System:      inv.system,
		Prompt:      req.Payload,
		Model:       inv.model,
		MaxTokens:   inv.maxTokens,
		Temperature: inv.temperature,
	})
	if err != nil {
		return "", classify(err)
	}

	zap.L().Debug("invoke: completion",
		zap.String("model", resp.Model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return resp.Text, nil
}

// classify maps provider errors onto the pipeline's failure taxonomy so the
// retry policy can tell transient rejections from fatal requests.
func classify(err error) error {
	var apiErr *inference.APIError
	if errors.As(err, &apiErr) {
		kind := resilience.FailureServiceRejected
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout:
			kind = resilience.FailureTimeout
		case !resilience.IsTransientHTTPStatus(apiErr.StatusCode):
			// Auth failures, malformed requests, unknown routes: retrying
			// cannot help.
			return resilience.NewFatalError(err)
		}
		return &resilience.TransportError{Kind: kind, StatusCode: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.NewTransportError(resilience.FailureTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return resilience.NewTransportError(resilience.FailureCancelled, err)
	}
	return err
}
