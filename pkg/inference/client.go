// Package inference provides clients for the remote inference services the
// system asks for structured analysis. Every client performs exactly one
// request per call and reports failures as typed errors; rate limiting,
// circuit breaking, and retries belong to the caller's pipeline, never here.
package inference

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Supported provider names for New.
const (
	ProviderOpenAICompatible = "openai-compatible"
	ProviderAnthropic        = "anthropic"
)

// Client performs a single completion against an inference service.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is one completion request. Zero-value Model and MaxTokens fall
// back to the client's configured defaults.
type Request struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int64
	Temperature *float64
}

// Response is the provider-neutral completion result.
type Response struct {
	ID    string
	Model string
	Text  string
	Usage Usage
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Option configures a client constructor.
type Option func(*settings)

// WithBaseURL overrides the provider's default API base URL.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(s *settings) {
		s.model = model
	}
}

// WithMaxTokens overrides the default completion budget.
func WithMaxTokens(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) {
		s.http = hc
	}
}

type settings struct {
	baseURL   string
	model     string
	maxTokens int64
	http      *http.Client
}

func newSettings(baseURL, model string) settings {
	return settings{
		baseURL:   baseURL,
		model:     model,
		maxTokens: 1024,
	}
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// New builds a client for the named provider.
func New(provider, apiKey string, opts ...Option) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("inference: missing API key")
	}
	switch strings.ToLower(provider) {
	case "", ProviderOpenAICompatible, "openai", "perplexity":
		return NewHTTPClient(apiKey, opts...), nil
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey, opts...), nil
	default:
		return nil, eris.Errorf("inference: unknown provider %q", provider)
	}
}
