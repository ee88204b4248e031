package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/zamong25/AIS2025-sub001/internal/config"
	"github.com/zamong25/AIS2025-sub001/internal/invoke"
	"github.com/zamong25/AIS2025-sub001/internal/quality"
	"github.com/zamong25/AIS2025-sub001/internal/resilience"
	"github.com/zamong25/AIS2025-sub001/pkg/inference"
)

// pipelineConfig maps the resilience settings onto a protection pipeline for
// the inference service. Unset durations fall back to the library defaults.
func pipelineConfig(c *config.Config) resilience.PipelineConfig {
	return resilience.PipelineConfig{
		Service:        "inference",
		CallsPerSecond: c.Resilience.CallsPerSecond,
		Breaker:        resilience.FromCircuitConfig(c.Resilience.FailureThreshold, c.Resilience.ResetTimeout()),
		Retry: resilience.FromRetryConfig(
			c.Resilience.MaxRetries,
			c.Resilience.InitialBackoff(),
			c.Resilience.MaxBackoff(),
			c.Resilience.BackoffMultiplier,
			c.Resilience.JitterFraction,
		),
		RequestTimeout: c.Resilience.RequestTimeout(),
	}
}

// newInvoker builds the inference client and the protected invoker around it.
func newInvoker(c *config.Config) (*invoke.Invoker, error) {
	var opts []inference.Option
	if c.Inference.BaseURL != "" {
		opts = append(opts, inference.WithBaseURL(c.Inference.BaseURL))
	}
	if c.Inference.Model != "" {
		opts = append(opts, inference.WithModel(c.Inference.Model))
	}
	if c.Inference.MaxTokens > 0 {
		opts = append(opts, inference.WithMaxTokens(c.Inference.MaxTokens))
	}
	client, err := inference.New(c.Inference.Provider, c.Inference.APIKey, opts...)
	if err != nil {
		return nil, err
	}

	invOpts := []invoke.Option{
		invoke.WithTemperature(c.Inference.Temperature),
	}
	if c.Inference.SystemPrompt != "" {
		invOpts = append(invOpts, invoke.WithSystem(c.Inference.SystemPrompt))
	}
	if c.Inference.Model != "" {
		invOpts = append(invOpts, invoke.WithModel(c.Inference.Model))
	}
	if c.Inference.MaxTokens > 0 {
		invOpts = append(invOpts, invoke.WithMaxTokens(c.Inference.MaxTokens))
	}
	return invoke.New(client, pipelineConfig(c), invOpts...), nil
}

// newQualityManager returns a manager with the built-in tier map, or the
// configured tier file merged over it.
func newQualityManager(c *config.Config) (*quality.Manager, error) {
	if c.Quality.TierFile == "" {
		return quality.NewManager(nil), nil
	}
	tiers, err := quality.LoadTiers(c.Quality.TierFile)
	if err != nil {
		return nil, err
	}
	return quality.NewManager(tiers), nil
}

// readInput returns the contents of path, or everything from stdin when path
// is empty or "-".
func readInput(path string, stdin io.Reader) (string, error) {
	if path != "" && path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "read %s", path)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", eris.Wrap(err, "read stdin")
	}
	return string(data), nil
}
