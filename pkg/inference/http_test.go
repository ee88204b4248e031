package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Complete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "analyze the market", req.Messages[1].Content)
		assert.Equal(t, int64(1024), req.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-001",
			"model": "gpt-4o",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": `{"direction": "long"}`}},
			},
			"usage": map[string]any{"prompt_tokens": 42, "completion_tokens": 7},
		})
	}))
	defer ts.Close()

	client := NewHTTPClient("test-key", WithBaseURL(ts.URL))
	resp, err := client.Complete(context.Background(), Request{
		System: "You are a market analyst.",
		Prompt: "analyze the market",
	})
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-001", resp.ID)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, `{"direction": "long"}`, resp.Text)
	assert.Equal(t, int64(42), resp.Usage.InputTokens)
	assert.Equal(t, int64(7), resp.Usage.OutputTokens)
}

func TestHTTPClient_RequestOverrides(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar-pro", req.Model)
		assert.Equal(t, int64(256), req.MaxTokens)
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 0.1, *req.Temperature)
		require.Len(t, req.Messages, 1, "no system message expected")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-002",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer ts.Close()

	temp := 0.1
	client := NewHTTPClient("test-key", WithBaseURL(ts.URL))
	resp, err := client.Complete(context.Background(), Request{
		Prompt:      "ping",
		Model:       "sonar-pro",
		MaxTokens:   256,
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "sonar-pro", resp.Model, "falls back to requested model when response omits it")
}

func TestHTTPClient_NonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer ts.Close()

	client := NewHTTPClient("test-key", WithBaseURL(ts.URL))
	_, err := client.Complete(context.Background(), Request{Prompt: "ping"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "rate limited")
}

func TestHTTPClient_NoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "chatcmpl-003", "choices": []any{}})
	}))
	defer ts.Close()

	client := NewHTTPClient("test-key", WithBaseURL(ts.URL))
	_, err := client.Complete(context.Background(), Request{Prompt: "ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestHTTPClient_EmptyPrompt(t *testing.T) {
	client := NewHTTPClient("test-key")
	_, err := client.Complete(context.Background(), Request{})
	assert.Error(t, err)
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewHTTPClient("test-key", WithBaseURL(ts.URL))
	_, err := client.Complete(ctx, Request{Prompt: "ping"})
	assert.Error(t, err)
}
