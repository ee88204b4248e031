package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_Complete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "msg_001",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": `{"direction": "short"}`},
			},
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":  120,
				"output_tokens": 15,
			},
		})
	}))
	defer ts.Close()

	client := NewAnthropicClient("test-key", WithBaseURL(ts.URL))
	resp, err := client.Complete(context.Background(), Request{
		System: "You are a market analyst.",
		Prompt: "analyze the market",
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_001", resp.ID)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
	assert.Equal(t, `{"direction": "short"}`, resp.Text)
	assert.Equal(t, int64(120), resp.Usage.InputTokens)
	assert.Equal(t, int64(15), resp.Usage.OutputTokens)
}

func TestAnthropicClient_ConcatenatesTextBlocks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "msg_002",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": "part one "},
				{"type": "text", "text": "part two"},
			},
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer ts.Close()

	client := NewAnthropicClient("test-key", WithBaseURL(ts.URL))
	resp, err := client.Complete(context.Background(), Request{Prompt: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Text)
}

func TestAnthropicClient_APIFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    "api_error",
				"message": "internal server error",
			},
		})
	}))
	defer ts.Close()

	client := NewAnthropicClient("test-key", WithBaseURL(ts.URL))
	_, err := client.Complete(context.Background(), Request{Prompt: "ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic message")
}

func TestAnthropicClient_EmptyPrompt(t *testing.T) {
	client := NewAnthropicClient("test-key")
	_, err := client.Complete(context.Background(), Request{})
	assert.Error(t, err)
}
