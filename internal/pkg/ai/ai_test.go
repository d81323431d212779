package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/resilience"
	"github.com/Gopher0727/BirthdayBox/internal/prompt"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	breaker := resilience.BreakerConfig{MaxFailures: 2, ResetInterval: time.Minute}
	c, err := NewClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Temperature: 0.9, Timeout: 5 * time.Second}, breaker, zap.NewNop())
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(config.OpenAIConfig{}, resilience.BreakerConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestClient_GenerateText(t *testing.T) {
	t.Run("sends system and user framing", func(t *testing.T) {
		var got map[string]any
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeJSON(w, map[string]any{
				"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "  Happy birthday Sam!  "}}},
				"usage":   map[string]any{"total_tokens": 42},
			})
		})

		out, err := c.GenerateText(context.Background(), prompt.Instructions{System: "sys", User: "usr", MaxTokens: 200})
		require.NoError(t, err)
		assert.Equal(t, "Happy birthday Sam!", out)

		assert.Equal(t, "gpt-4o", got["model"])
		assert.Equal(t, float64(200), got["max_tokens"])
		messages := got["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "usr", messages[1].(map[string]any)["content"])
	})

	t.Run("empty content is an error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"choices": []map[string]any{{"message": map[string]any{"content": "   "}}}})
		})
		_, err := c.GenerateText(context.Background(), prompt.Instructions{})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("no choices is an error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"choices": []any{}})
		})
		_, err := c.GenerateText(context.Background(), prompt.Instructions{})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("upstream failures open the breaker", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]any{"error": map[string]any{"message": "boom", "type": "server_error"}})
		})

		for range 2 {
			_, err := c.GenerateText(context.Background(), prompt.Instructions{})
			require.Error(t, err)
		}
		before := calls.Load()
		_, err := c.GenerateText(context.Background(), prompt.Instructions{})
		assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
		assert.Equal(t, before, calls.Load())
	})
}

func TestClient_GenerateImage(t *testing.T) {
	t.Run("returns first url", func(t *testing.T) {
		var got map[string]any
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/images/generations", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeJSON(w, map[string]any{"created": 1, "data": []map[string]any{{"url": "https://img.example/1.png"}}})
		})

		url, err := c.GenerateImage(context.Background(), "a cosy cafe")
		require.NoError(t, err)
		assert.Equal(t, "https://img.example/1.png", url)
		assert.Equal(t, "dall-e-3", got["model"])
		assert.Equal(t, "1024x1024", got["size"])
		assert.Equal(t, "url", got["response_format"])
	})

	t.Run("missing url is an error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"data": []any{}})
		})
		_, err := c.GenerateImage(context.Background(), "x")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func rejectPrompt(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
		"message": "Your request was rejected as a result of our safety system.",
		"type":    "invalid_request_error",
		"code":    "content_policy_violation",
	}})
}

func TestClient_BreakerIsolation(t *testing.T) {
	t.Run("rejected prompts never open the breaker", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/images/generations" {
				rejectPrompt(w)
				return
			}
			writeJSON(w, map[string]any{"choices": []map[string]any{{"message": map[string]any{"content": "Happy birthday!"}}}})
		})

		for range 4 {
			_, err := c.GenerateImage(context.Background(), "something the policy refuses")
			require.Error(t, err)
			assert.True(t, IsRequestRejected(err))
		}

		out, err := c.GenerateText(context.Background(), prompt.Instructions{})
		require.NoError(t, err)
		assert.Equal(t, "Happy birthday!", out)
		assert.Equal(t, "closed", c.image.State())
	})

	t.Run("image outage leaves text available", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/images/generations" {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			writeJSON(w, map[string]any{"choices": []map[string]any{{"message": map[string]any{"content": "Still here"}}}})
		})

		for range 2 {
			_, err := c.GenerateImage(context.Background(), "x")
			require.Error(t, err)
		}
		_, err := c.GenerateImage(context.Background(), "x")
		assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

		out, err := c.GenerateText(context.Background(), prompt.Instructions{})
		require.NoError(t, err)
		assert.Equal(t, "Still here", out)
		assert.NoError(t, c.Check(context.Background()))
	})

	t.Run("check fails while text is unavailable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		for range 2 {
			_, _ = c.GenerateText(context.Background(), prompt.Instructions{})
		}
		err := c.Check(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai-text")
	})
}

func TestIsRequestRejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "content policy", err: &gopenai.APIError{HTTPStatusCode: http.StatusBadRequest}, want: true},
		{name: "wrapped request error", err: fmt.Errorf("wrap: %w", &gopenai.RequestError{HTTPStatusCode: http.StatusNotFound}), want: true},
		{name: "rate limited", err: &gopenai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, want: false},
		{name: "server error", err: &gopenai.APIError{HTTPStatusCode: http.StatusInternalServerError}, want: false},
		{name: "transport error", err: errors.New("connection reset"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRequestRejected(tt.err))
		})
	}
}
