package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipat/pat/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewHTTPClient(srv.URL, "test-key", time.Second)
	c.baseDelay = time.Millisecond
	return c
}

func TestCompleteSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var in chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "gpt-4o-mini", in.Model)
		require.Len(t, in.Messages, 2)
		assert.Equal(t, "system", in.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Logged it."}},
			},
			"usage": map[string]any{"prompt_tokens": 42, "completion_tokens": 7},
		})
	})

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: "system", Content: "instructions"},
			{Role: "user", Content: "log my breakfast"},
		},
		Binding: model.APIBinding{Provider: "openai", Model: "gpt-4o-mini", Temperature: 0.2},
	})
	require.NoError(t, err)
	assert.Equal(t, "Logged it.", resp.Text)
	assert.Equal(t, 42, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
}

func TestCompleteJSONFormatRequested(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var in chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, map[string]any{"type": "json_object"}, in.ResponseFormat)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"route":"role"}`}},
			},
		})
	})

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "route this"}},
		Binding:  model.APIBinding{Model: "gpt-4o-mini", ResponseFormat: "json"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"route":"role"}`, resp.Text)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	})

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Binding:  model.APIBinding{Model: "m"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCompleteAuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Binding:  model.APIBinding{Model: "m"},
	})
	require.ErrorIs(t, err, ErrCompletion)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCompleteProviderErrorPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model overloaded", "type": "server_error"},
		})
	})

	_, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Binding:  model.APIBinding{Model: "m"},
	})
	require.ErrorIs(t, err, ErrCompletion)
	assert.Contains(t, err.Error(), "model overloaded")
}
