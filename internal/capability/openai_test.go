package capability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL: srv.URL,
		Model:   "risk-model",
		APIKey:  "test-key",
	})
}

func TestInvokeReturnsFirstChoice(t *testing.T) {
	var got chatRequest
	c := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "all clear"}},
			},
		})
	})

	out, err := c.Invoke(context.Background(), "system prompt", "user payload", Options{
		Temperature:    0.3,
		StructuredJSON: true,
		Context:        "prior case notes",
	})
	require.NoError(t, err)
	assert.Equal(t, "all clear", out)

	assert.Equal(t, "risk-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[0].Content, "system prompt")
	assert.Contains(t, got.Messages[0].Content, "prior case notes")
	assert.Equal(t, "user payload", got.Messages[1].Content)
	assert.Equal(t, 0.3, got.Temperature)
	assert.Equal(t, map[string]any{"type": "json_object"}, got.ResponseFormat)
}

func TestInvokeMapsClientErrorsToPermanent(t *testing.T) {
	c := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad prompt"},
		})
	})

	_, err := c.Invoke(context.Background(), "s", "u", Options{})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "bad prompt")
}

func TestInvokeKeepsServerErrorsTransient(t *testing.T) {
	c := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Invoke(context.Background(), "s", "u", Options{})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestInvokeKeepsRateLimitTransient(t *testing.T) {
	c := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Invoke(context.Background(), "s", "u", Options{})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestInvokeRejectsEmptyChoiceList(t *testing.T) {
	c := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := c.Invoke(context.Background(), "s", "u", Options{})
	require.ErrorContains(t, err, "no choices")
}
