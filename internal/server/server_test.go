package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/riskflow/internal/app"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &app.Config{}
	cfg.Log.Level = "error"

	a, err := app.New(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	return New(a, ":0")
}

func postJSON(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAnalyzeSingleTransaction(t *testing.T) {
	srv := testServer(t)

	rec := postJSON(t, srv, `{"amount": 12000, "hour": 2, "card_country": "DE", "merchant_country": "BR"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody(t, rec)
	assert.Contains(t, []any{"APPROVE", "REVIEW", "DECLINE"}, out["final_decision"])
	assert.NotEmpty(t, out["conclusion"])
	assert.Contains(t, out, "merged_results")
	assert.Contains(t, out, "execution_summary")
}

func TestAnalyzeBareArrayBatch(t *testing.T) {
	srv := testServer(t)

	rec := postJSON(t, srv, `[{"amount": 10}, {"amount": 9000}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody(t, rec)
	results, ok := out["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, r.(map[string]any), "final_decision")
	}
}

func TestAnalyzeWrappedBatch(t *testing.T) {
	srv := testServer(t)

	rec := postJSON(t, srv, `{"transactions": [{"amount": 10}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody(t, rec)
	results, ok := out["results"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 1)
}

func TestAnalyzeBatchIsolatesFailures(t *testing.T) {
	srv := testServer(t)

	// The empty object fails input validation; its sibling still succeeds.
	rec := postJSON(t, srv, `[{"amount": 10}, {}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	results := decodeBody(t, rec)["results"].([]any)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].(map[string]any), "final_decision")
	assert.Contains(t, results[1].(map[string]any), "error")
}

func TestAnalyzeRejectsMalformedJSON(t *testing.T) {
	srv := testServer(t)

	rec := postJSON(t, srv, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "error")
}

func TestAnalyzeRejectsEmptyObject(t *testing.T) {
	srv := testServer(t)

	rec := postJSON(t, srv, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}
