package trace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilClientIsSafe(t *testing.T) {
	var c *Client

	got := c.FetchContext(context.Background(), "input", "node")
	assert.Equal(t, Context{}, got)

	// Must not panic.
	c.RecordTrace(context.Background(), Record{NodeID: "node"})
}

func TestNewClientDisabledWithoutEndpoint(t *testing.T) {
	assert.Nil(t, NewClient("", time.Second))
}

func TestFetchContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/context", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tx payload", body["input"])
		assert.Equal(t, "pattern_detector", body["node_id"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Context{
			Text:         "similar declined case",
			ReferenceIDs: []string{"case-7"},
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, time.Second)
	got := c.FetchContext(context.Background(), "tx payload", "pattern_detector")

	assert.Equal(t, "similar declined case", got.Text)
	assert.Equal(t, []string{"case-7"}, got.ReferenceIDs)
}

func TestFetchContextSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, time.Second)
	assert.Equal(t, Context{}, c.FetchContext(context.Background(), "x", "n"))
}

func TestRecordTrace(t *testing.T) {
	var got Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trace", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, time.Second)
	c.RecordTrace(context.Background(), Record{
		Input:  "tx",
		NodeID: "velocity_checker",
		Output: "low velocity",
		RunID:  "r1",
	})

	assert.Equal(t, "velocity_checker", got.NodeID)
	assert.Equal(t, "r1", got.RunID)
}
