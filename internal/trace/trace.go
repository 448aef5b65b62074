// Package trace is the best-effort client for the optional context/trace
// collaborator. Every failure here is logged and swallowed: tracing must
// never turn into a node or run failure.
package trace

import (
	"context"
	"time"

	"resty.dev/v3"

	"github.com/vk/riskflow/internal/ctxlog"
)

// Context is retrieved reference material for one node invocation.
type Context struct {
	Text         string   `json:"context"`
	ReferenceIDs []string `json:"reference_ids"`
}

// Record is one recorded node invocation.
type Record struct {
	Input        string   `json:"input"`
	NodeID       string   `json:"node_id"`
	Output       string   `json:"output"`
	ReferenceIDs []string `json:"reference_ids,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
	RunID        string   `json:"run_id,omitempty"`
}

// Client talks to the trace collaborator. A nil *Client is valid and does
// nothing, so callers never branch on whether tracing is configured.
type Client struct {
	http *resty.Client
}

// NewClient builds a trace client for the given endpoint. Returns nil when
// the endpoint is empty, disabling tracing.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: resty.New().SetBaseURL(endpoint).SetTimeout(timeout),
	}
}

// FetchContext asks the collaborator for reference material relevant to the
// input. On any failure it returns an empty Context.
func (c *Client) FetchContext(ctx context.Context, input, nodeID string) Context {
	if c == nil {
		return Context{}
	}
	var out Context
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"input": input, "node_id": nodeID}).
		SetResult(&out).
		Post("/context")
	if err != nil || res.IsError() {
		ctxlog.From(ctx).Warn("Context fetch failed, continuing without.", "node", nodeID, "error", err)
		return Context{}
	}
	return out
}

// RecordTrace reports one node invocation. Failures are logged and ignored.
func (c *Client) RecordTrace(ctx context.Context, rec Record) {
	if c == nil {
		return
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(rec).
		Post("/trace")
	if err != nil || res.IsError() {
		ctxlog.From(ctx).Warn("Trace record failed, ignoring.", "node", rec.NodeID, "error", err)
	}
}
