package capability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"

	"github.com/vk/riskflow/internal/ctxlog"
)

// ClientConfig configures the OpenAI-compatible chat completion client.
type ClientConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	http        *resty.Client
	model       string
	temperature float64
}

// NewClient builds a capability client. The per-call timeout bounds one
// attempt; the node adapter owns retries.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpc.SetAuthToken(cfg.APIKey)
	}
	return &Client{
		http:        httpc,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke sends one chat completion request and returns the first choice's
// content. 4xx responses other than 429 are permanent; everything else is
// left transient for the adapter's retry loop.
func (c *Client) Invoke(ctx context.Context, system, user string, opts Options) (string, error) {
	logger := ctxlog.From(ctx)

	if opts.Context != "" {
		system = system + "\n\nRelevant context:\n" + opts.Context
	}
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
	}
	if opts.Temperature > 0 {
		req.Temperature = opts.Temperature
	}
	if opts.StructuredJSON {
		req.ResponseFormat = map[string]any{"type": "json_object"}
	}

	var out chatResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("capability call failed: %w", err)
	}
	if res.IsError() {
		msg := res.String()
		if out.Error != nil {
			msg = out.Error.Message
		}
		status := res.StatusCode()
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return "", &PermanentError{Status: status, Msg: msg}
		}
		return "", fmt.Errorf("capability returned status %d: %s", status, msg)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("capability returned no choices")
	}

	logger.Debug("Capability call completed.", "model", c.model, "structured", opts.StructuredJSON)
	return out.Choices[0].Message.Content, nil
}
