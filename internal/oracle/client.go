// Package oracle is the synchronous boundary to the external guidance
// service consulted at choice points. Only the request/response contract
// lives here; the oracle's own model and runtime are the collaborator's
// concern. Guidance is advisory: the search controller may override or
// backtrack past any answer.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sentinel failures. Both are recoverable at the search level: the
// controller backtracks instead of aborting the run.
var (
	ErrRejected = errors.New("oracle rejected the goal")
	ErrTimeout  = errors.New("oracle timed out")
)

// Request describes one choice point to the oracle.
type Request struct {
	NodeHash     string   `json:"node_hash"`
	Goal         string   `json:"goal"`
	Context      string   `json:"context"`
	Alternatives []string `json:"alternatives"`
}

// Response is the oracle's verdict.
type Response struct {
	ChosenIndex int  `json:"chosen_index"`
	Reject      bool `json:"reject,omitempty"`
}

// Client answers choice-point requests.
type Client interface {
	Choose(ctx context.Context, req Request) (Response, error)
}

// Config holds HTTP client configuration.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// DefaultConfig returns sensible defaults for the given endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint: endpoint,
		Timeout:  30 * time.Second,
	}
}

// HTTPClient implements Client over a JSON POST endpoint.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPClient creates a client with default config.
func NewHTTPClient(endpoint string) *HTTPClient {
	return NewHTTPClientWithConfig(DefaultConfig(endpoint))
}

// NewHTTPClientWithConfig creates a client with custom config.
func NewHTTPClientWithConfig(config Config) *HTTPClient {
	return &HTTPClient{
		endpoint: config.Endpoint,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Choose posts the choice point and decodes the verdict. Exceeding the
// caller's deadline or the client timeout surfaces as ErrTimeout.
func (c *HTTPClient) Choose(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal oracle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return Response{}, ErrTimeout
		}
		return Response{}, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, fmt.Errorf("decode oracle response: %w", err)
	}
	if out.Reject {
		return Response{}, ErrRejected
	}
	if out.ChosenIndex < 0 || out.ChosenIndex >= len(req.Alternatives) {
		return Response{}, fmt.Errorf("oracle chose index %d of %d alternatives", out.ChosenIndex, len(req.Alternatives))
	}
	return out, nil
}

func isClientTimeout(err error) bool {
	var ue interface{ Timeout() bool }
	return errors.As(err, &ue) && ue.Timeout()
}
