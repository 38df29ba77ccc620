package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/comigor/convo-go/internal/config"
	"github.com/comigor/convo-go/internal/logger"
)

// Sender is the subset of Client the runner needs; it is easy to mock in tests.
type Sender interface {
	Send(ctx context.Context, req Request) (*Result, error)
}

// Result is the outcome of one exchange with the conversation endpoint.
type Result struct {
	StatusCode int
	// Body is the raw reply, kept for reporting non-200 replies.
	Body []byte
	// Response is set only when StatusCode is 200.
	Response *Response
}

// Client is a client for the conversation API
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a new Client. A zero timeout leaves the request unbounded.
func NewClient(cfg config.ServerConfig) *Client {
	return &Client{
		endpoint: cfg.Endpoint(),
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts req once and waits for the reply. Transport failures and
// malformed 200 replies are returned as errors; any other status is
// returned in the Result for the caller to report.
func (c *Client) Send(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logger.L.Debug("conversation request", "endpoint", c.endpoint, "body", string(body))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	logger.L.Debug("conversation reply", "status", resp.StatusCode, "body", string(raw))

	result := &Result{StatusCode: resp.StatusCode, Body: raw}
	if resp.StatusCode != http.StatusOK {
		return result, nil
	}

	parsed, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}
	result.Response = parsed

	return result, nil
}
