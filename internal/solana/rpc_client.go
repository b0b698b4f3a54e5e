package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"swap-guard/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0

	// maxErrorBody caps how much of a failed response is kept in StatusError.
	maxErrorBody = 512
)

// StatusError is returned for a non-200 HTTP response from the node.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration // from the Retry-After header, 0 if absent
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may succeed when repeated.
// Rate limiting and server-side failures are retryable, other client errors are not.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// RPCError is a JSON-RPC 2.0 error returned by the node. It is never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint  string
	client    *http.Client
	headers   http.Header
	backoff   backoff
	requestID atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.backoff.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.backoff.initial = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.backoff.max = d
	}
}

// WithHeader adds a header to every request, e.g. a provider API key.
func WithHeader(key, value string) ClientOption {
	return func(c *HTTPClient) {
		c.headers.Set(key, value)
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a JSON-RPC client for the settlement node at endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		headers:  make(http.Header),
		backoff: backoff{
			maxRetries: DefaultMaxRetries,
			initial:    DefaultRetryDelay,
			max:        DefaultMaxDelay,
			mult:       DefaultBackoffMult,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Call performs a JSON-RPC call. Transport failures, undecodable bodies,
// 429 and 5xx responses are retried with exponential backoff; a 429 with
// Retry-After waits at least that long. RPC errors and other 4xx are returned
// immediately.
func (c *HTTPClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.backoff.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff.wait(ctx, attempt, lastErr); err != nil {
				return err
			}
		}

		raw, err := c.post(ctx, body)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return fmt.Errorf("%s: %w", method, err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}

	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

// post sends one attempt and returns the body of a 200 response.
func (c *HTTPClient) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Body:       string(raw),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return raw, nil
}

// GetHealth reports whether the node answers getHealth with "ok".
func (c *HTTPClient) GetHealth(ctx context.Context) error {
	var status string
	if err := c.Call(ctx, "getHealth", nil, &status); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("node unhealthy: %s", status)
	}
	return nil
}

// backoff is the retry schedule shared by all calls of a client.
type backoff struct {
	maxRetries int
	initial    time.Duration
	max        time.Duration
	mult       float64
}

// delay returns the pause before retry attempt n (n >= 1).
func (b backoff) delay(n int) time.Duration {
	d := b.initial
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * b.mult)
		if d >= b.max {
			return b.max
		}
	}
	return d
}

// wait sleeps before attempt n, honouring a Retry-After hint carried by prev.
func (b backoff) wait(ctx context.Context, n int, prev error) error {
	d := b.delay(n)
	var se *StatusError
	if errors.As(prev, &se) && se.RetryAfter > d {
		d = se.RetryAfter
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter reads the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

var _ RPCClient = (*HTTPClient)(nil)
