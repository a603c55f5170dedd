// Package zabbix is a minimal JSON-RPC client for registering proxies and
// hosts in Zabbix 7.x.
package zabbix

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	// rpcPath is the endpoint every API call is posted to.
	rpcPath = "/api_jsonrpc.php"
	// Default per-request timeout.
	defaultTimeout = 30 * time.Second
	// Retry configuration for API calls.
	defaultAttempts   = 5
	defaultRetryDelay = 500 * time.Millisecond
	maxBackoff        = 30 * time.Second
	// Maximum response body size to prevent memory exhaustion.
	maxResponseSize = 10 * 1024 * 1024
	// Maximum body length included in error messages.
	maxErrorBody = 512
)

// Config holds everything needed to reach the API.
type Config struct {
	URL         string
	Token       string
	Timeout     time.Duration
	RetryDelay  time.Duration
	MaxAttempts uint
	VerifyTLS   bool
	Debug       bool
}

// Validate reports missing connection settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return &ValidationError{Field: "url", Problem: "zabbix URL is required"}
	}
	if c.Token == "" {
		return &ValidationError{Field: "token", Problem: "zabbix API token is required"}
	}
	return nil
}

// NormalizeURL accepts either the frontend base URL or the full endpoint
// and returns the endpoint.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.HasSuffix(u, rpcPath) {
		return u
	}
	return strings.TrimRight(u, "/") + rpcPath
}

// Client issues JSON-RPC calls with bearer token authentication.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	token       string
	retryDelay  time.Duration
	maxAttempts uint
	debug       bool
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = defaultAttempts
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	httpClient := &http.Client{Timeout: timeout}
	if !cfg.VerifyTLS {
		transport, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			return nil, errors.New("unexpected default HTTP transport type")
		}
		transport = transport.Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for lab installs
		httpClient.Transport = transport
		log.Print("[WARN] TLS certificate verification is disabled for the Zabbix API")
	}

	return &Client{
		httpClient:  httpClient,
		endpoint:    NormalizeURL(cfg.URL),
		token:       cfg.Token,
		retryDelay:  delay,
		maxAttempts: attempts,
		debug:       cfg.Debug,
	}, nil
}

// Endpoint returns the normalized API URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type rpcRequest struct {
	Params  any    `json:"params"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Error  *APIError       `json:"error"`
	Result json.RawMessage `json:"result"`
}

// Call invokes method with params and decodes the result into out.
// out may be nil when the result is not needed.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	start := time.Now()
	var lastErr error
	resp, err := retry.DoWithData(func() (*rpcResponse, error) {
		r, err := c.post(ctx, method, body)
		lastErr = err
		return r, err
	},
		retry.Attempts(c.maxAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(maxBackoff),
		retry.Context(ctx),
		retry.RetryIf(retryable),
	)
	if err != nil {
		// An interrupt during backoff must not look like a server failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", method, ctxErr)
		}
		if lastErr != nil {
			return lastErr
		}
		return &TransportError{Method: method, Err: err}
	}

	if c.debug {
		log.Printf("[DEBUG] %s completed in %v", method, time.Since(start))
	}

	if resp.Error != nil {
		resp.Error.Method = method
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, body []byte) (*rpcResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[WARN] %s request failed: %v", method, err)
		return nil, &TransportError{Method: method, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[WARN] Error closing response body: %v", err)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Method: method, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[WARN] %s returned HTTP %d", method, resp.StatusCode)
		return nil, &TransportError{Method: method, Status: resp.StatusCode, Body: truncate(data)}
	}

	var out rpcResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &TransportError{
			Method: method,
			Status: resp.StatusCode,
			Body:   truncate(data),
			Err:    fmt.Errorf("invalid JSON-RPC response: %w", err),
		}
	}
	return &out, nil
}

// retryable reports whether err is worth another attempt: throttling,
// gateway failures, and connections that never produced a response.
func retryable(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	if errors.Is(te.Err, context.Canceled) || errors.Is(te.Err, context.DeadlineExceeded) {
		return false
	}
	switch te.Status {
	case 0:
		return te.Err != nil
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func truncate(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
