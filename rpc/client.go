// Package rpc implements the erldb remote procedure call client.
//
// Every server capability is a method name carried in the URL
// (POST <endpoint>?target=<method>) with a JSON object of keyword arguments
// as the body. Successful responses are {"ok": <result>}; anything else is a
// failure whose raw body is the diagnostic.
//
// Call accepts any method name. The typed helpers in methods.go cover the
// methods the client knows about.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/PuffoTrillionarioGonePublic/erldb/iox"
	"github.com/PuffoTrillionarioGonePublic/erldb/log"
	"github.com/PuffoTrillionarioGonePublic/erldb/metrics"
)

// DefaultEndpoint is the first node of the default local cluster.
const DefaultEndpoint = "http://localhost:8080"

// DefaultTimeout bounds each call when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// targetParam is the query parameter that selects the remote method.
const targetParam = "target"

// Config configures the RPC client.
type Config struct {
	// Endpoint is the node base URL (default DefaultEndpoint).
	Endpoint string
	// Timeout is the per-call timeout (default 10s).
	Timeout time.Duration
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
}

// Response is the last raw response seen by the client.
// It is kept for diagnostics only.
type Response struct {
	Method string
	Status int
	Header http.Header
	Body   []byte
}

// Client dispatches remote calls to a single erldb node.
// Safe for concurrent use; it never retries.
type Client struct {
	config  Config
	base    *url.URL
	http    *http.Client
	logger  *log.Logger
	metrics *metrics.Collector

	mu   sync.Mutex // guards last
	last *Response
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout is left as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for per-call debug entries.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithCollector sets the metrics collector.
func WithCollector(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client from the given config.
// Returns an error if the endpoint is not an absolute http(s) URL.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("rpc: invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("rpc: endpoint %q must use http or https", cfg.Endpoint)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("rpc: endpoint %q has no host", cfg.Endpoint)
	}

	c := &Client{
		config: cfg,
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the configured node base URL.
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// LastResponse returns the most recent raw response, or nil if no call has
// completed. The returned value must not be modified.
func (c *Client) LastResponse() *Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Call invokes method with keyword arguments and returns the raw JSON value
// under "ok". A nil args map is sent as {}.
//
// Errors:
//   - *TransportError: no response (network failure, timeout, canceled ctx)
//   - *RemoteCallError: a response whose envelope signals failure
func (c *Client) Call(ctx context.Context, method string, args map[string]any) (json.RawMessage, error) {
	if method == "" {
		return nil, ErrEmptyMethod
	}
	if args == nil {
		args = map[string]any{}
	}

	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %s arguments: %w", method, err)
	}

	c.metrics.IncCall(method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.targetURL(method), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rpc: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.IncTransportError()
		c.logger.Debug("call failed", map[string]any{"method": method, "args": args, "error": err.Error()})
		return nil, &TransportError{Method: method, Args: args, Err: err}
	}
	defer iox.DiscardClose(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.IncTransportError()
		return nil, &TransportError{Method: method, Args: args, Err: fmt.Errorf("read body: %w", err)}
	}

	c.record(&Response{Method: method, Status: resp.StatusCode, Header: resp.Header.Clone(), Body: raw})

	if c.logger.Enabled(zapcore.DebugLevel) {
		c.logger.Debug("call", map[string]any{
			"method":  method,
			"args":    args,
			"status":  resp.StatusCode,
			"headers": resp.Header,
			"body":    string(raw),
		})
	}

	result, err := unwrap(method, args, resp.StatusCode, raw)
	if err != nil {
		c.metrics.IncRemoteError()
		return nil, err
	}
	return result, nil
}

// CallInto invokes method and decodes the "ok" value into out.
func (c *Client) CallInto(ctx context.Context, method string, args map[string]any, out any) error {
	raw, err := c.Call(ctx, method, args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("rpc: decode %s result %s: %w", method, raw, err)
	}
	return nil
}

// Close releases idle connections held by the HTTP client.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) targetURL(method string) string {
	u := *c.base
	q := u.Query()
	q.Set(targetParam, method)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) record(r *Response) {
	c.mu.Lock()
	c.last = r
	c.mu.Unlock()
}

// unwrap applies the envelope rules to one response.
func unwrap(method string, args map[string]any, status int, raw []byte) (json.RawMessage, error) {
	fail := func(err error) error {
		re := &RemoteCallError{Method: method, Args: args, Status: status, Body: string(raw), Err: err}
		re.Reason = errorReason(raw)
		return re
	}

	if status < 200 || status >= 300 {
		return nil, fail(&StatusError{Code: status})
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fail(fmt.Errorf("malformed envelope: %w", err))
	}
	ok, found := envelope["ok"]
	if !found {
		return nil, fail(fmt.Errorf("envelope has no ok field"))
	}
	return ok, nil
}

// errorReason extracts {"error": "..."} when present.
func errorReason(raw []byte) string {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(body.Error, &s); err == nil {
		return s
	}
	return string(body.Error)
}
