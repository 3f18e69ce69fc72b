// Package webhook posts query completion events to an HTTP endpoint.
//
// The URL may name the target database with {bucket}, {file}, {outcome}
// and {session_id} placeholders, so one receiver can route per database:
//
//	https://hooks.internal/erldb/{bucket}/{file}
//
// Every request carries the outcome and ids as headers so receivers can
// filter without parsing the body.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuffoTrillionarioGonePublic/erldb/adapter"
	"github.com/PuffoTrillionarioGonePublic/erldb/iox"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Request headers.
const (
	EventHeader   = "X-Erldb-Event"
	OutcomeHeader = "X-Erldb-Outcome"
	SessionHeader = "X-Erldb-Session"
	QueryHeader   = "X-Erldb-Query-Id"
)

// Config configures the webhook adapter.
type Config struct {
	// URL is the endpoint template (required). Placeholder values are
	// path-escaped.
	URL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
	// Outcomes restricts which events are posted. Empty posts all.
	Outcomes adapter.Outcomes
}

// Adapter posts query completion events.
type Adapter struct {
	config  Config
	client  *http.Client
	backoff func(i int) time.Duration
}

// New creates a webhook adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	probe := adapter.Expand(cfg.URL, &adapter.QueryCompletedEvent{Bucket: "b", File: "f", Outcome: "o", SessionID: "s"}, url.PathEscape)
	if _, err := url.ParseRequestURI(probe); err != nil {
		return nil, fmt.Errorf("webhook adapter: invalid URL %q: %w", cfg.URL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if _, err := adapter.ParseOutcomes(cfg.Outcomes); err != nil {
		return nil, fmt.Errorf("webhook adapter: %w", err)
	}

	return &Adapter{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		backoff: adapter.ExponentialBackoff,
	}, nil
}

// URLFor returns the endpoint an event is posted to.
func (a *Adapter) URLFor(event *adapter.QueryCompletedEvent) string {
	return adapter.Expand(a.config.URL, event, url.PathEscape)
}

// Publish posts the event as JSON. Events whose outcome is filtered out
// are dropped without a request. Retries on 5xx responses and network
// errors; 4xx fails immediately.
func (a *Adapter) Publish(ctx context.Context, event *adapter.QueryCompletedEvent) error {
	if !a.config.Outcomes.Match(event.Outcome) {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	target := a.URLFor(event)

	err = adapter.Retry(ctx, a.config.Retries, a.backoff, Retriable, func() error {
		return a.post(ctx, target, event, body)
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retriable reports whether a publish failure may succeed on retry.
// Client errors (4xx) are final.
func Retriable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code < 400 || statusErr.Code >= 500
	}
	return true
}

func (a *Adapter) post(ctx context.Context, target string, event *adapter.QueryCompletedEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event.EventType)
	req.Header.Set(OutcomeHeader, event.Outcome)
	req.Header.Set(SessionHeader, event.SessionID)
	req.Header.Set(QueryHeader, event.QueryID)
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
