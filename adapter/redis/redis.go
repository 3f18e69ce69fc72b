// Package redis publishes query completion events on Redis pub/sub.
//
// The channel may embed {bucket}, {file}, {outcome} and {session_id}
// placeholders. Subscribers then pick databases or failures with
// PSUBSCRIBE, for example "erldb:*:remote_error" for the channel
// "erldb:{bucket}:{outcome}".
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PuffoTrillionarioGonePublic/erldb/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "erldb:query_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the channel template (default: erldb:query_completed).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
	// Outcomes restricts which events are published. Empty publishes all.
	Outcomes adapter.Outcomes
}

// Adapter publishes query completion events via PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
	// backoff is the delay before retry i (1-based).
	backoff func(i int) time.Duration
}

// New creates a Redis pub/sub adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if _, err := adapter.ParseOutcomes(cfg.Outcomes); err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}

	return &Adapter{
		config:  cfg,
		client:  goredis.NewClient(opts),
		backoff: adapter.ExponentialBackoff,
	}, nil
}

// Channel returns the configured channel template.
func (a *Adapter) Channel() string {
	return a.config.Channel
}

// ChannelFor returns the channel an event is published on.
func (a *Adapter) ChannelFor(event *adapter.QueryCompletedEvent) string {
	return adapter.Expand(a.config.Channel, event, nil)
}

// Publish sends the event as JSON on its channel. Events whose outcome is
// filtered out are dropped. Every failure is retried.
func (a *Adapter) Publish(ctx context.Context, event *adapter.QueryCompletedEvent) error {
	if !a.config.Outcomes.Match(event.Outcome) {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	channel := a.ChannelFor(event)

	err = adapter.Retry(ctx, a.config.Retries, a.backoff, nil, func() error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.client.Publish(publishCtx, channel, body).Err()
	})
	if err != nil {
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
