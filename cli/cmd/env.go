package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/PuffoTrillionarioGonePublic/erldb/adapter"
	"github.com/PuffoTrillionarioGonePublic/erldb/adapter/redis"
	"github.com/PuffoTrillionarioGonePublic/erldb/adapter/webhook"
	"github.com/PuffoTrillionarioGonePublic/erldb/cli/config"
	"github.com/PuffoTrillionarioGonePublic/erldb/log"
	"github.com/PuffoTrillionarioGonePublic/erldb/metrics"
	"github.com/PuffoTrillionarioGonePublic/erldb/rpc"
	"github.com/PuffoTrillionarioGonePublic/erldb/session"
)

// runtimeEnv is everything a command needs to talk to one node.
// Flags override config values, which override built-in defaults.
type runtimeEnv struct {
	cfg     *config.Config
	meta    *log.SessionMeta
	logger  *log.Logger
	metrics *metrics.Collector
	client  *rpc.Client
	adapter adapter.Adapter
	bucket  string
}

func newRuntimeEnv(c *cli.Context) (*runtimeEnv, error) {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return nil, usageError("%v", err)
	}

	endpoint := cfg.ResolveEndpoint()
	if c.IsSet("endpoint") {
		endpoint = c.String("endpoint")
	}

	timeout := durationOr(cfg.Timeout.Duration, rpc.DefaultTimeout)
	if c.IsSet("timeout") {
		timeout = c.Duration("timeout")
	}

	levelName := cfg.LogLevel
	if levelName == "" || c.IsSet("log-level") {
		levelName = c.String("log-level")
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return nil, usageError("%v", err)
	}

	bucket := cfg.Bucket
	if c.IsSet("bucket") {
		bucket = c.String("bucket")
	}
	if bucket == "" {
		bucket = session.DefaultBucket
	}

	meta := log.NewSessionMeta(endpoint)
	logger := log.NewLogger(meta).WithOutput(c.App.ErrWriter)
	logger.SetLevel(level)
	collector := metrics.NewCollector(endpoint, meta.SessionID)

	client, err := rpc.New(rpc.Config{
		Endpoint: endpoint,
		Timeout:  timeout,
		Headers:  cfg.Headers,
	}, rpc.WithLogger(logger), rpc.WithCollector(collector))
	if err != nil {
		return nil, usageError("%v", err)
	}

	a, err := buildAdapter(cfg.Adapter)
	if err != nil {
		_ = client.Close()
		return nil, usageError("invalid adapter config: %v", err)
	}

	return &runtimeEnv{
		cfg:     cfg,
		meta:    meta,
		logger:  logger,
		metrics: collector,
		client:  client,
		adapter: a,
		bucket:  bucket,
	}, nil
}

// session builds a Session sharing the env's identity, logger and metrics.
func (e *runtimeEnv) session() *session.Session {
	opts := []session.Option{
		session.WithMeta(e.meta),
		session.WithLogger(e.logger),
		session.WithCollector(e.metrics),
		session.WithBucket(e.bucket),
	}
	if e.adapter != nil {
		opts = append(opts, session.WithAdapter(e.adapter))
	}
	return session.New(e.client, opts...)
}

// Close releases the adapter and idle HTTP connections.
func (e *runtimeEnv) Close() error {
	var errs []error
	if e.adapter != nil {
		errs = append(errs, e.adapter.Close())
	}
	errs = append(errs, e.client.Close())
	if e.logger.Enabled(zapcore.DebugLevel) {
		snap := e.metrics.Snapshot()
		e.logger.Debug("session metrics", map[string]any{
			"calls":            snap.CallsTotal,
			"transport_errors": snap.TransportErrors,
			"remote_errors":    snap.RemoteErrors,
			"rows_stepped":     snap.RowsStepped,
		})
	}
	_ = e.logger.Sync()
	return errors.Join(errs...)
}

// buildAdapter creates the notification adapter named in the config.
// Returns nil when no adapter is configured.
func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	retries := webhook.DefaultRetries
	if ac.Retries != nil {
		retries = *ac.Retries
	}

	switch ac.Type {
	case "":
		return nil, nil
	case config.AdapterWebhook:
		a, err := webhook.New(webhook.Config{
			URL:      ac.URL,
			Headers:  ac.Headers,
			Timeout:  ac.Timeout.Duration,
			Retries:  retries,
			Outcomes: adapter.Outcomes(ac.Outcomes),
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case config.AdapterRedis:
		a, err := redis.New(redis.Config{
			URL:      ac.URL,
			Channel:  ac.Channel,
			Timeout:  ac.Timeout.Duration,
			Retries:  retries,
			Outcomes: adapter.Outcomes(ac.Outcomes),
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

// commandContext returns a context cancelled on SIGINT or SIGTERM.
func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

// usageError returns a cli exit error with the usage exit code.
func usageError(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), exitUsageError)
}

// exitError maps a client error to its exit code.
// Transport failures exit 2; remote and other query failures exit 1.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return err
	}
	if rpc.IsTransport(err) {
		return cli.Exit(err.Error(), exitTransportError)
	}
	return cli.Exit(err.Error(), exitQueryError)
}
