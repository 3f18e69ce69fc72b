package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/PuffoTrillionarioGonePublic/erldb/adapter"
	"github.com/PuffoTrillionarioGonePublic/erldb/log"
	"github.com/PuffoTrillionarioGonePublic/erldb/rpc"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "erldb.yaml"

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Export backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Config represents an erldb.yaml configuration file.
// All values are optional and act as defaults for erldb flags.
// CLI flags always override config values.
type Config struct {
	Endpoint string            `yaml:"endpoint"`
	Nodes    []string          `yaml:"nodes"`
	Timeout  Duration          `yaml:"timeout"`
	Bucket   string            `yaml:"bucket"`
	LogLevel string            `yaml:"log_level"`
	Headers  map[string]string `yaml:"headers"`
	Adapter  AdapterConfig     `yaml:"adapter"`
	Export   ExportConfig      `yaml:"export"`
}

// AdapterConfig holds notification adapter defaults from the config file.
// Outcomes limits notifications to those query outcomes; empty sends all.
type AdapterConfig struct {
	Type     string            `yaml:"type"`
	URL      string            `yaml:"url"`
	Channel  string            `yaml:"channel,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Timeout  Duration          `yaml:"timeout,omitempty"`
	Retries  *int              `yaml:"retries,omitempty"`
	Outcomes []string          `yaml:"outcomes,omitempty"`
}

// ExportConfig holds result export defaults from the config file.
type ExportConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ResolveEndpoint returns the node to talk to: endpoint, else the first of
// nodes, else rpc.DefaultEndpoint. Other nodes are never contacted.
func (c *Config) ResolveEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	for _, n := range c.Nodes {
		if n != "" {
			return n
		}
	}
	return rpc.DefaultEndpoint
}

// Validate checks enumerated fields and required pairs.
func (c *Config) Validate() error {
	var errs []error
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Timeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("timeout must be >= 0, got %s", c.Timeout.Duration))
	}
	switch c.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis:
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter %s requires url", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown adapter type %q (want webhook or redis)", c.Adapter.Type))
	}
	if _, err := adapter.ParseOutcomes(c.Adapter.Outcomes); err != nil {
		errs = append(errs, fmt.Errorf("adapter %w", err))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter retries must be >= 0, got %d", *c.Adapter.Retries))
	}
	switch c.Export.Backend {
	case "", BackendFS, BackendS3:
	default:
		errs = append(errs, fmt.Errorf("unknown export backend %q (want fs or s3)", c.Export.Backend))
	}
	return errors.Join(errs...)
}
