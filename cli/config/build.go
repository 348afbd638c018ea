package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/cite-sa/MobiusCore/adapter"
	"github.com/cite-sa/MobiusCore/adapter/redis"
	"github.com/cite-sa/MobiusCore/adapter/webhook"
	"github.com/cite-sa/MobiusCore/checkpoint"
	"github.com/cite-sa/MobiusCore/iox"
	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/metrics"
	"github.com/cite-sa/MobiusCore/policy"
	"github.com/cite-sa/MobiusCore/transport"
)

// Policy names.
const (
	PolicyStrict   = "strict"
	PolicyBuffered = "buffered"
	PolicyNoop     = "noop"
)

// Adapter types.
const (
	AdapterRedis   = "redis"
	AdapterWebhook = "webhook"
)

// TransportConfig builds the transport configuration, then overlays the
// MOBIUS_WORKER_* variables found by lookup.
func (c *Config) TransportConfig(lookup func(string) (string, bool)) (transport.Config, error) {
	tc := transport.Config{
		ReadBufferSize:  c.Transport.ReadBufferSize,
		WriteBufferSize: c.Transport.WriteBufferSize,
		ReadTimeout:     c.Transport.ReadTimeout.Duration,
		AcceptTimeout:   c.Transport.AcceptTimeout.Duration,
		ConnectAttempts: c.Transport.ConnectAttempts,
	}
	if c.Transport.Backend != "" {
		b, err := transport.ParseBackend(c.Transport.Backend)
		if err != nil {
			return tc, fmt.Errorf("transport.backend: %w", err)
		}
		tc.Backend = b
	}
	return tc.ApplyEnv(lookup)
}

// LogLevel returns the configured log level, with log.EnvLevel taking
// precedence over the file. Empty means keep the default.
func (c *Config) LogLevel(lookup func(string) (string, bool)) string {
	if v, ok := lookup(log.EnvLevel); ok && v != "" {
		return v
	}
	return c.Log.Level
}

// CheckpointOptions returns the checkpoint storage options. ok is false
// when no backend is configured.
func (c *Config) CheckpointOptions() (opts checkpoint.Options, ok bool) {
	cc := c.Checkpoint
	if cc.Backend == "" {
		return opts, false
	}
	return checkpoint.Options{
		Backend:      checkpoint.Backend(strings.ToLower(cc.Backend)),
		Dataset:      cc.Dataset,
		Path:         cc.Path,
		Region:       cc.Region,
		Endpoint:     cc.Endpoint,
		UsePathStyle: cc.S3PathStyle,
		MaxAttempts:  cc.MaxAttempts,
	}, true
}

// NewPolicy builds the configured policy over sink. Strict is the
// default.
func (c *Config) NewPolicy(sink policy.Sink, logger *log.Logger) (policy.Policy, error) {
	switch strings.ToLower(c.Policy.Name) {
	case "", PolicyStrict:
		return policy.NewStrictPolicy(sink), nil
	case PolicyBuffered:
		bc := policy.DefaultBufferedConfig()
		if c.Policy.BufferBatches != 0 {
			bc.MaxBatches = c.Policy.BufferBatches
		}
		bc.Logger = logger
		return policy.NewBufferedPolicy(sink, bc)
	case PolicyNoop:
		return policy.NewNoopPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown policy %q (want strict, buffered or noop)", c.Policy.Name)
	}
}

// OpenCheckpoints opens the configured checkpoint store and wraps it in
// the configured policy. It returns a nil policy when checkpointing is
// not configured. Closing the policy closes the store.
func (c *Config) OpenCheckpoints(ctx context.Context, collector *metrics.Collector, logger *log.Logger) (policy.Policy, error) {
	opts, ok := c.CheckpointOptions()
	if !ok {
		return nil, nil
	}
	if strings.EqualFold(c.Policy.Name, PolicyNoop) {
		return policy.NewNoopPolicy(), nil
	}
	client, err := checkpoint.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	p, err := c.NewPolicy(checkpoint.NewInstrumentedSink(client, collector), logger)
	if err != nil {
		iox.DiscardClose(client)
		return nil, err
	}
	return p, nil
}

// NewAdapter builds the configured adapter, or nil when none is set.
func (c *Config) NewAdapter() (adapter.Adapter, error) {
	ac := c.Adapter
	retries := 0
	if ac.Retries != nil {
		retries = *ac.Retries
	}
	switch strings.ToLower(ac.Type) {
	case "":
		return nil, nil
	case AdapterRedis:
		a, err := redis.New(redis.Config{
			URL:          ac.URL,
			Channel:      ac.Channel,
			Stream:       ac.Stream,
			StreamMaxLen: ac.StreamMaxLen,
			Timeout:      ac.Timeout.Duration,
			Retries:      retries,
		})
		if err != nil {
			return nil, fmt.Errorf("adapter: %w", err)
		}
		return a, nil
	case AdapterWebhook:
		a, err := webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Secret:  ac.Secret,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, fmt.Errorf("adapter: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q (want redis or webhook)", ac.Type)
	}
}
