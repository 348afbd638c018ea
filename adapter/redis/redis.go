// Package redis publishes session events to Redis.
//
// Every event is PUBLISHed as JSON on a pub/sub channel. When a stream is
// configured the event is also appended with XADD, capped near
// StreamMaxLen entries, so consumers that were offline can catch up.
// Both writes go through one pipeline and are retried together.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cite-sa/MobiusCore/adapter"
)

// Defaults.
const (
	DefaultChannel      = "mobius:session_completed"
	DefaultTimeout      = 5 * time.Second
	DefaultStreamMaxLen = 10000
)

// Config configures the Redis adapter.
type Config struct {
	// URL is the connection URL, redis://[:password@]host:port[/db]. Required.
	URL string
	// Channel is the pub/sub channel (default mobius:session_completed).
	Channel string
	// Stream, when set, also receives each event via XADD.
	Stream string
	// StreamMaxLen caps the stream approximately (default 10000).
	StreamMaxLen int64
	// Timeout bounds one attempt (default 5s).
	Timeout time.Duration
	// Retries is the number of extra attempts after a failure.
	Retries int
}

// Adapter writes session events to Redis.
type Adapter struct {
	cfg    Config
	client *goredis.Client
}

// New validates cfg and connects lazily; no command is sent until Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
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
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = DefaultStreamMaxLen
	}
	return &Adapter{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish writes event to the channel and, if configured, the stream.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	return adapter.Retry(ctx, "redis", a.cfg.Retries, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
		_, err := a.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
			p.Publish(ctx, a.cfg.Channel, body)
			if a.cfg.Stream != "" {
				p.XAdd(ctx, &goredis.XAddArgs{
					Stream: a.cfg.Stream,
					MaxLen: a.cfg.StreamMaxLen,
					Approx: true,
					Values: map[string]any{
						"session_id": event.SessionID,
						"outcome":    event.Outcome,
						"event":      string(body),
					},
				})
			}
			return nil
		})
		return err
	})
}

// Channel returns the pub/sub channel.
func (a *Adapter) Channel() string { return a.cfg.Channel }

// Close closes the client's connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
