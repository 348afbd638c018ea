// Package worker is the process-level glue around sessions: resolving
// the host's port, running a single session per process, and the
// long-lived daemon that serves many sessions.
package worker

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cite-sa/MobiusCore/broadcast"
	"github.com/cite-sa/MobiusCore/command"
	"github.com/cite-sa/MobiusCore/iox"
	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/metrics"
	"github.com/cite-sa/MobiusCore/policy"
	"github.com/cite-sa/MobiusCore/session"
	"github.com/cite-sa/MobiusCore/transport"
	"github.com/cite-sa/MobiusCore/types"
)

// Config configures a worker process.
type Config struct {
	// Transport configures the socket backend.
	Transport transport.Config
	// Address is the host address to connect to (RunOnce only).
	Address string
	// Registry resolves command functions. Defaults to
	// command.DefaultRegistry().
	Registry *command.Registry
	// Logger is the process logger. Defaults to a stderr process logger.
	Logger *log.Logger
	// Collector is optional.
	Collector *metrics.Collector
	// Checkpoints receives map_with_state checkpoints. Optional; the
	// caller closes it.
	Checkpoints policy.Policy
	// BootTime is the process start time. Defaults to now.
	BootTime time.Time
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Registry == nil {
		out.Registry = command.DefaultRegistry()
	}
	if out.Logger == nil {
		out.Logger = log.NewProcessLogger()
	}
	if out.BootTime.IsZero() {
		out.BootTime = time.Now()
	}
	return &out
}

// newMeta returns a fresh session identity.
func newMeta() *types.SessionMeta {
	return &types.SessionMeta{
		SessionID: uuid.NewString(),
		Partition: -1,
		PID:       os.Getpid(),
	}
}

// newSession builds a session sharing the worker's registries.
func (c *Config) newSession(meta *types.SessionMeta, broadcasts *broadcast.Registry) (*session.Session, error) {
	return session.New(&session.Config{
		Meta:        meta,
		Registry:    c.Registry,
		Broadcasts:  broadcasts,
		Logger:      c.Logger.WithSession(meta),
		Collector:   c.Collector,
		Checkpoints: c.Checkpoints,
		BootTime:    c.BootTime,
	})
}

// RunOnce connects to cfg.Address, runs one session and returns the
// process exit code. Configuration and connect failures return
// session.ExitCodeStartup.
func RunOnce(ctx context.Context, cfg *Config) int {
	cfg = cfg.withDefaults()
	logger := cfg.Logger

	tr, err := transport.New(cfg.Transport)
	if err != nil {
		logger.Error("invalid transport configuration", map[string]any{"error": err.Error()})
		return session.ExitCodeStartup
	}
	if cfg.Address == "" {
		logger.Error("no host address", nil)
		return session.ExitCodeStartup
	}

	conn, err := tr.Connect(ctx, cfg.Address)
	if err != nil {
		logger.Error("failed to connect to host", map[string]any{
			"address": cfg.Address,
			"error":   err.Error(),
		})
		return session.ExitCodeStartup
	}
	defer iox.DiscardClose(conn)

	meta := newMeta()
	s, err := cfg.newSession(meta, nil)
	if err != nil {
		logger.Error("failed to create session", map[string]any{"error": err.Error()})
		return session.ExitCodeStartup
	}
	res := s.Run(ctx, conn)

	if cfg.Checkpoints != nil {
		if err := cfg.Checkpoints.Flush(ctx); err != nil {
			logger.Error("checkpoint flush failed", map[string]any{
				"session_id": meta.SessionID,
				"error":      err.Error(),
			})
		}
	}
	return res.ExitCode
}
