package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cite-sa/MobiusCore/adapter"
	"github.com/cite-sa/MobiusCore/broadcast"
	"github.com/cite-sa/MobiusCore/iox"
	"github.com/cite-sa/MobiusCore/metrics"
	"github.com/cite-sa/MobiusCore/session"
	"github.com/cite-sa/MobiusCore/transport"
)

// DefaultMaxSessions bounds concurrent daemon sessions.
const DefaultMaxSessions = 4

// publishTimeout bounds one adapter publish after a session.
const publishTimeout = 30 * time.Second

// DaemonConfig configures a Daemon.
type DaemonConfig struct {
	Config
	// ListenAddress is where hosts connect. Empty picks an ephemeral
	// loopback port (tcp).
	ListenAddress string
	// MaxSessions bounds concurrent sessions. Defaults to
	// DefaultMaxSessions.
	MaxSessions int
	// WorkerID is reported in events and metrics.
	WorkerID string
	// Adapter is notified after each session. Optional.
	Adapter adapter.Adapter
	// MetricsAddress serves /metrics and /healthz when non-empty.
	MetricsAddress string
}

// Daemon serves one session per accepted connection. All sessions share
// one broadcast registry; each has its own accumulators.
type Daemon struct {
	cfg         *DaemonConfig
	worker      *Config
	transport   *transport.Transport
	broadcasts  *broadcast.Registry
	sem         *semaphore.Weighted
	maxSessions int
	wg          sync.WaitGroup
}

// NewDaemon validates cfg and creates a daemon.
func NewDaemon(cfg *DaemonConfig) (*Daemon, error) {
	if cfg.MaxSessions < 0 {
		return nil, fmt.Errorf("max sessions must be >= 0, got %d", cfg.MaxSessions)
	}
	tr, err := transport.New(cfg.Transport)
	if err != nil {
		return nil, err
	}
	maxSessions := cfg.MaxSessions
	if maxSessions == 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Daemon{
		cfg:         cfg,
		worker:      cfg.Config.withDefaults(),
		transport:   tr,
		broadcasts:  broadcast.NewRegistry(),
		sem:         semaphore.NewWeighted(int64(maxSessions)),
		maxSessions: maxSessions,
	}, nil
}

// Broadcasts returns the registry shared by the daemon's sessions.
func (d *Daemon) Broadcasts() *broadcast.Registry {
	return d.broadcasts
}

// Listen opens the daemon's transport listener.
func (d *Daemon) Listen() (*transport.Listener, error) {
	return d.transport.Listen(d.cfg.ListenAddress)
}

// Run listens, serves sessions and, when configured, the metrics
// endpoint, until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := d.Listen()
	if err != nil {
		return err
	}
	defer iox.DiscardClose(ln)

	d.worker.Logger.Info("daemon listening", map[string]any{
		"address":      ln.Addr(),
		"max_sessions": d.maxSessions,
	})

	g, gctx := errgroup.WithContext(ctx)
	if d.cfg.MetricsAddress != "" {
		mln, err := net.Listen("tcp", d.cfg.MetricsAddress)
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		d.worker.Logger.Info("metrics listening", map[string]any{"address": mln.Addr().String()})
		g.Go(func() error { return metrics.Serve(gctx, mln, d.worker.Collector) })
	}
	g.Go(func() error { return d.Serve(gctx, ln) })
	return g.Wait()
}

// Serve accepts connections on ln until ctx is cancelled, then waits for
// in-flight sessions and flushes checkpoints. Sessions are not cancelled
// with ctx.
func (d *Daemon) Serve(ctx context.Context, ln *transport.Listener) error {
	sessionCtx := context.WithoutCancel(ctx)
	err := d.acceptLoop(ctx, sessionCtx, ln)
	d.wg.Wait()

	if d.worker.Checkpoints != nil {
		if ferr := d.worker.Checkpoints.Flush(sessionCtx); ferr != nil {
			d.worker.Logger.Error("checkpoint flush failed", map[string]any{"error": ferr.Error()})
			err = errors.Join(err, ferr)
		}
	}
	d.worker.Logger.Info("daemon stopped", nil)
	return err
}

func (d *Daemon) acceptLoop(ctx, sessionCtx context.Context, ln *transport.Listener) error {
	for {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		conn, err := ln.Accept(ctx)
		if err != nil {
			d.sem.Release(1)
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, transport.ErrTimeout):
				continue
			default:
				return fmt.Errorf("daemon accept: %w", err)
			}
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer d.sem.Release(1)
			d.serveConn(sessionCtx, conn)
		}()
	}
}

func (d *Daemon) serveConn(ctx context.Context, conn *transport.Conn) {
	meta := newMeta()
	s, err := d.worker.newSession(meta, d.broadcasts)
	if err != nil {
		iox.DiscardClose(conn)
		d.worker.Logger.Error("failed to create session", map[string]any{"error": err.Error()})
		return
	}
	res := s.Run(ctx, conn)
	iox.DiscardClose(conn)
	d.publish(ctx, res)
}

func (d *Daemon) publish(ctx context.Context, res *session.Result) {
	if d.cfg.Adapter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	event := newEvent(d.cfg.WorkerID, res)
	if err := d.cfg.Adapter.Publish(ctx, event); err != nil {
		d.worker.Logger.Warn("session event not published", map[string]any{
			"session_id": event.SessionID,
			"error":      err.Error(),
		})
	}
}

// newEvent builds the notification for a finished session.
func newEvent(workerID string, res *session.Result) *adapter.SessionCompletedEvent {
	ev := &adapter.SessionCompletedEvent{
		EventType:  adapter.EventTypeSessionCompleted,
		SessionID:  res.Meta.SessionID,
		WorkerID:   workerID,
		Partition:  res.Meta.Partition,
		ExitCode:   res.ExitCode,
		Reusable:   res.Reusable,
		RecordsIn:  res.RecordsIn,
		RecordsOut: res.RecordsOut,
		DurationMs: res.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if res.Outcome != nil {
		ev.Outcome = string(res.Outcome.Status)
		ev.Phase = res.Outcome.Phase
		ev.Message = res.Outcome.Message
	}
	return ev
}
