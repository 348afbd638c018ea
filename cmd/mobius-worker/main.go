// Package main provides the mobius-worker entrypoint.
//
// Usage:
//
//	mobius-worker [--port <port>] [--config <path>]
//	mobius-worker daemon [--listen <addr>] [--max-sessions <n>]
//	mobius-worker replay --stream <name> [--resume] <batch-log|->
//
// Without a subcommand the worker connects back to the host port given by
// --port, the first line of stdin or $MOBIUS_WORKER_FACTORY_PORT, runs one
// session and exits.
//
// Exit codes:
//   - 0: session completed, or input truncated
//   - 1: session fault (exception reported to the host)
//   - 2: startup failure (config, port or connect)
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/cli/config"
	"github.com/cite-sa/MobiusCore/iox"
	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/metrics"
	"github.com/cite-sa/MobiusCore/session"
	"github.com/cite-sa/MobiusCore/types"
	"github.com/cite-sa/MobiusCore/worker"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// Worker modes reported in metrics.
const (
	modeOnce   = "once"
	modeDaemon = "daemon"
	modeReplay = "replay"
)

func main() {
	if err := newApp(os.Stdin).Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		os.Exit(session.ExitCodeStartup)
	}
}

func newApp(stdin io.Reader) *cli.App {
	return &cli.App{
		Name:    "mobius-worker",
		Usage:   "Mobius worker: runs host-scheduled sessions over a socket",
		Version: fmt.Sprintf("%s (protocol %s, commit: %s)", types.Version, types.ProtocolVersion, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to worker config YAML",
				EnvVars: []string{config.EnvConfigPath},
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "Host port to connect to (default: first stdin line, then $" + worker.EnvFactoryPort + ")",
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "Transport backend: tcp or vsock (overrides config)",
			},
		},
		Action: runOnceAction(stdin),
		Commands: []*cli.Command{
			daemonCommand(),
			replayCommand(stdin),
		},
		ExitErrHandler: exitErrHandler,
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(session.ExitCodeStartup)
}

// setup holds what both modes build from config.
type setup struct {
	cfg     *config.Config
	worker  *worker.Config
	closers iox.Stack
}

// loadConfig loads --config (or $MOBIUS_WORKER_CONFIG); no path yields
// an empty config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), session.ExitCodeStartup)
	}
	return cfg, nil
}

// newSetup builds the worker config and opens the checkpoint policy.
// Failures are startup failures.
func newSetup(ctx context.Context, c *cli.Context, cfg *config.Config, mode, workerID string) (*setup, error) {
	if c.IsSet("transport") {
		cfg.Transport.Backend = c.String("transport")
	}
	tcfg, err := cfg.TransportConfig(os.LookupEnv)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid transport config: %v", err), session.ExitCodeStartup)
	}

	if lvl := cfg.LogLevel(os.LookupEnv); lvl != "" {
		if err := log.SetLevel(lvl); err != nil {
			return nil, cli.Exit(err.Error(), session.ExitCodeStartup)
		}
	}
	logger := log.NewProcessLogger()
	collector := metrics.NewCollector(string(tcfg.Backend), mode, workerID)
	checkpoints, err := cfg.OpenCheckpoints(ctx, collector, logger)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to open checkpoints: %v", err), session.ExitCodeStartup)
	}

	s := &setup{
		cfg: cfg,
		worker: &worker.Config{
			Transport:   tcfg,
			Logger:      logger,
			Collector:   collector,
			Checkpoints: checkpoints,
		},
	}
	s.closers.Push(checkpoints)
	return s, nil
}

// close releases everything pushed onto s.closers, then flushes the log.
func (s *setup) close() {
	if err := s.closers.Close(); err != nil {
		s.worker.Logger.Error("shutdown failed", map[string]any{"error": err.Error()})
	}
	_ = s.worker.Logger.Sync()
}

func runOnceAction(stdin io.Reader) cli.ActionFunc {
	return func(c *cli.Context) error {
		port, err := worker.ResolvePort(c.String("port"), stdin, os.LookupEnv)
		if err != nil {
			return cli.Exit(err.Error(), session.ExitCodeStartup)
		}

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		s, err := newSetup(c.Context, c, cfg, modeOnce, "")
		if err != nil {
			return err
		}
		defer s.close()

		s.worker.Address = port
		return cli.Exit("", worker.RunOnce(c.Context, s.worker))
	}
}

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Serve sessions from many host connections until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Listen address (tcp host:port, vsock cid:port)",
			},
			&cli.IntFlag{
				Name:  "max-sessions",
				Usage: "Maximum concurrent sessions",
				Value: worker.DefaultMaxSessions,
			},
			&cli.StringFlag{
				Name:  "worker-id",
				Usage: "Worker identifier reported in events and metrics",
			},
			&cli.StringFlag{
				Name:  "metrics-listen",
				Usage: "Serve /metrics and /healthz on this address",
			},
		},
		Action: daemonAction,
	}
}

func daemonAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	workerID := resolveString(c, "worker-id", cfg.Daemon.WorkerID)
	if workerID == "" {
		workerID, _ = os.Hostname()
	}

	s, err := newSetup(ctx, c, cfg, modeDaemon, workerID)
	if err != nil {
		return err
	}
	defer s.close()

	events, err := s.cfg.NewAdapter()
	if err != nil {
		return cli.Exit(err.Error(), session.ExitCodeStartup)
	}
	s.closers.Push(events)

	d, err := worker.NewDaemon(&worker.DaemonConfig{
		Config:         *s.worker,
		ListenAddress:  resolveString(c, "listen", s.cfg.Daemon.Listen),
		MaxSessions:    resolveInt(c, "max-sessions", s.cfg.Daemon.MaxSessions),
		WorkerID:       workerID,
		Adapter:        events,
		MetricsAddress: resolveString(c, "metrics-listen", s.cfg.Metrics.Listen),
	})
	if err != nil {
		return cli.Exit(err.Error(), session.ExitCodeStartup)
	}

	if err := d.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("daemon failed: %v", err), session.ExitCodeFault)
	}
	return nil
}

// resolveString returns the flag value if set explicitly, otherwise the
// config value, otherwise the flag default.
func resolveString(c *cli.Context, flag, cfgVal string) string {
	if c.IsSet(flag) || cfgVal == "" {
		return c.String(flag)
	}
	return cfgVal
}

// resolveInt is resolveString for integers; zero config values defer to
// the flag default.
func resolveInt(c *cli.Context, flag string, cfgVal int) int {
	if c.IsSet(flag) || cfgVal == 0 {
		return c.Int(flag)
	}
	return cfgVal
}
