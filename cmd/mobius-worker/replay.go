package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/checkpoint"
	"github.com/cite-sa/MobiusCore/iox"
	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/policy"
	"github.com/cite-sa/MobiusCore/session"
	"github.com/cite-sa/MobiusCore/state"
	"github.com/cite-sa/MobiusCore/worker"
)

func replayCommand(stdin io.Reader) *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Run a recorded batch log through a keyed state stream",
		ArgsUsage: "<batch-log|->",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "stream",
				Usage:    "Checkpoint stream name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "func",
				Usage: "Registered state update function",
				Value: "running_sum",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Evict keys idle for longer than this (0 disables)",
			},
			&cli.IntFlag{
				Name:  "partitions",
				Usage: "Number of partitions",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "partitioning",
				Usage: "Key routing: hash or range",
				Value: worker.PartitionHash,
			},
			&cli.BoolFlag{
				Name:  "resume",
				Usage: "Start from the latest checkpoint of --stream in the configured store",
			},
		},
		Action: replayAction(stdin),
	}
}

// replayLine is one line of replay output.
type replayLine struct {
	Batch     int64   `json:"batch,omitempty"`
	BatchTime int64   `json:"batch_time,omitempty"`
	Keys      int     `json:"keys"`
	TimedOut  int     `json:"timed_out"`
	Output    []any   `json:"output,omitempty"`
	State     [][]any `json:"state,omitempty"`
}

func replayAction(stdin io.Reader) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("replay takes exactly one batch log (or - for stdin)", session.ExitCodeStartup)
		}
		batches, err := readBatches(c.Args().First(), stdin)
		if err != nil {
			return cli.Exit(err.Error(), session.ExitCodeStartup)
		}

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		s, err := newSetup(c.Context, c, cfg, modeReplay, "")
		if err != nil {
			return err
		}
		defer s.close()

		rcfg := worker.ReplayConfig{
			Stream:        c.String("stream"),
			Func:          c.String("func"),
			Timeout:       c.Duration("timeout"),
			NumPartitions: c.Int("partitions"),
			Partitioning:  c.String("partitioning"),
			Checkpoints:   s.worker.Checkpoints,
			Logger:        s.worker.Logger,
		}
		if c.Bool("resume") {
			if rcfg.Restore, err = latestCheckpoints(c, s); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(c.App.Writer)
		res, err := worker.Replay(c.Context, batches, rcfg, func(br *state.BatchResult[any]) error {
			out := make([]any, len(br.MappedOutput))
			for i, u := range br.MappedOutput {
				out[i] = ipc.Normalize(u)
			}
			return enc.Encode(replayLine{
				Batch:     br.Batch,
				BatchTime: br.LogicalTime,
				Keys:      br.Keys,
				TimedOut:  br.TimedOut,
				Output:    out,
			})
		})
		if err != nil {
			return cli.Exit(fmt.Sprintf("replay failed: %v", err), session.ExitCodeFault)
		}

		final := replayLine{Keys: len(res.State), State: make([][]any, len(res.State))}
		for i, snap := range res.State {
			final.State[i] = []any{snap.Key, snap.Value}
		}
		return enc.Encode(final)
	}
}

func readBatches(path string, stdin io.Reader) ([]worker.ReplayBatch, error) {
	if path == "-" {
		return worker.ReadBatchLog(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)
	return worker.ReadBatchLog(f)
}

// latestCheckpoints reads the newest checkpoint of every partition of
// --stream. A stream without checkpoints starts empty.
func latestCheckpoints(c *cli.Context, s *setup) ([]*policy.Checkpoint, error) {
	opts, ok := s.cfg.CheckpointOptions()
	if !ok {
		return nil, cli.Exit("--resume needs a checkpoint backend in the config", session.ExitCodeStartup)
	}
	ds, err := checkpoint.OpenDataset(c.Context, opts)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to open checkpoints: %v", err), session.ExitCodeStartup)
	}
	latest, err := checkpoint.QueryLatest(c.Context, ds, c.String("stream"))
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		s.worker.Logger.Info("no checkpoint to resume from", map[string]any{"stream": c.String("stream")})
		return nil, nil
	}
	if err != nil {
		return nil, cli.Exit(err.Error(), session.ExitCodeFault)
	}
	return latest, nil
}
