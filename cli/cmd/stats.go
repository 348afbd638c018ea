package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/cli/reader"
	"github.com/cite-sa/MobiusCore/cli/render"
	"github.com/cite-sa/MobiusCore/cli/tui"
)

// StatsCommand returns the stats command with subcommands.
// Stats returns aggregated, derived facts.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics over checkpointed state",
		Subcommands: []*cli.Command{
			statsStateCommand(),
		},
	}
}

func statsStateCommand() *cli.Command {
	return &cli.Command{
		Name:      "state",
		Usage:     "Summarize the newest checkpointed state of a stream",
		ArgsUsage: "<stream>",
		Flags:     stateFlags(true),
		Action:    statsStateAction,
	}
}

func statsStateAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("stream required", 1)
	}
	stream := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	stats, err := readState(c, func(ctx context.Context, rd *reader.CheckpointReader) (*reader.StreamStats, error) {
		return rd.Stats(ctx, stream)
	})
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsState, stats)
	}
	return r.Render(stats)
}
