package cmd

import (
	"context"
	"slices"

	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/cli/reader"
	"github.com/cite-sa/MobiusCore/cli/render"
	"github.com/cite-sa/MobiusCore/cli/tui"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect returns a deep view of a single entity.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect checkpointed state",
		Subcommands: []*cli.Command{
			inspectStateCommand(),
		},
	}
}

func inspectStateCommand() *cli.Command {
	return &cli.Command{
		Name:      "state",
		Usage:     "Show the newest checkpointed state of a stream",
		ArgsUsage: "<stream>",
		Flags: append(stateFlags(true),
			&cli.IntSliceFlag{
				Name:  "partition",
				Usage: "Only show these partitions (repeatable)",
			},
		),
		Action: inspectStateAction,
	}
}

func inspectStateAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("stream required", 1)
	}
	stream := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	view, err := readState(c, func(ctx context.Context, rd *reader.CheckpointReader) (*reader.StateView, error) {
		return rd.State(ctx, stream)
	})
	if err != nil {
		return err
	}
	if parts := c.IntSlice("partition"); len(parts) > 0 {
		view = filterPartitions(view, parts)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectState, view)
	}
	return r.Render(view)
}

// filterPartitions keeps only the listed partitions.
func filterPartitions(view *reader.StateView, keep []int) *reader.StateView {
	out := &reader.StateView{Stream: view.Stream}
	for _, p := range view.Partitions {
		if slices.Contains(keep, p.Partition) {
			out.Partitions = append(out.Partitions, p)
		}
	}
	return out
}
