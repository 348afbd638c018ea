package cmd

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/cli/reader"
	"github.com/cite-sa/MobiusCore/cli/render"
)

// listWarningThreshold is the result count above which an unlimited
// listing on a terminal prints a --limit hint.
const listWarningThreshold = 100

// Orders accepted by `list streams --sort`.
const (
	sortName  = "name"
	sortKeys  = "keys"
	sortBatch = "batch"
)

// ListCommand returns the list command. Listings are one line per item;
// use inspect for detail.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List checkpointed streams",
		Subcommands: []*cli.Command{
			listStreamsCommand(),
		},
	}
}

func listStreamsCommand() *cli.Command {
	return &cli.Command{
		Name:  "streams",
		Usage: "List streams with checkpointed state",
		Flags: append(stateFlags(false),
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Only streams whose name starts with `PREFIX`",
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "Order by name, keys (most first) or batch (newest first)",
				Value: sortName,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of streams to return (0 = no limit)",
			},
		),
		Action: listStreamsAction,
	}
}

func listStreamsAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	streams, err := readState(c, func(ctx context.Context, rd *reader.CheckpointReader) ([]reader.StreamItem, error) {
		return rd.Streams(ctx)
	})
	if err != nil {
		return err
	}

	if p := c.String("prefix"); p != "" {
		streams = slices.DeleteFunc(streams, func(s reader.StreamItem) bool {
			return !strings.HasPrefix(s.Stream, p)
		})
	}
	if err := sortStreams(streams, c.String("sort")); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	limit := c.Int("limit")
	if limit == 0 && len(streams) > listWarningThreshold && isTerminal(os.Stderr) {
		fmt.Fprintf(os.Stderr, "Warning: returning %d streams. Consider using --limit.\n\n", len(streams))
	}
	if limit > 0 && len(streams) > limit {
		streams = streams[:limit]
	}
	return r.Render(streams)
}

// sortStreams orders streams in place. Ties fall back to the name.
func sortStreams(streams []reader.StreamItem, by string) error {
	var primary func(a, b reader.StreamItem) int
	switch by {
	case "", sortName:
	case sortKeys:
		primary = func(a, b reader.StreamItem) int { return cmp.Compare(b.Keys, a.Keys) }
	case sortBatch:
		primary = func(a, b reader.StreamItem) int { return cmp.Compare(b.LatestBatch, a.LatestBatch) }
	default:
		return fmt.Errorf("invalid --sort %q (want %s, %s or %s)", by, sortName, sortKeys, sortBatch)
	}
	slices.SortStableFunc(streams, func(a, b reader.StreamItem) int {
		if primary != nil {
			if c := primary(a, b); c != 0 {
				return c
			}
		}
		return strings.Compare(a.Stream, b.Stream)
	})
	return nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
