// Package cmd provides CLI commands for the mobius binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/cli/config"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (inspect, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, stats only)",
	}

	// ConfigFlag points at a worker config file whose checkpoint, policy
	// and transport sections fill in unset flags.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to worker config YAML",
		EnvVars: []string{config.EnvConfigPath},
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// CheckpointFlags select the checkpoint store read by inspect, list and
// stats. Unset flags fall back to the config file's checkpoint section.
func CheckpointFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{Name: "checkpoint-backend", Usage: "Checkpoint backend: fs, s3 or memory"},
		&cli.StringFlag{Name: "checkpoint-path", Usage: "Checkpoint path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "checkpoint-dataset", Usage: "Checkpoint dataset name"},
		&cli.StringFlag{Name: "checkpoint-region", Usage: "AWS region for S3 backend"},
		&cli.StringFlag{Name: "checkpoint-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
		&cli.BoolFlag{Name: "checkpoint-s3-path-style", Usage: "Use path-style S3 addressing"},
	}
}

// stateFlags are the flags of commands reading checkpointed state.
func stateFlags(tui bool) []cli.Flag {
	var flags []cli.Flag
	if tui {
		flags = TUIReadOnlyFlags()
	} else {
		flags = ReadOnlyFlags()
	}
	return append(flags, CheckpointFlags()...)
}
