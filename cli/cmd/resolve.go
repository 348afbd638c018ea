package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cite-sa/MobiusCore/checkpoint"
	"github.com/cite-sa/MobiusCore/cli/config"
	"github.com/cite-sa/MobiusCore/cli/reader"
)

// readTimeout bounds one read-only command's storage access.
const readTimeout = 30 * time.Second

// resolveString returns the CLI value if the flag was set explicitly,
// otherwise the config value, otherwise the flag default.
func resolveString(c *cli.Context, flag, cfgVal string) string {
	if c.IsSet(flag) || cfgVal == "" {
		return c.String(flag)
	}
	return cfgVal
}

// resolveInt returns the CLI value if set, otherwise the config value
// when non-zero, otherwise the flag default.
func resolveInt(c *cli.Context, flag string, cfgVal int) int {
	if c.IsSet(flag) || cfgVal == 0 {
		return c.Int(flag)
	}
	return cfgVal
}

// resolveBool returns the CLI value if set, otherwise the config value.
func resolveBool(c *cli.Context, flag string, cfgVal bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	return cfgVal || c.Bool(flag)
}

// loadConfig loads --config (or $MOBIUS_WORKER_CONFIG). A missing path
// yields an empty config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return cfg, nil
}

// checkpointOptions merges the checkpoint flags over the config file.
func checkpointOptions(c *cli.Context, cfg *config.Config) (checkpoint.Options, error) {
	cc := cfg.Checkpoint
	opts := checkpoint.Options{
		Backend:      checkpoint.Backend(strings.ToLower(resolveString(c, "checkpoint-backend", cc.Backend))),
		Path:         resolveString(c, "checkpoint-path", cc.Path),
		Dataset:      resolveString(c, "checkpoint-dataset", cc.Dataset),
		Region:       resolveString(c, "checkpoint-region", cc.Region),
		Endpoint:     resolveString(c, "checkpoint-endpoint", cc.Endpoint),
		UsePathStyle: resolveBool(c, "checkpoint-s3-path-style", cc.S3PathStyle),
		MaxAttempts:  cc.MaxAttempts,
	}
	if opts.Backend == "" {
		return opts, errors.New("--checkpoint-backend is required (or set checkpoint.backend in --config)")
	}
	if opts.Backend != checkpoint.BackendMemory && opts.Path == "" {
		return opts, fmt.Errorf("--checkpoint-path is required for backend %q", opts.Backend)
	}
	return opts, nil
}

// openReader opens the checkpoint store selected by flags and config.
func openReader(ctx context.Context, c *cli.Context) (*reader.CheckpointReader, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	opts, err := checkpointOptions(c, cfg)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	ds, err := checkpoint.OpenDataset(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return reader.NewCheckpointReader(ds), nil
}

// readState runs fn against the configured checkpoint store.
func readState[T any](c *cli.Context, fn func(ctx context.Context, r *reader.CheckpointReader) (T, error)) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	r, err := openReader(ctx, c)
	if err != nil {
		return zero, err
	}
	v, err := fn(ctx, r)
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		return zero, cli.Exit(err.Error(), 1)
	}
	return v, err
}
