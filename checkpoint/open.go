package checkpoint

import (
	"context"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// Backend names a checkpoint store.
type Backend string

// Supported backends.
const (
	BackendFS     Backend = "fs"
	BackendS3     Backend = "s3"
	BackendMemory Backend = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend Backend
	Dataset string
	// Path is the root directory (fs) or "bucket/prefix" (s3).
	Path         string
	Region       string
	Endpoint     string
	UsePathStyle bool
	// MaxAttempts caps S3 request retries; zero keeps the SDK default.
	MaxAttempts int
}

// SharedFactory returns a factory that always yields store, so writers
// and readers see the same data.
func SharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

// NewFactory builds the store factory for opts.
func NewFactory(ctx context.Context, opts Options) (lode.StoreFactory, error) {
	switch opts.Backend {
	case BackendFS, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("checkpoint backend %q requires a path", BackendFS)
		}
		return lode.NewFSFactory(opts.Path), nil
	case BackendS3:
		bucket, prefix := ParseS3Path(opts.Path)
		return NewS3Factory(ctx, S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       opts.Region,
			Endpoint:     opts.Endpoint,
			UsePathStyle: opts.UsePathStyle,
			MaxAttempts:  opts.MaxAttempts,
		})
	case BackendMemory:
		return SharedFactory(lode.NewMemory()), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", opts.Backend)
	}
}

// Open creates a client for opts.
func Open(ctx context.Context, opts Options) (*Client, error) {
	factory, err := NewFactory(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewClientWithFactory(Config{Dataset: opts.Dataset}, factory)
}

// OpenDataset opens the dataset of opts for reading.
func OpenDataset(ctx context.Context, opts Options) (lode.Dataset, error) {
	factory, err := NewFactory(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewDataset(Config{Dataset: opts.Dataset}.dataset(), factory)
}
