package reader

import "context"

// Reader abstracts read-only access to checkpointed state for CLI
// commands. All methods are read-only.
type Reader interface {
	// Streams lists the checkpointed streams.
	Streams(ctx context.Context) ([]StreamItem, error)
	// State returns the latest state of stream.
	State(ctx context.Context, stream string) (*StateView, error)
	// Stats summarizes the latest state of stream.
	Stats(ctx context.Context, stream string) (*StreamStats, error)
}
