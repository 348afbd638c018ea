package policy

import "context"

// NoopPolicy accepts checkpoints but does not persist them.
// Used when a stream runs without a checkpoint store.
type NoopPolicy struct {
	stats *statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// Ingest counts the checkpoint and discards it.
func (p *NoopPolicy) Ingest(_ context.Context, _ *Checkpoint) error {
	p.stats.incTotal()
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}
