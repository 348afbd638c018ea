package policy

import "context"

// StrictPolicy implements synchronous, unbuffered persistence.
//
//   - No buffering: each checkpoint is written immediately
//   - Backpressure: caller blocks on sink latency
//   - Sink errors fail the batch
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{
		sink:  sink,
		stats: newStatsRecorder(),
	}
}

// Ingest writes the checkpoint immediately to the sink.
func (p *StrictPolicy) Ingest(ctx context.Context, cp *Checkpoint) error {
	p.stats.incTotal()

	batch := []*Checkpoint{cp}
	if err := p.sink.WriteCheckpoints(ctx, batch); err != nil {
		p.stats.incErrors()
		return err
	}

	p.stats.incPersisted(batch)
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}
