package checkpoint

import (
	"context"

	"github.com/cite-sa/MobiusCore/metrics"
	"github.com/cite-sa/MobiusCore/policy"
)

// InstrumentedSink wraps a policy.Sink and counts checkpoint writes.
// Each WriteCheckpoints call increments the write success or failure
// counter of the collector.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteCheckpoints delegates to the inner sink and records the result.
func (s *InstrumentedSink) WriteCheckpoints(ctx context.Context, checkpoints []*policy.Checkpoint) error {
	err := s.inner.WriteCheckpoints(ctx, checkpoints)
	if err != nil {
		s.collector.IncCheckpointWriteFailure()
	} else {
		s.collector.IncCheckpointWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

var _ policy.Sink = (*InstrumentedSink)(nil)
