package policy

import (
	"context"
	"sync"
)

// Sink abstracts checkpoint persistence for policies.
// Implementations may write to storage or stub for testing.
//
// Writes are batch-oriented to support both strict (batch of 1) and
// buffered policies.
type Sink interface {
	// WriteCheckpoints persists a batch of checkpoints in order.
	// Returns error on failure; caller decides whether to retry or fail.
	WriteCheckpoints(ctx context.Context, checkpoints []*Checkpoint) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink is a test sink that accepts writes without persisting.
// Tracks write statistics for test assertions.
type StubSink struct {
	mu sync.Mutex

	// Written stores all written checkpoints for inspection.
	Written []*Checkpoint
	// Batches is the number of WriteCheckpoints calls.
	Batches int64
	// Closed indicates whether Close was called.
	Closed bool

	// ErrorOnWrite, if non-nil, is returned by WriteCheckpoints.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteCheckpoints records the checkpoints without persisting.
func (s *StubSink) WriteCheckpoints(_ context.Context, checkpoints []*Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.Batches++
	s.Written = append(s.Written, checkpoints...)
	return nil
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// SetError sets the error returned by subsequent writes.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorOnWrite = err
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		CheckpointsWritten: int64(len(s.Written)),
		Batches:            s.Batches,
		Closed:             s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	CheckpointsWritten int64
	Batches            int64
	Closed             bool
}
