// Package policy controls how state checkpoints reach storage.
//
// A stateful stream hands every partition's post-batch state to a Policy.
// The policy decides when the checkpoint is written to its Sink:
//   - StrictPolicy writes each checkpoint immediately
//   - BufferedPolicy keeps the latest checkpoint per stream/partition and
//     writes in batches
//   - NoopPolicy counts and discards
//
// A sink failure is returned to the caller, which fails the batch.
package policy

import (
	"context"
	"fmt"
	"sync"
)

// Entry is one key of a checkpointed state map.
type Entry struct {
	Key         any
	Value       any
	LastUpdated int64
}

// Checkpoint is the complete state of one partition after one batch.
type Checkpoint struct {
	// Stream names the stateful stream.
	Stream string
	// Partition is the partition index.
	Partition int
	// Batch is the batch sequence number, starting at 1.
	Batch int64
	// LogicalTime is the batch time in unix milliseconds.
	LogicalTime int64
	// Entries holds every present key, ordered by key.
	Entries []Entry
}

// slot identifies the stream/partition a checkpoint supersedes.
func (c *Checkpoint) slot() string {
	return fmt.Sprintf("%s/%d", c.Stream, c.Partition)
}

// Policy defines the checkpoint persistence interface.
type Policy interface {
	// Ingest hands over a checkpoint. Returns error on sink failure.
	Ingest(ctx context.Context, cp *Checkpoint) error

	// Flush writes any buffered checkpoints.
	Flush(ctx context.Context) error

	// Close cleans up policy resources.
	Close() error

	// Stats returns an atomic snapshot of policy metrics.
	Stats() Stats
}

// Stats represents policy observability metrics.
type Stats struct {
	// TotalCheckpoints is the number of checkpoints received.
	TotalCheckpoints int64
	// CheckpointsPersisted is the number of checkpoints written to the sink.
	CheckpointsPersisted int64
	// CheckpointsSuperseded counts buffered checkpoints replaced by a newer
	// one for the same stream/partition before being written.
	CheckpointsSuperseded int64
	// EntriesPersisted is the number of state entries written.
	EntriesPersisted int64
	// Buffered is the number of checkpoints currently buffered.
	Buffered int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of sink failures.
	Errors int64
}

// statsRecorder is an internal helper for thread-safe stats management.
//
// Lock discipline:
//   - StrictPolicy and NoopPolicy use the locking methods
//   - BufferedPolicy uses the Locked methods only while holding
//     BufferedPolicy.mu, keeping buffer state and counters consistent
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{}
}

func (r *statsRecorder) incTotal() {
	r.mu.Lock()
	r.stats.TotalCheckpoints++
	r.mu.Unlock()
}

func (r *statsRecorder) incPersisted(checkpoints []*Checkpoint) {
	r.mu.Lock()
	r.incPersistedLocked(checkpoints)
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// --- Locked methods for BufferedPolicy ---
// Caller must hold BufferedPolicy.mu.

func (r *statsRecorder) incTotalLocked() {
	r.stats.TotalCheckpoints++
}

func (r *statsRecorder) incPersistedLocked(checkpoints []*Checkpoint) {
	r.stats.CheckpointsPersisted += int64(len(checkpoints))
	for _, cp := range checkpoints {
		r.stats.EntriesPersisted += int64(len(cp.Entries))
	}
}

func (r *statsRecorder) incSupersededLocked() {
	r.stats.CheckpointsSuperseded++
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

func (r *statsRecorder) snapshotLocked(buffered int) Stats {
	s := r.stats
	s.Buffered = int64(buffered)
	return s
}
