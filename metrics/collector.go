// Package metrics collects worker counters.
//
// The Collector accumulates counters for one worker process, across every
// session it serves. It is a leaf package with no internal dependencies.
// Checkpoint policy metrics are absorbed from policy.Stats rather than
// recorded live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsFailed    int64
	SessionsTruncated int64

	// Data section
	RecordsIn        int64
	RecordsOut       int64
	BytesIn          int64
	BytesOut         int64
	FrameDecodeErrors int64

	// Registries
	BroadcastsAdded    int64
	BroadcastsRemoved  int64
	AccumulatorUpdates int64

	// State
	StateKeysTimedOut int64

	// Checkpoints
	CheckpointWriteSuccess int64
	CheckpointWriteFailure int64
	CheckpointsIngested    int64
	CheckpointsPersisted   int64
	CheckpointsSuperseded  int64

	// Dimensions (informational, set at construction)
	Transport string
	Mode      string
	WorkerID  string
}

// Collector accumulates metrics for one worker process.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels: the transport
// backend, the worker mode (single or daemon) and an optional worker id.
func NewCollector(transport, mode, workerID string) *Collector {
	return &Collector{s: Snapshot{Transport: transport, Mode: mode, WorkerID: workerID}}
}

func (c *Collector) add(field func(*Snapshot) *int64, n int64) {
	if c == nil || n == 0 {
		return
	}
	c.mu.Lock()
	*field(&c.s) += n
	c.mu.Unlock()
}

// --- Session lifecycle ---

// IncSessionStarted records a session start.
func (c *Collector) IncSessionStarted() {
	c.add(func(s *Snapshot) *int64 { return &s.SessionsStarted }, 1)
}

// IncSessionCompleted records a session that reached END_OF_STREAM.
func (c *Collector) IncSessionCompleted() {
	c.add(func(s *Snapshot) *int64 { return &s.SessionsCompleted }, 1)
}

// IncSessionFailed records a session fault.
func (c *Collector) IncSessionFailed() {
	c.add(func(s *Snapshot) *int64 { return &s.SessionsFailed }, 1)
}

// IncSessionTruncated records a session whose input closed early.
func (c *Collector) IncSessionTruncated() {
	c.add(func(s *Snapshot) *int64 { return &s.SessionsTruncated }, 1)
}

// --- Data section ---

// AddRecordsIn records decoded input records.
func (c *Collector) AddRecordsIn(n int64) {
	c.add(func(s *Snapshot) *int64 { return &s.RecordsIn }, n)
}

// AddRecordsOut records written output records.
func (c *Collector) AddRecordsOut(n int64) {
	c.add(func(s *Snapshot) *int64 { return &s.RecordsOut }, n)
}

// AddBytes records transport traffic.
func (c *Collector) AddBytes(in, out int64) {
	c.add(func(s *Snapshot) *int64 { return &s.BytesIn }, in)
	c.add(func(s *Snapshot) *int64 { return &s.BytesOut }, out)
}

// IncFrameDecodeErrors records a frame that could not be decoded.
func (c *Collector) IncFrameDecodeErrors() {
	c.add(func(s *Snapshot) *int64 { return &s.FrameDecodeErrors }, 1)
}

// --- Registries ---

// IncBroadcastAdded records a broadcast variable add.
func (c *Collector) IncBroadcastAdded() {
	c.add(func(s *Snapshot) *int64 { return &s.BroadcastsAdded }, 1)
}

// IncBroadcastRemoved records a broadcast variable remove.
func (c *Collector) IncBroadcastRemoved() {
	c.add(func(s *Snapshot) *int64 { return &s.BroadcastsRemoved }, 1)
}

// AddAccumulatorUpdates records accumulator deltas applied in a session.
func (c *Collector) AddAccumulatorUpdates(n int64) {
	c.add(func(s *Snapshot) *int64 { return &s.AccumulatorUpdates }, n)
}

// AddStateKeysTimedOut records keys evicted by the state timeout.
func (c *Collector) AddStateKeysTimedOut(n int64) {
	c.add(func(s *Snapshot) *int64 { return &s.StateKeysTimedOut }, n)
}

// --- Checkpoints ---
// Write counters are per-call, not per-entry.

// IncCheckpointWriteSuccess records a successful checkpoint write call.
func (c *Collector) IncCheckpointWriteSuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.CheckpointWriteSuccess }, 1)
}

// IncCheckpointWriteFailure records a failed checkpoint write call.
func (c *Collector) IncCheckpointWriteFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.CheckpointWriteFailure }, 1)
}

// AbsorbPolicyStats copies checkpoint policy counters into the collector.
// Called with the final policy stats snapshot.
func (c *Collector) AbsorbPolicyStats(ingested, persisted, superseded int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.CheckpointsIngested = ingested
	c.s.CheckpointsPersisted = persisted
	c.s.CheckpointsSuperseded = superseded
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
