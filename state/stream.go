package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/partition"
	"github.com/cite-sa/MobiusCore/policy"
)

// StreamConfig configures a Stream.
type StreamConfig struct {
	// Name identifies the stream in checkpoints.
	Name string
	// Partitioner routes keys. Defaults to a HashPartitioner over
	// NumPartitions.
	Partitioner partition.Partitioner
	// NumPartitions is used when Partitioner is nil. Zero means one.
	NumPartitions int
	// Policy receives each partition's post-batch checkpoint. Defaults to
	// a NoopPolicy.
	Policy policy.Policy
	// Logger is optional.
	Logger *log.Logger
}

// BatchResult summarizes one batch across all partitions.
type BatchResult[U any] struct {
	// Batch is the batch sequence number, starting at 1.
	Batch int64
	// LogicalTime is the batch time.
	LogicalTime int64
	// MappedOutput concatenates partition outputs in partition order.
	MappedOutput []U
	// Keys is the number of keys with state after the batch.
	Keys int
	// TimedOut is the number of keys evicted by timeout.
	TimedOut int
}

// Stream runs successive batches of a keyed stream across partitions,
// handing each partition's record to the next batch and checkpointing
// every partition through its policy.
type Stream[K comparable, V, S, U any] struct {
	name        string
	engine      *Engine[K, V, S, U]
	partitioner partition.Partitioner
	policy      policy.Policy
	logger      *log.Logger
	compare     func(a, b K) int

	mu      sync.Mutex
	records []*Record[K, S, U]
	batch   int64
}

// NewStream creates a stream. compare orders keys in snapshots and
// checkpoints; nil uses the engine's ordering.
func NewStream[K comparable, V, S, U any](engine *Engine[K, V, S, U], cfg StreamConfig, compare func(a, b K) int) (*Stream[K, V, S, U], error) {
	if cfg.Name == "" {
		return nil, errors.New("stream name must be non-empty")
	}
	part := cfg.Partitioner
	if part == nil {
		hp, err := partition.NewHashPartitioner(max(cfg.NumPartitions, 1))
		if err != nil {
			return nil, err
		}
		part = hp
	}
	if compare == nil {
		compare = engine.compare
	}
	pol := cfg.Policy
	if pol == nil {
		pol = policy.NewNoopPolicy()
	}
	return &Stream[K, V, S, U]{
		name:        cfg.Name,
		engine:      engine,
		partitioner: part,
		policy:      pol,
		logger:      cfg.Logger,
		compare:     compare,
		records:     make([]*Record[K, S, U], part.NumPartitions()),
	}, nil
}

// Name returns the stream name.
func (s *Stream[K, V, S, U]) Name() string {
	return s.name
}

// Batch returns the number of batches run (or restored).
func (s *Stream[K, V, S, U]) Batch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch
}

// Run applies one batch. initial seeds partitions that have no record yet.
func (s *Stream[K, V, S, U]) Run(ctx context.Context, batch []KeyValues[K, V], batchTime int64, initial map[K]S) (*BatchResult[U], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.partitioner.NumPartitions()
	routed := make([][]KeyValues[K, V], n)
	for _, kv := range batch {
		p, err := s.partitioner.Partition(kv.Key)
		if err != nil {
			return nil, err
		}
		routed[p] = append(routed[p], kv)
	}
	seeds := make([]map[K]S, n)
	for k, v := range initial {
		p, err := s.partitioner.Partition(k)
		if err != nil {
			return nil, err
		}
		if seeds[p] == nil {
			seeds[p] = make(map[K]S)
		}
		seeds[p][k] = v
	}

	next := make([]*Record[K, S, U], n)
	g, gctx := errgroup.WithContext(ctx)
	for p := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := s.engine.Apply(s.records[p], seeds[p], routed[p], batchTime)
			if err != nil {
				return fmt.Errorf("partition %d: %w", p, err)
			}
			next[p] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.batch++
	s.records = next
	result := &BatchResult[U]{Batch: s.batch, LogicalTime: batchTime}
	for p, rec := range next {
		result.MappedOutput = append(result.MappedOutput, rec.MappedOutput...)
		result.Keys += len(rec.stateMap)
		result.TimedOut += rec.TimedOut

		if err := s.policy.Ingest(ctx, s.checkpoint(p, rec)); err != nil {
			return nil, fmt.Errorf("checkpoint partition %d: %w", p, err)
		}
	}

	if s.logger != nil {
		s.logger.Debug("state batch applied", map[string]any{
			"stream":    s.name,
			"batch":     s.batch,
			"keys":      result.Keys,
			"timed_out": result.TimedOut,
		})
	}
	return result, nil
}

func (s *Stream[K, V, S, U]) checkpoint(p int, rec *Record[K, S, U]) *policy.Checkpoint {
	return NewCheckpoint(s.name, p, s.batch, rec, s.compare)
}

// NewCheckpoint captures the present entries of rec, ordered by compare.
// rec is not consumed.
func NewCheckpoint[K comparable, S, U any](stream string, p int, batch int64, rec *Record[K, S, U], compare func(a, b K) int) *policy.Checkpoint {
	keys := make([]K, 0, len(rec.stateMap))
	for k := range rec.stateMap {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compare)

	entries := make([]policy.Entry, len(keys))
	for i, k := range keys {
		ks := rec.stateMap[k]
		entries[i] = policy.Entry{Key: k, Value: ks.Value, LastUpdated: ks.LastUpdated}
	}
	return &policy.Checkpoint{
		Stream:      stream,
		Partition:   p,
		Batch:       batch,
		LogicalTime: rec.LogicalTime,
		Entries:     entries,
	}
}

// Flush flushes the checkpoint policy.
func (s *Stream[K, V, S, U]) Flush(ctx context.Context) error {
	return s.policy.Flush(ctx)
}

// Restore replaces the stream's records with checkpointed state. Keys and
// values must assert to K and S; checkpoints read back from storage carry
// int64 integers and float64 floats.
func (s *Stream[K, V, S, U]) Restore(checkpoints []*policy.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.partitioner.NumPartitions()
	records := make([]*Record[K, S, U], n)
	var batch int64
	for _, cp := range checkpoints {
		if cp.Stream != s.name {
			return fmt.Errorf("checkpoint for stream %q cannot restore %q", cp.Stream, s.name)
		}
		if cp.Partition < 0 || cp.Partition >= n {
			return fmt.Errorf("checkpoint partition %d out of range [0, %d)", cp.Partition, n)
		}
		stateMap := make(map[K]KeyedState[S], len(cp.Entries))
		for _, e := range cp.Entries {
			k, ok := e.Key.(K)
			if !ok {
				return fmt.Errorf("checkpoint key %v has type %T", e.Key, e.Key)
			}
			v, ok := e.Value.(S)
			if !ok {
				return fmt.Errorf("checkpoint value for key %v has type %T", e.Key, e.Value)
			}
			stateMap[k] = KeyedState[S]{Value: v, LastUpdated: e.LastUpdated}
		}
		records[cp.Partition] = NewRecord[K, S, U](cp.LogicalTime, stateMap, nil)
		batch = max(batch, cp.Batch)
	}
	s.records = records
	s.batch = batch
	return nil
}

// Snapshots returns the present state of all partitions ordered by key.
func (s *Stream[K, V, S, U]) Snapshots() ([]Snapshot[K, S], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []Snapshot[K, S]
	for _, rec := range s.records {
		if rec == nil {
			continue
		}
		snaps, err := Snapshots(rec, s.compare)
		if err != nil {
			return nil, err
		}
		all = append(all, snaps...)
	}
	slices.SortFunc(all, func(a, b Snapshot[K, S]) int { return s.compare(a.Key, b.Key) })
	return all, nil
}
