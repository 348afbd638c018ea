package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cite-sa/MobiusCore/command"
	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/log"
	"github.com/cite-sa/MobiusCore/partition"
	"github.com/cite-sa/MobiusCore/policy"
	"github.com/cite-sa/MobiusCore/state"
)

// Partitioning schemes accepted by Replay.
const (
	PartitionHash  = "hash"
	PartitionRange = "range"
)

// ReplayBatch is one line of a batch log:
//
//	{"batch_time": 1700000000000, "pairs": [["k", 1], ["k", 2]]}
type ReplayBatch struct {
	BatchTime int64   `json:"batch_time"`
	Pairs     [][]any `json:"pairs"`
}

// ReadBatchLog reads a JSON-lines batch log. Blank lines are skipped and
// integral numbers decode as int64.
func ReadBatchLog(r io.Reader) ([]ReplayBatch, error) {
	var batches []ReplayBatch
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), ipc.MaxFrameSize)
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var b ReplayBatch
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("batch log line %d: %w", line, err)
		}
		for i, p := range b.Pairs {
			if len(p) != 2 {
				return nil, fmt.Errorf("batch log line %d: pair %d has %d elements, want 2", line, i, len(p))
			}
			b.Pairs[i] = []any{jsonValue(p[0]), jsonValue(p[1])}
		}
		batches = append(batches, b)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

// jsonValue turns json.Number into int64 or float64, recursively.
func jsonValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = jsonValue(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = jsonValue(x[k])
		}
	}
	return v
}

// ReplayConfig configures Replay.
type ReplayConfig struct {
	// Stream names the checkpoint stream. Required.
	Stream string
	// Func is a registered state update function. Required.
	Func string
	// Registry resolves Func. Defaults to command.DefaultRegistry().
	Registry *command.Registry
	// Timeout evicts idle keys. Zero disables it.
	Timeout time.Duration
	// NumPartitions defaults to 1.
	NumPartitions int
	// Partitioning is PartitionHash (default) or PartitionRange. Range
	// bounds are sampled from every key in the log and in Restore.
	Partitioning string
	// Checkpoints receives every partition's post-batch checkpoint.
	// Optional; the caller closes it.
	Checkpoints policy.Policy
	// Restore seeds the stream, typically from checkpoint.QueryLatest.
	// Entries are re-routed, so the partition layout may differ from the
	// one that wrote them.
	Restore []*policy.Checkpoint
	// Logger is optional.
	Logger *log.Logger
}

// ReplayResult is the outcome of a replay.
type ReplayResult struct {
	Batches []*state.BatchResult[any]
	State   []state.Snapshot[any, any]
}

// Replay drives a keyed state stream over batches, in order, and returns
// the per-batch results and the final state ordered by key. emit, when
// non-nil, sees each batch result as it completes.
func Replay(ctx context.Context, batches []ReplayBatch, cfg ReplayConfig, emit func(*state.BatchResult[any]) error) (*ReplayResult, error) {
	if cfg.Stream == "" {
		return nil, errors.New("replay requires a stream name")
	}
	reg := cfg.Registry
	if reg == nil {
		reg = command.DefaultRegistry()
	}
	update, err := reg.LookupState(cfg.Func)
	if err != nil {
		return nil, err
	}

	grouped := make([][]state.KeyValues[any, any], len(batches))
	var samples []any
	for i, b := range batches {
		keys := make([]any, len(b.Pairs))
		values := make([]any, len(b.Pairs))
		for j, p := range b.Pairs {
			if keys[j], err = state.NormalizeKey(p[0]); err != nil {
				return nil, fmt.Errorf("batch %d: %w", i+1, err)
			}
			values[j] = p[1]
		}
		grouped[i] = state.Group(keys, values)
		samples = append(samples, keys...)
	}
	restore, err := normalizeCheckpoints(cfg.Restore)
	if err != nil {
		return nil, err
	}
	for _, cp := range restore {
		for _, e := range cp.Entries {
			samples = append(samples, e.Key)
		}
	}

	part, err := newPartitioner(cfg.Partitioning, max(cfg.NumPartitions, 1), samples)
	if err != nil {
		return nil, err
	}
	engine := state.NewEngine[any, any, any, any](update, state.Config{Timeout: cfg.Timeout}, partition.Compare)
	stream, err := state.NewStream(engine, state.StreamConfig{
		Name:        cfg.Stream,
		Partitioner: part,
		Policy:      cfg.Checkpoints,
		Logger:      cfg.Logger,
	}, partition.Compare)
	if err != nil {
		return nil, err
	}

	if len(restore) > 0 {
		rerouted, err := reroute(restore, part)
		if err != nil {
			return nil, err
		}
		if err := stream.Restore(rerouted); err != nil {
			return nil, fmt.Errorf("restore %s: %w", cfg.Stream, err)
		}
	}

	res := &ReplayResult{}
	for i, b := range batches {
		br, err := stream.Run(ctx, grouped[i], b.BatchTime, nil)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i+1, err)
		}
		res.Batches = append(res.Batches, br)
		if emit != nil {
			if err := emit(br); err != nil {
				return nil, err
			}
		}
	}
	if err := stream.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush checkpoints: %w", err)
	}
	if res.State, err = stream.Snapshots(); err != nil {
		return nil, err
	}
	return res, nil
}

func newPartitioner(scheme string, n int, samples []any) (partition.Partitioner, error) {
	switch scheme {
	case "", PartitionHash:
		return partition.NewHashPartitioner(n)
	case PartitionRange:
		bounds, err := partition.SampleBounds(samples, n)
		if err != nil {
			return nil, err
		}
		return &partition.RangePartitioner{Bounds: bounds, Ascending: true}, nil
	}
	return nil, fmt.Errorf("unknown partitioning %q (want %s or %s)", scheme, PartitionHash, PartitionRange)
}

// normalizeCheckpoints makes restored keys hashable map keys.
func normalizeCheckpoints(cps []*policy.Checkpoint) ([]*policy.Checkpoint, error) {
	out := make([]*policy.Checkpoint, len(cps))
	for i, cp := range cps {
		c := *cp
		c.Entries = make([]policy.Entry, len(cp.Entries))
		for j, e := range cp.Entries {
			k, err := state.NormalizeKey(e.Key)
			if err != nil {
				return nil, fmt.Errorf("checkpoint partition %d: %w", cp.Partition, err)
			}
			e.Key = k
			c.Entries[j] = e
		}
		out[i] = &c
	}
	return out, nil
}

// reroute regroups checkpoint entries by part, keeping the newest batch
// and logical time seen.
func reroute(cps []*policy.Checkpoint, part partition.Partitioner) ([]*policy.Checkpoint, error) {
	out := make([]*policy.Checkpoint, part.NumPartitions())
	for p := range out {
		out[p] = &policy.Checkpoint{Stream: cps[0].Stream, Partition: p}
	}
	for _, cp := range cps {
		for _, e := range cp.Entries {
			p, err := part.Partition(e.Key)
			if err != nil {
				return nil, err
			}
			out[p].Entries = append(out[p].Entries, e)
		}
		for _, dst := range out {
			dst.Batch = max(dst.Batch, cp.Batch)
			dst.LogicalTime = max(dst.LogicalTime, cp.LogicalTime)
		}
	}
	return out, nil
}
