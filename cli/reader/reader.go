package reader

import (
	"context"
	"fmt"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/cite-sa/MobiusCore/checkpoint"
	"github.com/cite-sa/MobiusCore/policy"
)

// CheckpointReader reads views from a checkpoint dataset.
type CheckpointReader struct {
	ds lode.Dataset
}

var _ Reader = (*CheckpointReader)(nil)

// NewCheckpointReader creates a reader over ds.
func NewCheckpointReader(ds lode.Dataset) *CheckpointReader {
	return &CheckpointReader{ds: ds}
}

// Streams lists every stream with its latest partition checkpoints.
func (r *CheckpointReader) Streams(ctx context.Context) ([]StreamItem, error) {
	names, err := checkpoint.Streams(ctx, r.ds)
	if err != nil {
		return nil, err
	}
	items := make([]StreamItem, 0, len(names))
	for _, name := range names {
		cps, err := checkpoint.QueryLatest(ctx, r.ds, name)
		if err != nil {
			return nil, err
		}
		item := StreamItem{Stream: name, Partitions: len(cps)}
		for _, cp := range cps {
			item.Keys += len(cp.Entries)
			item.LatestBatch = max(item.LatestBatch, cp.Batch)
		}
		items = append(items, item)
	}
	return items, nil
}

// State rebuilds the latest state of stream.
func (r *CheckpointReader) State(ctx context.Context, stream string) (*StateView, error) {
	cps, err := checkpoint.QueryLatest(ctx, r.ds, stream)
	if err != nil {
		return nil, err
	}
	return NewStateView(stream, cps), nil
}

// Stats summarizes the latest state of stream.
func (r *CheckpointReader) Stats(ctx context.Context, stream string) (*StreamStats, error) {
	view, err := r.State(ctx, stream)
	if err != nil {
		return nil, err
	}
	return Summarize(view), nil
}

// NewStateView converts checkpoints into a view. Times are unix
// milliseconds on the wire.
func NewStateView(stream string, cps []*policy.Checkpoint) *StateView {
	view := &StateView{Stream: stream, Partitions: make([]PartitionState, 0, len(cps))}
	for _, cp := range cps {
		ps := PartitionState{
			Partition:   cp.Partition,
			Batch:       cp.Batch,
			LogicalTime: millis(cp.LogicalTime),
			Entries:     make([]StateEntry, 0, len(cp.Entries)),
		}
		for _, e := range cp.Entries {
			ps.Entries = append(ps.Entries, StateEntry{
				Key:         e.Key,
				Value:       e.Value,
				LastUpdated: millis(e.LastUpdated),
			})
		}
		view.Partitions = append(view.Partitions, ps)
	}
	return view
}

// Summarize computes stream statistics from a view.
func Summarize(view *StateView) *StreamStats {
	st := &StreamStats{Stream: view.Stream, Partitions: len(view.Partitions)}
	for i, p := range view.Partitions {
		st.Keys += len(p.Entries)
		if i == 0 || p.Batch < st.MinBatch {
			st.MinBatch = p.Batch
		}
		st.MaxBatch = max(st.MaxBatch, p.Batch)
		st.LatestTime = later(st.LatestTime, p.LogicalTime)
		for _, e := range p.Entries {
			st.NewestKeyTouch = later(st.NewestKeyTouch, e.LastUpdated)
			st.OldestKeyTouch = earlier(st.OldestKeyTouch, e.LastUpdated)
		}
	}
	return st
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func later(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.After(*cur) {
		return &t
	}
	return cur
}

func earlier(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.Before(*cur) {
		return &t
	}
	return cur
}

// display renders a key or value for tables.
func display(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case []byte:
		return fmt.Sprintf("0x%x", x)
	default:
		return fmt.Sprint(x)
	}
}
