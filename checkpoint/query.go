package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/cite-sa/MobiusCore/policy"
)

// ErrNoCheckpoint is returned when a stream has no checkpoint.
var ErrNoCheckpoint = errors.New("no checkpoint found")

// QueryLatest rebuilds the newest checkpoint of every partition of
// stream, ordered by partition.
func QueryLatest(ctx context.Context, ds lode.Dataset, stream string) ([]*policy.Checkpoint, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrap("read", "snapshots", err)
	}

	latest := make(map[int]*policy.Checkpoint)
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotHasPartition(snap, "stream", stream) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("snapshot/%v", snap.ID), err)
		}
		cp, err := rebuild(data, stream)
		if err != nil {
			return nil, fmt.Errorf("snapshot %v: %w", snap.ID, err)
		}
		if cp == nil {
			continue
		}
		if prev, ok := latest[cp.Partition]; ok && prev.Batch >= cp.Batch {
			continue
		}
		latest[cp.Partition] = cp
	}

	if len(latest) == 0 {
		return nil, fmt.Errorf("%w for stream %q", ErrNoCheckpoint, stream)
	}
	out := make([]*policy.Checkpoint, 0, len(latest))
	for _, cp := range latest {
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b *policy.Checkpoint) int { return a.Partition - b.Partition })
	return out, nil
}

// Streams lists the stream names present in the dataset.
func Streams(ctx context.Context, ds lode.Dataset) ([]string, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrap("read", "snapshots", err)
	}
	seen := make(map[string]struct{})
	for _, snap := range snapshots {
		for _, f := range snap.Manifest.Files {
			if name, ok := partitionValue(f.Path, "stream"); ok {
				seen[name] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

// rebuild assembles the checkpoint of stream held in one snapshot's
// records, or nil if the snapshot holds none.
func rebuild(data []any, stream string) (*policy.Checkpoint, error) {
	var cp *policy.Checkpoint
	var batch string
	want := -1
	for _, item := range data {
		rec, ok := item.(map[string]any)
		if !ok || toString(rec["stream"]) != stream {
			continue
		}
		if rec["record_kind"] != RecordKindCheckpoint {
			continue
		}
		p, err := strconv.Atoi(toString(rec["partition"]))
		if err != nil {
			return nil, fmt.Errorf("checkpoint partition %v: %w", rec["partition"], err)
		}
		batch = toString(rec["batch"])
		cp = &policy.Checkpoint{
			Stream:      stream,
			Partition:   p,
			Batch:       toInt64(batch),
			LogicalTime: toInt64(rec["logical_time"]),
		}
		want = int(toInt64(rec["entries"]))
		break
	}
	if cp == nil {
		return nil, nil
	}

	partition := strconv.Itoa(cp.Partition)
	for _, item := range data {
		rec, ok := item.(map[string]any)
		if !ok || rec["record_kind"] != RecordKindEntry {
			continue
		}
		if toString(rec["stream"]) != stream || toString(rec["partition"]) != partition || toString(rec["batch"]) != batch {
			continue
		}
		e, err := decodeEntry(rec)
		if err != nil {
			return nil, err
		}
		cp.Entries = append(cp.Entries, e)
	}
	if len(cp.Entries) != want {
		return nil, fmt.Errorf("checkpoint %s/%d/%d has %d entries, head says %d",
			stream, cp.Partition, cp.Batch, len(cp.Entries), want)
	}
	return cp, nil
}

// snapshotHasPartition reports whether any file of snap lies under the
// exact Hive segment key=value.
func snapshotHasPartition(snap *lode.DatasetSnapshot, key, value string) bool {
	for _, f := range snap.Manifest.Files {
		if v, ok := partitionValue(f.Path, key); ok && v == value {
			return true
		}
	}
	return false
}

func partitionValue(path, key string) (string, bool) {
	for _, part := range strings.Split(path, "/") {
		if v, ok := strings.CutPrefix(part, key+"="); ok {
			return v, true
		}
	}
	return "", false
}
