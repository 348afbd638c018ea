package checkpoint

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/policy"
)

// Record kinds stored in the dataset.
const (
	// RecordKindCheckpoint heads every checkpoint and carries its entry
	// count, so an empty state still has a record.
	RecordKindCheckpoint = "checkpoint"
	// RecordKindEntry is one key of a checkpointed state map.
	RecordKindEntry = "state_entry"
)

// Hive partition keys of the checkpoint dataset.
var partitionKeys = []string{"stream", "partition", "batch"}

// toRecordMaps converts a checkpoint to dataset records, head first.
func toRecordMaps(cp *policy.Checkpoint) ([]any, error) {
	partition := strconv.Itoa(cp.Partition)
	batch := formatBatch(cp.Batch)

	records := make([]any, 0, len(cp.Entries)+1)
	records = append(records, map[string]any{
		"record_kind":  RecordKindCheckpoint,
		"stream":       cp.Stream,
		"partition":    partition,
		"batch":        batch,
		"logical_time": cp.LogicalTime,
		"entries":      len(cp.Entries),
	})
	for i, e := range cp.Entries {
		key, err := ipc.MarshalValue(e.Key)
		if err != nil {
			return nil, fmt.Errorf("encode key of entry %d: %w", i, err)
		}
		value, err := ipc.MarshalValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("encode value of key %v: %w", e.Key, err)
		}
		records = append(records, map[string]any{
			"record_kind":  RecordKindEntry,
			"stream":       cp.Stream,
			"partition":    partition,
			"batch":        batch,
			"logical_time": cp.LogicalTime,
			"key":          base64.StdEncoding.EncodeToString(key),
			"key_display":  fmt.Sprint(e.Key),
			"value":        base64.StdEncoding.EncodeToString(value),
			"last_updated": e.LastUpdated,
		})
	}
	return records, nil
}

// formatBatch zero-pads the batch number so partitions sort by batch.
func formatBatch(batch int64) string {
	return fmt.Sprintf("%012d", batch)
}

func decodeEntry(rec map[string]any) (policy.Entry, error) {
	key, err := decodeField(rec, "key")
	if err != nil {
		return policy.Entry{}, err
	}
	value, err := decodeField(rec, "value")
	if err != nil {
		return policy.Entry{}, err
	}
	return policy.Entry{Key: key, Value: value, LastUpdated: toInt64(rec["last_updated"])}, nil
}

func decodeField(rec map[string]any, name string) (any, error) {
	s, ok := rec[name].(string)
	if !ok {
		return nil, fmt.Errorf("state entry field %q is %T", name, rec[name])
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("state entry field %q: %w", name, err)
	}
	return ipc.UnmarshalValue(b)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 reads a numeric field; JSONL decoding may yield float64 or
// json numbers depending on the codec.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case interface{ Int64() (int64, error) }:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}
