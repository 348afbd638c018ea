package state

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/partition"
)

// WireKind tags a state batch record travelling through worker stages.
const WireKind = "state_batch"

// ErrUnhashableKey is returned for keys that cannot index a state map.
var ErrUnhashableKey = errors.New("state key is not hashable")

// WireRecord is the record type the worker stages exchange. Keys are
// normalized record values (see NormalizeKey).
type WireRecord = Record[any, any, any]

// NormalizeKey makes a decoded record value usable as a map key: byte
// slices become strings and integers become int64. Lists and maps are
// rejected.
func NormalizeKey(k any) (any, error) {
	switch x := ipc.Normalize(k).(type) {
	case []byte:
		return string(x), nil
	case []any, map[string]any:
		return nil, fmt.Errorf("%w: %T", ErrUnhashableKey, k)
	default:
		return x, nil
	}
}

// EncodeWire renders rec as a msgpack-ready map:
//
//	{kind: "state_batch", logical_time, mapped_output: [...],
//	 state: [[key, value, last_updated], ...]}
//
// State entries are ordered by key.
func EncodeWire(rec *WireRecord) (map[string]any, error) {
	if rec.consumed {
		return nil, ErrRecordConsumed
	}
	keys := make([]any, 0, len(rec.stateMap))
	for k := range rec.stateMap {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, partition.Compare)

	entries := make([]any, len(keys))
	for i, k := range keys {
		ks := rec.stateMap[k]
		entries[i] = []any{k, ks.Value, ks.LastUpdated}
	}
	out := rec.MappedOutput
	if out == nil {
		out = []any{}
	}
	return map[string]any{
		"kind":          WireKind,
		"logical_time":  rec.LogicalTime,
		"mapped_output": out,
		"state":         entries,
	}, nil
}

// IsWire reports whether v is an encoded state batch record.
func IsWire(v any) bool {
	m, ok := v.(map[string]any)
	return ok && m["kind"] == WireKind
}

// DecodeWire rebuilds a record from its encoded form.
func DecodeWire(v any) (*WireRecord, error) {
	if !IsWire(v) {
		return nil, fmt.Errorf("not a %s record: %T", WireKind, v)
	}
	m := v.(map[string]any)

	logicalTime, ok := ipc.Normalize(m["logical_time"]).(int64)
	if !ok {
		return nil, fmt.Errorf("%s: logical_time is %T", WireKind, m["logical_time"])
	}
	var out []any
	if raw, ok := m["mapped_output"].([]any); ok {
		out = raw
	}

	rawState, _ := m["state"].([]any)
	stateMap := make(map[any]KeyedState[any], len(rawState))
	for i, raw := range rawState {
		entry, ok := raw.([]any)
		if !ok || len(entry) != 3 {
			return nil, fmt.Errorf("%s: state entry %d is malformed", WireKind, i)
		}
		key, err := NormalizeKey(entry[0])
		if err != nil {
			return nil, fmt.Errorf("%s: state entry %d: %w", WireKind, i, err)
		}
		lastUpdated, ok := ipc.Normalize(entry[2]).(int64)
		if !ok {
			return nil, fmt.Errorf("%s: state entry %d: last_updated is %T", WireKind, i, entry[2])
		}
		stateMap[key] = KeyedState[any]{Value: entry[1], LastUpdated: lastUpdated}
	}
	return NewRecord[any, any, any](logicalTime, stateMap, out), nil
}
