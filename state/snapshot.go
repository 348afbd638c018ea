package state

import "slices"

// Snapshot is one present key and its state value.
type Snapshot[K comparable, S any] struct {
	Key   K
	Value S
}

// Snapshots projects every present entry of rec, ordered by compare.
// MappedOutput is ignored.
func Snapshots[K comparable, S, U any](rec *Record[K, S, U], compare func(a, b K) int) ([]Snapshot[K, S], error) {
	if rec.consumed {
		return nil, ErrRecordConsumed
	}
	out := make([]Snapshot[K, S], 0, len(rec.stateMap))
	for k, ks := range rec.stateMap {
		out = append(out, Snapshot[K, S]{Key: k, Value: ks.Value})
	}
	slices.SortFunc(out, func(a, b Snapshot[K, S]) int { return compare(a.Key, b.Key) })
	return out, nil
}
