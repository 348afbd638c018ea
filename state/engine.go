package state

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// UpdateFunc computes the output for one key in one batch. values is nil
// when the call is a timeout.
type UpdateFunc[K comparable, V, S, U any] func(key K, values []V, st *State[S]) (U, error)

// KeyValues is the grouped input of one key in one batch.
type KeyValues[K comparable, V any] struct {
	Key    K
	Values []V
}

// Config configures an Engine.
type Config struct {
	// Timeout evicts keys idle for longer than this. Zero disables it.
	Timeout time.Duration
}

// Engine applies an update function to successive batches of one
// partition.
type Engine[K comparable, V, S, U any] struct {
	update  UpdateFunc[K, V, S, U]
	cfg     Config
	compare func(a, b K) int
}

// NewEngine creates an engine. compare orders keys that time out in the
// same millisecond; nil falls back to their printed form.
func NewEngine[K comparable, V, S, U any](update UpdateFunc[K, V, S, U], cfg Config, compare func(a, b K) int) *Engine[K, V, S, U] {
	if compare == nil {
		compare = func(a, b K) int { return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b)) }
	}
	return &Engine[K, V, S, U]{update: update, cfg: cfg, compare: compare}
}

// Config returns the engine configuration.
func (e *Engine[K, V, S, U]) Config() Config {
	return e.cfg
}

// Apply runs one batch.
//
// prev is the previous batch's record, or nil for the first batch; in
// that case initial (optional) seeds the state with lastUpdated set to
// batchTime. Apply consumes prev: its map moves into the returned record,
// even when the batch fails.
func (e *Engine[K, V, S, U]) Apply(prev *Record[K, S, U], initial map[K]S, batch []KeyValues[K, V], batchTime int64) (*Record[K, S, U], error) {
	var stateMap map[K]KeyedState[S]
	if prev != nil {
		m, err := prev.take()
		if err != nil {
			return nil, err
		}
		stateMap = m
	} else {
		stateMap = make(map[K]KeyedState[S], len(initial))
		for k, v := range initial {
			stateMap[k] = KeyedState[S]{Value: v, LastUpdated: batchTime}
		}
	}

	grouped := groupBatch(batch)
	out := make([]U, 0, len(grouped))
	inBatch := make(map[K]struct{}, len(grouped))

	for _, kv := range grouped {
		inBatch[kv.Key] = struct{}{}
		prior, exists := stateMap[kv.Key]
		st := &State[S]{value: prior.Value, exists: exists}

		u, err := e.update(kv.Key, kv.Values, st)
		if err != nil {
			return nil, fmt.Errorf("update key %v: %w", kv.Key, err)
		}
		out = append(out, u)

		switch {
		case st.updated:
			stateMap[kv.Key] = KeyedState[S]{Value: st.value, LastUpdated: batchTime}
		case st.removed:
			delete(stateMap, kv.Key)
		}
	}

	timedOut := 0
	if e.cfg.Timeout > 0 {
		threshold := batchTime - e.cfg.Timeout.Milliseconds()
		var idle []K
		for k, ks := range stateMap {
			if _, ok := inBatch[k]; ok {
				continue
			}
			if ks.LastUpdated < threshold {
				idle = append(idle, k)
			}
		}
		slices.SortFunc(idle, func(a, b K) int {
			if c := cmp.Compare(stateMap[a].LastUpdated, stateMap[b].LastUpdated); c != 0 {
				return c
			}
			return e.compare(a, b)
		})

		for _, k := range idle {
			st := &State[S]{value: stateMap[k].Value, exists: true, timingOut: true}
			u, err := e.update(k, nil, st)
			if err != nil {
				return nil, fmt.Errorf("timeout key %v: %w", k, err)
			}
			out = append(out, u)
			delete(stateMap, k)
		}
		timedOut = len(idle)
	}

	rec := NewRecord[K, S, U](batchTime, stateMap, out)
	rec.TimedOut = timedOut
	return rec, nil
}

// groupBatch merges repeated keys, keeping first-seen order.
func groupBatch[K comparable, V any](batch []KeyValues[K, V]) []KeyValues[K, V] {
	index := make(map[K]int, len(batch))
	grouped := make([]KeyValues[K, V], 0, len(batch))
	for _, kv := range batch {
		if i, ok := index[kv.Key]; ok {
			grouped[i].Values = append(grouped[i].Values, kv.Values...)
			continue
		}
		index[kv.Key] = len(grouped)
		grouped = append(grouped, KeyValues[K, V]{Key: kv.Key, Values: slices.Clone(kv.Values)})
	}
	return grouped
}

// Group turns (key, value) pairs into grouped batch input, keeping
// first-seen key order.
func Group[K comparable, V any](keys []K, values []V) []KeyValues[K, V] {
	batch := make([]KeyValues[K, V], len(keys))
	for i := range keys {
		batch[i] = KeyValues[K, V]{Key: keys[i], Values: []V{values[i]}}
	}
	return groupBatch(batch)
}
