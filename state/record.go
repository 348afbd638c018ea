package state

import "maps"

// KeyedState is the stored state of one key.
type KeyedState[S any] struct {
	Value       S
	LastUpdated int64
}

// Record is the outcome of one batch: the values returned by the update
// function and the state map that the next batch consumes.
//
// The state map has exactly one owner. Engine.Apply moves it into the new
// record and marks the previous one consumed.
type Record[K comparable, S, U any] struct {
	// LogicalTime is the batch time in unix milliseconds.
	LogicalTime int64
	// MappedOutput holds the update results: batch keys in first-seen
	// order, then timed-out keys by ascending last update.
	MappedOutput []U
	// TimedOut is the number of keys evicted by timeout in this batch.
	TimedOut int

	stateMap map[K]KeyedState[S]
	consumed bool
}

// NewRecord creates a record owning stateMap. It is the entry point for
// restoring state from a checkpoint.
func NewRecord[K comparable, S, U any](logicalTime int64, stateMap map[K]KeyedState[S], mappedOutput []U) *Record[K, S, U] {
	if stateMap == nil {
		stateMap = make(map[K]KeyedState[S])
	}
	return &Record[K, S, U]{
		LogicalTime:  logicalTime,
		MappedOutput: mappedOutput,
		stateMap:     stateMap,
	}
}

// Consumed reports whether the state map moved into a newer record.
func (r *Record[K, S, U]) Consumed() bool {
	return r.consumed
}

// StateMap returns a copy of the state map.
func (r *Record[K, S, U]) StateMap() (map[K]KeyedState[S], error) {
	if r.consumed {
		return nil, ErrRecordConsumed
	}
	return maps.Clone(r.stateMap), nil
}

// Len returns the number of keys with state.
func (r *Record[K, S, U]) Len() (int, error) {
	if r.consumed {
		return 0, ErrRecordConsumed
	}
	return len(r.stateMap), nil
}

// Lookup returns the state of key.
func (r *Record[K, S, U]) Lookup(key K) (KeyedState[S], bool, error) {
	if r.consumed {
		return KeyedState[S]{}, false, ErrRecordConsumed
	}
	ks, ok := r.stateMap[key]
	return ks, ok, nil
}

// take moves the state map out of r.
func (r *Record[K, S, U]) take() (map[K]KeyedState[S], error) {
	if r.consumed {
		return nil, ErrRecordConsumed
	}
	m := r.stateMap
	r.stateMap = nil
	r.consumed = true
	return m, nil
}
