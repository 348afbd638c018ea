package command

import (
	"fmt"
	"time"

	"github.com/cite-sa/MobiusCore/ipc"
	"github.com/cite-sa/MobiusCore/partition"
	"github.com/cite-sa/MobiusCore/state"
)

// compileMapWithState builds the map_with_state stage. The stage reads
// the whole partition: an optional leading state batch record followed
// by (key, value) pairs, and emits the next state batch record.
func compileMapWithState(i int, st Stage, reg *Registry) (Transform, error) {
	name := st.Func
	if name == "" {
		var err error
		if name, err = st.Args.String("func"); err != nil {
			return nil, malformed("map_with_state: %v", err)
		}
	}
	guarded, err := reg.stateUpdate(name, i)
	if err != nil {
		return nil, err
	}
	batchTime, err := st.Args.Int("batch_time")
	if err != nil {
		return nil, malformed("map_with_state: %v", err)
	}
	timeoutMs, err := st.Args.IntOr("timeout_ms", 0)
	if err != nil {
		return nil, malformed("map_with_state: %v", err)
	}
	numPartitions, err := st.Args.IntOr("num_partitions", 1)
	if err != nil || numPartitions < 1 {
		return nil, malformed("map_with_state: invalid num_partitions")
	}
	stream, _ := st.Args.String("stream")
	batch, err := st.Args.IntOr("batch", 1)
	if err != nil {
		return nil, malformed("map_with_state: %v", err)
	}

	engine := state.NewEngine[any, any, any, any](guarded, state.Config{
		Timeout: time.Duration(timeoutMs) * time.Millisecond,
	}, partition.Compare)

	return func(tc *TaskContext, in Iterator) Iterator {
		done := false
		return pull(func() (any, bool, error) {
			if done {
				return nil, false, nil
			}
			done = true

			var (
				prev   *state.WireRecord
				keys   []any
				values []any
				first  = true
			)
			for in.Next() {
				rec := in.Record()
				if first && state.IsWire(rec) {
					decoded, err := state.DecodeWire(rec)
					if err != nil {
						return nil, false, stageError(i, st.Kind, err)
					}
					prev = decoded
					first = false
					continue
				}
				first = false
				pair, ok := ipc.AsPair(rec)
				if !ok {
					return nil, false, stageError(i, st.Kind, errNotPair(rec))
				}
				key, err := state.NormalizeKey(pair.Key)
				if err != nil {
					return nil, false, stageError(i, st.Kind, err)
				}
				keys = append(keys, key)
				values = append(values, pair.Value)
			}
			if err := in.Err(); err != nil {
				return nil, false, err
			}

			result, err := engine.Apply(prev, nil, state.Group(keys, values), batchTime)
			if err != nil {
				return nil, false, err
			}
			if tc.Logger != nil {
				n, _ := result.Len()
				tc.Logger.Debug("state batch applied", map[string]any{
					"partition":      tc.Partition,
					"num_partitions": numPartitions,
					"keys":           n,
					"timed_out":      result.TimedOut,
					"outputs":        len(result.MappedOutput),
				})
			}
			if stream != "" && tc.Checkpoint != nil {
				cp := state.NewCheckpoint(stream, tc.Partition, batch, result, partition.Compare)
				if err := tc.Checkpoint(cp); err != nil {
					return nil, false, stageError(i, st.Kind, fmt.Errorf("checkpoint: %w", err))
				}
			}
			out, err := state.EncodeWire(result)
			if err != nil {
				return nil, false, err
			}
			return out, true, nil
		})
	}, nil
}

// LookupState resolves a registered state update function. Errors and
// panics from the function surface as *UserFunctionError.
func (r *Registry) LookupState(name string) (StateFunc, error) {
	return r.stateUpdate(name, 0)
}

func (r *Registry) stateUpdate(name string, stage int) (StateFunc, error) {
	update, err := lookup[StateFunc](r, name, "state update")
	if err != nil {
		return nil, err
	}
	return func(key any, values []any, s *state.State[any]) (any, error) {
		return invoke(name, stage, func() (any, error) { return update(key, values, s) })
	}, nil
}

// mappedOutputStage projects each state batch record onto the values its
// update calls returned.
func mappedOutputStage(i int) Transform {
	return func(_ *TaskContext, in Iterator) Iterator {
		var pending []any
		return pull(func() (any, bool, error) {
			for len(pending) == 0 {
				rec, ok, err := next(in)
				if !ok {
					return nil, false, err
				}
				wire, err := state.DecodeWire(rec)
				if err != nil {
					return nil, false, stageError(i, KindMappedOutput, err)
				}
				pending = wire.MappedOutput
			}
			rec := pending[0]
			pending = pending[1:]
			return rec, true, nil
		})
	}
}

// snapshotStage projects each state batch record onto its present
// (key, value) entries, ordered by key.
func snapshotStage(i int) Transform {
	return func(_ *TaskContext, in Iterator) Iterator {
		var pending []state.Snapshot[any, any]
		return pull(func() (any, bool, error) {
			for len(pending) == 0 {
				rec, ok, err := next(in)
				if !ok {
					return nil, false, err
				}
				wire, err := state.DecodeWire(rec)
				if err != nil {
					return nil, false, stageError(i, KindStateSnapshot, err)
				}
				if pending, err = state.Snapshots(wire, partition.Compare); err != nil {
					return nil, false, err
				}
			}
			snap := pending[0]
			pending = pending[1:]
			return ipc.Pair{Key: snap.Key, Value: snap.Value}, true, nil
		})
	}
}
